package server

import (
	"fmt"
	"os"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of the startup configuration file: a flat
// map of workload name to its YAML-friendly fields, loosely typed for
// manifest entries that don't need a dedicated Go type on the wire.
type manifest struct {
	APIVersion string                   `yaml:"apiVersion"`
	Workloads  map[string]manifestEntry `yaml:"workloads"`
}

type manifestEntry struct {
	Agent         string            `yaml:"agent"`
	Runtime       string            `yaml:"runtime"`
	RuntimeConfig string            `yaml:"runtimeConfig"`
	RestartPolicy string            `yaml:"restartPolicy,omitempty"`
	Tags          map[string]string `yaml:"tags,omitempty"`
	Dependencies  map[string]string `yaml:"dependencies,omitempty"`
}

// LoadManifest reads the Server's startup desired state from a YAML file,
// the only disk persistence the Server performs (no state is ever written
// back out, per the Non-goal on persistence across restarts).
func (s *Server) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read startup manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse startup manifest %s: %w", path, err)
	}

	ds := &ankaios.DesiredState{
		APIVersion: m.APIVersion,
		Workloads:  map[string]*ankaios.Workload{},
	}
	for name, e := range m.Workloads {
		w := &ankaios.Workload{
			Name:          name,
			Agent:         e.Agent,
			Runtime:       e.Runtime,
			RuntimeConfig: e.RuntimeConfig,
			RestartPolicy: ankaios.RestartPolicy(e.RestartPolicy),
		}
		for k, v := range e.Tags {
			w.Tags = append(w.Tags, ankaios.Tag{Key: k, Value: v})
		}
		if len(e.Dependencies) > 0 {
			w.Dependencies = map[string]ankaios.DependencyCondition{}
			for dep, cond := range e.Dependencies {
				w.Dependencies[dep] = ankaios.DependencyCondition(cond)
			}
		}
		ds.Workloads[name] = w
	}

	if err := ValidateDesiredState(ds, s.runtimes); err != nil {
		return fmt.Errorf("startup manifest %s: %w", path, err)
	}

	s.mu.Lock()
	s.desired = ds
	s.mu.Unlock()
	return nil
}

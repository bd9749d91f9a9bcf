package controlapi

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPipeBasePath is the base directory under which each workload
// requesting a Control Interface gets its own subdirectory of named pipes.
const DefaultPipeBasePath = "/run/ankaios/control"

const (
	inboundPipeName  = "to_ankaios"
	outboundPipeName = "from_ankaios"
)

// PipeDir owns the named-pipe pair for one workload's Control Interface
// session, the same per-resource directory lifecycle idiom as a
// LocalDriver manages for volumes: one base path, one subdirectory per
// instance, torn down with RemoveAll.
type PipeDir struct {
	Path     string
	Inbound  string
	Outbound string
}

// CreatePipeDir makes the per-workload directory and both named pipes.
func CreatePipeDir(basePath, workloadName string) (*PipeDir, error) {
	if basePath == "" {
		basePath = DefaultPipeBasePath
	}

	dir := filepath.Join(basePath, workloadName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create control interface directory: %w", err)
	}

	pd := &PipeDir{
		Path:     dir,
		Inbound:  filepath.Join(dir, inboundPipeName),
		Outbound: filepath.Join(dir, outboundPipeName),
	}

	if err := mkfifo(pd.Inbound); err != nil {
		return nil, fmt.Errorf("create inbound pipe: %w", err)
	}
	if err := mkfifo(pd.Outbound); err != nil {
		os.Remove(pd.Inbound)
		return nil, fmt.Errorf("create outbound pipe: %w", err)
	}

	return pd, nil
}

// Remove deletes the directory and both pipes.
func (pd *PipeDir) Remove() error {
	return os.RemoveAll(pd.Path)
}

package ankaios

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMaskCopiesOnlyNamedFields(t *testing.T) {
	src := &DesiredState{
		APIVersion: "v0.1",
		Workloads: map[string]*Workload{
			"nginx": {Name: "nginx", Agent: "agent_A", Runtime: "podman", RuntimeConfig: "image: nginx:1.26"},
		},
	}
	dst := &DesiredState{
		Workloads: map[string]*Workload{
			"nginx": {Name: "nginx", Agent: "agent_A", Runtime: "podman", RuntimeConfig: "image: nginx:1.25"},
		},
	}

	err := ApplyMask(dst, src, []string{"workloads.nginx.runtimeConfig"})

	require.NoError(t, err)
	assert.Equal(t, "image: nginx:1.26", dst.Workloads["nginx"].RuntimeConfig)
	assert.Equal(t, "podman", dst.Workloads["nginx"].Runtime)
}

func TestApplyMaskMissingPathDeletesDestination(t *testing.T) {
	src := &DesiredState{Workloads: map[string]*Workload{}}
	dst := &DesiredState{
		Workloads: map[string]*Workload{
			"nginx": {Name: "nginx", Runtime: "podman"},
		},
	}

	err := ApplyMask(dst, src, []string{"workloads.nginx"})

	require.NoError(t, err)
	_, exists := dst.Workloads["nginx"]
	assert.False(t, exists)
}

func TestGetReadsNestedDottedPath(t *testing.T) {
	state := &DesiredState{
		Workloads: map[string]*Workload{
			"nginx": {Name: "nginx", Runtime: "podman"},
		},
	}

	var runtime string
	ok, err := Get(state, "workloads.nginx.runtime", &runtime)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "podman", runtime)
}

func TestGetMissingPathReturnsFalse(t *testing.T) {
	state := &DesiredState{Workloads: map[string]*Workload{}}

	var runtime string
	ok, err := Get(state, "workloads.nginx.runtime", &runtime)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesNestedValue(t *testing.T) {
	state := &DesiredState{
		Workloads: map[string]*Workload{
			"nginx": {Name: "nginx", Runtime: "podman"},
			"redis": {Name: "redis", Runtime: "podman"},
		},
	}

	err := Delete(state, "workloads.nginx")

	require.NoError(t, err)
	_, exists := state.Workloads["nginx"]
	assert.False(t, exists)
	_, stillExists := state.Workloads["redis"]
	assert.True(t, stillExists)
}

package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

const (
	// ContainerdNamespace is the containerd namespace every workload this
	// adaptor creates runs under, isolating them from other containerd
	// tenants on the same node.
	ContainerdNamespace = "ankaios"

	// DefaultContainerdSocket is the default containerd socket path.
	DefaultContainerdSocket = "/run/containerd/containerd.sock"

	pollInterval = 2 * time.Second
)

func init() {
	factory := func() (Adaptor, error) {
		return NewContainerdAdaptor(DefaultContainerdSocket)
	}
	Register("containerd", factory)
	Register("podman", factory)
}

// ContainerdAdaptor implements Adaptor against a local containerd daemon.
// containerd and Podman are both OCI-runtime-fronting daemons, so this
// shape is also what the "podman" runtime tag resolves to until a
// Podman-specific client is wired in; both tags share this adaptor today.
type ContainerdAdaptor struct {
	client    *containerd.Client
	namespace string

	mu      sync.Mutex
	handles map[string]Handle // containerID -> Handle, for GetReusableWorkloads
}

// NewContainerdAdaptor dials the containerd socket at socketPath (or
// DefaultContainerdSocket if empty).
func NewContainerdAdaptor(socketPath string) (*ContainerdAdaptor, error) {
	if socketPath == "" {
		socketPath = DefaultContainerdSocket
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd at %s: %w", socketPath, err)
	}

	return &ContainerdAdaptor{
		client:    client,
		namespace: ContainerdNamespace,
		handles:   map[string]Handle{},
	}, nil
}

// Close releases the containerd client connection.
func (a *ContainerdAdaptor) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *ContainerdAdaptor) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, a.namespace)
}

// CreateWorkload pulls the image named by w.RuntimeConfig, creates and
// starts a container for instance, and returns a StateChecker that polls
// containerd for the task's status.
func (a *ContainerdAdaptor) CreateWorkload(ctx context.Context, instance ankaios.WorkloadInstanceName, w *ankaios.Workload) (Handle, StateChecker, error) {
	cctx := a.ctx(ctx)
	imageRef := w.RuntimeConfig
	if imageRef == "" {
		return Handle{}, nil, Fatal(fmt.Errorf("workload %s: runtimeConfig (image reference) is required", instance))
	}

	image, err := a.client.Pull(cctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return Handle{}, nil, Retry(fmt.Errorf("pull image %s: %w", imageRef, err))
	}

	containerID := instance.String()
	opts := []oci.SpecOpts{oci.WithImageConfig(image)}

	ctrdContainer, err := a.client.NewContainer(
		cctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return Handle{}, nil, Retry(fmt.Errorf("create container for %s: %w", instance, err))
	}

	task, err := ctrdContainer.NewTask(cctx, cio.NullIO)
	if err != nil {
		return Handle{}, nil, Retry(fmt.Errorf("create task for %s: %w", instance, err))
	}
	if err := task.Start(cctx); err != nil {
		return Handle{}, nil, Retry(fmt.Errorf("start task for %s: %w", instance, err))
	}

	handle := Handle{Instance: instance, ContainerID: containerID}
	a.mu.Lock()
	a.handles[containerID] = handle
	a.mu.Unlock()

	return handle, newContainerdStateChecker(a, handle), nil
}

// DeleteWorkload stops and removes the container backing handle. A
// container that no longer exists is treated as already deleted.
func (a *ContainerdAdaptor) DeleteWorkload(ctx context.Context, handle Handle) error {
	cctx := a.ctx(ctx)

	container, err := a.client.LoadContainer(cctx, handle.ContainerID)
	if err != nil {
		a.forget(handle.ContainerID)
		return nil
	}

	if task, err := container.Task(cctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(cctx, 10*time.Second)
		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, waitErr := task.Wait(stopCtx)
			if waitErr == nil {
				select {
				case <-statusC:
				case <-stopCtx.Done():
					_ = task.Kill(cctx, syscall.SIGKILL)
				}
			}
		}
		cancel()
		_, _ = task.Delete(cctx)
	}

	if err := container.Delete(cctx, containerd.WithSnapshotCleanup); err != nil {
		a.forget(handle.ContainerID)
		return Retry(fmt.Errorf("delete container %s: %w", handle.ContainerID, err))
	}

	a.forget(handle.ContainerID)
	return nil
}

func (a *ContainerdAdaptor) forget(containerID string) {
	a.mu.Lock()
	delete(a.handles, containerID)
	a.mu.Unlock()
}

// GetReusableWorkloads lists containers already present in the namespace
// whose ID decodes to an instance belonging to agentName, letting the
// agent adopt still-running containers across a reconnect instead of
// recreating them.
func (a *ContainerdAdaptor) GetReusableWorkloads(ctx context.Context, agentName string) ([]Handle, error) {
	cctx := a.ctx(ctx)

	containers, err := a.client.Containers(cctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var handles []Handle
	for _, c := range containers {
		instance, ok := parseInstanceID(c.ID())
		if !ok || instance.AgentName != agentName {
			continue
		}
		handles = append(handles, Handle{Instance: instance, ContainerID: c.ID()})
	}
	return handles, nil
}

// WatchWorkload returns a StateChecker polling handle the same way a
// freshly created workload's checker does, letting GetReusableWorkloads'
// survivors be monitored without a second CreateWorkload call.
func (a *ContainerdAdaptor) WatchWorkload(ctx context.Context, handle Handle) (StateChecker, error) {
	a.mu.Lock()
	a.handles[handle.ContainerID] = handle
	a.mu.Unlock()
	return newContainerdStateChecker(a, handle), nil
}

func parseInstanceID(id string) (ankaios.WorkloadInstanceName, bool) {
	parts := strings.SplitN(id, ".", 3)
	if len(parts) != 3 {
		return ankaios.WorkloadInstanceName{}, false
	}
	return ankaios.WorkloadInstanceName{AgentName: parts[0], WorkloadName: parts[1], ConfigHash: parts[2]}, true
}

// containerdStateChecker polls containerd for a task's status on a fixed
// interval, the same monitor-loop idiom used directly inside
// executeContainer, lifted here behind the StateChecker interface so the
// control loop never talks to containerd directly.
type containerdStateChecker struct {
	adaptor *ContainerdAdaptor
	handle  Handle
	closed  chan struct{}
	once    sync.Once
}

func newContainerdStateChecker(a *ContainerdAdaptor, handle Handle) *containerdStateChecker {
	return &containerdStateChecker{adaptor: a, handle: handle, closed: make(chan struct{})}
}

func (c *containerdStateChecker) Next(ctx context.Context) (ankaios.ExecutionState, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	select {
	case <-ctx.Done():
		return ankaios.ExecutionState{}, ctx.Err()
	case <-c.closed:
		return ankaios.ExecutionState{}, fmt.Errorf("state checker closed")
	case <-ticker.C:
		return c.observe(ctx)
	}
}

func (c *containerdStateChecker) observe(ctx context.Context) (ankaios.ExecutionState, error) {
	cctx := c.adaptor.ctx(ctx)

	container, err := c.adaptor.client.LoadContainer(cctx, c.handle.ContainerID)
	if err != nil {
		return ankaios.ExecutionState{State: ankaios.Failed, Substate: ankaios.SubstateLost, Timestamp: time.Now()}, nil
	}

	task, err := container.Task(cctx, nil)
	if err != nil {
		return ankaios.ExecutionState{State: ankaios.Pending, Substate: ankaios.SubstateStarting, Timestamp: time.Now()}, nil
	}

	status, err := task.Status(cctx)
	if err != nil {
		return ankaios.ExecutionState{}, fmt.Errorf("task status for %s: %w", c.handle.ContainerID, err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return ankaios.ExecutionState{State: ankaios.Running, Timestamp: time.Now()}, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return ankaios.ExecutionState{State: ankaios.Succeeded, Timestamp: time.Now()}, nil
		}
		return ankaios.ExecutionState{State: ankaios.Failed, AdditionalInfo: fmt.Sprintf("exit code %d", status.ExitStatus), Timestamp: time.Now()}, nil
	default:
		return ankaios.ExecutionState{State: ankaios.Pending, Substate: ankaios.SubstateStarting, Timestamp: time.Now()}, nil
	}
}

func (c *containerdStateChecker) Close() {
	c.once.Do(func() { close(c.closed) })
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/fleetglass/fleetglass-backend/internal/docker"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// fakeEngine implements the slice of the Engine API the host pipeline touches.
// Any other APIClient method panics through the embedded nil interface.
type fakeEngine struct {
	client.APIClient

	mu        sync.Mutex
	pingErr   error
	listErr   error
	summaries []types.Container
	inspects  map[string]types.ContainerJSON
	closed    bool
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return types.Ping{}, f.pingErr
	}
	return types.Ping{APIVersion: "1.44"}, nil
}

func (f *fakeEngine) Info(ctx context.Context) (system.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return system.Info{ServerVersion: "25.0.2", NCPU: 8, Containers: len(f.summaries)}, nil
}

func (f *fakeEngine) ContainerList(ctx context.Context, _ containertypes.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Container(nil), f.summaries...), nil
}

func (f *fakeEngine) ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inspect, ok := f.inspects[id]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	return inspect, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEngine) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeEngine) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// addEngineContainer registers a summary and matching inspect payload.
func (f *fakeEngine) addEngineContainer(id, name, image, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, types.Container{
		ID: id, Names: []string{"/" + name}, Image: image, State: state,
	})
	if f.inspects == nil {
		f.inspects = make(map[string]types.ContainerJSON)
	}
	f.inspects[id] = types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:      id,
			Name:    "/" + name,
			Created: "2026-08-20T10:00:00Z",
			State:   &types.ContainerState{Status: state, StartedAt: "2026-08-20T10:00:05Z"},
		},
		Config: &containertypes.Config{Image: image},
	}
}

type hostFixture struct {
	*serviceDeps
	svc HostService
}

func newHostFixture(t *testing.T, engine *fakeEngine) *hostFixture {
	t.Helper()
	deps := newServiceDeps(t)
	svc := NewHostServiceWithFactory(deps.repo, deps.sched, deps.snaps, deps.collector, deps.cfg, discardLogger(),
		func(endpoint string) (*docker.Client, error) {
			return docker.NewClientForTest(engine), nil
		})
	deps.sched.SetCycleHook(svc.RecordCycle)
	return &hostFixture{serviceDeps: deps, svc: svc}
}

func TestAddHostRegistersPipeline(t *testing.T) {
	engine := &fakeEngine{}
	engine.addEngineContainer("abc123", "nginx", "nginx:1.27", "running")
	engine.addEngineContainer("def456", "batch", "busybox:latest", "exited")
	f := newHostFixture(t, engine)
	ctx := context.Background()

	h, err := f.svc.Add(ctx, "edge-1", "tcp://10.0.0.5:2375")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if h.ID == "" || h.Status != models.SourceStatusHealthy || h.Endpoint != "tcp://10.0.0.5:2375" {
		t.Fatalf("host = %+v", h)
	}

	ref := source.Ref{Kind: source.KindDocker, ID: h.ID}
	if _, err := f.sched.WaitSync(ctx, ref, 2*time.Second); err != nil {
		t.Fatalf("WaitSync: %v", err)
	}

	snap, ok := f.snaps.Get(ref)
	if !ok || len(snap.Containers) != 2 {
		t.Fatalf("snapshot = ok=%v %+v", ok, snap)
	}
	states := make(map[string]string, len(snap.Containers))
	for _, c := range snap.Containers {
		states[c.ID] = c.Status
	}
	if states["docker-abc123"] != models.ContainerRunning || states["docker-def456"] != models.ContainerExited {
		t.Fatalf("snapshot states = %v", states)
	}

	got, err := f.svc.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SourceStatusHealthy || got.LastSyncAt.IsZero() {
		t.Fatalf("persisted health = %+v", got)
	}

	live, err := f.svc.Containers(ctx, h.ID)
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if len(live) != 2 || live[0].HostID != h.ID {
		t.Fatalf("live containers = %+v", live)
	}

	info, err := f.svc.Info(ctx, h.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.ServerVersion != "25.0.2" || info.NCPU != 8 {
		t.Fatalf("info = %+v", info)
	}
}

func TestAddHostRejectsUnreachable(t *testing.T) {
	engine := &fakeEngine{pingErr: errors.New("dial unix /var/run/docker.sock: no such file")}
	f := newHostFixture(t, engine)

	_, err := f.svc.Add(context.Background(), "edge-1", "unix:///var/run/docker.sock")
	var unreachable *source.UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("error = %v, want UnreachableError", err)
	}
	if !engine.wasClosed() {
		t.Fatal("client must be closed when the probe fails")
	}

	hosts, err := f.svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(hosts) != 0 {
		t.Fatal("rejected host must not be persisted")
	}
	if jobs := f.sched.Jobs(); len(jobs) != 0 {
		t.Fatalf("rejected host must not get a sync loop, got %+v", jobs)
	}
}

func TestAddHostValidatesName(t *testing.T) {
	f := newHostFixture(t, &fakeEngine{})
	if _, err := f.svc.Add(context.Background(), "", "tcp://10.0.0.5:2375"); !errors.Is(err, source.ErrInvalidInput) {
		t.Fatalf("empty name error = %v, want ErrInvalidInput", err)
	}
}

func TestRemoveHostTearsDownPipeline(t *testing.T) {
	engine := &fakeEngine{}
	engine.addEngineContainer("abc123", "nginx", "nginx:1.27", "running")
	f := newHostFixture(t, engine)
	ctx := context.Background()

	h, err := f.svc.Add(ctx, "edge-1", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	ref := source.Ref{Kind: source.KindDocker, ID: h.ID}
	if _, err := f.sched.WaitSync(ctx, ref, 2*time.Second); err != nil {
		t.Fatalf("WaitSync: %v", err)
	}

	if err := f.svc.Remove(ctx, h.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := f.svc.Get(ctx, h.ID); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("Get after remove = %v, want ErrNotFound", err)
	}
	if _, ok := f.sched.Job(ref); ok {
		t.Fatal("sync loop must stop on removal")
	}
	if _, ok := f.snaps.Get(ref); ok {
		t.Fatal("snapshot must be dropped on removal")
	}
	if !engine.wasClosed() {
		t.Fatal("client must be closed on removal")
	}
}

func TestHostHealthDegradesAndRecovers(t *testing.T) {
	engine := &fakeEngine{}
	engine.addEngineContainer("abc123", "nginx", "nginx:1.27", "running")
	f := newHostFixture(t, engine)
	ctx := context.Background()

	h, err := f.svc.Add(ctx, "edge-1", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	ref := source.Ref{Kind: source.KindDocker, ID: h.ID}

	cycle := func() {
		t.Helper()
		if _, err := f.sched.WaitSync(ctx, ref, 2*time.Second); err != nil {
			t.Fatalf("WaitSync: %v", err)
		}
	}

	cycle()
	engine.setListErr(errors.New("engine restarting"))
	cycle()
	got, err := f.svc.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SourceStatusDegraded || got.LastError == "" {
		t.Fatalf("status after failure = %+v", got)
	}

	engine.setListErr(nil)
	cycle()
	got, err = f.svc.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.SourceStatusHealthy || got.LastError != "" {
		t.Fatalf("status after recovery = %+v", got)
	}
}

func TestLoadFromRepoRestoresHosts(t *testing.T) {
	engine := &fakeEngine{}
	engine.addEngineContainer("abc123", "nginx", "nginx:1.27", "running")
	f := newHostFixture(t, engine)
	ctx := context.Background()

	seed := &models.DockerHost{Name: "edge-1", Endpoint: "tcp://10.0.0.5:2375", Status: models.SourceStatusHealthy}
	if err := f.repo.CreateHost(ctx, seed); err != nil {
		t.Fatalf("seed host: %v", err)
	}

	if err := f.svc.LoadFromRepo(ctx); err != nil {
		t.Fatalf("LoadFromRepo: %v", err)
	}

	ref := source.Ref{Kind: source.KindDocker, ID: seed.ID}
	if _, ok := f.sched.Job(ref); !ok {
		t.Fatal("restored host has no sync loop")
	}
	if _, err := f.sched.WaitSync(ctx, ref, 2*time.Second); err != nil {
		t.Fatalf("WaitSync: %v", err)
	}
	if snap, ok := f.snaps.Get(ref); !ok || len(snap.Containers) != 1 {
		t.Fatalf("restored host never synced: ok=%v", ok)
	}
}

func TestDockerActorResolution(t *testing.T) {
	f := newHostFixture(t, &fakeEngine{})
	ctx := context.Background()

	h, err := f.svc.Add(ctx, "edge-1", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	actor, err := f.svc.DockerActor(h.ID)
	if err != nil || actor == nil {
		t.Fatalf("DockerActor = %v, %v", actor, err)
	}
	if _, err := f.svc.DockerActor("ghost"); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("unknown host error = %v, want ErrNotFound", err)
	}
}

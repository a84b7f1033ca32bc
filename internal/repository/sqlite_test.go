package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/migrations"
)

func setupTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	schema, err := migrations.Schema()
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if err := store.RunMigrations(schema); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return store
}

func createTestCluster(t *testing.T, store *SQLite, name string) *models.Cluster {
	t.Helper()
	c := &models.Cluster{
		Name:           name,
		KubeconfigPath: "/etc/fleetglass/" + name + ".yaml",
		Status:         models.SourceStatusConnecting,
	}
	if err := store.CreateCluster(context.Background(), c); err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	return c
}

func TestClusterCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := createTestCluster(t, store, "prod-east")
	if c.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if got.Name != "prod-east" || got.Status != models.SourceStatusConnecting {
		t.Fatalf("got %+v", got)
	}

	syncedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SetClusterStatus(ctx, c.ID, models.SourceStatusHealthy, "", syncedAt); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = store.GetCluster(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if got.Status != models.SourceStatusHealthy {
		t.Errorf("status = %q, want healthy", got.Status)
	}
	if !got.LastSyncAt.Equal(syncedAt) {
		t.Errorf("last_sync_at = %v, want %v", got.LastSyncAt, syncedAt)
	}
	// Registration fields untouched by the narrow update.
	if got.KubeconfigPath != c.KubeconfigPath {
		t.Errorf("kubeconfig_path clobbered: %q", got.KubeconfigPath)
	}

	got.Version = "v1.31.1"
	if err := store.UpdateCluster(ctx, got); err != nil {
		t.Fatalf("update cluster: %v", err)
	}

	list, err := store.ListClusters(ctx)
	if err != nil {
		t.Fatalf("list clusters: %v", err)
	}
	if len(list) != 1 || list[0].Version != "v1.31.1" {
		t.Fatalf("list = %+v", list)
	}

	if err := store.DeleteCluster(ctx, c.ID); err != nil {
		t.Fatalf("delete cluster: %v", err)
	}
	if _, err := store.GetCluster(ctx, c.ID); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestHostCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	h := &models.DockerHost{Name: "edge-1", Endpoint: "unix:///var/run/docker.sock", Status: models.SourceStatusConnecting}
	if err := store.CreateHost(ctx, h); err != nil {
		t.Fatalf("create host: %v", err)
	}
	if h.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.GetHost(ctx, h.ID)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	if got.Endpoint != "unix:///var/run/docker.sock" {
		t.Fatalf("got %+v", got)
	}

	if err := store.SetHostStatus(ctx, h.ID, models.SourceStatusUnreachable, "dial failed", time.Time{}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ = store.GetHost(ctx, h.ID)
	if got.Status != models.SourceStatusUnreachable || got.LastError != "dial failed" {
		t.Fatalf("got %+v", got)
	}

	if err := store.DeleteHost(ctx, h.ID); err != nil {
		t.Fatalf("delete host: %v", err)
	}
	if _, err := store.GetHost(ctx, h.ID); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestNamespaceStaleMarking(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	cluster := createTestCluster(t, store, "prod")

	seen := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, name := range []string{"default", "kube-system", "payments"} {
		ns := &models.Namespace{ClusterID: cluster.ID, Name: name, Phase: "Active", FirstSeenAt: seen, LastSeenAt: seen}
		if err := store.UpsertNamespace(ctx, ns); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	// payments disappears for two cycles: counted but not yet stale.
	for i := 0; i < 2; i++ {
		if err := store.MarkMissingNamespaces(ctx, cluster.ID, []string{"default", "kube-system"}, 3); err != nil {
			t.Fatalf("mark missing: %v", err)
		}
	}
	if ns := findNamespace(t, store, cluster.ID, "payments"); ns.Stale || ns.MissedCycles != 2 {
		t.Fatalf("after 2 misses: %+v", ns)
	}

	// Third miss crosses the threshold.
	if err := store.MarkMissingNamespaces(ctx, cluster.ID, []string{"default", "kube-system"}, 3); err != nil {
		t.Fatalf("mark missing: %v", err)
	}
	if ns := findNamespace(t, store, cluster.ID, "payments"); !ns.Stale || ns.MissedCycles != 3 {
		t.Fatalf("after 3 misses: %+v", ns)
	}
	// The namespaces that were seen are untouched.
	if ns := findNamespace(t, store, cluster.ID, "default"); ns.Stale || ns.MissedCycles != 0 {
		t.Fatalf("default: %+v", ns)
	}

	// Reappearance clears the flag and the counter.
	back := &models.Namespace{ClusterID: cluster.ID, Name: "payments", Phase: "Active", FirstSeenAt: seen, LastSeenAt: seen.Add(time.Hour)}
	if err := store.UpsertNamespace(ctx, back); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ns := findNamespace(t, store, cluster.ID, "payments"); ns.Stale || ns.MissedCycles != 0 {
		t.Fatalf("after reappearance: %+v", ns)
	}
}

func TestMarkMissingWithEmptySeenList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	cluster := createTestCluster(t, store, "prod")

	ns := &models.Namespace{ClusterID: cluster.ID, Name: "default", Phase: "Active"}
	if err := store.UpsertNamespace(ctx, ns); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// An empty cycle result counts every namespace as missing.
	if err := store.MarkMissingNamespaces(ctx, cluster.ID, nil, 1); err != nil {
		t.Fatalf("mark missing: %v", err)
	}
	if got := findNamespace(t, store, cluster.ID, "default"); !got.Stale || got.MissedCycles != 1 {
		t.Fatalf("got %+v", got)
	}
}

func findNamespace(t *testing.T, store *SQLite, clusterID, name string) *models.Namespace {
	t.Helper()
	list, err := store.ListNamespaces(context.Background(), clusterID)
	if err != nil {
		t.Fatalf("list namespaces: %v", err)
	}
	for _, ns := range list {
		if ns.Name == name {
			return ns
		}
	}
	t.Fatalf("namespace %s not found", name)
	return nil
}

func TestEventUpsertDeduplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	cluster := createTestCluster(t, store, "prod")

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ev := &models.Event{
		ClusterID:      cluster.ID,
		Namespace:      "payments",
		InvolvedKind:   "Pod",
		InvolvedName:   "api-7dd9",
		Type:           models.EventWarning,
		Reason:         "BackOff",
		Message:        "Back-off restarting failed container",
		Count:          1,
		FirstTimestamp: base,
		LastTimestamp:  base,
	}
	if err := store.UpsertEvent(ctx, ev); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A newer occurrence of the same key bumps count instead of inserting.
	again := *ev
	again.ID = ""
	again.LastTimestamp = base.Add(time.Minute)
	if err := store.UpsertEvent(ctx, &again); err != nil {
		t.Fatalf("upsert duplicate: %v", err)
	}

	list, err := store.ListEvents(ctx, EventFilter{ClusterID: cluster.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 row, got %d", len(list))
	}
	if list[0].Count != 2 {
		t.Errorf("count = %d, want 2", list[0].Count)
	}
	if !list[0].LastTimestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("last_timestamp = %v", list[0].LastTimestamp)
	}

	// The API server's own counter wins when it is ahead.
	counted := again
	counted.ID = ""
	counted.Count = 17
	counted.LastTimestamp = base.Add(2 * time.Minute)
	if err := store.UpsertEvent(ctx, &counted); err != nil {
		t.Fatalf("upsert counted: %v", err)
	}
	list, _ = store.ListEvents(ctx, EventFilter{ClusterID: cluster.ID})
	if len(list) != 1 || list[0].Count != 17 {
		t.Fatalf("after counted upsert: %+v", list)
	}

	// Replaying the identical event is a no-op, so sync cycles don't inflate.
	replay := counted
	replay.ID = ""
	if err := store.UpsertEvent(ctx, &replay); err != nil {
		t.Fatalf("upsert replay: %v", err)
	}
	list, _ = store.ListEvents(ctx, EventFilter{ClusterID: cluster.ID})
	if len(list) != 1 || list[0].Count != 17 {
		t.Fatalf("after replay: %+v", list)
	}
}

func TestEventFiltersAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	prod := createTestCluster(t, store, "prod")
	dev := createTestCluster(t, store, "dev")

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	events := []*models.Event{
		{ClusterID: prod.ID, Namespace: "payments", InvolvedKind: "Pod", InvolvedName: "api-1", Type: models.EventWarning, Reason: "BackOff", FirstTimestamp: base, LastTimestamp: base},
		{ClusterID: prod.ID, Namespace: "default", InvolvedKind: "Pod", InvolvedName: "web-1", Type: models.EventNormal, Reason: "Scheduled", FirstTimestamp: base.Add(time.Minute), LastTimestamp: base.Add(time.Minute)},
		{ClusterID: dev.ID, Namespace: "default", InvolvedKind: "Node", InvolvedName: "node-1", Type: models.EventWarning, Reason: "DiskPressure", FirstTimestamp: base.Add(2 * time.Minute), LastTimestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := store.UpsertEvent(ctx, e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	byCluster, err := store.ListEvents(ctx, EventFilter{ClusterID: prod.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byCluster) != 2 {
		t.Fatalf("cluster filter: got %d", len(byCluster))
	}
	// Newest first.
	if byCluster[0].Reason != "Scheduled" {
		t.Errorf("order: first reason = %q", byCluster[0].Reason)
	}

	warnings, err := store.ListEvents(ctx, EventFilter{Type: models.EventWarning})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("type filter: got %d", len(warnings))
	}

	limited, err := store.ListEvents(ctx, EventFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 || limited[0].Reason != "DiskPressure" {
		t.Fatalf("limit: %+v", limited)
	}

	pruned, err := store.PruneEvents(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}
	left, _ := store.ListEvents(ctx, EventFilter{})
	if len(left) != 1 || left[0].Reason != "DiskPressure" {
		t.Fatalf("after prune: %+v", left)
	}
}

func TestDeleteClusterCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	cluster := createTestCluster(t, store, "prod")

	ns := &models.Namespace{ClusterID: cluster.ID, Name: "default", Phase: "Active"}
	if err := store.UpsertNamespace(ctx, ns); err != nil {
		t.Fatalf("upsert namespace: %v", err)
	}
	ev := &models.Event{
		ClusterID: cluster.ID, Namespace: "default", InvolvedKind: "Pod", InvolvedName: "web-1",
		Type: models.EventNormal, Reason: "Started",
		FirstTimestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		LastTimestamp:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.UpsertEvent(ctx, ev); err != nil {
		t.Fatalf("upsert event: %v", err)
	}

	if err := store.DeleteCluster(ctx, cluster.ID); err != nil {
		t.Fatalf("delete cluster: %v", err)
	}

	namespaces, err := store.ListNamespaces(ctx, cluster.ID)
	if err != nil {
		t.Fatalf("list namespaces: %v", err)
	}
	if len(namespaces) != 0 {
		t.Errorf("namespaces survived: %+v", namespaces)
	}
	eventsLeft, err := store.ListEvents(ctx, EventFilter{ClusterID: cluster.ID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(eventsLeft) != 0 {
		t.Errorf("events survived: %+v", eventsLeft)
	}
}

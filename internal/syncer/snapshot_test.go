package syncer

import (
	"testing"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

func dockerRef(id string) source.Ref {
	return source.Ref{Kind: source.KindDocker, ID: id}
}

func k8sRef(id string) source.Ref {
	return source.Ref{Kind: source.KindKubernetes, ID: id}
}

func TestStoreSetGetRemove(t *testing.T) {
	s := NewStore()
	ref := dockerRef("host-1")

	if _, ok := s.Get(ref); ok {
		t.Fatal("expected no snapshot before Set")
	}

	snap := &Snapshot{Ref: ref, TakenAt: time.Now(), Containers: []models.UnifiedContainer{
		{ID: "docker-abc", Name: "web"},
	}}
	s.Set(snap)

	got, ok := s.Get(ref)
	if !ok {
		t.Fatal("expected snapshot after Set")
	}
	if len(got.Containers) != 1 || got.Containers[0].ID != "docker-abc" {
		t.Fatalf("unexpected snapshot contents: %+v", got.Containers)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	s.Remove(ref)
	if _, ok := s.Get(ref); ok {
		t.Fatal("expected snapshot gone after Remove")
	}
}

func TestStoreAllOrderedByKey(t *testing.T) {
	s := NewStore()
	s.Set(&Snapshot{Ref: k8sRef("cluster-b")})
	s.Set(&Snapshot{Ref: dockerRef("host-a")})
	s.Set(&Snapshot{Ref: k8sRef("cluster-a")})

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("All returned %d snapshots, want 3", len(all))
	}
	keys := []string{all[0].Ref.Key(), all[1].Ref.Key(), all[2].Ref.Key()}
	want := []string{"docker/host-a", "kubernetes/cluster-a", "kubernetes/cluster-b"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("All order = %v, want %v", keys, want)
		}
	}
}

func TestStoreUpdateEntityReplacesInPlace(t *testing.T) {
	s := NewStore()
	ref := dockerRef("host-1")
	taken := time.Now().Add(-time.Minute)
	s.Set(&Snapshot{Ref: ref, TakenAt: taken, Containers: []models.UnifiedContainer{
		{ID: "docker-aaa", Name: "web", Status: models.ContainerRunning},
		{ID: "docker-bbb", Name: "db", Status: models.ContainerRunning},
	}})

	s.UpdateEntity(ref, models.UnifiedContainer{ID: "docker-aaa", Name: "web", Status: models.ContainerExited})

	got, _ := s.Get(ref)
	if len(got.Containers) != 2 {
		t.Fatalf("expected 2 containers after patch, got %d", len(got.Containers))
	}
	var patched, untouched *models.UnifiedContainer
	for i := range got.Containers {
		switch got.Containers[i].ID {
		case "docker-aaa":
			patched = &got.Containers[i]
		case "docker-bbb":
			untouched = &got.Containers[i]
		}
	}
	if patched == nil || patched.Status != models.ContainerExited {
		t.Fatalf("patched entity not updated: %+v", got.Containers)
	}
	if untouched == nil || untouched.Status != models.ContainerRunning {
		t.Fatalf("unrelated entity modified: %+v", got.Containers)
	}
	if !got.TakenAt.Equal(taken) {
		t.Fatalf("patch must not refresh TakenAt: got %v want %v", got.TakenAt, taken)
	}
}

func TestStoreUpdateEntityAppendsNew(t *testing.T) {
	s := NewStore()
	ref := dockerRef("host-1")
	s.Set(&Snapshot{Ref: ref, TakenAt: time.Now(), Containers: []models.UnifiedContainer{
		{ID: "docker-aaa", Name: "web"},
	}})

	s.UpdateEntity(ref, models.UnifiedContainer{ID: "docker-ccc", Name: "cache"})

	got, _ := s.Get(ref)
	if len(got.Containers) != 2 {
		t.Fatalf("expected append, got %d containers", len(got.Containers))
	}
}

func TestStoreUpdateEntityDoesNotMutatePublished(t *testing.T) {
	s := NewStore()
	ref := dockerRef("host-1")
	s.Set(&Snapshot{Ref: ref, TakenAt: time.Now(), Containers: []models.UnifiedContainer{
		{ID: "docker-aaa", Status: models.ContainerRunning},
	}})
	before, _ := s.Get(ref)

	s.UpdateEntity(ref, models.UnifiedContainer{ID: "docker-aaa", Status: models.ContainerExited})

	// The pointer loaded before the patch must still show the old value.
	if before.Containers[0].Status != models.ContainerRunning {
		t.Fatal("published snapshot was mutated in place")
	}
	after, _ := s.Get(ref)
	if after == before {
		t.Fatal("patch must swap the snapshot value")
	}
}

func TestStoreRemoveEntity(t *testing.T) {
	s := NewStore()
	ref := dockerRef("host-1")
	s.Set(&Snapshot{Ref: ref, TakenAt: time.Now(), Containers: []models.UnifiedContainer{
		{ID: "docker-aaa"},
		{ID: "docker-bbb"},
	}})

	s.RemoveEntity(ref, "docker-aaa")

	got, _ := s.Get(ref)
	if len(got.Containers) != 1 || got.Containers[0].ID != "docker-bbb" {
		t.Fatalf("unexpected containers after removal: %+v", got.Containers)
	}

	// Removing an id that is not there leaves the snapshot intact.
	s.RemoveEntity(ref, "docker-zzz")
	got, _ = s.Get(ref)
	if len(got.Containers) != 1 {
		t.Fatalf("removal of unknown id changed the snapshot: %+v", got.Containers)
	}
}

func TestStoreFind(t *testing.T) {
	s := NewStore()
	s.Set(&Snapshot{Ref: k8sRef("c1"), Containers: []models.UnifiedContainer{
		{ID: "k8s-uid-1", Name: "api"},
	}})
	s.Set(&Snapshot{Ref: dockerRef("h1"), Containers: []models.UnifiedContainer{
		{ID: "docker-abc", Name: "web"},
	}})

	c, ok := s.Find("docker-abc")
	if !ok || c.Name != "web" {
		t.Fatalf("Find(docker-abc) = %+v, %v", c, ok)
	}
	if _, ok := s.Find("docker-missing"); ok {
		t.Fatal("Find must miss on unknown id")
	}
}

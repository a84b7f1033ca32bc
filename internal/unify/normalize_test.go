package unify

import (
	"errors"
	"testing"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

func TestMakeSplitRoundTrip(t *testing.T) {
	cases := []struct {
		kind   source.Kind
		native string
	}{
		{source.KindKubernetes, "6a1f-uid"},
		{source.KindDocker, "3f2a9c81d4"},
		{source.KindDocker, "docker-in-name"}, // native id containing the other prefix
		{source.KindKubernetes, "k8s-ception"},
	}
	for _, tc := range cases {
		id := MakeID(tc.kind, tc.native)
		kind, native, err := SplitID(id)
		if err != nil {
			t.Fatalf("SplitID(%q): %v", id, err)
		}
		if kind != tc.kind || native != tc.native {
			t.Fatalf("round trip %q: got (%s, %s), want (%s, %s)",
				id, kind, native, tc.kind, tc.native)
		}
	}
}

func TestSplitIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "abc123", "pod-xyz", "k8s-", "docker-"} {
		_, _, err := SplitID(id)
		if err == nil {
			t.Fatalf("SplitID(%q) accepted a malformed id", id)
		}
		if !errors.Is(err, source.ErrNotFound) {
			t.Fatalf("SplitID(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestNormalizePodPhase(t *testing.T) {
	cases := map[string]string{
		"Pending":      models.PodPending,
		"Running":      models.PodRunning,
		"running":      models.PodRunning,
		"Succeeded":    models.PodSucceeded,
		"Failed":       models.PodFailed,
		"Unknown":      models.PodUnknown,
		"Terminating":  models.PodUnknown,
		"":             models.PodUnknown,
		"NodeAffinity": models.PodUnknown,
	}
	for in, want := range cases {
		if got := NormalizePodPhase(in); got != want {
			t.Errorf("NormalizePodPhase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeDockerState(t *testing.T) {
	cases := map[string]string{
		"running":                 models.ContainerRunning,
		"Running":                 models.ContainerRunning,
		"Up 2 hours":              models.ContainerRunning,
		"Up 5 minutes (Paused)":   models.ContainerPaused, // paused wins over up/running
		"paused":                  models.ContainerPaused,
		"exited":                  models.ContainerExited,
		"Exited (0) 3 days ago":   models.ContainerExited,
		"stopped":                 models.ContainerExited,
		"created":                 models.ContainerCreated,
		"dead":                    models.ContainerDead,
		"failed":                  models.ContainerDead,
		"restarting":              models.ContainerRestarting,
		"Restarting (1) 5s ago":   models.ContainerRestarting,
		"":                        models.ContainerUnknown,
		"some future engine text": models.ContainerUnknown,
	}
	for in, want := range cases {
		if got := NormalizeDockerState(in); got != want {
			t.Errorf("NormalizeDockerState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromPod(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	pod := models.Pod{
		ID:             "uid-123",
		ClusterID:      "cluster-1",
		Namespace:      "default",
		Name:           "web-abc",
		Status:         "Running",
		NodeName:       "node-1",
		IP:             "10.0.0.5",
		Image:          "nginx:1.25",
		ContainerCount: 2,
		ReadyCount:     2,
		RestartCount:   1,
		CreatedAt:      created,
	}

	c := FromPod(pod)

	if c.ID != "k8s-uid-123" {
		t.Fatalf("ID = %q, want k8s-uid-123", c.ID)
	}
	if c.Source != "kubernetes" {
		t.Fatalf("Source = %q, want kubernetes", c.Source)
	}
	if c.Status != models.PodRunning {
		t.Fatalf("Status = %q, want Running", c.Status)
	}
	if c.RestartCount != 1 {
		t.Fatalf("RestartCount = %d, want 1", c.RestartCount)
	}
	if c.ClusterID != "cluster-1" || c.Namespace != "default" {
		t.Fatalf("cluster context lost: %+v", c)
	}
	if c.HostOrNode != "node-1" || c.IPAddress != "10.0.0.5" || !c.CreatedAt.Equal(created) {
		t.Fatalf("detail fields lost: %+v", c)
	}
}

func TestFromDockerContainer(t *testing.T) {
	c := FromDockerContainer(models.DockerContainer{
		ID:          "3f2a9c81d4",
		HostID:      "host-1",
		ContainerID: "3f2a9c81d4",
		Name:        "web",
		Image:       "nginx:alpine",
		Status:      "Up 5 minutes (Paused)",
		RawState:    "Up 5 minutes (Paused)",
	})

	if c.ID != "docker-3f2a9c81d4" {
		t.Fatalf("ID = %q, want docker-3f2a9c81d4", c.ID)
	}
	if c.Source != "docker" {
		t.Fatalf("Source = %q, want docker", c.Source)
	}
	if c.Status != models.ContainerPaused {
		t.Fatalf("Status = %q, want paused", c.Status)
	}
	if c.HostID != "host-1" || c.HostOrNode != "host-1" {
		t.Fatalf("host context lost: %+v", c)
	}
}

func TestIsRunning(t *testing.T) {
	if !IsRunning("Running") || !IsRunning("running") {
		t.Fatal("both casings of running must count as running")
	}
	for _, s := range []string{"paused", "exited", "Pending", "unknown", ""} {
		if IsRunning(s) {
			t.Fatalf("IsRunning(%q) = true", s)
		}
	}
}

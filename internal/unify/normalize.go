// Package unify maps heterogeneous source records into the unified container
// schema and builds the merged read-only view over current snapshots.
package unify

import (
	"strings"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// MakeID builds a prefixed unified id from a source kind and native id.
// The prefix is the routing contract: SplitID recovers both parts.
func MakeID(kind source.Kind, nativeID string) string {
	if kind == source.KindDocker {
		return models.UnifiedPrefixDocker + nativeID
	}
	return models.UnifiedPrefixK8s + nativeID
}

// SplitID decodes a unified id into its source kind and native id. Unknown
// prefixes and empty native ids fail with a NotFoundError.
func SplitID(unifiedID string) (source.Kind, string, error) {
	switch {
	case strings.HasPrefix(unifiedID, models.UnifiedPrefixK8s):
		native := unifiedID[len(models.UnifiedPrefixK8s):]
		if native == "" {
			return "", "", &source.NotFoundError{ID: unifiedID}
		}
		return source.KindKubernetes, native, nil
	case strings.HasPrefix(unifiedID, models.UnifiedPrefixDocker):
		native := unifiedID[len(models.UnifiedPrefixDocker):]
		if native == "" {
			return "", "", &source.NotFoundError{ID: unifiedID}
		}
		return source.KindDocker, native, nil
	default:
		return "", "", &source.NotFoundError{ID: unifiedID}
	}
}

// NormalizePodPhase folds a pod phase into the canonical set. Total: anything
// unrecognized becomes Unknown.
func NormalizePodPhase(phase string) string {
	switch strings.ToLower(strings.TrimSpace(phase)) {
	case "pending":
		return models.PodPending
	case "running":
		return models.PodRunning
	case "succeeded":
		return models.PodSucceeded
	case "failed":
		return models.PodFailed
	default:
		return models.PodUnknown
	}
}

// NormalizeDockerState folds the engine's free-text state into the canonical
// set by substring match. The state field is not a closed enum across engine
// versions ("Up 2 hours (Paused)", "Exited (0) 3 days ago"), so fuzzy matching
// is deliberate. Total: anything unrecognized becomes unknown.
func NormalizeDockerState(state string) string {
	s := strings.ToLower(strings.TrimSpace(state))
	switch {
	case strings.Contains(s, "paused"):
		return models.ContainerPaused
	case strings.Contains(s, "restarting"):
		return models.ContainerRestarting
	case strings.Contains(s, "running"), strings.Contains(s, "up"):
		return models.ContainerRunning
	case strings.Contains(s, "exited"), strings.Contains(s, "stopped"):
		return models.ContainerExited
	case strings.Contains(s, "created"):
		return models.ContainerCreated
	case strings.Contains(s, "dead"), strings.Contains(s, "failed"):
		return models.ContainerDead
	default:
		return models.ContainerUnknown
	}
}

// FromPod converts one pod into its unified representation.
func FromPod(pod models.Pod) models.UnifiedContainer {
	return models.UnifiedContainer{
		ID:           MakeID(source.KindKubernetes, pod.ID),
		Name:         pod.Name,
		Source:       string(source.KindKubernetes),
		Status:       NormalizePodPhase(pod.Status),
		Image:        pod.Image,
		HostOrNode:   pod.NodeName,
		IPAddress:    pod.IP,
		RestartCount: pod.RestartCount,
		CreatedAt:    pod.CreatedAt,
		ClusterID:    pod.ClusterID,
		Namespace:    pod.Namespace,
	}
}

// FromDockerContainer converts one container into its unified representation.
func FromDockerContainer(c models.DockerContainer) models.UnifiedContainer {
	return models.UnifiedContainer{
		ID:           MakeID(source.KindDocker, c.ID),
		Name:         c.Name,
		Source:       string(source.KindDocker),
		Status:       NormalizeDockerState(c.Status),
		Image:        c.Image,
		HostOrNode:   c.HostID,
		IPAddress:    c.IPAddress,
		RestartCount: c.RestartCount,
		CreatedAt:    c.CreatedAt,
		HostID:       c.HostID,
	}
}

// IsRunning reports whether a normalized status counts as running for
// aggregate stats. Kubernetes uses "Running", Docker "running".
func IsRunning(status string) bool {
	return strings.EqualFold(status, models.ContainerRunning)
}

package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/validate"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/unify"
)

// LogsService reads container logs through the unified id, whichever backend
// the entity lives on. Fetches are cached for a few seconds so dashboard
// refresh bursts cost one connector round trip.
type LogsService interface {
	Fetch(ctx context.Context, entityID, container string, tail int) (models.LogBundle, error)
	ScanErrors(ctx context.Context, entityID, container string, tail int) (models.LogScan, error)
}

// EntityFinder resolves unified ids against current snapshots. The unified
// view satisfies it.
type EntityFinder interface {
	Find(unifiedID string) (models.UnifiedContainer, error)
}

type logsKey struct {
	entityID  string
	container string
	tail      int
}

type logsService struct {
	clusters ClusterService
	hosts    HostService
	view     EntityFinder
	cfg      *config.Config
	logger   *slog.Logger
	cache    *expirable.LRU[logsKey, string]
}

func NewLogsService(clusters ClusterService, hosts HostService, view EntityFinder, cfg *config.Config, log *slog.Logger) LogsService {
	if log == nil {
		log = slog.Default()
	}
	size := cfg.LogsCacheSize
	if size <= 0 {
		size = 128
	}
	return &logsService{
		clusters: clusters,
		hosts:    hosts,
		view:     view,
		cfg:      cfg,
		logger:   log,
		cache:    expirable.NewLRU[logsKey, string](size, nil, cfg.LogsCacheTTL()),
	}
}

func (s *logsService) Fetch(ctx context.Context, entityID, container string, tail int) (models.LogBundle, error) {
	tail = validate.Tail(tail, s.cfg.LogsDefaultTail, s.cfg.LogsMaxTail)
	bundle := models.LogBundle{
		EntityID:  entityID,
		Container: container,
		Tail:      tail,
		FetchedAt: time.Now().UTC(),
	}

	key := logsKey{entityID: entityID, container: container, tail: tail}
	if content, ok := s.cache.Get(key); ok {
		metrics.LogsCacheHitsTotal.Inc()
		bundle.Content = content
		return bundle, nil
	}
	metrics.LogsCacheMissesTotal.Inc()

	content, err := s.read(ctx, entityID, container, tail)
	if err != nil {
		return models.LogBundle{}, err
	}
	s.cache.Add(key, content)
	bundle.Content = content
	return bundle, nil
}

// read routes the fetch by id prefix: k8s ids resolve to pod namespace/name
// via the snapshot, docker ids carry the runtime id directly.
func (s *logsService) read(ctx context.Context, entityID, container string, tail int) (string, error) {
	kind, nativeID, err := unify.SplitID(entityID)
	if err != nil {
		return "", err
	}
	entity, err := s.view.Find(entityID)
	if err != nil {
		return "", err
	}

	switch kind {
	case source.KindKubernetes:
		client, err := s.clusters.Client(entity.ClusterID)
		if err != nil {
			return "", err
		}
		content, err := client.PodLogs(ctx, entity.Namespace, entity.Name, container, tail)
		if err != nil {
			return "", source.Unreachable(source.Ref{Kind: kind, ID: entity.ClusterID}, err)
		}
		return content, nil
	default:
		client, err := s.hosts.Client(entity.HostID)
		if err != nil {
			return "", err
		}
		content, err := client.Logs(ctx, nativeID, tail)
		if err != nil {
			return "", source.Unreachable(source.Ref{Kind: kind, ID: entity.HostID}, err)
		}
		return content, nil
	}
}

func (s *logsService) ScanErrors(ctx context.Context, entityID, container string, tail int) (models.LogScan, error) {
	bundle, err := s.Fetch(ctx, entityID, container, tail)
	if err != nil {
		return models.LogScan{}, err
	}
	issues, total := scanLogIssues(bundle.Content)
	return models.LogScan{
		EntityID:   bundle.EntityID,
		Container:  bundle.Container,
		Tail:       bundle.Tail,
		TotalLines: total,
		Issues:     issues,
		ScannedAt:  time.Now().UTC(),
	}, nil
}

// logKeywords maps lowercase markers to a severity guess. Checked in order:
// the strongest match on a line wins.
var logKeywords = []struct {
	marker   string
	severity string
}{
	{"panic", models.LogSeverityFatal},
	{"fatal", models.LogSeverityFatal},
	{"error", models.LogSeverityError},
	{"exception", models.LogSeverityError},
	{"traceback", models.LogSeverityError},
	{"stacktrace", models.LogSeverityError},
	{"failed", models.LogSeverityWarning},
	{"failure", models.LogSeverityWarning},
}

// scanLogIssues walks the window line by line collecting error-looking lines.
// Line numbers are 1-based within the window.
func scanLogIssues(content string) ([]models.LogIssue, int) {
	if content == "" {
		return nil, 0
	}
	lines := strings.Split(content, "\n")
	// A trailing newline is not an extra empty line.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var issues []models.LogIssue
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range logKeywords {
			if strings.Contains(lower, kw.marker) {
				issues = append(issues, models.LogIssue{
					Line:     i + 1,
					Severity: kw.severity,
					Text:     strings.TrimSpace(line),
				})
				break
			}
		}
	}
	return issues, len(lines)
}

package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/audit"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/metrics"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/tracing"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/unify"
)

// ErrUnknownAction rejects an action name outside the lifecycle set.
var ErrUnknownAction = errors.New("unknown action")

// transitions maps each action to the statuses it may start from. Anything
// else is an invalid transition, rejected before the runtime is touched.
var transitions = map[string]map[string]bool{
	models.ActionStart:   {models.ContainerCreated: true, models.ContainerExited: true},
	models.ActionStop:    {models.ContainerRunning: true},
	models.ActionRestart: {models.ContainerRunning: true},
	models.ActionPause:   {models.ContainerRunning: true},
	models.ActionUnpause: {models.ContainerPaused: true},
	models.ActionKill:    {models.ContainerRunning: true, models.ContainerPaused: true},
	models.ActionRemove:  {models.ContainerCreated: true, models.ContainerExited: true, models.ContainerDead: true},
}

// Resolver resolves unified ids against the current snapshots. The unified
// view satisfies it.
type Resolver interface {
	Find(unifiedID string) (models.UnifiedContainer, error)
}

// Actor executes one lifecycle action against a runtime. The Docker connector
// satisfies it.
type Actor interface {
	Do(ctx context.Context, containerID, action string) error
}

// ActorResolver yields the Actor for a registered Docker host. The host
// registry satisfies it.
type ActorResolver interface {
	DockerActor(hostID string) (Actor, error)
}

// Resyncer patches a single entity back into its snapshot. The scheduler
// satisfies it.
type Resyncer interface {
	ResyncEntity(ctx context.Context, ref source.Ref, nativeID string) error
}

const defaultResyncTimeout = 15 * time.Second

// Dispatcher validates and executes lifecycle actions. Actions on the same
// entity are serialized; different entities proceed in parallel. Connector
// failures are returned synchronously and never auto-retried.
type Dispatcher struct {
	view   Resolver
	actors ActorResolver
	resync Resyncer
	locks  *keyedMutex
	logger *slog.Logger

	resyncTimeout time.Duration
	resyncWG      sync.WaitGroup
}

// NewDispatcher wires the dispatcher. resyncTimeout bounds the background
// targeted resync after a successful action; zero uses the default.
func NewDispatcher(view Resolver, actors ActorResolver, resync Resyncer, resyncTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if resyncTimeout <= 0 {
		resyncTimeout = defaultResyncTimeout
	}
	return &Dispatcher{
		view:          view,
		actors:        actors,
		resync:        resync,
		locks:         newKeyedMutex(),
		logger:        logger,
		resyncTimeout: resyncTimeout,
	}
}

// Dispatch runs one action against one unified entity:
// split the id, reject non-Docker sources, serialize per entity, validate the
// transition against the current snapshot, call the connector, then audit and
// schedule a targeted resync.
func (d *Dispatcher) Dispatch(ctx context.Context, unifiedID, action string) (models.ActionResult, error) {
	kind, nativeID, err := unify.SplitID(unifiedID)
	if err != nil {
		return models.ActionResult{}, err
	}
	if kind != source.KindDocker {
		return models.ActionResult{}, &source.UnsupportedForSourceError{Op: "action " + action, Kind: kind}
	}
	if _, ok := transitions[action]; !ok {
		return models.ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	ctx, span := tracing.StartSpan(ctx, "action.dispatch", trace.WithAttributes(
		attribute.String("action", action),
		attribute.String("entity.id", unifiedID),
	))
	defer span.End()

	l := d.locks.lock(unifiedID)
	defer d.locks.unlock(unifiedID, l)

	c, err := d.view.Find(unifiedID)
	if err != nil {
		return models.ActionResult{}, err
	}

	if !transitions[action][c.Status] {
		metrics.ActionsTotal.WithLabelValues(action, "rejected").Inc()
		return models.ActionResult{}, &source.InvalidTransitionError{Action: action, Status: c.Status}
	}

	actor, err := d.actors.DockerActor(c.HostID)
	if err != nil {
		return models.ActionResult{}, err
	}

	requestID := logger.FromContext(ctx)
	if err := actor.Do(ctx, nativeID, action); err != nil {
		metrics.ActionsTotal.WithLabelValues(action, "error").Inc()
		audit.LogAction(requestID, action, unifiedID, "failure", err.Error())
		return models.ActionResult{}, err
	}

	metrics.ActionsTotal.WithLabelValues(action, "success").Inc()
	audit.LogAction(requestID, action, unifiedID, "success", "")
	d.scheduleResync(source.Ref{Kind: source.KindDocker, ID: c.HostID}, nativeID)

	return models.ActionResult{
		ID:          unifiedID,
		Action:      action,
		Status:      "ok",
		Message:     action + " completed",
		CompletedAt: time.Now().UTC(),
	}, nil
}

// scheduleResync patches the acted-on entity in the background so the view
// reflects the new state well before the next full cycle.
func (d *Dispatcher) scheduleResync(ref source.Ref, nativeID string) {
	d.resyncWG.Add(1)
	go func() {
		defer d.resyncWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.resyncTimeout)
		defer cancel()
		if err := d.resync.ResyncEntity(ctx, ref, nativeID); err != nil {
			d.logger.Warn("targeted resync failed",
				"source", ref.Key(), "entity", nativeID, "error", err)
		}
	}()
}

// Wait blocks until in-flight background resyncs finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.resyncWG.Wait()
}

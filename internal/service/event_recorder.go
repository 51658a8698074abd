package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/pkg/jobs"
)

// Lending event actions.
const (
	EventBookingCreated         = "booking.created"
	EventBookingAccepted        = "booking.accepted"
	EventBookingRejected        = "booking.rejected"
	EventScheduleAssigned       = "schedule_type.assigned"
	EventScheduleStatusChanged  = "schedule_type.status_changed"
	EventEquipmentStatusChanged = "equipment.status_changed"
	EventEquipmentCheckout      = "equipment.checkout"
	EventEquipmentReturn        = "equipment.return"
	EventKitCreated             = "kit.created"
	EventKitCheckout            = "kit.checkout"
	EventKitReturn              = "kit.return"
	EventKitReconciled          = "kit.reconciled"

	lendingEventJobType = "lending_event"
)

type eventStore interface {
	Create(ctx context.Context, event *models.LendingEvent) error
	List(ctx context.Context, filter models.LendingEventFilter) ([]models.LendingEvent, int, error)
}

// EventRecorderConfig sizes the asynchronous recorder.
type EventRecorderConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// EventRecorder persists committed transitions to the audit trail off the request path.
// Recording never fails the transition that triggered it.
type EventRecorder struct {
	store  eventStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewEventRecorder constructs an EventRecorder backed by a job queue.
func NewEventRecorder(store eventStore, cfg EventRecorderConfig, logger *zap.Logger) *EventRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &EventRecorder{store: store, logger: logger}
	r.queue = jobs.NewQueue("lending-events", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return r
}

// Start launches the recorder workers.
func (r *EventRecorder) Start(ctx context.Context) {
	if r == nil {
		return
	}
	r.queue.Start(ctx)
}

// Stop waits for the workers and persists events still waiting in the buffer.
func (r *EventRecorder) Stop() {
	if r == nil {
		return
	}
	r.queue.Stop()
}

// Record enqueues an event. Failures are logged and swallowed.
func (r *EventRecorder) Record(ctx context.Context, action, entityType, entityID string, actor models.Actor, payload map[string]interface{}) {
	if r == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to encode lending event", zap.String("action", action), zap.Error(err))
		raw = []byte("{}")
	}
	event := models.LendingEvent{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actor.UserID,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: lendingEventJobType, Payload: event}); err != nil {
		r.logger.Warn("lending event dropped", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

// List returns the audit trail newest first.
func (r *EventRecorder) List(ctx context.Context, filter models.LendingEventFilter) ([]models.LendingEvent, *models.Pagination, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	events, total, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(r.logger, err, "failed to list lending events")
	}
	if events == nil {
		events = []models.LendingEvent{}
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (r *EventRecorder) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.LendingEvent)
	if !ok {
		return fmt.Errorf("unexpected lending event payload %T", job.Payload)
	}
	return r.store.Create(ctx, &event)
}

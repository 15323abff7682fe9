package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	redisclient "github.com/feastline/feastline-backend/internal/clients/redis"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/sse"
)

const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepFailed     = "failed"
)

const (
	StageDietary       = "dietary_analysis"
	StageSelection     = "recipe_selection"
	StageConsolidation = "consolidation"
	StageBudget        = "budget_optimization"
)

// StepRecord is one row of the run ledger. The ledger is append-only per
// stage transition and survives a failed run untouched.
type StepRecord struct {
	Stage      string    `json:"stage"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Elapsed    string    `json:"elapsed,omitempty"`
}

// StepObserver receives every ledger transition as it happens.
type StepObserver interface {
	OnStep(planID uuid.UUID, record StepRecord)
	OnRunFinished(planID uuid.UUID, status string)
}

// Ledger collects step records for a single run and fans them out.
type Ledger struct {
	mu       sync.Mutex
	planID   uuid.UUID
	records  []StepRecord
	observer StepObserver
}

func NewLedger(planID uuid.UUID, observer StepObserver) *Ledger {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Ledger{planID: planID, observer: observer}
}

// Begin records a stage entering in_progress and opens its trace span. It
// returns the span-carrying context and a closure that finalizes the record
// as completed or failed.
func (l *Ledger) Begin(ctx context.Context, stage, role string) (context.Context, func(status, detail string, confidence *float64)) {
	ctx, span := otel.Tracer("feastline.workflow").Start(ctx, stage,
		trace.WithAttributes(attribute.String("plan_id", l.planID.String())))
	started := time.Now()
	rec := StepRecord{Stage: stage, Role: role, Status: StepInProgress, StartedAt: started}

	l.mu.Lock()
	l.records = append(l.records, rec)
	idx := len(l.records) - 1
	l.mu.Unlock()
	l.observer.OnStep(l.planID, rec)

	return ctx, func(status, detail string, confidence *float64) {
		finished := time.Now()
		l.mu.Lock()
		l.records[idx].Status = status
		l.records[idx].Detail = detail
		l.records[idx].Confidence = confidence
		l.records[idx].FinishedAt = finished
		l.records[idx].Elapsed = finished.Sub(started).Round(time.Millisecond).String()
		done := l.records[idx]
		l.mu.Unlock()
		if status == StepFailed {
			span.SetStatus(codes.Error, detail)
		}
		span.End()
		l.observer.OnStep(l.planID, done)
	}
}

func (l *Ledger) Finish(status string) {
	l.observer.OnRunFinished(l.planID, status)
}

// Records returns a copy of the ledger so far.
func (l *Ledger) Records() []StepRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]StepRecord, len(l.records))
	copy(out, l.records)
	return out
}

type NopObserver struct{}

func (NopObserver) OnStep(uuid.UUID, StepRecord)    {}
func (NopObserver) OnRunFinished(uuid.UUID, string) {}

// MultiObserver fans out to several observers in order.
type MultiObserver []StepObserver

func (m MultiObserver) OnStep(planID uuid.UUID, rec StepRecord) {
	for _, o := range m {
		o.OnStep(planID, rec)
	}
}

func (m MultiObserver) OnRunFinished(planID uuid.UUID, status string) {
	for _, o := range m {
		o.OnRunFinished(planID, status)
	}
}

// LogObserver writes every transition to the structured log.
type LogObserver struct {
	Log *logger.Logger
}

func (o LogObserver) OnStep(planID uuid.UUID, rec StepRecord) {
	o.Log.Info("workflow step",
		"plan_id", planID.String(),
		"stage", rec.Stage,
		"role", rec.Role,
		"status", rec.Status,
		"detail", rec.Detail,
		"elapsed", rec.Elapsed,
	)
}

func (o LogObserver) OnRunFinished(planID uuid.UUID, status string) {
	o.Log.Info("workflow run finished", "plan_id", planID.String(), "status", status)
}

// SSEObserver broadcasts transitions to clients streaming the plan channel.
type SSEObserver struct {
	Hub *sse.Hub
}

func stepEvent(status string) sse.Event {
	switch status {
	case StepCompleted:
		return sse.EventStepCompleted
	case StepFailed:
		return sse.EventStepFailed
	default:
		return sse.EventStepStarted
	}
}

func (o SSEObserver) OnStep(planID uuid.UUID, rec StepRecord) {
	o.Hub.Broadcast(sse.Message{Channel: planID.String(), Event: stepEvent(rec.Status), Data: rec})
}

func (o SSEObserver) OnRunFinished(planID uuid.UUID, status string) {
	o.Hub.Broadcast(sse.Message{
		Channel: planID.String(),
		Event:   sse.EventRunFinished,
		Data:    map[string]string{"status": status},
	})
}

// BusObserver publishes transitions to the redis progress channel so other
// replicas can forward them to their own stream clients.
type BusObserver struct {
	Bus redisclient.ProgressBus
	Log *logger.Logger
}

func (o BusObserver) OnStep(planID uuid.UUID, rec StepRecord) {
	msg := sse.Message{Channel: planID.String(), Event: stepEvent(rec.Status), Data: rec}
	if err := o.Bus.Publish(context.Background(), msg); err != nil && o.Log != nil {
		o.Log.Warn("Progress publish failed", "plan_id", planID.String(), "error", err)
	}
}

func (o BusObserver) OnRunFinished(planID uuid.UUID, status string) {
	msg := sse.Message{
		Channel: planID.String(),
		Event:   sse.EventRunFinished,
		Data:    map[string]string{"status": status},
	}
	if err := o.Bus.Publish(context.Background(), msg); err != nil && o.Log != nil {
		o.Log.Warn("Progress publish failed", "plan_id", planID.String(), "error", err)
	}
}

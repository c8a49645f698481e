package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DeadlineWatcher scans pending steps whose due date has passed and emits
// step_overdue events to the notifier. Overdue is a derived flag, not a state
// transition: the watcher never mutates step status, so a late approval is
// still valid.
type DeadlineWatcher struct {
	store    DocumentStore
	notifier Notifier
	logger   *zap.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
	emitted map[uuid.UUID]time.Time
}

func NewDeadlineWatcher(store DocumentStore, notifier Notifier, logger *zap.Logger) *DeadlineWatcher {
	return &DeadlineWatcher{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cron:     cron.New(),
		emitted:  make(map[uuid.UUID]time.Time),
	}
}

// Start begins periodic scanning on the given cron spec (e.g. "@every 1m").
func (w *DeadlineWatcher) Start(ctx context.Context, spec string) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	_, err := w.cron.AddFunc(spec, func() {
		if err := w.Scan(ctx, time.Now()); err != nil {
			w.logger.Error("overdue scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	w.logger.Info("deadline watcher started", zap.String("schedule", spec))
	w.cron.Start()
	return nil
}

// Stop halts periodic scanning and waits for a running scan to finish.
func (w *DeadlineWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	w.logger.Info("deadline watcher stopped")
}

// Scan runs one on-demand pass: every pending step with a due date before
// `at` raises a step_overdue event. Each step is reported once per due date;
// a reassigned deadline is reported again.
func (w *DeadlineWatcher) Scan(ctx context.Context, at time.Time) error {
	steps, err := w.store.FindOverdueSteps(ctx, at)
	if err != nil {
		return &PersistenceError{Op: "find overdue steps", Err: err}
	}

	current := make(map[uuid.UUID]bool, len(steps))
	for _, step := range steps {
		current[step.ID] = true
	}

	for _, step := range steps {
		if step.DueDate == nil {
			continue
		}
		w.mu.Lock()
		last, seen := w.emitted[step.ID]
		if seen && last.Equal(*step.DueDate) {
			w.mu.Unlock()
			continue
		}
		w.emitted[step.ID] = *step.DueDate
		w.mu.Unlock()

		w.logger.Warn("step overdue",
			zap.String("step_id", step.ID.String()),
			zap.String("approver_id", step.ApproverID.String()),
			zap.Time("due_date", *step.DueDate))

		if w.notifier != nil {
			w.notifier.Notify(WorkflowEvent{
				ID:         uuid.New(),
				LineID:     step.LineID,
				StepID:     step.ID,
				Kind:       EventStepOverdue,
				ActorID:    step.ApproverID,
				OccurredAt: at,
			})
		}
	}

	// Steps that settled or lost their deadline no longer show up in the
	// scan; drop their dedup entries so the map tracks live steps only.
	w.mu.Lock()
	for id := range w.emitted {
		if !current[id] {
			delete(w.emitted, id)
		}
	}
	w.mu.Unlock()
	return nil
}

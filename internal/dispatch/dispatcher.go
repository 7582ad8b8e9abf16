package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scenarioflow/internal/graph"
	"scenarioflow/internal/state"
	"scenarioflow/internal/storage"
	"scenarioflow/pkg/models"
)

var (
	// ErrRunActive indicates the scenario already has a run in progress
	ErrRunActive = errors.New("scenario run already active")
)

// PredicateEvaluator decides which side of a branch a run takes
type PredicateEvaluator func(rc RunContext, predicate models.Predicate, params map[string]interface{}) bool

// RunContext is the slice of run state predicates may inspect
type RunContext struct {
	LastStepOK bool
	Counters   map[string]int64
	Now        time.Time
}

// Dispatcher walks compiled plans step by step. It enqueues one step at a
// time, waits for the worker's result, folds it through the lifecycle
// machine and then advances the plan cursor.
type Dispatcher struct {
	queue     StepQueue
	taskRepo  storage.TaskHistoryRepository
	notifRepo storage.NotificationRepository
	publisher state.Publisher
	machine   *state.Machine
	compiler  *graph.Compiler
	evaluate  PredicateEvaluator
	log       *logrus.Logger

	// runs is keyed by the entry ID of the step currently in flight.
	// Entries created outside a run never appear here.
	runs   map[string]*run
	active map[string]string // scenario ID -> in-flight entry ID
	mu     sync.Mutex
}

// frame is one level of the plan cursor. Entering a branch pushes the
// chosen side as a new frame; exhausting a frame pops it.
type frame struct {
	items []models.PlanItem
	idx   int
}

type run struct {
	scenarioID string
	ownerID    string
	stack      []frame
	lastOK     bool
	steps      int
	failures   int
}

// NewDispatcher creates a dispatcher. A nil evaluator installs the
// default predicate set.
func NewDispatcher(queue StepQueue, taskRepo storage.TaskHistoryRepository, notifRepo storage.NotificationRepository, publisher state.Publisher, log *logrus.Logger, evaluate PredicateEvaluator) *Dispatcher {
	if evaluate == nil {
		evaluate = DefaultEvaluator
	}
	return &Dispatcher{
		queue:     queue,
		taskRepo:  taskRepo,
		notifRepo: notifRepo,
		publisher: publisher,
		machine:   state.NewMachine(),
		compiler:  graph.NewCompiler(),
		evaluate:  evaluate,
		log:       log,
		runs:      make(map[string]*run),
		active:    make(map[string]string),
	}
}

// DefaultEvaluator covers the built-in predicates. Unknown predicates
// evaluate to false so the run takes the false branch instead of
// guessing.
func DefaultEvaluator(rc RunContext, predicate models.Predicate, params map[string]interface{}) bool {
	switch predicate {
	case models.PredicateLastActionSuccess:
		return rc.LastStepOK
	case models.PredicateCounterAtLeast:
		name, _ := params["counter"].(string)
		min, ok := asInt64(params["min"])
		if !ok {
			return false
		}
		return rc.Counters[name] >= min
	case models.PredicateTimeBetween:
		from, okFrom := asInt64(params["from_hour"])
		to, okTo := asInt64(params["to_hour"])
		if !okFrom || !okTo {
			return false
		}
		h := int64(rc.Now.Hour())
		if from <= to {
			return h >= from && h < to
		}
		// window wraps midnight
		return h >= from || h < to
	default:
		return false
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// RunScenario compiles the scenario and starts walking its plan. At most
// one run per scenario may be active at a time.
func (d *Dispatcher) RunScenario(ctx context.Context, s *models.Scenario) error {
	// Reserve the scenario before any other work. Checking and registering
	// in separate critical sections would let a cron fire and a manual run
	// both pass the busy check.
	d.mu.Lock()
	if _, busy := d.active[s.ID]; busy {
		d.mu.Unlock()
		return ErrRunActive
	}
	d.active[s.ID] = ""
	d.mu.Unlock()

	plan, err := d.compiler.Compile(s)
	if err != nil {
		d.release(s.ID)
		return fmt.Errorf("failed to compile scenario %s: %w", s.ID, err)
	}

	r := &run{
		scenarioID: s.ID,
		ownerID:    s.OwnerID,
		stack:      []frame{{items: plan.Items}},
	}

	d.pushLog(s.OwnerID, "info", fmt.Sprintf("scenario %q started", s.Name))
	if err := d.advance(ctx, r); err != nil {
		d.release(s.ID)
		return err
	}
	return nil
}

func (d *Dispatcher) release(scenarioID string) {
	d.mu.Lock()
	delete(d.active, scenarioID)
	d.mu.Unlock()
}

// advance moves the cursor until it either enqueues a step (and returns,
// waiting for the result) or exhausts the plan.
func (d *Dispatcher) advance(ctx context.Context, r *run) error {
	for len(r.stack) > 0 {
		top := &r.stack[len(r.stack)-1]
		if top.idx >= len(top.items) {
			r.stack = r.stack[:len(r.stack)-1]
			continue
		}
		item := top.items[top.idx]
		top.idx++

		switch {
		case item.Step != nil:
			return d.enqueue(ctx, r, item.Step)
		case item.Branch != nil:
			rc := RunContext{LastStepOK: r.lastOK, Now: time.Now()}
			side := item.Branch.False
			if d.evaluate(rc, item.Branch.Predicate, item.Branch.Params) {
				side = item.Branch.True
			}
			if len(side) > 0 {
				r.stack = append(r.stack, frame{items: side})
			}
		}
	}
	return d.finish(ctx, r)
}

// enqueue records the step as a pending task and hands it to the queue
func (d *Dispatcher) enqueue(ctx context.Context, r *run, step *models.Step) error {
	params := map[string]interface{}{
		"node_id":     step.NodeID,
		"scenario_id": r.scenarioID,
	}
	for k, v := range step.Action.Settings {
		params[k] = v
	}
	entry := &models.TaskHistoryEntry{
		OwnerID:    r.ownerID,
		TaskName:   string(step.Action.Type),
		Status:     models.StatusPending,
		Parameters: params,
	}
	if err := d.taskRepo.Create(ctx, entry, r.scenarioID); err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}

	d.mu.Lock()
	d.runs[entry.ID] = r
	d.active[r.scenarioID] = entry.ID
	d.mu.Unlock()

	d.publishTaskEvent(entry.ID, r.ownerID, models.StatusPending, "")

	msg := StepMessage{
		EntryID:    entry.ID,
		OwnerID:    r.ownerID,
		ActionType: step.Action.Type,
		Settings:   step.Action.Settings,
		Filters:    step.Action.Filters,
	}
	if step.Action.Batch != nil {
		msg.BatchParts = step.Action.Batch.Parts
	}
	if err := d.queue.PublishStep(msg); err != nil {
		d.mu.Lock()
		delete(d.runs, entry.ID)
		delete(d.active, r.scenarioID)
		d.mu.Unlock()
		return err
	}
	r.steps++
	return nil
}

func (d *Dispatcher) finish(ctx context.Context, r *run) error {
	d.mu.Lock()
	delete(d.active, r.scenarioID)
	d.mu.Unlock()

	msg := fmt.Sprintf("scenario run finished: %d steps, %d failed", r.steps, r.failures)
	d.pushLog(r.ownerID, "info", msg)
	if d.notifRepo != nil {
		kind := "run_finished"
		if r.failures > 0 {
			kind = "run_finished_with_errors"
		}
		if err := d.notifRepo.Create(ctx, r.ownerID, kind, msg); err != nil {
			d.log.WithError(err).Warn("failed to store run notification")
		} else {
			d.publish(r.ownerID, models.EventNewNotification, models.NotificationPayload{Kind: kind})
		}
	}
	return nil
}

// HandleResult folds one worker report into the entry's lifecycle. Late
// reports for entries that were cancelled in the meantime lose the
// optimistic status check and are dropped.
func (d *Dispatcher) HandleResult(ctx context.Context, res ResultMessage) error {
	entry, err := d.taskRepo.Get(ctx, res.EntryID)
	if err != nil {
		return fmt.Errorf("failed to load entry %s: %w", res.EntryID, err)
	}

	if err := d.machine.ValidateTransition(entry.Status, res.Status); err != nil {
		d.log.WithFields(logrus.Fields{
			"entry":  res.EntryID,
			"from":   entry.Status,
			"to":     res.Status,
			"worker": res.WorkerID,
		}).Warn("discarding out-of-order worker result")
		return nil
	}
	if err := d.taskRepo.UpdateStatus(ctx, res.EntryID, entry.Status, res.Status, res.Result); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			return nil
		}
		return err
	}

	d.publishTaskEvent(res.EntryID, entry.OwnerID, res.Status, res.Result)

	if res.Status != models.StatusSuccess && res.Status != models.StatusFailure {
		return nil
	}

	d.mu.Lock()
	r := d.runs[res.EntryID]
	delete(d.runs, res.EntryID)
	d.mu.Unlock()
	if r == nil {
		return nil
	}

	r.lastOK = res.Status == models.StatusSuccess
	if !r.lastOK {
		r.failures++
	}
	if err := d.advance(ctx, r); err != nil {
		d.release(r.scenarioID)
		return err
	}
	return nil
}

// Cancel stops a pending, started or retrying entry. Cancelling the step
// a run is waiting on abandons the rest of that run.
func (d *Dispatcher) Cancel(ctx context.Context, entryID string) (*models.TaskHistoryEntry, error) {
	entry, err := d.taskRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := d.machine.ValidateCancel(entry.Status); err != nil {
		return nil, err
	}

	from := entry.Status
	if from == models.StatusRetry {
		// RETRY only transitions to PENDING, so step through it
		if err := d.taskRepo.UpdateStatus(ctx, entryID, models.StatusRetry, models.StatusPending, entry.Result); err != nil {
			return nil, err
		}
		from = models.StatusPending
	}
	if err := d.taskRepo.UpdateStatus(ctx, entryID, from, models.StatusCancelled, entry.Result); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if r := d.runs[entryID]; r != nil {
		delete(d.runs, entryID)
		delete(d.active, r.scenarioID)
	}
	d.mu.Unlock()

	d.publishTaskEvent(entryID, entry.OwnerID, models.StatusCancelled, entry.Result)
	entry.Status = models.StatusCancelled
	return entry, nil
}

// Retry re-enqueues a failed entry under its original parameters
func (d *Dispatcher) Retry(ctx context.Context, entryID string) (*models.TaskHistoryEntry, error) {
	entry, err := d.taskRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := d.machine.ValidateRetry(entry.Status); err != nil {
		return nil, err
	}

	if err := d.taskRepo.UpdateStatus(ctx, entryID, models.StatusFailure, models.StatusRetry, entry.Result); err != nil {
		return nil, err
	}
	d.publishTaskEvent(entryID, entry.OwnerID, models.StatusRetry, entry.Result)
	if err := d.taskRepo.UpdateStatus(ctx, entryID, models.StatusRetry, models.StatusPending, entry.Result); err != nil {
		return nil, err
	}
	d.publishTaskEvent(entryID, entry.OwnerID, models.StatusPending, entry.Result)

	msg := StepMessage{
		EntryID:    entryID,
		OwnerID:    entry.OwnerID,
		ActionType: models.ActionType(entry.TaskName),
	}
	if len(entry.Parameters) > 0 {
		msg.Settings = entry.Parameters
	}
	if err := d.queue.PublishStep(msg); err != nil {
		return nil, err
	}
	entry.Status = models.StatusPending
	return entry, nil
}

// LaunchAction runs a single action outside any scenario
func (d *Dispatcher) LaunchAction(ctx context.Context, ownerID string, action models.ActionData) (*models.TaskHistoryEntry, error) {
	if !action.Type.IsValid() {
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
	entry := &models.TaskHistoryEntry{
		OwnerID:    ownerID,
		TaskName:   string(action.Type),
		Status:     models.StatusPending,
		Parameters: action.Settings,
	}
	if err := d.taskRepo.Create(ctx, entry, ""); err != nil {
		return nil, err
	}
	d.publishTaskEvent(entry.ID, ownerID, models.StatusPending, "")

	msg := StepMessage{
		EntryID:    entry.ID,
		OwnerID:    ownerID,
		ActionType: action.Type,
		Settings:   action.Settings,
		Filters:    action.Filters,
	}
	if action.Batch != nil {
		msg.BatchParts = action.Batch.Parts
	}
	if err := d.queue.PublishStep(msg); err != nil {
		return nil, err
	}
	return entry, nil
}

func (d *Dispatcher) publishTaskEvent(entryID, ownerID string, status models.TaskStatus, result string) {
	d.publish(ownerID, models.EventTaskHistoryUpdate, models.TaskHistoryUpdatePayload{
		EntryID: entryID,
		Status:  status,
		Result:  result,
	})
}

func (d *Dispatcher) pushLog(ownerID, level, message string) {
	d.publish(ownerID, models.EventLog, models.LogPayload{
		Level:   level,
		Message: message,
		Time:    time.Now().UTC(),
	})
}

func (d *Dispatcher) publish(ownerID string, typ models.PushEventType, payload interface{}) {
	event, err := models.NewPushEvent(uuid.New().String(), typ, payload)
	if err != nil {
		d.log.WithError(err).Error("failed to build push event")
		return
	}
	if err := d.publisher.Publish(ownerID, event); err != nil {
		d.log.WithError(err).Warn("failed to publish push event")
	}
}

package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"scenarioflow/pkg/models"
)

// ActionRunner performs one action and returns a human-readable result
type ActionRunner func(msg StepMessage) (string, error)

// Worker consumes pending steps from NATS and reports lifecycle results
// back. The default runner only simulates execution; real action runners
// are registered per action type.
type Worker struct {
	nc      *nats.Conn
	id      string
	log     *logrus.Logger
	runners map[models.ActionType]ActionRunner
	delay   time.Duration

	sub     *nats.Subscription
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewWorker creates a worker with a host-scoped identity
func NewWorker(nc *nats.Conn, log *logrus.Logger) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Worker{
		nc:      nc,
		id:      fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		log:     log,
		runners: make(map[models.ActionType]ActionRunner),
		delay:   200 * time.Millisecond,
	}
}

// ID returns the worker's identity as reported in results
func (w *Worker) ID() string {
	return w.id
}

// RegisterRunner installs the runner for one action type
func (w *Worker) RegisterRunner(t models.ActionType, runner ActionRunner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runners[t] = runner
}

// Start subscribes to the pending steps queue group
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("worker %s already running", w.id)
	}

	sub, err := w.nc.QueueSubscribe(StepsSubject, WorkersQueue, func(m *nats.Msg) {
		var msg StepMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			w.log.WithError(err).Warn("discarding malformed step message")
			return
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.execute(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", StepsSubject, err)
	}
	w.sub = sub
	w.running = true
	w.log.WithField("worker", w.id).Info("worker started")
	return nil
}

// Stop unsubscribes and waits for in-flight steps
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
	}
	w.wg.Wait()
	return nil
}

func (w *Worker) execute(msg StepMessage) {
	w.report(msg.EntryID, models.StatusStarted, "")

	w.mu.Lock()
	runner := w.runners[msg.ActionType]
	w.mu.Unlock()
	if runner == nil {
		runner = w.simulate
	}

	result, err := runner(msg)
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"entry":  msg.EntryID,
			"action": msg.ActionType,
		}).WithError(err).Warn("step failed")
		w.report(msg.EntryID, models.StatusFailure, err.Error())
		return
	}
	w.report(msg.EntryID, models.StatusSuccess, result)
}

// simulate stands in for a real action runner. Setting "simulate_failure"
// in the action settings forces the failure path.
func (w *Worker) simulate(msg StepMessage) (string, error) {
	time.Sleep(w.delay)
	if fail, _ := msg.Settings["simulate_failure"].(bool); fail {
		return "", fmt.Errorf("action %s failed (simulated)", msg.ActionType)
	}
	return fmt.Sprintf("action %s completed", msg.ActionType), nil
}

func (w *Worker) report(entryID string, status models.TaskStatus, result string) {
	res := ResultMessage{
		EntryID:  entryID,
		WorkerID: w.id,
		Status:   status,
		Result:   result,
	}
	data, err := json.Marshal(res)
	if err != nil {
		w.log.WithError(err).Error("failed to marshal result")
		return
	}
	if err := w.nc.Publish(ResultsSubject, data); err != nil {
		w.log.WithError(err).Warn("failed to publish result")
	}
}

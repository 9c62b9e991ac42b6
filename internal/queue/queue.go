// Package queue is the distributed task queue for pipeline stages.
//
// Each stage type has its own subject and its own admission rate, so a burst
// of uploads cannot starve the search index or embedding compute. Workers
// join a queue group per subject; any worker may consume any task.
// Cancellation is cooperative: a cancel broadcast aborts the task's context
// on whichever worker holds it, with no delivery guarantee; callers that
// need a consistent state must write it themselves.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/docdex/internal/metrics"
)

const (
	subjectPrefix = "docdex.tasks."
	cancelSubject = subjectPrefix + "cancel"
	failedSubject = subjectPrefix + "failed"
	workerGroup   = "docdex-workers"
)

// defaultStageRate admits tasks per second for stages without an explicit rate.
const defaultStageRate = 5.0

// Task is one queued unit of pipeline work.
type Task struct {
	ID      string          `json:"id"`
	Stage   string          `json:"stage"`
	Payload json.RawMessage `json:"payload"`
}

// FailureEvent is published on the failure subject when a handler errors,
// so operational retry and alerting policies apply uniformly.
type FailureEvent struct {
	TaskID string `json:"task_id"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Handler processes one task. The context is cancelled when the task is
// cancelled or the queue shuts down.
type Handler func(ctx context.Context, task Task) error

// publisher is the narrow publishing surface of *nats.Conn.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Queue connects stage producers and workers over NATS.
type Queue struct {
	nc     *nats.Conn
	pub    publisher
	logger *zap.Logger

	rates    map[string]float64
	limiters sync.Map // stage -> *rate.Limiter
	inflight sync.Map // task id -> context.CancelFunc

	baseCtx context.Context
	stop    context.CancelFunc
	subs    []*nats.Subscription
	wg      sync.WaitGroup
}

// New creates a queue over an established NATS connection. rates overrides
// the default per-stage admission rate (tasks per second).
func New(nc *nats.Conn, rates map[string]float64, logger *zap.Logger) *Queue {
	ctx, stop := context.WithCancel(context.Background())
	return &Queue{
		nc:      nc,
		pub:     nc,
		logger:  logger,
		rates:   rates,
		baseCtx: ctx,
		stop:    stop,
	}
}

// Enqueue publishes a unit of work for a stage and returns its task id.
func (q *Queue) Enqueue(_ context.Context, stage string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", stage, err)
	}

	task := Task{ID: uuid.NewString(), Stage: stage, Payload: body}
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	if err := q.pub.Publish(subjectPrefix+stage, data); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", stage, err)
	}

	metrics.TasksEnqueuedTotal.WithLabelValues(stage).Inc()
	return task.ID, nil
}

// Cancel broadcasts a cancellation request for a task id. Fire-and-forget:
// the task may still complete after this returns.
func (q *Queue) Cancel(_ context.Context, taskID string) error {
	if err := q.pub.Publish(cancelSubject, []byte(taskID)); err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	metrics.TasksCancelledTotal.Inc()
	return nil
}

// Subscribe registers a worker handler for a stage. Every subscriber with
// the same stage joins one queue group, so each task is delivered to a
// single worker.
func (q *Queue) Subscribe(stage string, h Handler) error {
	sub, err := q.nc.QueueSubscribe(subjectPrefix+stage, workerGroup, func(msg *nats.Msg) {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.dispatch(stage, msg.Data, h)
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", stage, err)
	}
	q.subs = append(q.subs, sub)
	return nil
}

// Start subscribes the cancellation broadcast. Call after all Subscribe calls.
func (q *Queue) Start() error {
	sub, err := q.nc.Subscribe(cancelSubject, func(msg *nats.Msg) {
		q.cancelLocal(string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("subscribe cancellations: %w", err)
	}
	q.subs = append(q.subs, sub)
	return nil
}

// Close drains subscriptions and waits for in-flight handlers.
func (q *Queue) Close() {
	for _, sub := range q.subs {
		_ = sub.Drain()
	}
	q.stop()
	q.wg.Wait()
}

// dispatch admits, tracks, and runs one task.
func (q *Queue) dispatch(stage string, data []byte, h Handler) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		q.logger.Error("discarding malformed task", zap.String("stage", stage), zap.Error(err))
		return
	}

	if err := q.limiter(stage).Wait(q.baseCtx); err != nil {
		return // shutting down
	}

	ctx, cancel := context.WithCancel(q.baseCtx)
	q.inflight.Store(task.ID, cancel)
	defer func() {
		cancel()
		q.inflight.Delete(task.ID)
	}()

	if err := h(ctx, task); err != nil {
		q.publishFailure(task, err)
	}
}

// cancelLocal aborts the task's context if this process holds it.
func (q *Queue) cancelLocal(taskID string) {
	if v, ok := q.inflight.Load(taskID); ok {
		v.(context.CancelFunc)()
		q.logger.Info("task cancelled", zap.String("task_id", taskID))
	}
}

func (q *Queue) publishFailure(task Task, taskErr error) {
	event := FailureEvent{TaskID: task.ID, Stage: task.Stage, Error: taskErr.Error()}
	data, err := json.Marshal(event)
	if err != nil {
		q.logger.Error("marshal failure event", zap.Error(err))
		return
	}
	if err := q.pub.Publish(failedSubject, data); err != nil {
		q.logger.Error("publish failure event",
			zap.String("task_id", task.ID), zap.Error(err))
	}
	q.logger.Warn("task failed",
		zap.String("task_id", task.ID),
		zap.String("stage", task.Stage),
		zap.Error(taskErr),
	)
}

func (q *Queue) limiter(stage string) *rate.Limiter {
	if v, ok := q.limiters.Load(stage); ok {
		return v.(*rate.Limiter)
	}
	r := q.rates[stage]
	if r <= 0 {
		r = defaultStageRate
	}
	burst := int(r)
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(r), burst)
	actual, _ := q.limiters.LoadOrStore(stage, lim)
	return actual.(*rate.Limiter)
}

package notify

import (
	"context"
	"time"

	obsmetrics "github.com/fitmirror/fitmirror/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	queueDepth  = 64
	sendTimeout = 15 * time.Second
)

// Task is one outbound notification. Kind is a short tag used only for
// logging and metrics.
type Task struct {
	Kind    string
	To      []string
	Subject string
	Body    string
}

// Dispatcher delivers notifications off the request path. Enqueue never
// blocks the caller and delivery failures are logged, never propagated: a
// failed welcome email or payment-failure notice must not fail the request
// that triggered it.
type Dispatcher struct {
	log      *zap.Logger
	provider Provider
	metrics  *obsmetrics.Metrics

	tasks chan Task
	done  chan struct{}
}

func NewDispatcher(log *zap.Logger, provider Provider, metrics *obsmetrics.Metrics) *Dispatcher {
	if provider == nil {
		provider = &NoOpProvider{}
	}
	return &Dispatcher{
		log:      log.Named("notify.dispatcher"),
		provider: provider,
		metrics:  metrics,
		tasks:    make(chan Task, queueDepth),
		done:     make(chan struct{}),
	}
}

// Enqueue schedules a notification. When the queue is full the task is
// dropped and logged; callers never wait.
func (d *Dispatcher) Enqueue(task Task) {
	select {
	case d.tasks <- task:
	default:
		d.log.Warn("notification queue full, dropping task",
			zap.String("kind", task.Kind),
		)
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop drains the queue and stops the worker.
func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.tasks)
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for task := range d.tasks {
		d.deliver(task)
	}
}

func (d *Dispatcher) deliver(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.provider.Send(ctx, task.To, task.Subject, task.Body); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("kind", task.Kind),
			zap.Error(err),
		)
		d.metrics.RecordNotifyFailure(ctx, task.Kind)
		return
	}
	d.log.Debug("notification delivered", zap.String("kind", task.Kind))
}

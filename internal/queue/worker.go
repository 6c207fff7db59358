package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Worker claims messages from the queue table and hands them to the handler
// registered for their job name. Each goroutine holds at most one message.
type Worker struct {
	backend  backend
	handlers map[string]Handler
	jobNames []string
	opts     WorkerOptions

	m          *metrics
	tableLabel string
	now        func() time.Time

	randMu sync.Mutex
}

func NewWorker(pool *pgxpool.Pool, table pgx.Identifier, handlers map[string]Handler, opts WorkerOptions) (*Worker, error) {
	if pool == nil {
		return nil, configError("pool is required")
	}
	if len(table) == 0 {
		table = DefaultTable
	}
	return newWorker(newPGBackend(pool, table), TableLabel(table), handlers, opts)
}

func newWorker(b backend, tableLabel string, handlers map[string]Handler, opts WorkerOptions) (*Worker, error) {
	if len(handlers) == 0 {
		return nil, configError("at least one handler is required")
	}

	names := make([]string, 0, len(handlers))
	for name, h := range handlers {
		if name == "" || h == nil {
			return nil, configError("handler for %q is invalid", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}

	return &Worker{
		backend:    b,
		handlers:   handlers,
		jobNames:   names,
		opts:       opts,
		m:          getMetrics(),
		tableLabel: tableLabel,
		now:        time.Now,
	}, nil
}

// Run blocks until ctx is cancelled. In-flight handlers see the cancellation
// through their context; Run waits for them before returning.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		return configError("ctx is required")
	}

	w.opts.Logger.WithFields(logrus.Fields{
		"table":       w.tableLabel,
		"jobs":        w.jobNames,
		"concurrency": w.opts.Concurrency,
	}).Info("queue: worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.runSlot(ctx, slot)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.observeLoop(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

func (w *Worker) runSlot(ctx context.Context, slot int) {
	logger := w.opts.Logger.WithField("slot", slot)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.processOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Warn("queue: process tick failed")
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// processOnce claims and handles one message. It reports whether a message
// was claimed so callers can poll again without sleeping.
func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	now := w.now()
	c, err := w.backend.claim(ctx, w.jobNames, now, now.Add(-w.opts.LockTTL))
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	logger := w.opts.Logger.WithFields(logFields(*c, w.tableLabel))
	if c.Redelivered {
		w.m.redelivered.WithLabelValues(w.tableLabel, c.JobName).Inc()
		logger.Warn("queue: reclaimed message after lock expiry")
	}

	handler, ok := w.handlers[c.JobName]
	if !ok {
		// claim filters on registered names, so this only happens if the map was mutated.
		return true, w.fail(ctx, *c, ErrUnknownJob, logger)
	}

	start := time.Now()
	err = w.dispatch(ctx, handler, *c)
	latency := time.Since(start)

	if err == nil {
		w.recordDispatch(c.JobName, "success", latency)
		if ackErr := w.backend.ack(context.WithoutCancel(ctx), c.ID); ackErr != nil {
			logger.WithError(ackErr).Warn("queue: ack failed")
		}
		return true, nil
	}

	w.recordDispatch(c.JobName, "failure", latency)
	return true, w.fail(ctx, *c, err, logger)
}

func (w *Worker) dispatch(ctx context.Context, handler Handler, c claimed) (err error) {
	var (
		handlerCtx context.Context
		cancel     context.CancelFunc
	)
	if w.opts.HandlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, w.opts.HandlerTimeout)
	} else {
		handlerCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stopHeartbeat := w.startHeartbeat(handlerCtx, c)
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	return handler.Handle(handlerCtx, Delivery{
		ID:          c.ID,
		JobName:     c.JobName,
		TenantID:    c.TenantID,
		Payload:     c.Payload,
		Attempts:    c.Attempts,
		MaxAttempts: c.MaxAttempts,
		Redelivered: c.Redelivered,
	})
}

func (w *Worker) startHeartbeat(ctx context.Context, c claimed) func() {
	done := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.opts.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.backend.heartbeat(ctx, c.ID, w.now()); err != nil && !errors.Is(err, context.Canceled) {
					w.opts.Logger.WithError(err).WithFields(logFields(c, w.tableLabel)).Warn("queue: heartbeat failed")
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

func (w *Worker) fail(ctx context.Context, c claimed, cause error, logger *logrus.Entry) error {
	lastErr := ErrorText(cause, w.opts.LastErrorMaxLen)
	writeCtx := context.WithoutCancel(ctx)

	if c.Attempts >= c.MaxAttempts {
		w.m.deadTotal.WithLabelValues(w.tableLabel, c.JobName).Inc()
		logger.WithError(cause).Error("queue: message dead")
		if err := w.backend.dead(writeCtx, c.ID, lastErr); err != nil {
			logger.WithError(err).Warn("queue: dead update failed")
			return err
		}
		return nil
	}

	next := w.now().Add(retryDelay(c.Attempts, w.opts.MaxBackoff) + w.extraDelay())
	logger.WithError(cause).WithField("retry_at", next).Warn("queue: handler failed, retry scheduled")
	if err := w.backend.nack(writeCtx, c.ID, lastErr, next); err != nil {
		logger.WithError(err).Warn("queue: nack failed")
		return err
	}
	return nil
}

func (w *Worker) extraDelay() time.Duration {
	w.randMu.Lock()
	defer w.randMu.Unlock()
	return spread(w.opts.Rand, w.opts.JitterMax)
}

func (w *Worker) observeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.ObserveQueueDepthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d, err := w.backend.depth(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.opts.Logger.WithError(err).Debug("queue: observe queue depth failed")
			}
			continue
		}
		w.m.pending.WithLabelValues(w.tableLabel).Set(float64(d.pending))
		w.m.locked.WithLabelValues(w.tableLabel).Set(float64(d.locked))
		w.m.dead.WithLabelValues(w.tableLabel).Set(float64(d.dead))
	}
}

func (w *Worker) recordDispatch(job, result string, latency time.Duration) {
	w.m.dispatchTotal.WithLabelValues(w.tableLabel, job, result).Inc()
	w.m.dispatchLatency.WithLabelValues(w.tableLabel, job, result).Observe(latency.Seconds())
}

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "queue handler panic: " + panicText(e.Value)
}

func logFields(c claimed, table string) logrus.Fields {
	return logrus.Fields{
		"table":       table,
		"job":         c.JobName,
		"message_id":  c.ID.String(),
		"tenant_id":   c.TenantID.String(),
		"attempts":    c.Attempts,
		"redelivered": c.Redelivered,
	}
}

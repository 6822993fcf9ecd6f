package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cisse-224/clappybackend/internal/observability"
)

// BroadcastSink is the in-process real-time sink (the presence hub).
type BroadcastSink interface {
	Broadcast(group string, v any)
}

// SMSSender is the external message-sending interface: slow, unreliable,
// never called while holding a trip or driver lock.
type SMSSender interface {
	Send(ctx context.Context, phone, body string) error
}

// Notification is one fan-out unit. Group/Payload drive the presence sink,
// SMSTo/SMSBody the external one; either half may be empty. Sinks are
// independent: a failure in one never prevents the other.
type Notification struct {
	Group   string
	Payload any

	SMSTo   string
	SMSBody string
}

// Dispatcher delivers notifications best-effort. The presence broadcast runs
// inline (in-process, non-blocking); SMS sends go through a bounded worker
// queue with capped retry/backoff. Failures are logged and counted, never
// surfaced to the caller that triggered the notification.
type Dispatcher struct {
	presence BroadcastSink
	sms      SMSSender
	logger   *slog.Logger

	queue    chan smsJob
	wg       sync.WaitGroup
	attempts int
	backoff  time.Duration

	closeOnce sync.Once
}

type smsJob struct {
	to   string
	body string
}

type Options struct {
	Workers   int
	QueueSize int
	Attempts  int
	Backoff   time.Duration
}

func NewDispatcher(presence BroadcastSink, sms SMSSender, logger *slog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	d := &Dispatcher{
		presence: presence,
		sms:      sms,
		logger:   logger,
		queue:    make(chan smsJob, opts.QueueSize),
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch fans out a notification. It never blocks the caller: a full SMS
// queue drops the message with a logged warning.
func (d *Dispatcher) Dispatch(n Notification) {
	if n.Group != "" && d.presence != nil {
		d.presence.Broadcast(n.Group, n.Payload)
		observability.NotificationsSent.WithLabelValues("presence").Inc()
	}
	if n.SMSTo == "" || d.sms == nil {
		return
	}
	select {
	case d.queue <- smsJob{to: n.SMSTo, body: n.SMSBody}:
	default:
		observability.NotificationsFailed.WithLabelValues("sms").Inc()
		d.logger.Warn("sms queue full, notification dropped", "to", n.SMSTo)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.sendWithRetry(job)
	}
}

func (d *Dispatcher) sendWithRetry(job smsJob) {
	delay := d.backoff
	for i := 0; i < d.attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := d.sms.Send(ctx, job.to, job.body)
		cancel()
		if err == nil {
			observability.NotificationsSent.WithLabelValues("sms").Inc()
			return
		}
		if i == d.attempts-1 {
			observability.NotificationsFailed.WithLabelValues("sms").Inc()
			d.logger.Error("sms delivery failed", "to", job.to, "attempts", d.attempts, "error", err)
			return
		}
		time.Sleep(delay)
		delay *= 2
	}
}

// Close drains in-flight sends and stops the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Queue.SendVerification when the buffer is full.
var ErrQueueFull = errors.New("notify: queue full")

// ErrQueueStopped is returned once Stop has been called.
var ErrQueueStopped = errors.New("notify: queue stopped")

// QueueConfig sizes a Queue.
type QueueConfig struct {
	Size        int           // buffered messages
	Workers     int           // concurrent senders
	SendTimeout time.Duration // per message
}

// DefaultQueueConfig is sized for one small instance.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:        100,
		Workers:     2,
		SendTimeout: 15 * time.Second,
	}
}

type message struct {
	email string
	link  string
}

// Queue hands verification messages to background workers so a slow mail
// provider never holds up the request that triggered the message.
// It implements Notifier itself; enqueueing never blocks.
//
// Delivery failures are logged. Messages still buffered when Stop is called
// are sent before Stop returns.
type Queue struct {
	next     Notifier
	config   QueueConfig
	logger   *slog.Logger
	messages chan message
	done     chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
}

// NewQueue wraps next. Call Start before the first send.
func NewQueue(next Notifier, cfg QueueConfig, logger *slog.Logger) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueConfig().Size
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultQueueConfig().SendTimeout
	}
	return &Queue{
		next:     next,
		config:   cfg,
		logger:   logger,
		messages: make(chan message, cfg.Size),
		done:     make(chan struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.logger.Info("starting notification queue",
			slog.Int("workers", q.config.Workers),
			slog.Int("size", q.config.Size),
		)
		for range q.config.Workers {
			q.wg.Add(1)
			go q.worker()
		}
	})
}

// Stop rejects new messages, waits for the workers and then sends whatever
// is left in the buffer.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		close(q.done)
		q.wg.Wait()

		for {
			select {
			case m := <-q.messages:
				q.deliver(m)
			default:
				q.logger.Info("notification queue stopped")
				return
			}
		}
	})
}

// SendVerification enqueues the message. The context is not carried into
// the background send: the request that triggered it is usually finished
// by then.
func (q *Queue) SendVerification(_ context.Context, email, link string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.messages <- message{email: email, link: link}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			return
		case m := <-q.messages:
			q.deliver(m)
		}
	}
}

func (q *Queue) deliver(m message) {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.SendTimeout)
	defer cancel()

	if err := q.next.SendVerification(ctx, m.email, m.link); err != nil {
		q.logger.Error("sending verification email failed",
			slog.String("email", m.email),
			slog.String("error", err.Error()),
		)
	}
}

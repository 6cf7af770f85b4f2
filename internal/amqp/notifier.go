package amqp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// Publisher is the sending half of Client.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error
}

// Notifier forwards ledger changes to a Publisher from its own goroutine, so
// a slow broker never holds up a ledger command. Events keep their order. A
// full queue drops the event with a warning.
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger
	queue     chan *LedgerChangedMessage
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewNotifier(p Publisher, buffer int, logger *slog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		publisher: p,
		logger:    logger.With(applog.FieldComponent, applog.ComponentAMQP),
		queue:     make(chan *LedgerChangedMessage, buffer),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

// LedgerChanged implements services.Notifier.
func (n *Notifier) LedgerChanged(ctx context.Context, c services.Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- NewLedgerChangedMessage(c):
	default:
		n.logger.WarnContext(ctx, "Change event dropped, publish queue full",
			applog.FieldUser, c.User, applog.FieldKind, c.Kind)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*publishTimeout)
		if err := n.publisher.PublishLedgerChanged(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "Failed to publish ledger change",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err,
				applog.FieldUser, msg.User,
				applog.FieldKind, msg.Kind)
		}
		cancel()
	}
}

// Close stops accepting events and waits up to timeout for the queue to
// drain.
func (n *Notifier) Close(timeout time.Duration) {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
	})
	select {
	case <-n.done:
	case <-time.After(timeout):
		n.logger.Warn("Publish queue not drained before shutdown", "pending", len(n.queue))
	}
}

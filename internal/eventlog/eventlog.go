// Package eventlog stores narrative league events and forwards the ones
// flagged for notification to chat sinks. Nothing in here fails the caller.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"leaguesim/internal/league"
	"leaguesim/internal/store"

	"github.com/sony/gobreaker"
)

// Notifier delivers one line of text somewhere outside the league.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

const (
	queueSize     = 64
	notifyTimeout = 10 * time.Second
)

type sink struct {
	n  Notifier
	cb *gobreaker.CircuitBreaker
}

// Log implements league.EventLogger.
type Log struct {
	logger *slog.Logger
	sinks  []sink
	queue  chan league.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ league.EventLogger = (*Log)(nil)

func New(logger *slog.Logger, notifiers ...Notifier) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{logger: logger, queue: make(chan league.Event, queueSize)}
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		l.sinks = append(l.sinks, sink{n: n, cb: newBreaker(n.Name(), logger)})
	}
	if len(l.sinks) > 0 {
		l.wg.Add(1)
		go l.deliver()
	}
	return l
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification sink breaker changed state", "sink", name, "from", from.String(), "to", to.String())
		},
	})
}

// Add writes e through tx and queues a notification when e asks for one.
func (l *Log) Add(ctx context.Context, tx store.Tx, e league.Event) {
	if err := league.NewRepo(tx).AddEvent(ctx, e); err != nil {
		l.logger.Error("store event", "type", e.Type, "err", err)
	}
	if !e.ShowNotification || len(l.sinks) == 0 {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("notification queue full, dropping event", "type", e.Type)
	}
}

func (l *Log) deliver() {
	defer l.wg.Done()
	for e := range l.queue {
		for _, s := range l.sinks {
			_, err := s.cb.Execute(func() (interface{}, error) {
				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				return nil, s.n.Notify(ctx, e.Text)
			})
			if err != nil {
				l.logger.Warn("notification failed", "sink", s.n.Name(), "type", e.Type, "err", err)
			}
		}
	}
}

// State reports each sink's breaker state by name.
func (l *Log) State() map[string]string {
	out := make(map[string]string, len(l.sinks))
	for _, s := range l.sinks {
		out[s.n.Name()] = s.cb.State().String()
	}
	return out
}

// Close stops accepting notifications and waits for queued ones.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	l.wg.Wait()
}

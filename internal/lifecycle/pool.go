package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// handleTimeout bounds each event's directory round trips.
const handleTimeout = 30 * time.Second

// Pool processes lifecycle events on background workers so the webhook
// endpoint can acknowledge immediately.
type Pool struct {
	service *Service
	logger  *slog.Logger
	jobs    chan Event
	wg      sync.WaitGroup
}

func NewPool(service *Service, logger *slog.Logger, workers, buffer int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		service: service,
		logger:  logger,
		jobs:    make(chan Event, buffer),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue hands an event to the pool. Returns false when the queue is full;
// the event is dropped rather than blocking the webhook response.
func (p *Pool) Enqueue(event Event) bool {
	select {
	case p.jobs <- event:
		return true
	default:
		return false
	}
}

// Close drains the queue and stops the workers.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for event := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		if err := p.service.Handle(ctx, event); err != nil {
			p.logger.Error("lifecycle event failed",
				"type", event.Type,
				"error", err,
				"request_id", event.RequestID,
			)
		}
		cancel()
	}
}

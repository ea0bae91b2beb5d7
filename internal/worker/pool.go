// Package worker runs background jobs on a fixed set of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("pool stopped")
)

// Job represents a unit of work to be executed.
type Job interface {
	ID() string
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (j JobFunc) ID() string                        { return j.Name }
func (j JobFunc) Execute(ctx context.Context) error { return j.Fn(ctx) }

// Pool dispatches jobs to MaxWorkers goroutines. Every job receives a context
// that is cancelled when the pool stops.
type Pool struct {
	MaxWorkers int

	queue  chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logrus.FieldLogger

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewPool(maxWorkers, queueSize int, log logrus.FieldLogger) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		MaxWorkers: maxWorkers,
		queue:      make(chan Job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		log:        log.WithField("component", "worker"),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.log.WithField("workers", p.MaxWorkers).Info("worker pool starting")
	for i := 1; i <= p.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
}

// Run starts the pool and blocks until ctx is done, then stops it.
func (p *Pool) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.queue:
			log := p.log.WithFields(logrus.Fields{"worker": id, "job": job.ID()})
			log.Debug("job started")
			if err := job.Execute(p.ctx); err != nil {
				log.WithError(err).Warn("job failed")
				continue
			}
			log.Debug("job finished")
		}
	}
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- job:
		return nil
	default:
		p.log.WithField("job", job.ID()).Warn("job queue full")
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int { return len(p.queue) }

// Stop cancels running jobs, waits for the workers to return and discards
// anything still queued.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	dropped := 0
drain:
	for {
		select {
		case <-p.queue:
			dropped++
		default:
			break drain
		}
	}
	p.log.WithField("dropped", dropped).Info("worker pool stopped")
}

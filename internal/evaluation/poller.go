package evaluation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval  = time.Second
	DefaultMaxErrors = 5
)

type StatusSource interface {
	Status(ctx context.Context, quizID string) (Progress, error)
}

// Sink receives every observed status and, once, the end of a poll. Finished
// is not called when the poll is stopped or the poller closed, and once it
// has begun a Stop waits for it instead of cancelling it.
type Sink interface {
	Observe(ctx context.Context, quizID string, p Progress)
	Finished(ctx context.Context, quizID string, p Progress, err error)
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller runs at most one status loop per quiz.
type Poller struct {
	src       StatusSource
	sink      Sink
	interval  time.Duration
	maxErrors int
	log       *slog.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
	last map[string]Progress
}

func NewPoller(src StatusSource, sink Sink, interval time.Duration, maxErrors int, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	root, cancel := context.WithCancel(context.Background())
	return &Poller{
		src:       src,
		sink:      sink,
		interval:  interval,
		maxErrors: maxErrors,
		log:       log,
		root:      root,
		cancel:    cancel,
		jobs:      map[string]*job{},
		last:      map[string]Progress{},
	}
}

// Start begins polling quizID. It returns false when a loop for the quiz is
// already running or the poller is closed.
func (p *Poller) Start(quizID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.jobs[quizID]; ok || p.root.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(p.root)
	j := &job{cancel: cancel, done: make(chan struct{})}
	p.jobs[quizID] = j
	p.wg.Add(1)
	go p.run(ctx, quizID, j)
	return true
}

// Stop cancels the loop for quizID and waits for it to exit, including a
// Finished call in progress.
func (p *Poller) Stop(quizID string) bool {
	p.mu.Lock()
	j, ok := p.jobs[quizID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	j.cancel()
	<-j.done
	return true
}

func (p *Poller) Running(quizID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[quizID]
	return ok
}

// Last returns the most recent status seen for quizID, also after its loop
// ended.
func (p *Poller) Last(quizID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.last[quizID]
	return pr, ok
}

// Wait blocks until every running loop has ended.
func (p *Poller) Wait() { p.wg.Wait() }

// Close stops all loops and refuses new ones.
func (p *Poller) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, quizID string, j *job) {
	defer p.wg.Done()
	defer close(j.done)
	defer p.forget(quizID, j)

	t := time.NewTicker(p.interval)
	defer t.Stop()

	fails := 0
	for {
		pr, err := p.src.Status(ctx, quizID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fails++
			p.log.WarnContext(ctx, "evaluation status poll failed", "quiz", quizID, "attempt", fails, "err", err)
			if fails >= p.maxErrors {
				p.sink.Finished(context.WithoutCancel(ctx), quizID, Progress{JobStatus: StatusUnknown}, err)
				return
			}
		} else {
			fails = 0
			p.record(quizID, pr)
			p.sink.Observe(ctx, quizID, pr)
			if !pr.JobStatus.Active() {
				p.sink.Finished(context.WithoutCancel(ctx), quizID, pr, nil)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (p *Poller) record(quizID string, pr Progress) {
	p.mu.Lock()
	p.last[quizID] = pr
	p.mu.Unlock()
}

func (p *Poller) forget(quizID string, j *job) {
	p.mu.Lock()
	if p.jobs[quizID] == j {
		delete(p.jobs, quizID)
	}
	p.mu.Unlock()
}

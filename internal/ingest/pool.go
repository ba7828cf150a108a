package ingest

import (
	"context"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Pool bounds the number of ingestions running at the same time. Submit blocks until the
// job's result is available, so each request still runs to completion before it returns.
type Pool struct {
	ingester        *Ingester
	jobs            chan *job
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	closeOnce       sync.Once
	wg              sync.WaitGroup
}

type job struct {
	ctx      context.Context
	data     []byte
	opts     Options
	resultCh chan jobResult
}

type jobResult struct {
	result *Result
	err    error
}

// NewPool starts workers for ingester. workers <= 0 uses 3/4 of the CPUs, at least 2.
func NewPool(ingester *Ingester, workers int) *Pool {
	if workers <= 0 {
		workers = max(2, runtime.NumCPU()*3/4)
	}

	log.Infof("Initializing ingestion worker pool with %d workers", workers)

	p := &Pool{
		ingester:    ingester,
		jobs:        make(chan *job, workers*2),
		workerCount: workers,
		shutdown:    make(chan struct{}),
	}
	p.startWorkers()
	return p
}

func (p *Pool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case j := <-p.jobs:
					p.run(workerID, j)
				case <-p.shutdown:
					log.Debugf("Ingestion worker %d shutting down", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *Pool) run(workerID int, j *job) {
	p.activeJobsMutex.Lock()
	p.activeJobs++
	p.activeJobsMutex.Unlock()

	defer func() {
		p.activeJobsMutex.Lock()
		p.activeJobs--
		p.activeJobsMutex.Unlock()
	}()

	if err := j.ctx.Err(); err != nil {
		j.resultCh <- jobResult{err: err}
		return
	}

	start := time.Now()
	result, err := p.ingester.Ingest(j.ctx, j.data, j.opts)
	j.resultCh <- jobResult{result: result, err: err}

	log.Debugf("Ingestion worker %d finished %s in %v", workerID, j.opts.Source, time.Since(start))
}

// Submit queues a report and waits for its result or for ctx to end.
func (p *Pool) Submit(ctx context.Context, data []byte, opts Options) (*Result, error) {
	j := &job{
		ctx:      ctx,
		data:     data,
		opts:     opts,
		resultCh: make(chan jobResult, 1),
	}

	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- j:
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.resultCh:
		return r.result, r.err
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveJobCount returns the number of ingestions currently running.
func (p *Pool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

func (p *Pool) WorkerCount() int { return p.workerCount }

func (p *Pool) QueueCapacity() int { return cap(p.jobs) }

// Shutdown stops the workers after their current job.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}

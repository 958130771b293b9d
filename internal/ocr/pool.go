package ocr

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Job struct {
	ctx    context.Context
	Input  Input
	result chan jobResult
}

type jobResult struct {
	fields *Fields
	err    error
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("ocr worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("ocr worker processing job", "worker_id", w.ID, "filename", job.Input.Filename)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("ocr worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type PoolConfig struct {
	MaxWorkers int
	QueueSize  int
	JobTimeout time.Duration
}

// Pool runs extractions on a fixed set of workers behind a bounded
// queue. It implements Extractor so callers stay unaware of it.
type Pool struct {
	extractor  Extractor
	jobTimeout time.Duration
	logger     *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	stopOnce   sync.Once
}

func NewPool(extractor Extractor, config PoolConfig, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}

	if logger == nil {
		logger = slog.Default()
	}

	pool := &Pool{
		extractor:  extractor,
		jobTimeout: config.JobTimeout,
		logger:     logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, queueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	pool.start()

	return pool
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			worker := NewWorker(i, p.workerPool, p.logger)
			worker.Start(p.ctx, &p.wg, p.process)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("ocr worker pool started",
			"engine", p.extractor.Name(),
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					p.abandon(job)
					return
				}
			case <-p.ctx.Done():
				p.abandon(job)
				return
			}
		case <-p.ctx.Done():
			p.logger.Debug("ocr dispatcher shutting down")
			return
		}
	}
}

func (p *Pool) abandon(job Job) {
	job.result <- jobResult{err: ErrPoolClosed}
}

func (p *Pool) process(job Job) {
	ctx := job.ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	fields, err := p.extractor.Extract(ctx, job.Input)
	if err != nil {
		p.logger.Warn("ocr extraction failed",
			"engine", p.extractor.Name(),
			"filename", job.Input.Filename,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
	} else {
		p.logger.Info("ocr extraction completed",
			"engine", p.extractor.Name(),
			"filename", job.Input.Filename,
			"duration_ms", time.Since(start).Milliseconds())
	}

	// result is buffered so a caller that gave up never blocks the worker
	job.result <- jobResult{fields: fields, err: err}
}

func (p *Pool) Name() string { return p.extractor.Name() }

// Extract enqueues the input without blocking and waits for its result.
// A full queue fails immediately with ErrQueueFull.
func (p *Pool) Extract(ctx context.Context, in Input) (*Fields, error) {
	if p.ctx.Err() != nil {
		return nil, ErrPoolClosed
	}

	job := Job{ctx: ctx, Input: in, result: make(chan jobResult, 1)}

	select {
	case p.jobQueue <- job:
		p.logger.Debug("ocr job queued", "filename", in.Filename, "queue_length", len(p.jobQueue))
	default:
		p.logger.Warn("ocr job queue full, rejecting job",
			"filename", in.Filename,
			"queue_capacity", cap(p.jobQueue))
		return nil, ErrQueueFull
	}

	select {
	case res := <-job.result:
		return res.fields, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}
}

// Shutdown stops the workers after their current job and fails every
// job still waiting in the queue.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down ocr worker pool")
		p.cancel()
		p.wg.Wait()

		for {
			select {
			case job := <-p.jobQueue:
				p.abandon(job)
			default:
				p.logger.Info("ocr worker pool shutdown complete")
				return
			}
		}
	})
}

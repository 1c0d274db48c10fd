package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/telemetry"
)

var ErrWriterClosed = errors.New("cache: writer closed")

type writeJob struct {
	query   model.Query
	answers []model.Answer
}

// Writer persists answers in the background with a fixed set of workers.
// Enqueue never blocks: a full queue drops the write with a warning.
type Writer struct {
	store   Store
	jobs    chan writeJob
	workers int
	timeout time.Duration
	log     zerolog.Logger

	g       errgroup.Group
	closeMu sync.Mutex
	closed  bool
	started bool
}

func NewWriter(store Store, workers, queue int, timeout time.Duration) *Writer {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Writer{
		store:   store,
		jobs:    make(chan writeJob, queue),
		workers: workers,
		timeout: timeout,
		log:     telemetry.Component("cache_writer"),
	}
}

// Start launches the workers. They run until Close drains the queue.
func (w *Writer) Start() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	for i := 0; i < w.workers; i++ {
		w.g.Go(func() error {
			for job := range w.jobs {
				w.run(job)
			}
			return nil
		})
	}
}

func (w *Writer) run(job writeJob) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("cache_write_panic")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.store.UpsertMany(ctx, job.query, job.answers); err != nil {
		w.log.Error().Err(err).Int("answers", len(job.answers)).Msg("cache_write_failed")
		return
	}
	w.log.Debug().Int("answers", len(job.answers)).
		Int64("latency_ms", time.Since(start).Milliseconds()).Msg("cache_write_done")
}

// Enqueue schedules answers of q for persistence and reports whether the job
// was accepted.
func (w *Writer) Enqueue(q model.Query, answers []model.Answer) bool {
	if len(answers) == 0 {
		return true
	}
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		w.log.Warn().Err(ErrWriterClosed).Msg("cache_write_dropped")
		return false
	}
	select {
	case w.jobs <- writeJob{query: q, answers: answers}:
		return true
	default:
		w.log.Warn().Int("answers", len(answers)).Msg("cache_write_dropped")
		return false
	}
}

// Close stops accepting jobs and waits for queued writes to finish.
func (w *Writer) Close() error {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return nil
	}
	w.closed = true
	close(w.jobs)
	w.closeMu.Unlock()
	return w.g.Wait()
}

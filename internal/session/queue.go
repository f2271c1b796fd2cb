package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SaveFunc performs one backend save for a single question's answer.
type SaveFunc func(ctx context.Context, questionID, value string) error

// PersistenceQueue mirrors AnswerStore mutations to the backend without
// ever blocking the caller. Edits to the same question are coalesced: the
// dirty set holds only the latest value per question, so the save that
// eventually goes out is last-write-wins. Failures are logged, retried a
// bounded number of times, then dropped; the local store stays
// authoritative and the final submit payload masks any lost save.
type PersistenceQueue struct {
	mu         sync.Mutex
	dirty      map[string]string
	wake       chan struct{}
	done       chan struct{}
	save       SaveFunc
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewPersistenceQueue creates a queue. Call Start in a goroutine to begin
// forwarding saves.
func NewPersistenceQueue(save SaveFunc, maxRetries int, retryDelay time.Duration, log zerolog.Logger) *PersistenceQueue {
	return &PersistenceQueue{
		dirty:      make(map[string]string),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		save:       save,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "persistence_queue").Logger(),
	}
}

// Enqueue schedules an asynchronous save. Never blocks; a pending value
// for the same question is overwritten.
func (q *PersistenceQueue) Enqueue(questionID, value string) {
	q.mu.Lock()
	q.dirty[questionID] = value
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start begins the worker loop. Call in a goroutine. On context
// cancellation remaining entries are drained best-effort before exit.
func (q *PersistenceQueue) Start(ctx context.Context) {
	q.log.Debug().Msg("persistence queue started")
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			q.drain()
			q.log.Debug().Msg("persistence queue stopped")
			return
		case <-q.wake:
			q.flush(ctx)
		}
	}
}

// Wait blocks until the worker loop has exited.
func (q *PersistenceQueue) Wait() {
	<-q.done
}

// Pending reports the number of questions with an unsent latest value.
func (q *PersistenceQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dirty)
}

func (q *PersistenceQueue) flush(ctx context.Context) {
	for {
		questionID, value, ok := q.take()
		if !ok {
			return
		}
		q.saveWithRetry(ctx, questionID, value)
		if ctx.Err() != nil {
			return
		}
	}
}

// take pops one entry from the dirty set.
func (q *PersistenceQueue) take() (string, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for qid, v := range q.dirty {
		delete(q.dirty, qid)
		return qid, v, true
	}
	return "", "", false
}

// hasNewer reports whether a fresher value for the question arrived while
// a save was in flight.
func (q *PersistenceQueue) hasNewer(questionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.dirty[questionID]
	return ok
}

// requeueIfAbsent puts a value back unless a fresher one is already pending.
func (q *PersistenceQueue) requeueIfAbsent(questionID, value string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.dirty[questionID]; !ok {
		q.dirty[questionID] = value
	}
}

func (q *PersistenceQueue) saveWithRetry(ctx context.Context, questionID, value string) {
	for attempt := 0; ; attempt++ {
		err := q.save(ctx, questionID, value)
		if err == nil {
			return
		}

		// A newer value supersedes this one; let it win.
		if q.hasNewer(questionID) {
			q.log.Debug().Str("question_id", questionID).Msg("save superseded by newer value")
			return
		}

		if attempt >= q.maxRetries {
			q.log.Error().Err(err).
				Str("question_id", questionID).
				Msg("Dropping answer save after retries; submit payload will carry it")
			return
		}

		q.log.Warn().Err(err).
			Str("question_id", questionID).
			Int("attempt", attempt+1).
			Msg("Answer save failed, retrying")

		select {
		case <-ctx.Done():
			q.requeueIfAbsent(questionID, value)
			return
		case <-time.After(q.retryDelay):
		}
	}
}

// drain makes one best-effort pass over the remaining entries before
// shutdown.
func (q *PersistenceQueue) drain() {
	drained := 0
	for {
		questionID, value, ok := q.take()
		if !ok {
			break
		}
		if err := q.save(context.Background(), questionID, value); err != nil {
			q.log.Error().Err(err).Str("question_id", questionID).Msg("Drain save failed")
			continue
		}
		drained++
	}
	if drained > 0 {
		q.log.Debug().Int("count", drained).Msg("Drained remaining saves")
	}
}

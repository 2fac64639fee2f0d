package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/ohime/internal/types"
)

// laneBuffer is the number of runs a chat may have waiting.
const laneBuffer = 100

// defaultLaneIdle is how long an empty lane keeps its goroutine.
const defaultLaneIdle = time.Minute

// Queue manages per-chat lanes with a global concurrency semaphore.
// Each chat gets its own FIFO channel (lane) so that runs within a chat
// are processed sequentially, while the semaphore limits the total number
// of concurrent run processors across all chats. A lane left empty for
// laneIdle is removed, so only recently active chats hold a goroutine.
type Queue struct {
	lanes     map[types.ChatID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	laneIdle  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all chat lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.ChatID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		laneIdle:  defaultLaneIdle,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for id, lane := range q.lanes {
		close(lane)
		delete(q.lanes, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to the chat's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full
// or the queue has stopped.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[run.ChatID]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.ChatID] = lane
		q.wg.Add(1)
		go q.processLane(run.ChatID, lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("queue full for chat %d", run.ChatID)
	}
}

// processLane drains a single chat lane, acquiring a semaphore slot before
// running the processor synchronously. It exits once the lane has been empty
// for laneIdle.
func (q *Queue) processLane(chatID types.ChatID, lane chan *Run) {
	defer q.wg.Done()
	idle := time.NewTimer(q.laneIdle)
	defer idle.Stop()
	for {
		idle.Reset(q.laneIdle)
		select {
		case <-idle.C:
			if q.reap(chatID, lane) {
				return
			}
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				run.Ctx = q.ctx
				q.execute(run)
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// reap removes the lane if it is still registered and empty. Enqueue sends
// under q.mu, so nothing can land in a lane after it is unregistered.
func (q *Queue) reap(chatID types.ChatID, lane chan *Run) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lanes[chatID] != lane || len(lane) > 0 {
		return false
	}
	delete(q.lanes, chatID)
	return true
}

// Lanes returns the number of chats currently holding a lane.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}

func (q *Queue) execute(run *Run) {
	started := time.Now()
	run.StartedAt = &started
	run.Status = RunStatusRunning

	err := q.processor(run)

	ended := time.Now()
	run.EndedAt = &ended
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err
		slog.Error("run failed",
			"run_id", string(run.ID),
			"chat_id", int64(run.ChatID),
			"kind", string(run.Kind),
			"error", err)
		return
	}
	run.Status = RunStatusComplete
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}

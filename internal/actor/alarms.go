package actor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/user/ohime/internal/types"
)

// Alarms holds at most one in-process timer per chat. Each timer carries a
// token so that a timer stopped too late to prevent its callback is ignored.
//
// When fire reports an error the firing was not handed off, and the alarm is
// re-armed with exponential backoff until it is, it is replaced, or the set
// is stopped.
type Alarms struct {
	mu      sync.Mutex
	pending map[types.ChatID]*pendingAlarm
	stopped bool
	fire    func(types.ChatID) error
	now     func() time.Time
	logger  *slog.Logger

	retryBase time.Duration
	retryMax  time.Duration
}

type pendingAlarm struct {
	token types.AlarmToken
	due   time.Time
	timer *time.Timer
}

// NewAlarms creates an alarm set invoking fire when a timer expires.
func NewAlarms(fire func(types.ChatID) error) *Alarms {
	return &Alarms{
		pending:   make(map[types.ChatID]*pendingAlarm),
		fire:      fire,
		now:       time.Now,
		logger:    slog.Default(),
		retryBase: time.Second,
		retryMax:  30 * time.Second,
	}
}

// Arm schedules the chat's alarm at due, replacing any existing one. A due
// time in the past fires immediately.
func (a *Alarms) Arm(chatID types.ChatID, due time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.arm(chatID, due, 0)
}

// arm requires a.mu.
func (a *Alarms) arm(chatID types.ChatID, due time.Time, retries int) {
	if old, ok := a.pending[chatID]; ok {
		old.timer.Stop()
	}
	token := types.NewAlarmToken()
	p := &pendingAlarm{token: token, due: due}
	p.timer = time.AfterFunc(due.Sub(a.now()), func() { a.expire(chatID, token, retries) })
	a.pending[chatID] = p
}

// Cancel stops the chat's alarm. It reports whether one was pending.
func (a *Alarms) Cancel(chatID types.ChatID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[chatID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(a.pending, chatID)
	return true
}

// Due returns the chat's pending due time.
func (a *Alarms) Due(chatID types.ChatID) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[chatID]
	if !ok {
		return time.Time{}, false
	}
	return p.due, true
}

// Len returns the number of pending alarms.
func (a *Alarms) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels every pending alarm and ends retries. Durable alarm records
// are untouched and are re-armed by Recover on the next start.
func (a *Alarms) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, id)
	}
}

func (a *Alarms) expire(chatID types.ChatID, token types.AlarmToken, retries int) {
	a.mu.Lock()
	p, ok := a.pending[chatID]
	if !ok || p.token != token {
		a.mu.Unlock()
		return
	}
	delete(a.pending, chatID)
	a.mu.Unlock()

	err := a.fire(chatID)
	if err == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, replaced := a.pending[chatID]; replaced || a.stopped {
		return
	}
	delay := a.retryMax
	if retries < 16 {
		if d := a.retryBase << retries; d < delay {
			delay = d
		}
	}
	a.logger.Warn("alarm firing not handed off, retrying", "chat_id", chatID, "retry_in", delay, "error", err)
	a.arm(chatID, a.now().Add(delay), retries+1)
}

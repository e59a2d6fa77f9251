package room

import (
	"time"

	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// armTimerLocked advances the generation, sets a fresh 60s deadline, and
// starts a new timer goroutine for that generation. Any goroutine running
// for a stale generation notices the mismatch on its next tick and exits
// without touching room state — see spec.md §9 "Ambient concurrency
// primitives".
func (r *Room) armTimerLocked() {
	r.generation++
	gen := r.generation
	r.turnDeadline = time.Now().Add(turnTimeLimit)
	r.paused = false
	go r.runTimer(gen)
}

// cancelTimerLocked invalidates any running timer goroutine without
// arming a new one.
func (r *Room) cancelTimerLocked() {
	r.generation++
	r.turnDeadline = time.Time{}
}

func (r *Room) currentTurnSeatNameLocked() string {
	for _, s := range r.seats {
		if s.color == r.currentTurn {
			return string(s.name)
		}
	}
	return ""
}

// runTimer drives one generation's countdown: it wakes every 100ms (so
// cancellation is observed promptly, per spec.md §5), emits a TIMER_UPDATE
// at most once per whole second of change, and on deadline expiry swaps
// the turn and re-arms — consuming no stone placement, matching spec.md
// §4.2 "no stone is placed" on timeout.
func (r *Room) runTimer(gen uint64) {
	ticker := time.NewTicker(timerTickInterval)
	defer ticker.Stop()
	lastAnnounced := -1

	for range ticker.C {
		r.mu.Lock()
		if r.generation != gen {
			r.mu.Unlock()
			return
		}
		if r.status != types.StatusPlaying || r.paused {
			r.mu.Unlock()
			return
		}

		if !r.turnDeadline.IsZero() && !time.Now().Before(r.turnDeadline) {
			expired := r.currentTurnSeatNameLocked()
			r.currentTurn = r.currentTurn.Opponent()
			recipients := r.allRecipientsLocked()

			notifications := []Notification{
				build(recipients, protocol.TypeTimeUp, protocol.TimeUpData{Player: expired}),
				build(recipients, protocol.TypeTurnChange, protocol.TurnChangeData{CurrentTurn: string(r.currentTurn)}),
			}
			r.armTimerLocked()
			notifications = append(notifications, build(recipients, protocol.TypeTimerUpdate,
				protocol.TimerUpdateData{RemainingTime: int(turnTimeLimit / time.Second)}))

			r.mu.Unlock()
			Send(notifications)
			return
		}

		remaining := r.remainingSecondsLocked()
		var notifications []Notification
		if remaining != lastAnnounced {
			lastAnnounced = remaining
			notifications = append(notifications, build(r.allRecipientsLocked(), protocol.TypeTimerUpdate,
				protocol.TimerUpdateData{RemainingTime: remaining}))
		}
		r.mu.Unlock()
		if len(notifications) > 0 {
			Send(notifications)
		}
	}
}

// Package forfeit runs the periodic sweep that turns an expired
// disconnection record into a forfeit. Grounded on the periodic
// ticker-driven sweep idiom seen in the pack's turn-based board game
// servers (e.g. ludo-king-go's room loop ticking every 30s to check
// room state) generalized here to a process-wide sweep over every room
// in the Registry, per spec.md §4.5's forfeit-sweep operation.
package forfeit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/metrics"
	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
	"github.com/heejunkim00/gomoku-game/internal/v1/room"
)

// Interval is how often the monitor sweeps every room for expired
// disconnection records, matching spec.md's "Forfeit sweep 30 s".
const Interval = 30 * time.Second

// Monitor periodically sweeps a Registry's rooms for disconnection
// records past the reconnect grace period and forfeits them.
type Monitor struct {
	reg *registry.Registry
}

// New constructs a Monitor over reg.
func New(reg *registry.Registry) *Monitor {
	return &Monitor{reg: reg}
}

// Run ticks every Interval until ctx is canceled. Sweeps do not overlap:
// a tick is skipped entirely if the prior run is still in flight, which
// only happens under pathological room counts since a single sweep only
// takes a per-room mutex briefly.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(ctx, now)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		metrics.ForfeitSweepDuration.Observe(time.Since(start).Seconds())
	}()

	for _, r := range m.reg.Rooms() {
		notifications := r.ForfeitSweep(now)
		if len(notifications) == 0 {
			continue
		}
		room.Send(notifications)
		metrics.ForfeitsTotal.Inc()
		for _, n := range notifications {
			if n.Envelope.Type != protocol.TypeGameEnd {
				continue
			}
			var data protocol.GameEndData
			if json.Unmarshal(n.Envelope.Data, &data) == nil {
				metrics.GamesFinished.WithLabelValues(data.Reason).Inc()
			}
		}
		logging.Info(ctx, "forfeit: expired a disconnected seat", zap.String("room_id", string(r.ID())))
	}
}

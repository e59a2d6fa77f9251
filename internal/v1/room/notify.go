package room

import (
	"time"

	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// Notification is a deferred broadcast: a recipient snapshot captured
// under the Room mutex, paired with the envelope to send. Callers MUST
// send these only after releasing the mutex — see spec.md §4.2 "Broadcast
// discipline" and the teacher's broadcast-under-lock anti-pattern this
// type exists to avoid.
type Notification struct {
	Recipients []types.Sender
	Envelope   protocol.Envelope
}

func build(recipients []types.Sender, msgType string, data any) Notification {
	env, err := protocol.NewEnvelope(msgType, data, time.Now())
	if err != nil {
		// Only occurs if a payload struct fails to marshal, which means a
		// programmer error in this package, not a runtime condition.
		panic(err)
	}
	return Notification{Recipients: recipients, Envelope: env}
}

// Send delivers every notification's envelope to its recipients. It must
// never be called while holding a Room's mutex.
func Send(notifications []Notification) {
	for _, n := range notifications {
		for _, rcpt := range n.Recipients {
			if rcpt == nil {
				continue
			}
			rcpt.SendJSON(n.Envelope)
		}
	}
}

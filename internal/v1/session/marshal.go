package session

import (
	"encoding/json"
	"errors"

	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
)

var errMalformedPayload = errors.New("malformed message payload")

// unmarshal decodes an envelope's data field into v, wrapping any
// failure in a stable error so replyError can surface it as an ERROR
// envelope without leaking encoding/json's message text to clients.
func unmarshal(env protocol.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errMalformedPayload
	}
	return nil
}

// marshalLine serializes an envelope as a single newline-terminated JSON
// line, matching the framing protocol.LineReader expects on the read
// side.
func marshalLine(env protocol.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

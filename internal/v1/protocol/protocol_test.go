package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypePlaceStone, PlaceStoneData{X: 3, Y: 4}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, TypePlaceStone, env.Type)

	var data PlaceStoneData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 3, data.X)
	assert.Equal(t, 4, data.Y)
}

func TestLineReaderSkipsMalformedLines(t *testing.T) {
	input := `{"type":"READY","data":{},"timestamp":"t"}` + "\n" +
		`not json` + "\n" +
		`{"type":"SURRENDER","data":{},"timestamp":"t"}` + "\n"
	lr := NewLineReader(strings.NewReader(input))

	var skipped int
	env1, err := lr.Next(func(raw []byte, err error) { skipped++ })
	require.NoError(t, err)
	assert.Equal(t, TypeReady, env1.Type)

	env2, err := lr.Next(func(raw []byte, err error) { skipped++ })
	require.NoError(t, err)
	assert.Equal(t, TypeSurrender, env2.Type)
	assert.Equal(t, 1, skipped)
}

func TestLineReaderSkipsEmptyLines(t *testing.T) {
	input := "\n\n" + `{"type":"LIST_ROOMS","data":{},"timestamp":"t"}` + "\n"
	lr := NewLineReader(strings.NewReader(input))
	env, err := lr.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, TypeListRooms, env.Type)
}

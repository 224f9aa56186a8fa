package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sampleValue struct {
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

func TestJSON_RoundTrip(t *testing.T) {
	c := NewJSON()
	in := sampleValue{Name: "hello x", Count: 3, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	payload, err := c.Encode(in)
	require.NoError(t, err)
	require.Contains(t, payload, "2026-01-02T03:04:05Z")

	decoded, err := c.Decode(payload, sampleValue{})
	require.NoError(t, err)
	require.Equal(t, in, decoded)
}

func TestJSON_NilEncodesToAbsentPayload(t *testing.T) {
	c := NewJSON()
	payload, err := c.Encode(nil)
	require.NoError(t, err)
	require.Empty(t, payload)

	var p *sampleValue
	payload, err = c.Encode(p)
	require.NoError(t, err)
	require.Empty(t, payload)
}

func TestJSON_DecodeEmptyPayloadIsZeroValue(t *testing.T) {
	c := NewJSON()
	decoded, err := c.Decode("", sampleValue{})
	require.NoError(t, err)
	require.Equal(t, sampleValue{}, decoded)
}

func TestJSON_DecodeErrorWrapsErrDecode(t *testing.T) {
	c := NewJSON()
	_, err := c.Decode("{not json", sampleValue{})
	require.ErrorIs(t, err, ErrDecode)
}

func TestJSON_StringRoundTrip(t *testing.T) {
	c := NewJSON()
	payload, err := c.Encode("hello world")
	require.NoError(t, err)

	decoded, err := c.Decode(payload, "")
	require.NoError(t, err)
	require.Equal(t, "hello world", decoded)
}

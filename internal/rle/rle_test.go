package rle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := []byte("aaaabbbcccccccccccd")
	enc := Encode(msg)
	assert.Equal(t, msg, Decode(enc))
}

func TestStreamingMatchesOneShot(t *testing.T) {
	msg := []byte("xxxxxxyyyyyyyyyyyyyyzzz")
	oneShot := Encode(msg)

	e := NewEncoder()
	e.Write(msg[:3])
	e.Write(msg[3:10])
	e.Write(msg[10:])
	streamed := e.Finish()

	assert.Equal(t, oneShot, streamed)
}

func TestLongRunSplits(t *testing.T) {
	msg := make([]byte, 300)
	for i := range msg {
		msg[i] = 'z'
	}
	enc := Encode(msg)
	// 300 = 255 + 45, so two (count, value) pairs.
	assert.Equal(t, []byte{255, 'z', 45, 'z'}, enc)
	assert.Equal(t, msg, Decode(enc))
}

package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmSamples(values ...int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestEncodeParseRoundTrip(t *testing.T) {
	pcm := pcmSamples(100, -200, 300, -400)
	wav := Encode(pcm, 16000, 1)

	require.True(t, IsWAV(wav))
	info, err := Parse(wav)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, pcm, wav[info.DataOffset:info.DataOffset+info.DataLen])
}

func TestDuration(t *testing.T) {
	// One second of 16kHz mono 16-bit audio.
	pcm := make([]byte, 16000*2)
	info, err := Parse(Encode(pcm, 16000, 1))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, info.Duration(), 0.001)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("definitely not audio data"))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = Parse([]byte("RIFF"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestParseRejectsNonPCM(t *testing.T) {
	wav := Encode(pcmSamples(1, 2), 8000, 1)
	// Flip the format tag to IEEE float.
	binary.LittleEndian.PutUint16(wav[20:], 3)
	_, err := Parse(wav)
	assert.ErrorIs(t, err, ErrUnsupportedWAV)
}

func TestNormalizeScalesToPeak(t *testing.T) {
	wav := Encode(pcmSamples(16383, -16383, 8191), 16000, 1)

	out, err := Normalize(wav)
	require.NoError(t, err)

	info, err := Parse(out)
	require.NoError(t, err)
	samples := out[info.DataOffset : info.DataOffset+info.DataLen]

	peak := int16(binary.LittleEndian.Uint16(samples[0:]))
	assert.InDelta(t, 0.98*32767, float64(peak), 2.0)

	// Relative amplitudes are preserved.
	half := int16(binary.LittleEndian.Uint16(samples[4:]))
	assert.InDelta(t, float64(peak)/2, float64(half), 2.0)
}

func TestNormalizeSilence(t *testing.T) {
	wav := Encode(make([]byte, 64), 16000, 1)
	out, err := Normalize(wav)
	require.NoError(t, err)

	info, err := Parse(out)
	require.NoError(t, err)
	for _, b := range out[info.DataOffset : info.DataOffset+info.DataLen] {
		assert.Zero(t, b)
	}
}

func TestNormalizeRejectsNonWAV(t *testing.T) {
	_, err := Normalize([]byte("OggS...."))
	assert.ErrorIs(t, err, ErrNotWAV)
}

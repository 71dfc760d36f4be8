package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavPCMFormat      = 1 // WAV PCM format tag
	wavBitsPerSample  = 16
	wavBytesPerSample = 2
)

var (
	ErrNotWAV         = errors.New("not a RIFF/WAVE stream")
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// Info describes a parsed PCM WAV stream. DataOffset/DataLen locate the
// sample bytes within the original buffer.
type Info struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataOffset    int
	DataLen       int
}

// Duration returns the playback length in seconds.
func (i Info) Duration() float64 {
	bps := int(i.SampleRate) * int(i.Channels) * int(i.BitsPerSample) / 8
	if bps == 0 {
		return 0
	}
	return float64(i.DataLen) / float64(bps)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// Parse walks the RIFF chunk list and returns the format and data segment
// of a PCM WAV stream.
func Parse(data []byte) (Info, error) {
	if !IsWAV(data) {
		return Info{}, ErrNotWAV
	}

	var info Info
	sawFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return Info{}, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != wavPCMFormat {
				return Info{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, format)
			}
			info.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			info.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			info.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			sawFmt = true
		case "data":
			info.DataOffset = body
			info.DataLen = size
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !sawFmt || info.DataLen == 0 {
		return Info{}, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	if info.Channels == 0 || info.SampleRate == 0 {
		return Info{}, fmt.Errorf("%w: zero channels or sample rate", ErrNotWAV)
	}
	return info, nil
}

// Normalize peak-normalizes a 16-bit PCM WAV to 98% of full scale and
// re-encodes it. Streams that cannot be parsed or are not 16-bit PCM are
// rejected; the caller keeps the raw payload authoritative in that case.
func Normalize(data []byte) ([]byte, error) {
	info, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if info.BitsPerSample != wavBitsPerSample {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, info.BitsPerSample)
	}

	pcm := data[info.DataOffset : info.DataOffset+info.DataLen]
	samples := len(pcm) / wavBytesPerSample

	peak := 0
	for i := 0; i < samples; i++ {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i*wavBytesPerSample:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		peak = 1
	}

	scale := 0.98 * 32767.0 / float64(peak)
	out := make([]byte, samples*wavBytesPerSample)
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*wavBytesPerSample:]))) * scale
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*wavBytesPerSample:], uint16(int16(v)))
	}

	return Encode(out, info.SampleRate, info.Channels), nil
}

// Encode wraps 16-bit PCM sample bytes in a RIFF/WAVE container.
func Encode(pcm []byte, sampleRate uint32, channels uint16) []byte {
	var buf bytes.Buffer
	bps := sampleRate * uint32(channels) * wavBytesPerSample

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, bps)
	binary.Write(&buf, binary.LittleEndian, uint16(uint32(channels)*wavBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Package audio converts between raw PCM byte frames, transport-safe encoded
// text, and float sample buffers ready for playback scheduling.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Buffer holds normalized float samples for a single playable frame.
type Buffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Data) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// Encode wraps a raw byte sequence in a transport-safe text encoding.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode is the exact inverse of Encode. Malformed input is an error, never
// silent corruption.
func Decode(text string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode transport audio: %w", err)
	}
	return raw, nil
}

// DecodeFrame interprets raw as interleaved little-endian 16-bit signed PCM
// and produces a normalized buffer at the given sample rate and channel
// count. Zero-length input yields an empty buffer.
func DecodeFrame(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm frame length %d is not 16-bit aligned", len(raw))
	}
	data := make([]float32, len(raw)/2)
	for i := range data {
		s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		data[i] = float32(s) / 32768
	}
	return &Buffer{Data: data, SampleRate: sampleRate, Channels: channels}, nil
}

// FloatsToPCM16 converts captured float samples to little-endian 16-bit
// signed PCM, clipping anything outside [-1, 1).
func FloatsToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := int32(f * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out
}

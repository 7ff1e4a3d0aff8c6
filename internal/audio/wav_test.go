package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// makeWAV builds a WAV buffer and then applies a mutation to the raw
// bytes so tests can corrupt individual header fields.
func makeWAV(t *testing.T, samples []int16, sampleRate int, mutate func([]byte)) []byte {
	t.Helper()

	data, err := Encode(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode test WAV: %v", err)
	}

	if mutate != nil {
		mutate(data)
	}

	return data
}

func TestDecodeValidClip(t *testing.T) {
	// 100ms of a 440Hz tone at 16kHz
	sampleRate := 16000
	numSamples := sampleRate / 10
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	data := makeWAV(t, samples, sampleRate, nil)

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Expected successful decode, got: %v", err)
	}

	if clip.SampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, clip.SampleRate)
	}

	if clip.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", clip.Channels)
	}

	if len(clip.Samples) != numSamples {
		t.Errorf("Expected %d samples, got %d", numSamples, len(clip.Samples))
	}

	if clip.Duration != 100*time.Millisecond {
		t.Errorf("Expected 100ms duration, got %v", clip.Duration)
	}

	// Normalized amplitudes must stay within [-1, 1]
	for i, s := range clip.Samples {
		if s < -1 || s > 1 {
			t.Fatalf("Sample %d out of range: %f", i, s)
		}
	}
}

func TestDecodeMalformedInput(t *testing.T) {
	valid := func() []int16 {
		samples := make([]int16, 1600)
		for i := range samples {
			samples[i] = int16(i % 1000)
		}
		return samples
	}

	tests := []struct {
		name      string
		data      func(t *testing.T) []byte
		errorPart string
	}{
		{
			name: "empty buffer",
			data: func(t *testing.T) []byte {
				return nil
			},
			errorPart: "data too short",
		},
		{
			name: "shorter than header",
			data: func(t *testing.T) []byte {
				return make([]byte, 20)
			},
			errorPart: "data too short",
		},
		{
			name: "bad RIFF magic",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					copy(b[0:4], "JUNK")
				})
			},
			errorPart: "missing RIFF header",
		},
		{
			name: "bad WAVE format",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					copy(b[8:12], "NOPE")
				})
			},
			errorPart: "missing WAVE format",
		},
		{
			name: "non-PCM audio format",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					binary.LittleEndian.PutUint16(b[20:22], 3) // IEEE float
				})
			},
			errorPart: "unsupported audio format",
		},
		{
			name: "unsupported bit depth",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					binary.LittleEndian.PutUint16(b[34:36], 8)
				})
			},
			errorPart: "unsupported bit depth",
		},
		{
			name: "zero sample rate",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					binary.LittleEndian.PutUint32(b[24:28], 0)
				})
			},
			errorPart: "invalid sample rate",
		},
		{
			name: "truncated payload",
			data: func(t *testing.T) []byte {
				full := makeWAV(t, valid(), 16000, nil)
				return full[:len(full)-100]
			},
			errorPart: "truncated payload",
		},
		{
			name: "declared size larger than buffer",
			data: func(t *testing.T) []byte {
				return makeWAV(t, valid(), 16000, func(b []byte) {
					binary.LittleEndian.PutUint32(b[40:44], 1<<30)
				})
			},
			errorPart: "truncated payload",
		},
		{
			name: "header only, no data",
			data: func(t *testing.T) []byte {
				full := makeWAV(t, valid(), 16000, nil)
				header := full[:44]
				binary.LittleEndian.PutUint32(header[40:44], 0)
				return header
			},
			errorPart: "no audio data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data(t))
			if err == nil {
				t.Fatalf("Expected decode error but got none")
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T", err)
			}

			if !strings.Contains(err.Error(), tt.errorPart) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorPart, err.Error())
			}
		})
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	// Build a stereo WAV by hand: left channel at +8000, right at -8000.
	// Downmixing by averaging should give silence.
	sampleRate := 8000
	numFrames := 800

	raw := make([]int16, numFrames*2)
	for i := 0; i < numFrames; i++ {
		raw[i*2] = 8000
		raw[i*2+1] = -8000
	}

	dataSize := uint32(len(raw) * 2)
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   2,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2 * 2,
		BlockAlign:    4,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, raw); err != nil {
		t.Fatalf("Failed to write samples: %v", err)
	}

	clip, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Expected successful decode, got: %v", err)
	}

	if clip.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", clip.Channels)
	}

	if len(clip.Samples) != numFrames {
		t.Errorf("Expected %d downmixed frames, got %d", numFrames, len(clip.Samples))
	}

	for i, s := range clip.Samples {
		if s != 0 {
			t.Fatalf("Expected cancelled channels at frame %d, got %f", i, s)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sampleRate := 16000
	samples := []int16{0, 16384, -16384, 32767, -32768, 100, -100}

	data, err := Encode(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if len(clip.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(clip.Samples))
	}

	for i, original := range samples {
		expected := float64(original) / 32768.0
		if math.Abs(clip.Samples[i]-expected) > 1e-9 {
			t.Errorf("Sample %d: expected %f, got %f", i, expected, clip.Samples[i])
		}
	}
}

func TestEncodeInvalidInput(t *testing.T) {
	if _, err := Encode(nil, 16000); err == nil {
		t.Errorf("Expected error for empty samples")
	}

	if _, err := Encode([]int16{1, 2, 3}, 0); err == nil {
		t.Errorf("Expected error for zero sample rate")
	}
}

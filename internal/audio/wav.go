package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Clip holds the decoded, normalized contents of one audio artifact.
// Samples are mono float64 amplitudes in [-1, 1]; multi-channel input is
// downmixed by channel averaging. A Clip is never mutated after decode.
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// DecodeError indicates a malformed, truncated or inconsistent audio buffer.
// Decode failures are permanent: the clip cannot be classified and the run
// must abort before any analysis step.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wav decode: %s", e.Reason)
}

func decodeErrorf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const headerSize = 44

// Decode parses a WAV byte buffer into a normalized Clip. It accepts 16-bit
// PCM with any channel count and returns a *DecodeError for malformed
// headers, truncated buffers, a zero declared sample rate, or a payload
// length inconsistent with the header's declared data size.
func Decode(data []byte) (*Clip, error) {
	if len(data) < headerSize {
		return nil, decodeErrorf("data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, decodeErrorf("failed to read header: %v", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, decodeErrorf("missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, decodeErrorf("missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, decodeErrorf("missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, decodeErrorf("missing data chunk")
	}

	if header.AudioFormat != 1 {
		return nil, decodeErrorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 16 {
		return nil, decodeErrorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels < 1 {
		return nil, decodeErrorf("invalid channel count: 0")
	}

	if header.SampleRate == 0 {
		return nil, decodeErrorf("invalid sample rate: 0")
	}

	if int(header.Subchunk2Size) > len(data)-headerSize {
		return nil, decodeErrorf("truncated payload: header declares %d data bytes, buffer holds %d",
			header.Subchunk2Size, len(data)-headerSize)
	}

	channels := int(header.NumChannels)
	bytesPerFrame := channels * 2
	numFrames := int(header.Subchunk2Size) / bytesPerFrame
	if numFrames <= 0 {
		return nil, decodeErrorf("no audio data found")
	}

	raw := make([]int16, numFrames*channels)
	if err := binary.Read(buf, binary.LittleEndian, raw); err != nil {
		return nil, decodeErrorf("failed to read audio samples: %v", err)
	}

	// Downmix to mono and normalize to [-1, 1].
	samples := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(raw[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / 32768.0
	}

	sampleRate := int(header.SampleRate)
	duration := time.Duration(float64(numFrames) / float64(sampleRate) * float64(time.Second))

	return &Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   duration,
	}, nil
}

// Encode encodes mono PCM-16 samples into WAV format. Used by the ingest
// tooling and tests to build well-formed clips.
func Encode(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// LoadClip decodes a PCM WAV file into mono float32 samples in [-1, 1].
// Multi-channel files are mixed down.
func LoadClip(path string) ([]float32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening clip: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("clip %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding clip: %w", err)
	}

	channels := max(1, buf.Format.NumChannels)
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c])
		}
		out[i] = sum / float32(channels) / scale
	}
	return out, uint32(buf.Format.SampleRate), nil
}

// Package audio plays a short audible pulse on the default output device
// at every R peak.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/chaz8081/notabot/internal/beat"
)

// fade is the attack/release length of synthesized tones; it keeps the
// pulse from clicking.
const fade = 2 * time.Millisecond

// Options configures a Beeper.
type Options struct {
	SampleRate uint32
	Frequency  float64
	Duration   time.Duration
	Volume     float64
	ClipPath   string // WAV file replacing the tone when set
}

// Beeper plays a mono clip on a malgo playback device.
type Beeper struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32

	mu   sync.Mutex
	clip []float32
	pos  int // playhead; len(clip) when idle
}

// NewBeeper opens the default playback device. Call Close() when done.
func NewBeeper(opts Options) (*Beeper, error) {
	clip, rate, err := loadOrSynthesize(opts)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	b := newBeeper(clip, rate)
	b.ctx = ctx

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = rate

	device, err := malgo.InitDevice(ctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: b.onData,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("initializing playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		b.Close()
		return nil, fmt.Errorf("starting playback device: %w", err)
	}
	b.device = device

	return b, nil
}

func newBeeper(clip []float32, sampleRate uint32) *Beeper {
	return &Beeper{clip: clip, pos: len(clip), sampleRate: sampleRate}
}

func loadOrSynthesize(opts Options) ([]float32, uint32, error) {
	volume := float32(opts.Volume)
	if opts.ClipPath != "" {
		clip, rate, err := LoadClip(opts.ClipPath)
		if err != nil {
			return nil, 0, err
		}
		for i := range clip {
			clip[i] *= volume
		}
		return clip, rate, nil
	}
	if opts.SampleRate == 0 {
		return nil, 0, fmt.Errorf("audio: sample rate must be > 0")
	}
	return Tone(opts.SampleRate, opts.Frequency, opts.Duration, opts.Volume), opts.SampleRate, nil
}

// Beep restarts the clip from the beginning.
func (b *Beeper) Beep() {
	b.mu.Lock()
	b.pos = 0
	b.mu.Unlock()
}

// Sink returns a PhaseSink that beeps on every peak.
func (b *Beeper) Sink() beat.PhaseSink {
	return beat.Funcs{OnPeak: b.Beep}
}

// Close releases all audio resources.
func (b *Beeper) Close() error {
	b.mu.Lock()
	if b.device != nil {
		b.device.Uninit()
		b.device = nil
	}
	b.mu.Unlock()

	if b.ctx != nil {
		if err := b.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		b.ctx.Free()
		b.ctx = nil
	}
	return nil
}

// onData is the malgo callback filling the output buffer with float32
// frames: the rest of the clip, then silence.
func (b *Beeper) onData(pOutput, _ []byte, frameCount uint32) {
	b.mu.Lock()
	n := min(int(frameCount), len(b.clip)-b.pos)
	chunk := b.clip[b.pos : b.pos+n]
	b.pos += n
	b.mu.Unlock()

	float32ToBytes(pOutput, chunk)
	clear(pOutput[4*n : 4*int(frameCount)])
}

// Tone synthesizes a sine pulse with a short linear fade in and out.
func Tone(sampleRate uint32, freq float64, d time.Duration, volume float64) []float32 {
	n := int(math.Round(float64(sampleRate) * d.Seconds()))
	ramp := max(1, int(float64(sampleRate)*fade.Seconds()))
	out := make([]float32, n)
	for i := range out {
		env := 1.0
		if i < ramp {
			env = float64(i) / float64(ramp)
		}
		if tail := n - 1 - i; tail < ramp {
			env = math.Min(env, float64(tail)/float64(ramp))
		}
		out[i] = float32(volume * env * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// float32ToBytes writes samples into dst as little-endian float32.
func float32ToBytes(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(s))
	}
}

package captcha

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// noiseScale bounds the additive perturbation so even noise=1 stays audible.
const noiseScale = 0.08

// TTSEngine converts text into raw speech samples. Implementations wrap an
// external synthesis engine; the pipeline itself stays engine-agnostic.
type TTSEngine interface {
	Speak(ctx context.Context, text string) (PCM, error)
}

// AudioEncoder packs processed samples into an audio container.
type AudioEncoder interface {
	Encode(ctx context.Context, pcm PCM) ([]byte, error)
	ContentType() string
}

// Synthesizer turns challenge codes into distorted speech: TTS, additive
// amplitude noise, tempo adjustment, then container encoding.
type Synthesizer struct {
	Engine  TTSEngine
	Encoder AudioEncoder
}

// NewSynthesizer wires a synthesis pipeline from an engine and an encoder.
func NewSynthesizer(engine TTSEngine, encoder AudioEncoder) *Synthesizer {
	return &Synthesizer{Engine: engine, Encoder: encoder}
}

// ContentType reports the media type of the encoded output.
func (s *Synthesizer) ContentType() string {
	return s.Encoder.ContentType()
}

// Synthesize produces the spoken form of code. Speed outside [0.8, 1.2] and
// noise outside [0, 1] are rejected, never clamped. With noise above zero two
// calls on the same inputs never produce identical bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, code string, opts AudioOptions) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	pcm, err := s.Engine.Speak(ctx, spellOut(code))
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}

	if noise := opts.noise(); noise > 0 {
		addNoise(pcm, noise)
	}
	if speed := opts.speed(); speed != DefaultSpeed {
		pcm = retime(pcm, speed)
	}

	out, err := s.Encoder.Encode(ctx, pcm)
	if err != nil {
		return nil, fmt.Errorf("encode audio: %w", err)
	}
	return out, nil
}

// spellOut spaces the characters so the engine reads them one by one.
func spellOut(code string) string {
	parts := make([]string, 0, len(code))
	for _, r := range code {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}

// addNoise perturbs every sample with uniform noise scaled by level.
func addNoise(pcm PCM, level float64) {
	for i, v := range pcm.Samples {
		pcm.Samples[i] = clampSample(v + (rand.Float64()*2-1)*level*noiseScale)
	}
}

// retime resamples linearly so playback runs at the given speed factor while
// keeping the sample rate unchanged.
func retime(pcm PCM, speed float64) PCM {
	if len(pcm.Samples) == 0 {
		return pcm
	}
	outLen := int(math.Round(float64(len(pcm.Samples)) / speed))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * speed
		j := int(pos)
		if j >= len(pcm.Samples)-1 {
			out[i] = pcm.Samples[len(pcm.Samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = pcm.Samples[j]*(1-frac) + pcm.Samples[j+1]*frac
	}
	return PCM{SampleRate: pcm.SampleRate, Samples: out}
}

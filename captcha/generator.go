package captcha

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Challenge is a generated code plus its rendered representations. It is
// immutable after creation and never persisted in full; only the code and the
// customization that produced it are stored.
type Challenge struct {
	ID    string
	Code  string
	Image []byte
	Audio []byte
}

// Generator assembles complete challenges from the rendering pipelines.
type Generator struct {
	Renderer *Renderer
	Synth    *Synthesizer
}

// NewGenerator wires a challenge factory from the two pipelines.
func NewGenerator(renderer *Renderer, synth *Synthesizer) *Generator {
	return &Generator{Renderer: renderer, Synth: synth}
}

// Create generates one code and renders image and audio concurrently. A
// failure in either pipeline fails the whole challenge; there is no partial
// success.
func (g *Generator) Create(ctx context.Context, c Customization) (*Challenge, error) {
	ch := &Challenge{
		ID:   uuid.NewString(),
		Code: GenerateCode(),
	}

	var wg sync.WaitGroup
	var imgErr, audErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		ch.Image, imgErr = g.Renderer.Render(ch.Code, c.Image)
	}()
	go func() {
		defer wg.Done()
		ch.Audio, audErr = g.Synth.Synthesize(ctx, ch.Code, c.Audio)
	}()
	wg.Wait()

	if imgErr != nil {
		return nil, fmt.Errorf("render image: %w", imgErr)
	}
	if audErr != nil {
		return nil, fmt.Errorf("render audio: %w", audErr)
	}
	return ch, nil
}

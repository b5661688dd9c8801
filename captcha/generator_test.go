package captcha

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator() *Generator {
	return NewGenerator(testRenderer(), testSynth())
}

func TestCreateChallenge(t *testing.T) {
	ch, err := testGenerator().Create(context.Background(), Customization{})
	require.NoError(t, err)

	_, err = uuid.Parse(ch.ID)
	assert.NoError(t, err)
	assert.Len(t, ch.Code, CodeLength)
	assert.True(t, bytes.HasPrefix(ch.Image, []byte("\x89PNG")))
	assert.True(t, bytes.HasPrefix(ch.Audio, []byte("RIFF")))
}

func TestCreateFailsAsAWhole(t *testing.T) {
	gen := testGenerator()

	ch, err := gen.Create(context.Background(), Customization{
		Image: ImageOptions{Format: "gif"},
	})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Nil(t, ch)

	ch, err = gen.Create(context.Background(), Customization{
		Audio: AudioOptions{Speed: floatPtr(2)},
	})
	assert.ErrorIs(t, err, ErrInvalidSpeed)
	assert.Nil(t, ch)
}

func TestCreateConcurrentIDsAreUnique(t *testing.T) {
	gen := testGenerator()

	var mu sync.Mutex
	ids := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := gen.Create(context.Background(), Customization{})
			if assert.NoError(t, err) {
				mu.Lock()
				ids[ch.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 8)
}

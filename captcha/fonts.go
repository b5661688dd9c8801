package captcha

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// FontRegistry resolves requested font family names to parsed TrueType fonts.
// Unknown or missing names fall back silently to the bundled default face.
type FontRegistry struct {
	mu    sync.RWMutex
	fonts map[string]*truetype.Font
	def   *truetype.Font
}

// NewFontRegistry builds a registry seeded with the bundled Go fonts.
func NewFontRegistry() *FontRegistry {
	def, err := truetype.Parse(goregular.TTF)
	if err != nil {
		panic("captcha: bundled default font failed to parse: " + err.Error())
	}
	r := &FontRegistry{
		fonts: map[string]*truetype.Font{"go regular": def},
		def:   def,
	}
	if bold, err := truetype.Parse(gobold.TTF); err == nil {
		r.fonts["go bold"] = bold
	}
	return r
}

// LoadDir registers every .ttf file found directly under dir, keyed by file
// name without extension. Unparseable files are skipped.
func (r *FontRegistry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ttf") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		f, err := truetype.Parse(raw)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		r.mu.Lock()
		r.fonts[strings.ToLower(name)] = f
		r.mu.Unlock()
	}
	return nil
}

// Resolve returns the font registered under name, or the default face.
func (r *FontRegistry) Resolve(name string) *truetype.Font {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.fonts[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return r.def
}

package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"strings"

	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Canvas dimensions shared by the raster and vector outputs.
const (
	ImageWidth  = 250
	ImageHeight = 80

	fontSize = 40
)

// Renderer draws challenge codes as distorted images. Distortion parameters
// include randomness, so repeated renders of one code differ on purpose.
type Renderer struct {
	Fonts *FontRegistry
}

// NewRenderer returns a renderer backed by the given font registry.
func NewRenderer(fonts *FontRegistry) *Renderer {
	return &Renderer{Fonts: fonts}
}

type distortionParams struct {
	gain       float64
	bias       float64
	waveAmp    float64
	wavePeriod float64
	noiseFrac  float64
	turbulence float64
}

func distortionFor(level string) distortionParams {
	switch strings.ToLower(level) {
	case DistortionLight:
		return distortionParams{gain: 1.05, bias: -5, waveAmp: 1.5, wavePeriod: 40, noiseFrac: 0.01, turbulence: 0.01}
	case DistortionHeavy:
		return distortionParams{gain: 1.18, bias: -18, waveAmp: 4, wavePeriod: 22, noiseFrac: 0.05, turbulence: 0.04}
	default:
		return distortionParams{gain: 1.1, bias: -10, waveAmp: 2.5, wavePeriod: 30, noiseFrac: 0.02, turbulence: 0.02}
	}
}

// Render lays code as centered text on a 250x80 canvas, composites it over an
// optional background, and applies the distortion pass. Format toggles between
// PNG and SVG output.
func (r *Renderer) Render(code string, opts ImageOptions) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	switch strings.ToLower(opts.Format) {
	case "", FormatPNG:
	case FormatSVG:
		return r.renderSVG(code, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, ImageWidth, ImageHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(parseColor(opts.BackgroundColor)), image.Point{}, draw.Src)

	if len(opts.Background) > 0 {
		bg, _, err := image.Decode(bytes.NewReader(opts.Background))
		if err != nil {
			return nil, fmt.Errorf("decode background image: %w", err)
		}
		coverScale(canvas, bg)
	}

	r.drawText(canvas, code, opts.Font)

	distorted := distort(canvas, distortionFor(opts.DistortionLevel))

	var buf bytes.Buffer
	if err := png.Encode(&buf, distorted); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawText renders the code horizontally centered with the requested font,
// falling back to the default face for unknown names.
func (r *Renderer) drawText(dst *image.RGBA, code, fontName string) {
	face := truetype.NewFace(r.Fonts.Resolve(fontName), &truetype.Options{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	width := d.MeasureString(code)
	metrics := face.Metrics()
	d.Dot = fixed.Point26_6{
		X: (fixed.I(ImageWidth) - width) / 2,
		Y: (fixed.I(ImageHeight) + metrics.Ascent - metrics.Descent) / 2,
	}
	d.DrawString(code)
}

// coverScale scales src so it covers the destination canvas, cropping the
// overflow evenly on both sides.
func coverScale(dst *image.RGBA, src image.Image) {
	db, sb := dst.Bounds(), src.Bounds()
	scale := math.Max(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	w := int(float64(sb.Dx())*scale + 0.5)
	h := int(float64(sb.Dy())*scale + 0.5)
	offX := (w - db.Dx()) / 2
	offY := (h - db.Dy()) / 2
	xdraw.ApproxBiLinear.Scale(dst, image.Rect(-offX, -offY, w-offX, h-offY), src, sb, xdraw.Src, nil)
}

// distort runs the anti-OCR pass: sine-wave row displacement with a random
// phase, a linear brightness/contrast shift, a mild box blur, and sparse
// pixel noise.
func distort(src *image.RGBA, p distortionParams) *image.RGBA {
	waved := waveShift(src, p.waveAmp, p.wavePeriod)
	linearAdjust(waved, p.gain, p.bias)
	blurred := boxBlur(waved)
	speckle(blurred, p.noiseFrac)
	return blurred
}

func waveShift(src *image.RGBA, amp, period float64) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	phase := rand.Float64() * 2 * math.Pi
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dx := int(math.Round(amp * math.Sin(2*math.Pi*float64(y)/period+phase)))
		for x := b.Min.X; x < b.Max.X; x++ {
			sx := x + dx
			if sx < b.Min.X {
				sx = b.Min.X
			} else if sx >= b.Max.X {
				sx = b.Max.X - 1
			}
			out.SetRGBA(x, y, src.RGBAAt(sx, y))
		}
	}
	return out
}

func linearAdjust(img *image.RGBA, gain, bias float64) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := img.RGBAAt(x, y)
			px.R = clampByte(gain*float64(px.R) + bias)
			px.G = clampByte(gain*float64(px.G) + bias)
			px.B = clampByte(gain*float64(px.B) + bias)
			img.SetRGBA(x, y, px)
		}
	}
}

func boxBlur(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var rSum, gSum, bSum, n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sx, sy := x+dx, y+dy
					if sx < b.Min.X || sx >= b.Max.X || sy < b.Min.Y || sy >= b.Max.Y {
						continue
					}
					px := src.RGBAAt(sx, sy)
					rSum += int(px.R)
					gSum += int(px.G)
					bSum += int(px.B)
					n++
				}
			}
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(rSum / n),
				G: uint8(gSum / n),
				B: uint8(bSum / n),
				A: src.RGBAAt(x, y).A,
			})
		}
	}
	return out
}

func speckle(img *image.RGBA, frac float64) {
	b := img.Bounds()
	total := int(float64(b.Dx()*b.Dy()) * frac)
	for i := 0; i < total; i++ {
		x := b.Min.X + rand.Intn(b.Dx())
		y := b.Min.Y + rand.Intn(b.Dy())
		v := uint8(rand.Intn(256))
		img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// parseColor understands #rgb/#rrggbb hex plus a handful of CSS color names.
// Malformed values are the caller's responsibility and fall back to white.
func parseColor(s string) color.RGBA {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "white":
		return color.RGBA{255, 255, 255, 255}
	case "black":
		return color.RGBA{0, 0, 0, 255}
	case "red":
		return color.RGBA{255, 0, 0, 255}
	case "green":
		return color.RGBA{0, 128, 0, 255}
	case "blue":
		return color.RGBA{0, 0, 255, 255}
	case "yellow":
		return color.RGBA{255, 255, 0, 255}
	case "gray", "grey":
		return color.RGBA{128, 128, 128, 255}
	}
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) == 6 {
			var r, g, b uint8
			if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err == nil {
				return color.RGBA{r, g, b, 255}
			}
		}
	}
	return color.RGBA{255, 255, 255, 255}
}

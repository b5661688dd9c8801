package captcha

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
)

// SVGContentType is the media type for vector output.
const SVGContentType = "image/svg+xml"

var svgEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// renderSVG emits the vector variant of the challenge. Distortion is
// filter-based: turbulence displacement plus blur and a linear transfer,
// mirroring the raster pass. The turbulence seed is random per render.
func (r *Renderer) renderSVG(code string, opts ImageOptions) ([]byte, error) {
	p := distortionFor(opts.DistortionLevel)
	seed := rand.Intn(1 << 16)

	fontFamily := strings.TrimSpace(opts.Font)
	if fontFamily == "" {
		fontFamily = "Arial"
	}
	bg := strings.TrimSpace(opts.BackgroundColor)
	if bg == "" {
		bg = "white"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`, ImageWidth, ImageHeight)
	fmt.Fprintf(&buf, `<defs><filter id="distort">`)
	fmt.Fprintf(&buf, `<feTurbulence type="turbulence" baseFrequency="%.3f" numOctaves="2" seed="%d" result="noise"/>`, p.turbulence, seed)
	fmt.Fprintf(&buf, `<feDisplacementMap in="SourceGraphic" in2="noise" scale="%.1f"/>`, p.waveAmp*2)
	fmt.Fprintf(&buf, `<feGaussianBlur stdDeviation="0.5"/>`)
	fmt.Fprintf(&buf, `<feComponentTransfer><feFuncR type="linear" slope="%.2f" intercept="%.3f"/><feFuncG type="linear" slope="%.2f" intercept="%.3f"/><feFuncB type="linear" slope="%.2f" intercept="%.3f"/></feComponentTransfer>`,
		p.gain, p.bias/255, p.gain, p.bias/255, p.gain, p.bias/255)
	fmt.Fprintf(&buf, `</filter></defs>`)
	fmt.Fprintf(&buf, `<rect width="100%%" height="100%%" fill="%s"/>`, svgEscaper.Replace(bg))
	if len(opts.Background) > 0 {
		mime := http.DetectContentType(opts.Background)
		fmt.Fprintf(&buf, `<image width="%d" height="%d" preserveAspectRatio="xMidYMid slice" href="data:%s;base64,%s"/>`,
			ImageWidth, ImageHeight, mime, base64.StdEncoding.EncodeToString(opts.Background))
	}
	fmt.Fprintf(&buf, `<g filter="url(#distort)">`)
	fmt.Fprintf(&buf, `<text x="50%%" y="50%%" text-anchor="middle" dominant-baseline="middle" font-family="%s, Arial, sans-serif" font-size="%d" fill="black">%s</text>`,
		svgEscaper.Replace(fontFamily), fontSize, svgEscaper.Replace(code))
	fmt.Fprintf(&buf, `</g></svg>`)
	return buf.Bytes(), nil
}

package captcha

import "errors"

// Output formats accepted by the image renderer.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// Distortion levels map to increasingly aggressive perturbation parameters.
const (
	DistortionLight  = "light"
	DistortionMedium = "medium"
	DistortionHeavy  = "heavy"
)

// Audio parameter bounds and defaults.
const (
	MinSpeed     = 0.8
	MaxSpeed     = 1.2
	DefaultSpeed = 1.0
	DefaultNoise = 0.3
)

var (
	// ErrEmptyCode is returned when a rendering pipeline receives no code.
	ErrEmptyCode = errors.New("captcha: code must not be empty")
	// ErrInvalidSpeed is returned when speed falls outside [0.8, 1.2].
	ErrInvalidSpeed = errors.New("captcha: speed must be between 0.8 and 1.2")
	// ErrInvalidNoise is returned when noise falls outside [0, 1].
	ErrInvalidNoise = errors.New("captcha: noise must be between 0 and 1")
	// ErrUnknownFormat is returned for image formats other than png and svg.
	ErrUnknownFormat = errors.New("captcha: format must be png or svg")
)

// ImageOptions customizes a single image render. Background carries raw image
// bytes resolved by the caller; BackgroundID is the stored reference it came
// from and is what gets persisted alongside the code.
type ImageOptions struct {
	Font            string `json:"font,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	BackgroundID    string `json:"background_id,omitempty"`
	Format          string `json:"format,omitempty"`
	DistortionLevel string `json:"distortion_level,omitempty"`

	Background []byte `json:"-"`
}

// AudioOptions customizes a single audio synthesis. Nil fields take the
// documented defaults; set fields are validated strictly, never clamped.
type AudioOptions struct {
	Speed *float64 `json:"speed,omitempty"`
	Noise *float64 `json:"noise,omitempty"`
}

func (o AudioOptions) speed() float64 {
	if o.Speed == nil {
		return DefaultSpeed
	}
	return *o.Speed
}

func (o AudioOptions) noise() float64 {
	if o.Noise == nil {
		return DefaultNoise
	}
	return *o.Noise
}

func (o AudioOptions) validate() error {
	if s := o.speed(); s < MinSpeed || s > MaxSpeed {
		return ErrInvalidSpeed
	}
	if n := o.noise(); n < 0 || n > 1 {
		return ErrInvalidNoise
	}
	return nil
}

// Customization groups the per-challenge rendering parameters. Only this and
// the code are ever persisted; media is regenerated from them on demand.
type Customization struct {
	Image ImageOptions `json:"image,omitempty"`
	Audio AudioOptions `json:"audio,omitempty"`
}

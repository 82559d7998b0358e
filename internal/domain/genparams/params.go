package genparams

import (
	"fmt"
	"strings"
)

// Params is the caller-supplied generation contract, persisted with the
// record. One struct covers every content type; Validate enforces the subset
// the type actually uses.
type Params struct {
	Locale string `json:"locale,omitempty"`

	// podcast-audio
	Voice         string `json:"voice,omitempty"`
	ScriptStyle   string `json:"scriptStyle,omitempty"`
	TargetMinutes int    `json:"targetMinutes,omitempty"`

	// video-intro
	Resolution    string `json:"resolution,omitempty"`
	TargetSeconds int    `json:"targetSeconds,omitempty"`

	// portfolio-pdf and video-intro
	Template string `json:"template,omitempty"`

	// portfolio-pdf
	PaperSize   string `json:"paperSize,omitempty"`
	AccentColor string `json:"accentColor,omitempty"`

	// qr-code
	TargetURL string `json:"targetUrl,omitempty"`
	ECLevel   string `json:"ecLevel,omitempty"`
	SizePx    int    `json:"sizePx,omitempty"`

	// headshot-image
	Style       string `json:"style,omitempty"`
	Background  string `json:"background,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	SourceKey   string `json:"sourceKey,omitempty"`
}

var allowedVoices = map[string]struct{}{
	"narrator-m":       {},
	"narrator-f":       {},
	"conversational-m": {},
	"conversational-f": {},
}

var allowedResolutions = map[string]struct{}{
	"720p":  {},
	"1080p": {},
}

var allowedECLevels = map[string]struct{}{
	"L": {},
	"M": {},
	"Q": {},
	"H": {},
}

var allowedAspectRatios = map[string]struct{}{
	"1:1": {},
	"3:4": {},
}

const (
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
	// DefaultVoice is the podcast narration voice when the caller omits one.
	DefaultVoice = "narrator-f"
	// DefaultScriptStyle is the baseline podcast script register.
	DefaultScriptStyle = "professional"
	// DefaultTargetMinutes is the podcast length when unspecified.
	DefaultTargetMinutes = 3
	// MaxTargetMinutes caps podcast length.
	MaxTargetMinutes = 10
	// DefaultResolution is used when the video request omits a resolution.
	DefaultResolution = "1080p"
	// DefaultTargetSeconds is the video intro length when unspecified.
	DefaultTargetSeconds = 60
	// MaxTargetSeconds caps video intro length.
	MaxTargetSeconds = 120
	// DefaultTemplate is the baseline document/video layout.
	DefaultTemplate = "minimal"
	// DefaultPaperSize is used when the PDF request omits a paper size.
	DefaultPaperSize = "a4"
	// DefaultECLevel is the QR error-correction level when unspecified.
	DefaultECLevel = "M"
	// DefaultQRSizePx is the QR edge length when unspecified.
	DefaultQRSizePx = 512
	// MaxQRSizePx caps QR rendering size.
	MaxQRSizePx = 2048
	// MinQRSizePx floors QR rendering size.
	MinQRSizePx = 128
	// DefaultHeadshotStyle is the baseline portrait look.
	DefaultHeadshotStyle = "corporate"
	// DefaultHeadshotBackground is used when the caller omits a backdrop.
	DefaultHeadshotBackground = "studio-grey"
	// DefaultHeadshotAspectRatio is the portrait framing when unspecified.
	DefaultHeadshotAspectRatio = "1:1"
)

// Normalize fills server defaults and clamps limits for the given content
// type. preferredLocale wins over the global default when the caller did not
// pick a locale.
func (p *Params) Normalize(contentType, preferredLocale string) {
	if p == nil {
		return
	}
	if p.Locale == "" {
		if preferredLocale != "" {
			p.Locale = preferredLocale
		} else {
			p.Locale = DefaultLocale
		}
	}
	switch contentType {
	case "podcast-audio":
		if p.Voice == "" {
			p.Voice = DefaultVoice
		}
		if p.ScriptStyle == "" {
			p.ScriptStyle = DefaultScriptStyle
		}
		if p.TargetMinutes <= 0 {
			p.TargetMinutes = DefaultTargetMinutes
		}
		if p.TargetMinutes > MaxTargetMinutes {
			p.TargetMinutes = MaxTargetMinutes
		}
	case "video-intro":
		if p.Resolution == "" {
			p.Resolution = DefaultResolution
		}
		if p.TargetSeconds <= 0 {
			p.TargetSeconds = DefaultTargetSeconds
		}
		if p.TargetSeconds > MaxTargetSeconds {
			p.TargetSeconds = MaxTargetSeconds
		}
		if p.Template == "" {
			p.Template = DefaultTemplate
		}
	case "portfolio-pdf":
		if p.Template == "" {
			p.Template = DefaultTemplate
		}
		if p.PaperSize == "" {
			p.PaperSize = DefaultPaperSize
		}
	case "qr-code":
		if p.ECLevel == "" {
			p.ECLevel = DefaultECLevel
		}
		if p.SizePx <= 0 {
			p.SizePx = DefaultQRSizePx
		}
		if p.SizePx > MaxQRSizePx {
			p.SizePx = MaxQRSizePx
		}
		if p.SizePx < MinQRSizePx {
			p.SizePx = MinQRSizePx
		}
	case "headshot-image":
		if p.Style == "" {
			p.Style = DefaultHeadshotStyle
		}
		if p.Background == "" {
			p.Background = DefaultHeadshotBackground
		}
		if p.AspectRatio == "" {
			p.AspectRatio = DefaultHeadshotAspectRatio
		}
	}
}

// Validate ensures the params satisfy the contract for the given content type
// before persistence or dispatch.
func (p Params) Validate(contentType string) error {
	switch contentType {
	case "podcast-audio":
		if _, ok := allowedVoices[p.Voice]; !ok {
			return fmt.Errorf("voice must be one of narrator-m, narrator-f, conversational-m, conversational-f")
		}
		if p.TargetMinutes < 1 || p.TargetMinutes > MaxTargetMinutes {
			return fmt.Errorf("targetMinutes must be between 1 and %d", MaxTargetMinutes)
		}
	case "video-intro":
		if _, ok := allowedResolutions[p.Resolution]; !ok {
			return fmt.Errorf("resolution must be one of 720p, 1080p")
		}
		if p.TargetSeconds < 15 || p.TargetSeconds > MaxTargetSeconds {
			return fmt.Errorf("targetSeconds must be between 15 and %d", MaxTargetSeconds)
		}
	case "portfolio-pdf":
		if p.AccentColor != "" && !validHexColor(p.AccentColor) {
			return fmt.Errorf("accentColor must be a #rrggbb hex value")
		}
	case "qr-code":
		if strings.TrimSpace(p.TargetURL) == "" {
			return fmt.Errorf("targetUrl is required")
		}
		if !strings.HasPrefix(p.TargetURL, "http://") && !strings.HasPrefix(p.TargetURL, "https://") {
			return fmt.Errorf("targetUrl must be an absolute http(s) URL")
		}
		if _, ok := allowedECLevels[p.ECLevel]; !ok {
			return fmt.Errorf("ecLevel must be one of L, M, Q, H")
		}
	case "headshot-image":
		if strings.TrimSpace(p.SourceKey) == "" {
			return fmt.Errorf("sourceKey is required")
		}
		if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
			return fmt.Errorf("aspectRatio must be one of 1:1, 3:4")
		}
	default:
		return fmt.Errorf("unknown content type %q", contentType)
	}
	return nil
}

func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

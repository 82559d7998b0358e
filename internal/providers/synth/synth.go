// Package synth renders deterministic placeholder assets for every content
// type. It keeps local and CI environments fully operational without remote
// provider credentials: bytes are synthesized from a seed derived from the
// request, so repeated runs produce identical assets.
package synth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/providers"
)

// Name is the provider id recorded on claims served by this generator.
const Name = "synth"

// Options tunes the generator. Delay simulates provider latency per call;
// zero disables it.
type Options struct {
	Delay time.Duration
}

// Generator synthesizes assets locally. Safe for concurrent use.
type Generator struct {
	delay time.Duration
}

func New(opts Options) *Generator {
	return &Generator{delay: opts.Delay}
}

func (g *Generator) Name() string { return Name }

// Generate renders the asset for the request's content type.
func (g *Generator) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	seed := seedFor(req)
	switch req.ContentType {
	case domain.ContentTypePodcastAudio:
		return renderPodcast(seed, req.Params), nil
	case domain.ContentTypeVideoIntro:
		return renderVideoIntro(seed, req.Params), nil
	case domain.ContentTypePortfolioPDF:
		return renderPortfolio(seed, req), nil
	case domain.ContentTypeQRCode:
		return renderQRCode(seed, req.Params), nil
	case domain.ContentTypeHeadshotImage:
		return renderHeadshot(seed, req.Params), nil
	}
	return nil, &providers.CallError{
		Provider: Name,
		Code:     "invalid_request",
		Message:  fmt.Sprintf("unsupported content type %q", req.ContentType),
	}
}

func (g *Generator) wait(ctx context.Context) error {
	if g.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// seedFor hashes the request identity and params into a stable seed.
func seedFor(req providers.Request) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%+v", req.RecordID, req.ContentType, req.JobID, req.Params)))
}

func hexSeed(seed [32]byte) string {
	return hex.EncodeToString(seed[:8])
}

// qualityFrom maps the seed onto a stable score in [0.70, 0.98].
func qualityFrom(seed [32]byte) float64 {
	return math.Round((0.70+float64(seed[0])/255.0*0.28)*100) / 100
}

func colorAt(seed [32]byte, shift int) color.RGBA {
	return color.RGBA{R: seed[shift], G: seed[shift+1], B: seed[shift+2], A: 255}
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// titleIn renders a display heading using the locale's casing rules.
func titleIn(locale, s string) string {
	return cases.Title(language.Make(locale)).String(s)
}

const (
	sampleRate  = 8000
	previewSecs = 2
)

// renderPodcast produces a short PCM tone preview; the reported duration is
// the nominal episode length the script targets, not the preview length.
func renderPodcast(seed [32]byte, p genparams.Params) *providers.Result {
	samples := sampleRate * previewSecs
	pcm := make([]int16, samples)
	freqs := [3]float64{
		220 + float64(seed[1])*2,
		220 + float64(seed[2])*2,
		220 + float64(seed[3])*2,
	}
	per := samples / len(freqs)
	for i := range pcm {
		f := freqs[min(i/per, len(freqs)-1)]
		pcm[i] = int16(7000 * math.Sin(2*math.Pi*f*float64(i)/sampleRate))
	}
	return &providers.Result{
		Data:         encodeWAV(pcm),
		MimeType:     "audio/wav",
		Duration:     float64(p.TargetMinutes * 60),
		QualityScore: qualityFrom(seed),
	}
}

// encodeWAV wraps 16-bit mono PCM in a RIFF container.
func encodeWAV(pcm []int16) []byte {
	dataLen := len(pcm) * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, pcm)
	return buf.Bytes()
}

// renderVideoIntro produces an MP4 stub: a valid ftyp box followed by the
// storyboard text where rendered frames would go.
func renderVideoIntro(seed [32]byte, p genparams.Params) *providers.Result {
	storyboard := strings.Join([]string{
		titleIn(p.Locale, "professional introduction"),
		"template: " + p.Template,
		"resolution: " + p.Resolution,
		"build: " + hexSeed(seed),
	}, "\n")

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(20))
	buf.WriteString("ftypisom")
	binary.Write(&buf, binary.BigEndian, uint32(0x200))
	buf.WriteString("isom")
	binary.Write(&buf, binary.BigEndian, uint32(8+len(storyboard)))
	buf.WriteString("mdat")
	buf.WriteString(storyboard)

	return &providers.Result{
		Data:         buf.Bytes(),
		MimeType:     "video/mp4",
		Duration:     float64(p.TargetSeconds),
		QualityScore: qualityFrom(seed),
	}
}

var paperSizes = map[string][2]int{
	"a4":     {595, 842},
	"letter": {612, 792},
}

func renderPortfolio(seed [32]byte, req providers.Request) *providers.Result {
	p := req.Params
	size, ok := paperSizes[p.PaperSize]
	if !ok {
		size = paperSizes[genparams.DefaultPaperSize]
	}
	accent := p.AccentColor
	if accent == "" {
		accent = fmt.Sprintf("#%02x%02x%02x", seed[4], seed[5], seed[6])
	}
	lines := []string{
		titleIn(p.Locale, "professional portfolio"),
		"Template: " + p.Template,
		"Accent: " + accent,
		"Job: " + req.JobID,
		"Build: " + hexSeed(seed),
	}
	return &providers.Result{
		Data:         encodePDF(size[0], size[1], lines),
		MimeType:     "application/pdf",
		QualityScore: qualityFrom(seed),
	}
}

// encodePDF emits a single-page document with one text line per entry. The
// cross-reference table carries real byte offsets so standard viewers accept
// the file.
func encodePDF(width, height int, lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT /F1 14 Tf")
	y := height - 72
	for _, line := range lines {
		fmt.Fprintf(&content, " 1 0 0 1 72 %d Tm (%s) Tj", y, pdfEscape(line))
		y -= 24
	}
	content.WriteString(" ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>", width, height),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func pdfEscape(s string) string {
	return strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)").Replace(s)
}

const (
	qrModules = 33
	qrQuiet   = 4
)

// renderQRCode rasterizes a deterministic module matrix for the target URL.
// The pattern is stable per URL and carries QR-style finder squares, but it
// is a placeholder, not a scannable symbol.
func renderQRCode(seed [32]byte, p genparams.Params) *providers.Result {
	bits := sha256.Sum256([]byte(p.TargetURL + "|" + p.ECLevel))

	grid := make([][]bool, qrModules)
	for y := range grid {
		grid[y] = make([]bool, qrModules)
		for x := range grid[y] {
			if fx, fy, in := finderCell(x, y); in {
				grid[y][x] = fx == 0 || fx == 6 || fy == 0 || fy == 6 ||
					(fx >= 2 && fx <= 4 && fy >= 2 && fy <= 4)
				continue
			}
			idx := y*qrModules + x
			grid[y][x] = bits[(idx/8)%len(bits)]>>(uint(idx)%8)&1 == 1
		}
	}

	side := p.SizePx
	if side <= 0 {
		side = genparams.DefaultQRSizePx
	}
	scale := side / (qrModules + 2*qrQuiet)
	if scale < 1 {
		scale = 1
	}
	offset := (side - scale*qrModules) / 2

	img := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	for y, row := range grid {
		for x, dark := range row {
			if !dark {
				continue
			}
			cell := image.Rect(offset+x*scale, offset+y*scale, offset+(x+1)*scale, offset+(y+1)*scale)
			draw.Draw(img, cell, &image.Uniform{color.Black}, image.Point{}, draw.Src)
		}
	}

	return &providers.Result{
		Data:         encodePNG(img),
		MimeType:     "image/png",
		QualityScore: qualityFrom(seed),
	}
}

// finderCell reports whether (x, y) falls in one of the three 7x7 finder
// squares and, if so, the coordinates within that square.
func finderCell(x, y int) (int, int, bool) {
	const edge = qrModules - 7
	switch {
	case x < 7 && y < 7:
		return x, y, true
	case x >= edge && y < 7:
		return x - edge, y, true
	case x < 7 && y >= edge:
		return x, y - edge, true
	}
	return 0, 0, false
}

var headshotDims = map[string][2]int{
	"1:1": {768, 768},
	"3:4": {768, 1024},
}

// renderHeadshot paints a gradient backdrop with a silhouette placeholder
// sized per the requested aspect ratio.
func renderHeadshot(seed [32]byte, p genparams.Params) *providers.Result {
	dims, ok := headshotDims[p.AspectRatio]
	if !ok {
		dims = headshotDims[genparams.DefaultHeadshotAspectRatio]
	}
	w, h := dims[0], dims[1]

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	top := colorAt(seed, 4)
	bottom := colorAt(seed, 9)
	for y := 0; y < h; y++ {
		row := lerpColor(top, bottom, float64(y)/float64(h-1))
		draw.Draw(img, image.Rect(0, y, w, y+1), &image.Uniform{row}, image.Point{}, draw.Src)
	}

	face := colorAt(seed, 14)
	cx, cy, r := w/2, h*2/5, w/5
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, face)
			}
		}
	}
	torso := image.Rect(cx-w*11/40, cy+r*4/5, cx+w*11/40, h)
	draw.Draw(img, torso, &image.Uniform{face}, image.Point{}, draw.Src)

	return &providers.Result{
		Data:         encodePNG(img),
		MimeType:     "image/png",
		QualityScore: qualityFrom(seed),
	}
}

func lerpColor(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

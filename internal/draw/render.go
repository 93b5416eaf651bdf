package draw

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Palette colours slices in pool order, cycling.
var Palette = []color.RGBA{
	{R: 0x42, G: 0x85, B: 0xF4, A: 0xFF}, // blue
	{R: 0x34, G: 0xA8, B: 0x53, A: 0xFF}, // green
	{R: 0xFB, G: 0xBC, B: 0x05, A: 0xFF}, // yellow
	{R: 0xEA, G: 0x43, B: 0x35, A: 0xFF}, // red
	{R: 0x9C, G: 0x27, B: 0xB0, A: 0xFF}, // purple
	{R: 0x00, G: 0xBC, B: 0xD4, A: 0xFF}, // cyan
}

var (
	white       = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	hubRing     = Palette[0]
	pointerFill = Palette[3]
)

const (
	maxLabelRunes = 20
	keptRunes     = 17
)

// CommandKind names a drawing primitive.
type CommandKind string

const (
	CommandSlice   CommandKind = "slice"
	CommandLabel   CommandKind = "label"
	CommandHub     CommandKind = "hub"
	CommandPointer CommandKind = "pointer"
)

// Command is one resolution-independent drawing step. Angles are screen degrees after rotation.
type Command struct {
	Kind       CommandKind `json:"kind"`
	StartAngle float64     `json:"start_angle,omitempty"`
	EndAngle   float64     `json:"end_angle,omitempty"`
	Color      color.RGBA  `json:"color"`
	Text       string      `json:"text,omitempty"`
}

// Layout describes the wheel for entries rotated clockwise by rotation degrees. It draws
// nothing and has no side effects.
func Layout(entries []Entry, rotation float64) []Command {
	n := max(len(entries), 1)
	w := SliceDegrees(n)

	cmds := make([]Command, 0, 2*len(entries)+2)
	for i := range entries {
		start := float64(i)*w + rotation
		cmds = append(cmds, Command{
			Kind:       CommandSlice,
			StartAngle: start,
			EndAngle:   start + w,
			Color:      Palette[i%len(Palette)],
		})
	}
	for i, e := range entries {
		mid := float64(i)*w + w/2 + rotation
		cmds = append(cmds, Command{
			Kind:       CommandLabel,
			StartAngle: mid,
			EndAngle:   mid,
			Color:      white,
			Text:       TruncateLabel(e.DisplayName),
		})
	}

	cmds = append(cmds,
		Command{Kind: CommandHub, Color: hubRing},
		Command{Kind: CommandPointer, Color: pointerFill},
	)
	return cmds
}

// TruncateLabel shortens names longer than 20 characters to 17 plus an ellipsis.
func TruncateLabel(name string) string {
	runes := []rune(name)
	if len(runes) <= maxLabelRunes {
		return name
	}
	return string(runes[:keptRunes]) + "..."
}

// Rasterize paints cmds on a size x size canvas.
func Rasterize(cmds []Command, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	g := newGeometry(size)

	for _, c := range cmds {
		switch c.Kind {
		case CommandSlice:
			g.fillSlice(dst, c.StartAngle, c.EndAngle, c.Color)
		case CommandLabel:
			g.drawLabel(dst, c.StartAngle, c.Text, c.Color)
		case CommandHub:
			g.fillCircle(dst, g.hub, white)
			g.strokeCircle(dst, g.hub, g.ringWidth, c.Color)
		case CommandPointer:
			g.fillPointer(dst, c.Color)
		}
	}
	return dst
}

// RenderPNG lays out and rasterizes the wheel, then writes it as PNG.
func RenderPNG(w io.Writer, entries []Entry, rotation float64, size int) error {
	return png.Encode(w, Rasterize(Layout(entries, rotation), size))
}

// EncodePNG returns the wheel as PNG bytes.
func EncodePNG(entries []Entry, rotation float64, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, entries, rotation, size); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// geometry holds pixel measurements for one canvas size, scaled from a 500px design.
type geometry struct {
	size       int
	cx, cy     float64
	radius     float64
	hub        float64
	ringWidth  float64
	labelInset float64
	scale      float64
}

func newGeometry(size int) geometry {
	c := float64(size) / 2
	scale := float64(size) / 500
	return geometry{
		size:       size,
		cx:         c,
		cy:         c,
		radius:     c - 10*scale,
		hub:        40 * scale,
		ringWidth:  5 * scale,
		labelInset: 20 * scale,
		scale:      scale,
	}
}

// point converts a screen angle and distance from the centre to pixel coordinates.
func (g geometry) point(angle, dist float64) (float32, float32) {
	rad := angle * math.Pi / 180
	return float32(g.cx + dist*math.Sin(rad)), float32(g.cy - dist*math.Cos(rad))
}

func (g geometry) rasterizer() *vector.Rasterizer {
	z := vector.NewRasterizer(g.size, g.size)
	z.DrawOp = xdraw.Over
	return z
}

func (g geometry) fillSlice(dst *image.RGBA, start, end float64, c color.RGBA) {
	z := g.rasterizer()
	z.MoveTo(float32(g.cx), float32(g.cy))
	steps := max(int(math.Ceil(end-start)), 2)
	for s := 0; s <= steps; s++ {
		x, y := g.point(start+(end-start)*float64(s)/float64(steps), g.radius)
		z.LineTo(x, y)
	}
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})

	// white separator along the leading edge
	g.strokeLine(dst, start, 2*g.scale, white)
}

func (g geometry) strokeLine(dst *image.RGBA, angle, width float64, c color.RGBA) {
	half := width / 2
	ox, oy := g.point(angle+90, half)
	dx, dy := float32(float64(ox)-g.cx), float32(float64(oy)-g.cy)
	ex, ey := g.point(angle, g.radius)

	z := g.rasterizer()
	z.MoveTo(float32(g.cx)+dx, float32(g.cy)+dy)
	z.LineTo(ex+dx, ey+dy)
	z.LineTo(ex-dx, ey-dy)
	z.LineTo(float32(g.cx)-dx, float32(g.cy)-dy)
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func (g geometry) circlePath(z *vector.Rasterizer, r float64, reverse bool) {
	const steps = 96
	for s := 0; s <= steps; s++ {
		a := 360 * float64(s) / steps
		if reverse {
			a = -a
		}
		x, y := g.point(a, r)
		if s == 0 {
			z.MoveTo(x, y)
			continue
		}
		z.LineTo(x, y)
	}
	z.ClosePath()
}

func (g geometry) fillCircle(dst *image.RGBA, r float64, c color.RGBA) {
	z := g.rasterizer()
	g.circlePath(z, r, false)
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func (g geometry) strokeCircle(dst *image.RGBA, r, width float64, c color.RGBA) {
	z := g.rasterizer()
	// the rasterizer uses the non-zero rule, so an opposite-wound inner circle leaves a ring
	g.circlePath(z, r+width/2, false)
	g.circlePath(z, r-width/2, true)
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func (g geometry) fillPointer(dst *image.RGBA, c color.RGBA) {
	apexY := float32(30 * g.scale)
	baseY := float32(-10 * g.scale)
	halfBase := float32(20 * g.scale)
	cx := float32(g.cx)

	z := g.rasterizer()
	z.MoveTo(cx, apexY)
	z.LineTo(cx-halfBase, baseY)
	z.LineTo(cx+halfBase, baseY)
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// drawLabel writes text along the radius at angle, right-aligned just inside the rim.
func (g geometry) drawLabel(dst *image.RGBA, angle float64, text string, c color.RGBA) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	width := font.MeasureString(face, text).Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	label := image.NewRGBA(image.Rect(0, 0, width, height))
	d := font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	d.DrawString(text)

	labelScale := max(g.scale*16/13, 0.5)
	rad := angle * math.Pi / 180
	// along the radius, and perpendicular to it
	ax, ay := math.Sin(rad)*labelScale, -math.Cos(rad)*labelScale
	px, py := math.Cos(rad)*labelScale, math.Sin(rad)*labelScale

	offset := g.radius - g.labelInset - float64(width)*labelScale
	half := float64(height) / 2
	m := f64.Aff3{
		ax, px, g.cx + ax*offset/labelScale - px*half,
		ay, py, g.cy + ay*offset/labelScale - py*half,
	}
	xdraw.BiLinear.Transform(dst, m, label, label.Bounds(), xdraw.Over, nil)
}

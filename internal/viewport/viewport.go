// Package viewport holds the horizontal zoom/pan state of a history chart.
// All positions are fractions of the full series, 0 at the oldest point.
package viewport

import (
	"math"
	"strconv"
	"strings"
)

const (
	MinScale = 1.0
	MaxScale = 20.0
)

// Viewport shows the window [Offset, Offset+1/Scale) of the series.
type Viewport struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Full is the unzoomed view.
func Full() Viewport { return Viewport{Scale: 1} }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ViewFrac is the visible fraction of the series.
func (v Viewport) ViewFrac() float64 { return 1 / clamp(v.Scale, MinScale, MaxScale) }

// Normalize clamps scale and offset into range.
func (v Viewport) Normalize() Viewport {
	s := v.Scale
	if math.IsNaN(s) {
		s = MinScale
	}
	s = clamp(s, MinScale, MaxScale)
	off := v.Offset
	if math.IsNaN(off) {
		off = 0
	}
	return Viewport{Scale: s, Offset: clamp(off, 0, 1-1/s)}
}

// ZoomAt returns the viewport of the given scale centred on center.
func ZoomAt(center, scale float64) Viewport {
	if math.IsNaN(scale) {
		scale = MinScale
	}
	scale = clamp(scale, MinScale, MaxScale)
	vf := 1 / scale
	return Viewport{Scale: scale, Offset: clamp(center-vf/2, 0, 1-vf)}
}

// Zoom multiplies the scale by factor keeping the current centre in place.
func (v Viewport) Zoom(factor float64) Viewport {
	v = v.Normalize()
	center := v.Offset + v.ViewFrac()/2
	return ZoomAt(center, v.Scale*factor)
}

// Pan moves the window by a drag of dx pixels on a chart width pixels wide.
// Dragging right (dx > 0) shows older points.
func (v Viewport) Pan(dx, width float64) Viewport {
	v = v.Normalize()
	if width <= 0 {
		return v
	}
	vf := v.ViewFrac()
	v.Offset = clamp(v.Offset-(dx/width)*vf, 0, 1-vf)
	return v
}

// Visible returns the index range [first, last] shown for n points.
func (v Viewport) Visible(n int) (first, last int) {
	if n <= 0 {
		return 0, -1
	}
	v = v.Normalize()
	span := float64(n - 1)
	first = int(math.Floor(v.Offset * span))
	last = int(math.Ceil((v.Offset + v.ViewFrac()) * span))
	if last > n-1 {
		last = n - 1
	}
	return first, last
}

// HoverIndex maps a pointer x on a chart width pixels wide to a point index.
func (v Viewport) HoverIndex(x, width float64, n int) int {
	if n <= 0 || width <= 0 {
		return 0
	}
	v = v.Normalize()
	frac := v.Offset + (x/width)*v.ViewFrac()
	idx := int(math.Round(frac * float64(n-1)))
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// Path renders the visible part of values as an SVG path. Nil entries are
// skipped. The y axis spans min..max of all valid values, larger values drawn
// higher. Fewer than two valid values give "".
func (v Viewport) Path(values []*float64, width, height float64) string {
	lo, hi, valid := bounds(values)
	if valid < 2 {
		return ""
	}
	span := math.Max(1e-6, hi-lo)
	first, last := v.Visible(len(values))
	count := last - first + 1
	if count < 2 {
		count = 2
	}
	stepX := width / float64(count-1)

	var b strings.Builder
	for vi := 0; vi < count; vi++ {
		i := first + vi
		if i >= len(values) || !usable(values[i]) {
			continue
		}
		x := float64(vi) * stepX
		y := height - (*values[i]-lo)/span*height
		if b.Len() == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(num(x))
		b.WriteByte(' ')
		b.WriteString(num(y))
	}
	return b.String()
}

func usable(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

func bounds(values []*float64) (lo, hi float64, n int) {
	for _, p := range values {
		if !usable(p) {
			continue
		}
		if n == 0 || *p < lo {
			lo = *p
		}
		if n == 0 || *p > hi {
			hi = *p
		}
		n++
	}
	return lo, hi, n
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

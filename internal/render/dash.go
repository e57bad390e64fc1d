package render

import "math"

// MaxDashes bounds the segments produced for one line. Longer lines are
// drawn solid.
const MaxDashes = 4096

// Segment is one visible stretch of a dashed line.
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Rect is an axis-aligned clip rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// ClipLine clips the line (x1,y1)-(x2,y2) to r using Liang-Barsky. t0 and
// t1 are the parameters of the kept part along the original line.
func ClipLine(x1, y1, x2, y2 float64, r Rect) (t0, t1 float64, ok bool) {
	dx, dy := x2-x1, y2-y1
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{x1 - r.MinX, r.MaxX - x1, y1 - r.MinY, r.MaxY - y1}

	t0, t1 = 0, 1
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return 0, 0, false
			}
			continue
		}
		v := q[i] / p[i]
		if p[i] < 0 {
			if v > t1 {
				return 0, 0, false
			}
			t0 = math.Max(t0, v)
		} else {
			if v < t0 {
				return 0, 0, false
			}
			t1 = math.Min(t1, v)
		}
	}
	return t0, t1, t0 <= t1
}

// DashSegments splits the line (x1,y1)-(x2,y2) into the visible stretches
// of an on/off dash pattern. An empty or all-zero pattern yields the whole
// line.
func DashSegments(x1, y1, x2, y2 float64, dash []float64) []Segment {
	return dashRange(x1, y1, x2, y2, dash, 0, 1)
}

// DashSegmentsIn is DashSegments restricted to the part of the line inside
// r. The pattern keeps the phase it has on the full line.
func DashSegmentsIn(x1, y1, x2, y2 float64, dash []float64, r Rect) []Segment {
	t0, t1, ok := ClipLine(x1, y1, x2, y2, r)
	if !ok {
		return nil
	}
	return dashRange(x1, y1, x2, y2, dash, t0, t1)
}

func dashRange(x1, y1, x2, y2 float64, dash []float64, t0, t1 float64) []Segment {
	length := math.Hypot(x2-x1, y2-y1)
	total := 0.0
	for _, d := range dash {
		total += d
	}
	at := func(pos float64) (float64, float64) {
		return x1 + (x2-x1)*pos/length, y1 + (y2-y1)*pos/length
	}
	solid := func() []Segment {
		return []Segment{{
			X1: x1 + (x2-x1)*t0, Y1: y1 + (y2-y1)*t0,
			X2: x1 + (x2-x1)*t1, Y2: y1 + (y2-y1)*t1,
		}}
	}
	if len(dash) == 0 || total <= 0 || length == 0 {
		return solid()
	}

	start, end := t0*length, t1*length
	cycles := math.Floor(start / total)
	if (end-start)/total*float64(len(dash)) > 2*MaxDashes || cycles > 1<<40 {
		return solid()
	}

	var segs []Segment
	pos, i := cycles*total, int(cycles)*len(dash)
	for pos < end {
		next := pos + dash[i%len(dash)]
		if i%2 == 0 {
			s, e := math.Max(pos, start), math.Min(next, end)
			if e > s {
				sx, sy := at(s)
				ex, ey := at(e)
				segs = append(segs, Segment{X1: sx, Y1: sy, X2: ex, Y2: ey})
			}
		}
		pos = next
		i++
	}
	return segs
}

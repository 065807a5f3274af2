package query

import (
	"fmt"
	"strings"
)

// FrameUnit names ROWS or RANGE framing for a window spec.
type FrameUnit int

const (
	FrameNone FrameUnit = iota
	FrameRows
	FrameRange
)

// FrameBoundKind names one endpoint of a window frame.
type FrameBoundKind int

const (
	UnboundedPreceding FrameBoundKind = iota
	Preceding
	CurrentRow
	Following
	UnboundedFollowing
)

// FrameBound is one endpoint of a ROWS/RANGE BETWEEN clause.
type FrameBound struct {
	Kind   FrameBoundKind
	Offset int // meaningful only for Preceding/Following
}

func (b FrameBound) render() string {
	switch b.Kind {
	case UnboundedPreceding:
		return "UNBOUNDED PRECEDING"
	case Preceding:
		return fmt.Sprintf("%d PRECEDING", b.Offset)
	case CurrentRow:
		return "CURRENT ROW"
	case Following:
		return fmt.Sprintf("%d FOLLOWING", b.Offset)
	case UnboundedFollowing:
		return "UNBOUNDED FOLLOWING"
	default:
		return "CURRENT ROW"
	}
}

// WindowSpec is the PARTITION BY / ORDER BY / frame clause attached to
// a window function call via Expr.AsWindow.
type WindowSpec struct {
	Partition []Expr
	Order     []OrderBy
	Unit      FrameUnit
	Start     FrameBound
	End       FrameBound
	hasFrame  bool
}

// WindowBuilder accumulates a WindowSpec fluently.
type WindowBuilder struct {
	spec WindowSpec
}

func NewWindow() *WindowBuilder { return &WindowBuilder{} }

func (w *WindowBuilder) PartitionBy(exprs ...Expr) *WindowBuilder {
	w.spec.Partition = append(w.spec.Partition, exprs...)
	return w
}

func (w *WindowBuilder) OrderBy(o ...OrderBy) *WindowBuilder {
	w.spec.Order = append(w.spec.Order, o...)
	return w
}

// Frame sets a ROWS/RANGE BETWEEN start AND end clause.
func (w *WindowBuilder) Frame(unit FrameUnit, start, end FrameBound) *WindowBuilder {
	w.spec.Unit = unit
	w.spec.Start = start
	w.spec.End = end
	w.spec.hasFrame = true
	return w
}

func (w *WindowBuilder) Build() WindowSpec { return w.spec }

func (w WindowSpec) render(c *renderCtx) (string, error) {
	var parts []string
	if len(w.Partition) > 0 {
		rendered := make([]string, len(w.Partition))
		for i, e := range w.Partition {
			r, err := e.render(c)
			if err != nil {
				return "", err
			}
			rendered[i] = r
		}
		parts = append(parts, "PARTITION BY "+strings.Join(rendered, ", "))
	}
	if len(w.Order) > 0 {
		orderSQL, err := renderOrderBy(w.Order, c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "ORDER BY "+orderSQL)
	}
	if w.hasFrame {
		unit := "ROWS"
		if w.Unit == FrameRange {
			unit = "RANGE"
		}
		parts = append(parts, fmt.Sprintf("%s BETWEEN %s AND %s", unit, w.Start.render(), w.End.render()))
	}
	return strings.Join(parts, " "), nil
}

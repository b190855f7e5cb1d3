package tui

import (
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hover"
	"github.com/teslashibe/go-gazepanel/pkg/panel"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// Layout metrics in cells.
const (
	cardWidth  = 26
	cardHeight = 5
	cardGapX   = 2
	cardGapY   = 1
	cardsTop   = 4
	promptRows = 5
)

// cellRect is an inclusive rectangle of terminal cells.
type cellRect struct {
	x0, y0, x1, y1 int
}

func (r cellRect) contains(x, y int) bool {
	return x >= r.x0 && x <= r.x1 && y >= r.y0 && y <= r.y1
}

func (r cellRect) width() int { return r.x1 - r.x0 + 1 }

// element is one interactive region on screen.
type element struct {
	id     string
	kind   hover.RegionKind
	rect   cellRect
	label  string
	device *protocol.Device
}

type layout struct {
	elements []element
	prompt   cellRect
	preview  cellRect
	overflow int // devices that did not fit
}

// grid converts between viewport pixels and terminal cells.
type grid struct {
	cols, rows int
	viewport   geom.Size
}

func (g grid) valid() bool {
	return g.cols > 0 && g.rows > 0 && g.viewport.W > 0 && g.viewport.H > 0
}

func (g grid) cellW() float64 { return g.viewport.W / float64(g.cols) }
func (g grid) cellH() float64 { return g.viewport.H / float64(g.rows) }

// toCell maps a viewport point to the cell containing it.
func (g grid) toCell(p geom.Point) (int, int) {
	return int(p.X / g.cellW()), int(p.Y / g.cellH())
}

// toPixels maps a cell rect to the viewport rect it covers.
func (g grid) toPixels(r cellRect) geom.Rect {
	cw, ch := g.cellW(), g.cellH()
	return geom.Rect{
		Left:   float64(r.x0) * cw,
		Top:    float64(r.y0) * ch,
		Right:  float64(r.x1+1) * cw,
		Bottom: float64(r.y1+1) * ch,
	}
}

func button(name, label string, x, y int) element {
	return element{
		id:    hover.ButtonRegionID(name),
		kind:  hover.KindButton,
		rect:  cellRect{x0: x, y0: y, x1: x + len([]rune(label)) - 1, y1: y},
		label: label,
	}
}

// computeLayout places the elements in document order: header buttons,
// device cards, then prompt buttons. While calibrating only the abort
// button and the preview are laid out.
func computeLayout(cols, rows int, devices []protocol.Device, prompt, calibrating bool) layout {
	var l layout
	if cols <= 0 || rows <= 0 {
		return l
	}

	if calibrating {
		l.elements = append(l.elements, button(panel.ButtonAbort, "[ Abort ]", 1, 2))
		w, h := cols/2, rows/2
		if w < 8 {
			w = 8
		}
		if h < 4 {
			h = 4
		}
		x0, y0 := (cols-w)/2, (rows-h)/2
		l.preview = cellRect{x0: x0, y0: y0, x1: x0 + w - 1, y1: y0 + h - 1}
		return l
	}

	l.elements = append(l.elements,
		button(panel.ButtonCalibrate, "[ Calibrate ]", 1, 2),
		button(panel.ButtonRefresh, "[ Refresh ]", 16, 2),
	)

	bottom := rows - 1
	if prompt {
		l.prompt = cellRect{x0: 1, y0: rows - promptRows, x1: cols - 2, y1: rows - 1}
		bottom = l.prompt.y0 - 1
	}

	perRow := (cols - 1) / (cardWidth + cardGapX)
	if perRow < 1 {
		perRow = 1
	}
	for i := range devices {
		col, row := i%perRow, i/perRow
		x := 1 + col*(cardWidth+cardGapX)
		y := cardsTop + row*(cardHeight+cardGapY)
		r := cellRect{x0: x, y0: y, x1: x + cardWidth - 1, y1: y + cardHeight - 1}
		if r.y1 > bottom {
			l.overflow = len(devices) - i
			break
		}
		d := devices[i]
		l.elements = append(l.elements, element{
			id:     hover.DeviceRegionID(d.DeviceID),
			kind:   hover.KindDeviceCard,
			rect:   r,
			label:  d.Label(),
			device: &d,
		})
	}

	if prompt {
		y := l.prompt.y0 + 3
		l.elements = append(l.elements,
			button(panel.ButtonYes, "[ Yes ]", l.prompt.x0+2, y),
			button(panel.ButtonNo, "[ No ]", l.prompt.x0+11, y),
		)
	}
	return l
}

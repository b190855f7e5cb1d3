package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styleID int

const (
	stPlain styleID = iota
	stDim
	stTitle
	stBorder
	stHoverLight
	stHoverStrong
	stHighlight
	stOn
	stOff
	stButton
	stPointer
	stPointerFlash
	stAuxPointer
	stTarget
	stDwell
	stOK
	stWarn
	stPrompt
)

var palette = [...]lipgloss.Style{
	stPlain:        lipgloss.NewStyle(),
	stDim:          lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	stTitle:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	stBorder:       lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	stHoverLight:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	stHoverStrong:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
	stHighlight:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")),
	stOn:           lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	stOff:          lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	stButton:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	stPointer:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	stPointerFlash: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("226")),
	stAuxPointer:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	stTarget:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
	stDwell:        lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	stOK:           lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	stWarn:         lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	stPrompt:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")),
}

type cell struct {
	r rune
	s styleID
}

// canvas is a fixed grid of styled cells. Writes outside the grid are
// dropped.
type canvas struct {
	w, h  int
	cells []cell
}

func newCanvas(w, h int) *canvas {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c := &canvas{w: w, h: h, cells: make([]cell, w*h)}
	for i := range c.cells {
		c.cells[i] = cell{r: ' '}
	}
	return c
}

func (c *canvas) in(x, y int) bool { return x >= 0 && y >= 0 && x < c.w && y < c.h }

func (c *canvas) at(x, y int) cell {
	if !c.in(x, y) {
		return cell{}
	}
	return c.cells[y*c.w+x]
}

func (c *canvas) set(x, y int, r rune, s styleID) {
	if c.in(x, y) {
		c.cells[y*c.w+x] = cell{r: r, s: s}
	}
}

// restyle changes the style of a cell and keeps its rune.
func (c *canvas) restyle(x, y int, s styleID) {
	if c.in(x, y) {
		c.cells[y*c.w+x].s = s
	}
}

// text writes s starting at x and returns the column after the last rune.
func (c *canvas) text(x, y int, s string, st styleID) int {
	for _, r := range s {
		c.set(x, y, r, st)
		x++
	}
	return x
}

// clipped writes s truncated to width columns.
func (c *canvas) clipped(x, y, width int, s string, st styleID) {
	if width <= 0 {
		return
	}
	rs := []rune(s)
	if len(rs) > width {
		if width == 1 {
			rs = rs[:1]
		} else {
			rs = append(rs[:width-1], '…')
		}
	}
	c.text(x, y, string(rs), st)
}

func (c *canvas) box(r cellRect, st styleID) {
	if r.x1 <= r.x0 || r.y1 <= r.y0 {
		return
	}
	for x := r.x0 + 1; x < r.x1; x++ {
		c.set(x, r.y0, '─', st)
		c.set(x, r.y1, '─', st)
	}
	for y := r.y0 + 1; y < r.y1; y++ {
		c.set(r.x0, y, '│', st)
		c.set(r.x1, y, '│', st)
	}
	c.set(r.x0, r.y0, '┌', st)
	c.set(r.x1, r.y0, '┐', st)
	c.set(r.x0, r.y1, '└', st)
	c.set(r.x1, r.y1, '┘', st)
}

func (c *canvas) restyleRect(r cellRect, st styleID) {
	for y := r.y0; y <= r.y1; y++ {
		for x := r.x0; x <= r.x1; x++ {
			c.restyle(x, y, st)
		}
	}
}

// String renders the grid, one styled run per span of equal style.
func (c *canvas) String() string {
	var b strings.Builder
	run := make([]rune, 0, c.w)
	for y := 0; y < c.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		cur := stPlain
		run = run[:0]
		for x := 0; x < c.w; x++ {
			cl := c.cells[y*c.w+x]
			if cl.s != cur && len(run) > 0 {
				b.WriteString(palette[cur].Render(string(run)))
				run = run[:0]
			}
			cur = cl.s
			run = append(run, cl.r)
		}
		if len(run) > 0 {
			b.WriteString(palette[cur].Render(string(run)))
		}
	}
	return b.String()
}

// plain renders the grid without styling.
func (c *canvas) plain() string {
	var b strings.Builder
	for y := 0; y < c.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < c.w; x++ {
			b.WriteRune(c.cells[y*c.w+x].r)
		}
	}
	return b.String()
}

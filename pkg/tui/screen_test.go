package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/calibration"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hover"
	"github.com/teslashibe/go-gazepanel/pkg/panel"
	"github.com/teslashibe/go-gazepanel/pkg/pointer"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
	"github.com/teslashibe/go-gazepanel/pkg/snapshot"
)

// newTestScreen returns an 80x30 screen over an 800x300 viewport, so one
// cell is 10x10 pixels.
func newTestScreen(now *time.Time) *Screen {
	s := NewScreen(geom.Size{W: 800, H: 300})
	if now != nil {
		s.now = func() time.Time { return *now }
	}
	s.Resize(80, 30)
	return s
}

var testDevices = []protocol.Device{
	{DeviceID: "lamp", Name: "Lamp", DeviceType: "light", CurrentState: protocol.DeviceState{IsOn: true}},
	{DeviceID: "ac", DisplayName: "Air conditioner", DeviceType: "climate"},
}

func TestRegionsBeforeResize(t *testing.T) {
	s := NewScreen(geom.Size{W: 800, H: 300})
	if r := s.Regions(); r != nil {
		t.Errorf("Regions() = %v, want nil", r)
	}
	if err := s.ShowPointer(geom.Point{X: 1, Y: 1}); !errors.Is(err, pointer.ErrSurfaceDetached) {
		t.Errorf("ShowPointer() error = %v, want ErrSurfaceDetached", err)
	}
	if s.Render() != "" {
		t.Error("Render() before resize should be empty")
	}
}

func TestRegionsDocumentOrder(t *testing.T) {
	s := newTestScreen(nil)
	s.RenderDevices(testDevices)
	s.ShowPrompt(snapshot.Prompt{ID: "r1", Text: "Turn off the lamp?"})

	regions := s.Regions()
	wantIDs := []string{
		hover.ButtonRegionID(panel.ButtonCalibrate),
		hover.ButtonRegionID(panel.ButtonRefresh),
		hover.DeviceRegionID("lamp"),
		hover.DeviceRegionID("ac"),
		hover.ButtonRegionID(panel.ButtonYes),
		hover.ButtonRegionID(panel.ButtonNo),
	}
	if len(regions) != len(wantIDs) {
		t.Fatalf("Regions() = %d, want %d: %+v", len(regions), len(wantIDs), regions)
	}
	for i, id := range wantIDs {
		if regions[i].ID != id {
			t.Errorf("region %d = %q, want %q", i, regions[i].ID, id)
		}
	}

	calibrate := regions[0].Bounds
	if want := (geom.Rect{Left: 10, Top: 20, Right: 140, Bottom: 30}); calibrate != want {
		t.Errorf("calibrate bounds = %+v, want %+v", calibrate, want)
	}
	lamp := regions[2]
	if lamp.Kind != hover.KindDeviceCard {
		t.Errorf("lamp kind = %v", lamp.Kind)
	}
	if want := (geom.Rect{Left: 10, Top: 40, Right: 270, Bottom: 90}); lamp.Bounds != want {
		t.Errorf("lamp bounds = %+v, want %+v", lamp.Bounds, want)
	}
}

func TestCalibrationLayout(t *testing.T) {
	s := newTestScreen(nil)
	s.RenderDevices(testDevices)
	preview := s.Preview()

	if _, err := preview.Bounds(); !errors.Is(err, pointer.ErrSurfaceDetached) {
		t.Fatalf("Bounds() before calibration error = %v", err)
	}

	s.ShowCalibration()
	regions := s.Regions()
	if len(regions) != 1 || regions[0].ID != hover.ButtonRegionID(panel.ButtonAbort) {
		t.Fatalf("Regions() while calibrating = %+v", regions)
	}
	b, err := preview.Bounds()
	if err != nil {
		t.Fatal(err)
	}
	if want := (geom.Rect{Left: 200, Top: 70, Right: 600, Bottom: 220}); b != want {
		t.Errorf("Bounds() = %+v, want %+v", b, want)
	}

	if _, ok := s.CalibrationView(); ok {
		t.Error("CalibrationView() before progress should be empty")
	}
	s.RenderProgress(calibration.View{Target: geom.Point{X: 80, Y: 30}, TotalTargets: 5, Percent: 40, Guidance: "Keep looking"})
	if v, ok := s.CalibrationView(); !ok || v.Percent != 40 {
		t.Errorf("CalibrationView() = %+v, %v", v, ok)
	}

	if err := preview.DrawPointer(geom.Point{X: 100, Y: 50}, pointer.AuxGlyphScale); err != nil {
		t.Fatal(err)
	}
	c := s.draw()
	if got := c.at(30, 12); got.r != '•' || got.s != stAuxPointer {
		t.Errorf("aux pointer cell = %q/%v", got.r, got.s)
	}
	if got := c.at(8, 3); got.r != '◎' {
		t.Errorf("target cell = %q", got.r)
	}
	if !strings.Contains(c.plain(), "Target 1 / 5") {
		t.Error("title missing from calibration view")
	}

	s.HideCalibration()
	if _, err := preview.Bounds(); !errors.Is(err, pointer.ErrSurfaceDetached) {
		t.Errorf("Bounds() after hide error = %v", err)
	}
	if err := preview.DrawPointer(geom.Point{}, 1); !errors.Is(err, pointer.ErrSurfaceDetached) {
		t.Errorf("DrawPointer() after hide error = %v", err)
	}
}

func TestAuxPointerOnPreviewFarEdge(t *testing.T) {
	s := newTestScreen(nil)
	s.RenderDevices(testDevices)
	s.ShowCalibration()
	preview := s.Preview()

	b, err := preview.Bounds()
	if err != nil {
		t.Fatal(err)
	}
	corner := geom.Point{X: b.Width(), Y: b.Height()}
	if err := preview.DrawPointer(corner, pointer.AuxGlyphScale); err != nil {
		t.Fatal(err)
	}
	c := s.draw()
	if got := c.at(59, 21); got.r != '•' || got.s != stAuxPointer {
		t.Errorf("far corner cell = %q/%v, want aux pointer", got.r, got.s)
	}
	if got := c.at(60, 22); got.r == '•' {
		t.Error("aux pointer drawn outside the preview")
	}
}

func TestPointerFlashAndHighlight(t *testing.T) {
	now := time.Unix(100, 0)
	s := newTestScreen(&now)
	s.RenderDevices(testDevices)

	if err := s.ShowPointer(geom.Point{X: 405, Y: 255}); err != nil {
		t.Fatal(err)
	}
	s.FlashPointer(200 * time.Millisecond)
	s.HighlightDevice("lamp", 500*time.Millisecond)

	c := s.draw()
	if got := c.at(40, 25); got.r != '●' || got.s != stPointerFlash {
		t.Errorf("pointer cell = %q/%v, want flashing pointer", got.r, got.s)
	}
	if got := c.at(1, 4); got.s != stHighlight {
		t.Errorf("lamp corner style = %v, want highlight", got.s)
	}

	now = now.Add(300 * time.Millisecond)
	c = s.draw()
	if got := c.at(40, 25); got.s != stPointer {
		t.Errorf("pointer style after flash = %v", got.s)
	}
	if got := c.at(1, 4); got.s != stHighlight {
		t.Errorf("lamp still highlighted at 300ms, got %v", got.s)
	}

	now = now.Add(300 * time.Millisecond)
	c = s.draw()
	if got := c.at(1, 4); got.s == stHighlight {
		t.Error("lamp highlight should expire after 500ms")
	}

	if err := s.HidePointer(); err != nil {
		t.Fatal(err)
	}
	if got := s.draw().at(40, 25); got.r == '●' {
		t.Error("pointer still drawn after hide")
	}
}

func TestHeaderIndicators(t *testing.T) {
	s := newTestScreen(nil)
	if !strings.Contains(s.draw().plain(), "disconnected") {
		t.Error("expected disconnected indicator")
	}
	s.SetConnected(true)
	s.SetCalibrated(true)
	s.SetUser("0f8fad5b-d9cb-469f-a165-70867728950e")
	s.Notify("Calibration complete")
	out := s.draw().plain()
	for _, want := range []string{"● connected", "calibrated", "user 0f8fad5b", "Calibration complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q", want)
		}
	}
}

func TestDwellGlyph(t *testing.T) {
	tests := []struct {
		progress float64
		want     rune
	}{
		{0, '◔'},
		{0.3, '◑'},
		{0.6, '◕'},
		{1, '●'},
	}
	for _, tt := range tests {
		if got := dwellGlyph(tt.progress); got != tt.want {
			t.Errorf("dwellGlyph(%v) = %q, want %q", tt.progress, got, tt.want)
		}
	}
}

// The engine drives the real screen: pointer first, then hover.
func TestEngineOnScreen(t *testing.T) {
	now := time.Unix(100, 0)
	s := newTestScreen(&now)
	s.RenderDevices(testDevices)

	r := pointer.NewRenderer(s, geom.Size{W: 800, H: 300}, pointer.WithLogger(log.Discard()))
	d := hover.NewDetector(s, s, hover.WithClock(func() time.Time { return now }), hover.WithLogger(log.Discard()))

	p := &geom.Point{X: 50, Y: 60}
	r.OnPointer(p)
	d.OnPointer(p)
	if got := s.draw().at(1, 4); got.s != stHoverLight {
		t.Errorf("card border style = %v, want light hover", got.s)
	}

	now = now.Add(hover.DefaultStrongAfter)
	d.OnPointer(p)
	if got := s.draw().at(1, 4); got.s != stHoverStrong {
		t.Errorf("card border style = %v, want strong hover", got.s)
	}

	r.OnPointer(nil)
	d.OnPointer(nil)
	c := s.draw()
	if got := c.at(1, 4); got.s != stBorder {
		t.Errorf("card border style after gaze lost = %v", got.s)
	}
}

type fakeControls struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeControls) add(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeControls) StartCalibration(ctx context.Context) error {
	f.add("calibrate")
	return f.err
}

func (f *fakeControls) AbortCalibration() bool {
	f.add("abort")
	return true
}

func (f *fakeControls) Respond(ctx context.Context, yes bool) error {
	if yes {
		f.add("yes")
	} else {
		f.add("no")
	}
	return f.err
}

func (f *fakeControls) RefreshDevices(ctx context.Context) error {
	f.add("refresh")
	return f.err
}

func (f *fakeControls) Activate(ctx context.Context) (bool, error) {
	f.add("activate")
	return true, f.err
}

func press(t *testing.T, m tea.Model, k tea.KeyMsg) (tea.Model, tea.Msg) {
	t.Helper()
	m, cmd := m.Update(k)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModelKeys(t *testing.T) {
	controls := &fakeControls{}
	var m tea.Model = NewModel(context.Background(), newTestScreen(nil), controls)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 32})

	keys := []tea.KeyMsg{
		runes("c"),
		{Type: tea.KeyEsc},
		runes("y"),
		runes("n"),
		runes("r"),
		{Type: tea.KeyEnter},
	}
	for _, k := range keys {
		var msg tea.Msg
		m, msg = press(t, m, k)
		if msg != nil {
			if _, ok := msg.(resultMsg); !ok {
				t.Errorf("key %v produced %T", k, msg)
			}
		}
	}

	want := []string{"calibrate", "abort", "yes", "no", "refresh", "activate"}
	if strings.Join(controls.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", controls.calls, want)
	}

	_, msg := press(t, m, runes("q"))
	if _, ok := msg.(tea.QuitMsg); !ok {
		t.Errorf("q produced %T, want tea.QuitMsg", msg)
	}
}

func TestModelStatus(t *testing.T) {
	controls := &fakeControls{err: errors.New("server unavailable")}
	var m tea.Model = NewModel(context.Background(), newTestScreen(nil), controls)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 32})

	m, msg := press(t, m, runes("r"))
	m, _ = m.Update(msg)
	if !strings.Contains(m.View(), "refresh failed: server unavailable") {
		t.Error("status line missing refresh failure")
	}

	m, _ = m.Update(resultMsg{action: "answer", err: snapshot.ErrNoPrompt})
	if !strings.Contains(m.View(), "nothing to answer") {
		t.Error("status line missing no-prompt notice")
	}
}

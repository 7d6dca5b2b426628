package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/device"
	"github.com/cjeanneret/ScanGo/internal/hw/sensor"
	"github.com/cjeanneret/ScanGo/internal/logic/capture"
	"github.com/cjeanneret/ScanGo/internal/logic/orientation"
	"github.com/cjeanneret/ScanGo/internal/overlay"
)

const (
	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 4 << 10
	// maxImageBytes caps highlight images posted to /corner.
	maxImageBytes = 8 << 20
	// maxImageSide caps each dimension of a highlight image, checked
	// before the pixels are decoded.
	maxImageSide = 4096
	// maxCornerSize caps the rendered corner handle side.
	maxCornerSize = 512
	// maxCanvasSide caps the overlay canvas and quad coordinates.
	maxCanvasSide = 4096
)

// Session is the part of a capture session the control surface drives.
type Session interface {
	ID() uuid.UUID
	HasDevice() bool
	IsEditing() bool
	SetEditing(v bool)
	IsAutoScanEnabled() bool
	SetAutoScanEnabled(v bool)
	ImageOrientation() orientation.Orientation
	RefreshImageOrientation()
	ToggleFlash() capture.FlashState
	SetFocusPoint(p device.Point) error
	ResetFocusToAuto() error
	RemoveFocusIndicator(view capture.FocusIndicator, animated bool)
	Metering() (device.Metering, bool)
}

// RotationSetter receives discrete rotation reports.
type RotationSetter interface {
	Set(r sensor.Rotation)
	Rotation() sensor.Rotation
}

// OverlayConfig holds the sizes used when rendering overlays.
type OverlayConfig struct {
	CornerSize            int     `json:"corner_size"`
	HighlightedCornerSize int     `json:"highlighted_corner_size"`
	LineWidth             float64 `json:"line_width"`
	FocusSize             int     `json:"focus_size"`
}

// FocusRequest is the body of POST /focus. X and Y are the normalized
// point of interest; TapX and TapY locate the indicator on screen.
type FocusRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	TapX int     `json:"tap_x"`
	TapY int     `json:"tap_y"`
}

// StateUpdate is the body of PATCH /state. Absent fields are unchanged.
type StateUpdate struct {
	Editing  *bool `json:"editing"`
	AutoScan *bool `json:"auto_scan"`
}

// StateResponse is returned by GET and PATCH /state.
type StateResponse struct {
	Session     string         `json:"session"`
	Device      bool           `json:"device"`
	Editing     bool           `json:"editing"`
	AutoScan    bool           `json:"auto_scan"`
	Orientation string         `json:"orientation"`
	Rotation    string         `json:"rotation,omitempty"`
	Focusing    bool           `json:"focusing"`
	Focus       *MeteringState `json:"focus,omitempty"`
	Exposure    *MeteringState `json:"exposure,omitempty"`
}

// MeteringState is a device focus or exposure setting.
type MeteringState struct {
	Point device.Point `json:"point"`
	Mode  string       `json:"mode"`
}

// Vertex is a quad corner in overlay pixels.
type Vertex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// QuadRequest is the body of PUT /quad.
type QuadRequest struct {
	TopLeft     Vertex `json:"top_left"`
	TopRight    Vertex `json:"top_right"`
	BottomRight Vertex `json:"bottom_right"`
	BottomLeft  Vertex `json:"bottom_left"`
}

func (q QuadRequest) quadrilateral() (overlay.Quadrilateral, error) {
	vs := [4]Vertex{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
	var pts [4]image.Point
	for i, v := range vs {
		if v.X < 0 || v.Y < 0 || v.X > maxCanvasSide || v.Y > maxCanvasSide {
			return overlay.Quadrilateral{}, fmt.Errorf("%s vertex (%d, %d) outside 0..%d", overlay.Positions[i], v.X, v.Y, maxCanvasSide)
		}
		pts[i] = image.Pt(v.X, v.Y)
	}
	return overlay.Quadrilateral{TopLeft: pts[0], TopRight: pts[1], BottomRight: pts[2], BottomLeft: pts[3]}, nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Session     Session
	Rotation    RotationSetter
	Overlay     OverlayConfig
	staticFS    fs.FS

	focusMu sync.Mutex
	focus   *overlay.FocusIndicator

	quadMu  sync.Mutex
	quad    overlay.Quadrilateral
	corners *[4]*overlay.CornerView
}

// CornerState describes one live corner handle.
type CornerState struct {
	Position     string  `json:"position"`
	Frame        [4]int  `json:"frame"` // min x, min y, max x, max y
	Radius       float64 `json:"radius"`
	Highlighted  bool    `json:"highlighted"`
	HasImage     bool    `json:"has_image"`
	NeedsDisplay bool    `json:"needs_display"`
}

// NewHandlers creates handlers with the given dependencies.
// If rotation is nil, PUT /rotation returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, session Session, rotation RotationSetter, overlayCfg OverlayConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Session:     session,
		Rotation:    rotation,
		Overlay:     overlayCfg,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

// HandleUpdateState handles PATCH /state.
func (h *Handlers) HandleUpdateState(w http.ResponseWriter, r *http.Request) {
	var upd StateUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	if upd.Editing != nil {
		h.Session.SetEditing(*upd.Editing)
	}
	if upd.AutoScan != nil {
		h.Session.SetAutoScanEnabled(*upd.AutoScan)
	}
	state := h.state()
	h.Broadcaster.BroadcastEvent("state", state)
	writeJSON(w, http.StatusOK, state)
}

// HandleToggleFlash handles POST /flash/toggle.
func (h *Handlers) HandleToggleFlash(w http.ResponseWriter, r *http.Request) {
	state := h.Session.ToggleFlash().String()
	h.Broadcaster.BroadcastEvent("flash", state)
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// ValidatePoint checks that a point of interest is normalized.
func ValidatePoint(p device.Point) error {
	for _, v := range []float64{p.X, p.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return errors.New("x and y must be between 0 and 1")
		}
	}
	return nil
}

// HandleFocus handles POST /focus. A focus indicator is shown at the tap
// location and fades out once focus is set.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := device.Point{X: req.X, Y: req.Y}
	if err := ValidatePoint(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.replaceFocusIndicator(overlay.NewFocusIndicator(image.Pt(req.TapX, req.TapY), h.Overlay.FocusSize))

	if err := h.Session.SetFocusPoint(p); err != nil {
		h.clearFocusIndicator(false)
		writeSessionError(w, err)
		return
	}
	h.clearFocusIndicator(true)
	h.Broadcaster.BroadcastEvent("focus", p)
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetFocus handles POST /focus/reset.
func (h *Handlers) HandleResetFocus(w http.ResponseWriter, r *http.Request) {
	h.clearFocusIndicator(false)
	if err := h.Session.ResetFocusToAuto(); err != nil {
		writeSessionError(w, err)
		return
	}
	h.Broadcaster.BroadcastEvent("focus", "auto")
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshOrientation handles POST /orientation/refresh. The sample
// completes in the background; the response carries the value before it.
func (h *Handlers) HandleRefreshOrientation(w http.ResponseWriter, r *http.Request) {
	h.Session.RefreshImageOrientation()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"orientation": h.Session.ImageOrientation().String(),
	})
}

// HandleRotation handles PUT /rotation.
func (h *Handlers) HandleRotation(w http.ResponseWriter, r *http.Request) {
	if h.Rotation == nil {
		http.Error(w, "rotation source not configurable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Rotation string `json:"rotation"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	rot, err := sensor.ParseRotation(req.Rotation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Rotation.Set(rot)
	debug.Live("Rotation reported: %s", rot)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCorner handles GET and POST /corner/{position}. GET renders the
// plain handle; POST renders it highlighted with the posted image.
func (h *Handlers) HandleCorner(w http.ResponseWriter, r *http.Request) {
	pos, err := overlay.ParseCornerPosition(r.PathValue("position"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	size := h.Overlay.CornerSize
	var highlight image.Image
	if r.Method == http.MethodPost {
		size = h.Overlay.HighlightedCornerSize
		img, status, err := decodeHighlight(w, r)
		if err != nil {
			http.Error(w, err.Error(), status)
			return
		}
		highlight = img
	}
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxCornerSize {
			http.Error(w, "size must be between 1 and 512", http.StatusBadRequest)
			return
		}
		size = n
	}

	view := overlay.NewCornerView(image.Rect(0, 0, size, size), pos, overlay.WithLineWidth(h.Overlay.LineWidth))
	if highlight != nil {
		view.Highlight(highlight)
	}

	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, view.Render(), imaging.PNG); err != nil {
		debug.Error(err)
	}
}

// HandleQuad handles PUT /quad. The first call creates the four corner
// handles; later calls move them onto the new vertices.
func (h *Handlers) HandleQuad(w http.ResponseWriter, r *http.Request) {
	var req QuadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := req.quadrilateral()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.quadMu.Lock()
	h.quad = q
	if h.corners == nil {
		views := overlay.NewCornerViews(q, h.Overlay.CornerSize, overlay.WithLineWidth(h.Overlay.LineWidth))
		h.corners = &views
	} else {
		overlay.LayoutCorners(*h.corners, q, h.Overlay.CornerSize)
		for _, v := range h.corners {
			if v.IsHighlighted() {
				v.Layout(q.CornerFrame(v.Position(), h.Overlay.HighlightedCornerSize))
			}
		}
	}
	h.quadMu.Unlock()

	debug.Verbose("Quad laid out: %+v", q)
	w.WriteHeader(http.StatusNoContent)
}

// HandleQuadState handles GET /quad.
func (h *Handlers) HandleQuadState(w http.ResponseWriter, r *http.Request) {
	h.quadMu.Lock()
	defer h.quadMu.Unlock()
	if h.corners == nil {
		http.Error(w, "no quad laid out", http.StatusNotFound)
		return
	}
	out := make([]CornerState, 0, len(h.corners))
	for _, v := range h.corners {
		f := v.Frame()
		out = append(out, CornerState{
			Position:     v.Position().String(),
			Frame:        [4]int{f.Min.X, f.Min.Y, f.Max.X, f.Max.Y},
			Radius:       v.Radius(),
			Highlighted:  v.IsHighlighted(),
			HasImage:     v.HighlightImage() != nil,
			NeedsDisplay: v.NeedsDisplay(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleHighlightCorner handles POST and DELETE /quad/{position}/highlight.
// POST enlarges the handle around its vertex and shows the posted image;
// DELETE shrinks it back and drops the image.
func (h *Handlers) HandleHighlightCorner(w http.ResponseWriter, r *http.Request) {
	pos, err := overlay.ParseCornerPosition(r.PathValue("position"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var img image.Image
	if r.Method == http.MethodPost {
		var status int
		if img, status, err = decodeHighlight(w, r); err != nil {
			http.Error(w, err.Error(), status)
			return
		}
	}

	h.quadMu.Lock()
	defer h.quadMu.Unlock()
	if h.corners == nil {
		http.Error(w, "no quad laid out", http.StatusNotFound)
		return
	}
	v := h.corners[pos]
	if img != nil {
		v.Layout(h.quad.CornerFrame(pos, h.Overlay.HighlightedCornerSize))
		v.Highlight(img)
	} else {
		v.Layout(h.quad.CornerFrame(pos, h.Overlay.CornerSize))
		v.Reset()
	}
	debug.Verbose("Corner %s highlighted: %v", pos, v.IsHighlighted())
	w.WriteHeader(http.StatusNoContent)
}

// HandleOverlay handles GET /overlay: the corner handles and the live
// focus indicator composed on a transparent canvas, as PNG.
func (h *Handlers) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	width, err := canvasDim(r, "width", 640)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := canvasDim(r, "height", 480)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	h.quadMu.Lock()
	if h.corners != nil {
		for _, v := range h.corners {
			v.Draw(canvas)
		}
	}
	h.quadMu.Unlock()

	h.focusMu.Lock()
	focus := h.focus
	h.focusMu.Unlock()
	if focus != nil {
		focus.Draw(canvas)
	}

	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, canvas, imaging.PNG); err != nil {
		debug.Error(err)
	}
}

func canvasDim(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxCanvasSide {
		return 0, fmt.Errorf("%s must be between 1 and %d", name, maxCanvasSide)
	}
	return n, nil
}

// decodeHighlight reads a posted highlight image. The header is checked
// against maxImageSide first so a small compressed body cannot expand into
// a huge bitmap.
func decodeHighlight(w http.ResponseWriter, r *http.Request) (image.Image, int, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("image body too large")
		}
		return nil, http.StatusBadRequest, errors.New("read image body")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid image")
	}
	if cfg.Width > maxImageSide || cfg.Height > maxImageSide {
		return nil, http.StatusRequestEntityTooLarge,
			fmt.Errorf("image is %dx%d, limit is %dx%d", cfg.Width, cfg.Height, maxImageSide, maxImageSide)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid image")
	}
	return img, http.StatusOK, nil
}

func (h *Handlers) state() StateResponse {
	s := StateResponse{
		Session:     h.Session.ID().String(),
		Device:      h.Session.HasDevice(),
		Editing:     h.Session.IsEditing(),
		AutoScan:    h.Session.IsAutoScanEnabled(),
		Orientation: h.Session.ImageOrientation().String(),
	}
	if h.Rotation != nil {
		s.Rotation = h.Rotation.Rotation().String()
	}
	if m, ok := h.Session.Metering(); ok {
		fp, fm := m.Focus()
		ep, em := m.Exposure()
		s.Focus = &MeteringState{Point: fp, Mode: fm.String()}
		s.Exposure = &MeteringState{Point: ep, Mode: em.String()}
	}
	h.focusMu.Lock()
	if h.focus != nil {
		select {
		case <-h.focus.Removed():
		default:
			s.Focusing = true
		}
	}
	h.focusMu.Unlock()
	return s
}

func (h *Handlers) replaceFocusIndicator(ind *overlay.FocusIndicator) {
	h.focusMu.Lock()
	prev := h.focus
	h.focus = ind
	h.focusMu.Unlock()
	if prev != nil {
		h.Session.RemoveFocusIndicator(prev, false)
	}
}

func (h *Handlers) clearFocusIndicator(animated bool) {
	h.focusMu.Lock()
	ind := h.focus
	if !animated {
		h.focus = nil
	}
	h.focusMu.Unlock()
	if ind != nil {
		h.Session.RemoveFocusIndicator(ind, animated)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSessionError maps a focus error: no device is 503, a lock that
// could not be acquired is 409.
func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, capture.ErrInputDeviceUnavailable) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	debug.Error(err)
	http.Error(w, err.Error(), http.StatusConflict)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/circle/internal/domain/model"
	"github.com/okian/circle/pkg/logger"
	"github.com/okian/circle/pkg/metrics"
)

// Websocket limits.
const (
	maxFrameBytes = 4 << 10
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	writeWait     = 10 * time.Second
)

// Frame types of the gesture stream.
const (
	frameStart  = "start"
	frameMove   = "move"
	frameEnd    = "end"
	frameResize = "resize"

	frameScored = "scored"
	frameCenter = "center"
	frameError  = "error"
)

// gestureFrame is a client frame. Coordinates are pointers so a missing
// field can be told apart from zero.
type gestureFrame struct {
	Type   string   `json:"type"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  float64  `json:"width,omitempty"`
	Height float64  `json:"height,omitempty"`
}

type serverFrame struct {
	Type    string       `json:"type"`
	Score   *int         `json:"score,omitempty"`
	Scores  []int        `json:"scores,omitempty"`
	Display string       `json:"display,omitempty"`
	Center  *model.Point `json:"center,omitempty"`
	Message string       `json:"message,omitempty"`
}

var (
	errTextOnly     = errors.New("only text frames are accepted")
	errMalformed    = errors.New("malformed frame")
	errMissingPoint = errors.New("frame needs x and y")
	errUnknownFrame = errors.New("unknown frame type")
)

// GestureHandler streams pointer events over a websocket and replies with
// scores as gestures end.
type GestureHandler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewGestureHandler creates a new gesture stream handler.
func NewGestureHandler(deps Dependencies, l logger.Logger) *GestureHandler {
	return &GestureHandler{
		deps:     deps,
		upgrader: websocket.Upgrader{CheckOrigin: sameOrigin},
		logger:   l,
	}
}

// HandleGesture handles GET /api/gesture websocket upgrades.
func (h *GestureHandler) HandleGesture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := SessionID(ctx)

	// Carry a freshly issued session cookie into the handshake response.
	var header http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}
	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Debug(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	metrics.WebsocketOpened()
	defer metrics.WebsocketClosed()
	defer func() { _ = conn.Close() }()
	// A drag cut off by a disconnect is never scored.
	defer h.deps.AbandonGesture(ctx, sid)

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepalive(conn, done)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "websocket closed", logger.String("session", sid), logger.Error(err))
			}
			return
		}
		reply, ok := h.handleFrame(ctx, sid, mt, data)
		if !ok {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Debug(ctx, "websocket write failed", logger.String("session", sid), logger.Error(err))
			return
		}
	}
}

// handleFrame applies one client frame and returns the reply, if any.
func (h *GestureHandler) handleFrame(ctx context.Context, sid string, mt int, data []byte) (serverFrame, bool) {
	if mt != websocket.TextMessage {
		metrics.RecordWebsocketFrame("invalid")
		return errorFrame(errTextOnly), true
	}
	var f gestureFrame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.RecordWebsocketFrame("invalid")
		return errorFrame(errMalformed), true
	}

	switch f.Type {
	case frameStart:
		p, ok := f.point()
		if !ok {
			metrics.RecordWebsocketFrame("invalid")
			return errorFrame(errMissingPoint), true
		}
		metrics.RecordWebsocketFrame(f.Type)
		if err := h.deps.BeginGesture(ctx, sid, p); err != nil {
			return errorFrame(err), true
		}
		return serverFrame{}, false

	case frameMove:
		p, ok := f.point()
		if !ok {
			metrics.RecordWebsocketFrame("invalid")
			return errorFrame(errMissingPoint), true
		}
		metrics.RecordWebsocketFrame(f.Type)
		h.deps.SampleGesture(ctx, sid, p)
		return serverFrame{}, false

	case frameEnd:
		metrics.RecordWebsocketFrame(f.Type)
		out, ok, err := h.deps.EndGesture(ctx, sid)
		if err != nil {
			h.logger.Warn(ctx, "gesture not recorded", logger.String("session", sid), logger.Error(err))
			return errorFrame(err), true
		}
		if !ok {
			return serverFrame{}, false
		}
		score := out.Score
		return serverFrame{Type: frameScored, Score: &score, Scores: out.History, Display: Display(out.History)}, true

	case frameResize:
		metrics.RecordWebsocketFrame(f.Type)
		center, err := h.deps.Resize(ctx, sid, model.Surface{Width: f.Width, Height: f.Height})
		if err != nil {
			return errorFrame(err), true
		}
		return serverFrame{Type: frameCenter, Center: &center}, true

	default:
		metrics.RecordWebsocketFrame("unknown")
		return errorFrame(errUnknownFrame), true
	}
}

func (f gestureFrame) point() (model.Point, bool) {
	if f.X == nil || f.Y == nil {
		return model.Point{}, false
	}
	return model.Point{X: *f.X, Y: *f.Y}, true
}

func errorFrame(err error) serverFrame {
	return serverFrame{Type: frameError, Message: err.Error()}
}

// keepalive pings the peer until done is closed.
func keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from the serving host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

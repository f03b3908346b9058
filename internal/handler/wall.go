package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/photo-wall/internal/service"
	"github.com/sakif/photo-wall/internal/wall"
)

const (
	// Time allowed to write a message to the display.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the display.
	pongWait = 60 * time.Second

	// Send pings at this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Displays only send viewport sizes and announcements.
	maxMessageSize = 1024
)

// Messages a display may send.
const (
	msgViewport = "viewport"
	msgAnnounce = "photo.announce"
)

type clientMessage struct {
	Type       string `json:"type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ContentRef string `json:"contentRef"`
}

// WallHandler serves the live feed to wall displays over a websocket.
//
// ONE CONNECTION, TWO GOROUTINES:
//
//	readPump  → decodes display messages onto a channel, handles pongs
//	HandleWall → the only writer: seed, live placements, pings
//
// gorilla/websocket allows one concurrent reader and one concurrent writer,
// which is exactly this split.
//
// CONNECT SEQUENCE:
//  1. Upgrade, then wait up to viewportWait for {"type":"viewport"}.
//     A display that never sends one gets defaultViewport.
//  2. WallFeed.Connect subscribes, loads the snapshot and seeds the grid.
//  3. Live: hub events become placements; viewport messages resize;
//     announcements are republished to every wall.
type WallHandler struct {
	feed            *service.WallFeed
	upgrader        websocket.Upgrader
	viewportWait    time.Duration
	defaultViewport wall.Viewport
	logger          *slog.Logger
}

// NewWallHandler creates a WallHandler.
func NewWallHandler(feed *service.WallFeed, viewportWait time.Duration, defaultViewport wall.Viewport, logger *slog.Logger) *WallHandler {
	return &WallHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Walls are public screens served from anywhere (a TV browser,
			// a kiosk, a projector laptop), so every origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		viewportWait:    viewportWait,
		defaultViewport: defaultViewport,
		logger:          logger,
	}
}

// HandleWall upgrades the request and runs one display's session until
// either side goes away.
//
// HTTP: GET /ws/wall
func (h *WallHandler) HandleWall(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	msgs := make(chan clientMessage, 8)
	go h.readPump(ctx, conn, msgs)

	viewport, pending, ok := h.awaitViewport(msgs)
	if !ok {
		return
	}

	wc, seed, err := h.feed.Connect(ctx, viewport)
	if err != nil {
		h.logger.Error("wall connect failed", slog.String("error", err.Error()))
		h.closeWith(conn, websocket.CloseInternalServerErr, "snapshot unavailable")
		return
	}
	defer wc.Close()

	if err := h.send(conn, seed); err != nil {
		return
	}
	for _, m := range pending {
		h.handleMessage(ctx, wc, m)
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-wc.Events():
			if !ok {
				// The hub cut this display off for lagging, or is shutting
				// down. The display reconnects and reseeds.
				h.closeWith(conn, websocket.CloseTryAgainLater, "feed ended")
				return
			}
			ins, err := wc.Offer(e)
			if err != nil {
				return
			}
			if err := h.send(conn, ins); err != nil {
				return
			}

		case m, ok := <-msgs:
			if !ok {
				return
			}
			h.handleMessage(ctx, wc, m)

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// awaitViewport collects the display's first viewport. Announcements that
// arrive first are kept and replayed once the session is live. ok is false
// when the display disconnected.
func (h *WallHandler) awaitViewport(msgs <-chan clientMessage) (v wall.Viewport, pending []clientMessage, ok bool) {
	timer := time.NewTimer(h.viewportWait)
	defer timer.Stop()

	for {
		select {
		case m, open := <-msgs:
			if !open {
				return wall.Viewport{}, nil, false
			}
			if m.Type == msgViewport {
				return wall.Viewport{Width: m.Width, Height: m.Height}, pending, true
			}
			pending = append(pending, m)
		case <-timer.C:
			return h.defaultViewport, pending, true
		}
	}
}

func (h *WallHandler) handleMessage(ctx context.Context, wc *service.WallConn, m clientMessage) {
	switch m.Type {
	case msgViewport:
		wc.Resize(wall.Viewport{Width: m.Width, Height: m.Height})
	case msgAnnounce:
		if err := h.feed.Announce(ctx, m.ContentRef); err != nil {
			h.logger.Warn("announcement failed",
				slog.String("session", wc.ID()),
				slog.String("error", err.Error()),
			)
		}
	default:
		h.logger.Debug("ignoring wall message", slog.String("type", m.Type))
	}
}

// readPump decodes messages from the display until the connection fails,
// then closes msgs.
func (h *WallHandler) readPump(ctx context.Context, conn *websocket.Conn, msgs chan<- clientMessage) {
	defer close(msgs)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("wall read ended", slog.String("error", err.Error()))
			}
			return
		}

		var m clientMessage
		if err := json.Unmarshal(data, &m); err != nil {
			h.logger.Debug("invalid wall message", slog.String("error", err.Error()))
			continue
		}

		select {
		case msgs <- m:
		case <-ctx.Done():
			return
		}
	}
}

// send writes each instruction as its own text frame.
func (h *WallHandler) send(conn *websocket.Conn, ins []wall.Instruction) error {
	for _, in := range ins {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(in); err != nil {
			return err
		}
	}
	return nil
}

func (h *WallHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

package handler

import (
	"net/http"
	"time"

	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 512                 // clients only send control frames
)

// FeedHandler pushes newly created songs to websocket clients.
type FeedHandler struct {
	feed     *service.SongFeed
	upgrader websocket.Upgrader
}

// NewFeedHandler builds the handler. An empty allowedOrigins or one
// containing "*" accepts any origin.
func NewFeedHandler(feed *service.SongFeed, allowedOrigins []string) *FeedHandler {
	return &FeedHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// GET /songs/feed
func (h *FeedHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade feed connection",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	events, cancel := h.feed.Subscribe()
	defer cancel()

	connectedAt := time.Now()
	logger.Log.Debug("Feed client connected",
		zap.String("ip", c.ClientIP()),
		zap.Int("subscribers", h.feed.Subscribers()),
	)

	done := make(chan struct{})
	go h.readPump(conn, done)

	h.writePump(conn, events, done)

	logger.Log.Debug("Feed client disconnected",
		zap.String("ip", c.ClientIP()),
		zap.Duration("session_duration", time.Since(connectedAt).Round(time.Second)),
	)
}

// readPump discards client frames and keeps the read deadline fresh so
// pongs are processed. It closes done when the peer goes away.
func (h *FeedHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("Feed read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *FeedHandler) writePump(conn *websocket.Conn, events <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped as a slow consumer or the server is shutting down.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Conduit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/Conduit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Conduit/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the router
	},
}

const writeTimeout = 5 * time.Second

// Handler manages stats-streaming WebSocket connections.
type Handler struct {
	pipe     *pipeline.Pipeline
	log      *logging.Logger
	metrics  *monitoring.Metrics
	interval time.Duration
}

// NewHandler creates a handler pushing a stats frame every interval.
func NewHandler(pipe *pipeline.Pipeline, log *logging.Logger, metrics *monitoring.Metrics, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Handler{
		pipe:     pipe,
		log:      log.Named("ws"),
		metrics:  metrics,
		interval: interval,
	}
}

type frame struct {
	Type  string         `json:"type"`
	Stats pipeline.Stats `json:"stats,omitempty"`
}

// HandleConnection upgrades the request and streams stats frames until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	if err := h.send(conn, frame{Type: "system"}); err != nil {
		return
	}

	// Reader goroutine: consume control messages so close frames are
	// processed. Pings are answered from the writer loop below; the
	// connection allows only one concurrent writer.
	closed := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(closed)
		for {
			var msg struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-pings:
			if err := h.send(conn, frame{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.send(conn, frame{Type: "stats", Stats: h.pipe.Snapshot()}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, f frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

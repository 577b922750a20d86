package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"PSession/logger"
	"PSession/tools/ids"
	"PSession/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	defaultSendQueue = 256
	defaultReadLimit = 1 << 20
	pongWait         = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Server terminates websocket connections and pumps inbound frames into
// the dispatcher. One read loop per connection; writes go through the
// client's queue and the fanout pool.
type Server struct {
	core     *Core
	registry *Registry
}

func NewServer(core *Core, registry *Registry) *Server {
	return &Server{core: core, registry: registry}
}

// HandleWS upgrades the request and runs the connection to completion.
// The registry entry and the session record live exactly as long as the
// read loop.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[server] upgrade failed err=%v", err)
		return
	}

	ctx := context.Background()
	connID := ids.GenerateString()

	if _, err := s.core.Open(ctx, connID); err != nil {
		logger.Errorf("[server] open session failed conn=%s err=%v", connID, err)
		_ = ws.Close()
		return
	}

	client := NewClient(connID, ws, defaultSendQueue)
	s.registry.Add(client)
	safe.Go(client.WritePump)

	ws.SetReadLimit(defaultReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if s.core.presence != nil {
			if herr := s.core.presence.Heartbeat(ctx, connID); herr != nil {
				logger.Warnf("[server] heartbeat failed conn=%s err=%v", connID, herr)
			}
		}
		return nil
	})

	defer func() {
		s.registry.Remove(connID)
		if cerr := s.core.Close(ctx, connID); cerr != nil {
			logger.Warnf("[server] close session failed conn=%s err=%v", connID, cerr)
		}
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[server] read failed conn=%s err=%v", connID, err)
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			logger.Warnf("[server] bad frame conn=%s err=%v", connID, err)
			continue
		}
		s.core.Dispatch(ctx, connID, frame.Event, frame.Payload)
	}
}

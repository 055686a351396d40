package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// researchFeed is WS /ws/research/{session}: a live push of Trace Hub events
// for one trace, for clients that want a persistent socket instead of SSE.
// The feed is one-way; the client never sends anything but pings.
type researchFeed struct {
	server   *Server
	upgrader websocket.Upgrader
}

func (s *Server) newResearchFeed() http.Handler {
	return &researchFeed{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (f *researchFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := strings.TrimPrefix(r.URL.Path, "/ws/research/")
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "missing session")
		return
	}

	sub, err := f.server.hub.Subscribe(traceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown trace_id")
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	defer sub.Close()
	defer conn.Close()

	// Drain inbound frames so the connection's read deadline/close handling
	// works; clients of this feed never send anything meaningful.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done:
			return
		}
	}
}

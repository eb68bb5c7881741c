package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/hb9tf/specview/sdr"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamHandler upgrades to a websocket and sends every frame pushed into
// the display as JSON. Incoming messages are discarded.
func (s *Server) streamHandler(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Warningf("unable to upgrade stream connection: %s", err)
		return
	}
	glog.Infof("stream client %s connected", conn.RemoteAddr())

	frames, cancel := s.display.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		readPump(conn)
	}()
	writePump(conn, frames, done)
	cancel()
	glog.Infof("stream client %s disconnected", conn.RemoteAddr())
}

// readPump consumes control frames until the peer goes away.
func readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps frames to the websocket connection until the reader is
// done or a write fails.
func writePump(conn *websocket.Conn, frames <-chan sdr.Frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case f, ok := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

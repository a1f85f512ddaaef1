package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/loki_dashboard/internal/usecase"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

type wsSnapshot struct {
	Type          string                `json:"type"`
	View          usecase.DashboardView `json:"view"`
	Notifications []usecase.Toast       `json:"notifications"`
}

// handleWS streams the dashboard view. A snapshot is sent on connect and then
// after changes, no more often than the configured push interval.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	cookie, _ := r.Cookie(s.cfg.CookieName)
	token := cookie.Value

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.client.Subscribe()
	defer unsubscribe()

	toasts := make(chan struct{}, 1)
	stopToasts := s.notifier.Subscribe(func([]usecase.Toast) {
		select {
		case toasts <- struct{}{}:
		default:
		}
	})
	defer stopToasts()

	gone := make(chan struct{})
	go s.wsReadPump(conn, gone)

	push := time.NewTicker(s.cfg.PushInterval)
	defer push.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := s.wsSend(conn); err != nil {
		return
	}
	dirty := false
	for {
		select {
		case <-s.closing:
			s.wsClose(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-gone:
			return
		case <-changes:
			dirty = true
		case <-toasts:
			dirty = true
		case <-push.C:
			if !s.gate.Authorize(token) {
				s.wsClose(conn, websocket.ClosePolicyViolation, "session ended")
				return
			}
			if !dirty {
				continue
			}
			dirty = false
			if err := s.wsSend(conn); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsSend(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := conn.WriteJSON(wsSnapshot{
		Type:          "snapshot",
		View:          s.dashboard.View(),
		Notifications: s.notifier.Active(),
	})
	if err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
	}
	return err
}

func (s *Server) wsClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// wsReadPump drains client frames so pongs and close frames are processed.
func (s *Server) wsReadPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

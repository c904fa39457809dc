// live.go - Development-only websocket that streams every FullReport.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/util"
)

const (
	liveWriteWait  = 10 * time.Second
	liveSendBuffer = 8
)

// handleLive upgrades the connection, sends the current report and then
// every diagnostic pass. Slow readers drop reports rather than block the
// monitor.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	live := s.mon.Dev().LiveReport()
	if live == nil {
		util.JSONError(w, http.StatusNotFound, "live stream requires development mode")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.liveWG.Add(1)
	defer s.liveWG.Done()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("live stream opened", zap.String("remote_addr", remote))

	send := make(chan monitor.FullReport, liveSendBuffer)
	send <- *live
	unsubscribe := s.mon.SubscribeReports(func(rep monitor.FullReport) {
		select {
		case send <- rep:
		default:
			s.logger.Debug("live stream lagging; report dropped", zap.String("remote_addr", remote))
		}
	})
	defer unsubscribe()

	// Reader: surfaces client close and answers control frames.
	readerDone := make(chan struct{})
	util.SafeGo(s.logger, "server.live_reader", func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("live stream closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	})

	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	ping := time.NewTicker(s.opts.LivePingInterval)
	defer ping.Stop()

	for {
		select {
		case rep := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(rep); err != nil {
				s.logger.Debug("live stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

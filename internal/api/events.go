package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/ladder-cache/internal/loader"
	"github.com/terra-clan/ladder-cache/internal/sections"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleJobEvents streams job events of a section over a websocket. The
// current job state is sent first as a "status" message.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	name, ok := s.sectionParam(w, r)
	if !ok {
		return
	}

	events, unsubscribe, err := s.jobs.Subscribe(name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to subscribe")
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("job events websocket connected", "section", name)

	if job, _ := s.jobs.Status(r.Context(), name); job != nil {
		status := loader.JobEvent{
			Type:       loader.EventStatus,
			Section:    name,
			SectionKey: sections.Key(name),
			Status:     job.Status,
			Completed:  job.Completed,
			Total:      len(job.ContestIDs),
			Time:       time.Now(),
		}
		if err := writeEvent(conn, status); err != nil {
			return
		}
	}

	// reader: handles pongs and notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("job events websocket disconnected", "section", name)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev loader.JobEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		slog.Debug("failed to send job event", "error", err)
		return err
	}
	return nil
}

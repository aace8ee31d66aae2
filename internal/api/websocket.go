package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trading-gate/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is the envelope written to /ws clients.
type streamMessage struct {
	Type events.Event `json:"type"`
	Data any          `json:"data"`
}

// websocket streams entry decisions, trail updates and breaker changes.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	decisions, unsubD := s.Bus.Subscribe(events.EventEntryDecision, 100)
	defer unsubD()
	trails, unsubT := s.Bus.Subscribe(events.EventTrailUpdate, 100)
	defer unsubT()
	breaker, unsubB := s.Bus.Subscribe(events.EventBreakerState, 10)
	defer unsubB()

	// reader detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		var out streamMessage
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
			continue
		case msg, ok := <-decisions:
			if !ok {
				return
			}
			out = streamMessage{Type: events.EventEntryDecision, Data: msg}
		case msg, ok := <-trails:
			if !ok {
				return
			}
			out = streamMessage{Type: events.EventTrailUpdate, Data: msg}
		case msg, ok := <-breaker:
			if !ok {
				return
			}
			out = streamMessage{Type: events.EventBreakerState, Data: msg}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

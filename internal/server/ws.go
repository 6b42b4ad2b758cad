package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kwang/interview-server/internal/interview"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoutes(mux *http.ServeMux, hub *Hub, conv Conversation) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if conv == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "conversation unavailable")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}

		key := r.URL.Query().Get("client_id")
		if key == "" {
			key = uuid.NewString()
		}

		if err := conv.Run(r.Context(), &wsConn{conn: conn}, key); err != nil {
			log.Printf("conversation %s ended: %v", key, err)
		}
	})

	mux.HandleFunc("GET /ws/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		connectionEvent := ConnectionEvent{
			Event:     newEvent("connection", time.Now().UTC()),
			Connected: true,
		}
		payload, err := json.Marshal(connectionEvent)
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		// Reading detects the observer going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	})
}

type clientMessage struct {
	Transcription string `json:"transcription"`
}

// wsConn adapts a websocket to the conversation channel.
type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) ReadTranscript() (string, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ws: ignoring malformed client message: %v", err)
			continue
		}
		return msg.Transcription, nil
	}
}

func (c *wsConn) WriteMessage(msg interview.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

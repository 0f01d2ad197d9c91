package webui

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vdeck/deckrouter/src/deck"
)

//go:embed static
var staticFiles embed.FS

// WebUIServer serves a read-only deck monitor: a static page plus a websocket
// that streams deck-state snapshots as they change.
type WebUIServer struct {
	Addr      string
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	decks     *deck.Manager
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	stopChan  chan struct{}
}

func NewWebUIServer(addr string, decks *deck.Manager) *WebUIServer {
	return &WebUIServer{
		Addr: addr,
		log:  log.With().Str("module", "WebUI").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all connections for now
			},
		},
		decks:     decks,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte),
		stopChan:  make(chan struct{}),
	}
}

func (s *WebUIServer) Start() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create static filesystem: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", s.handleWebSocket)

	go s.handleBroadcasts()
	go s.monitorDecks()

	s.log.Info().Msgf("Starting web server on %s", s.Addr)
	server := &http.Server{
		Addr:         s.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// Stop terminates the broadcast and monitor loops.
func (s *WebUIServer) Stop() {
	close(s.stopChan)
}

// buildStateMessage snapshots every deck into one JSON message.
func (s *WebUIServer) buildStateMessage() ([]byte, error) {
	snapshots := []deck.Snapshot{}
	for _, d := range s.decks.Decks() {
		snapshots = append(snapshots, d.Snapshot())
	}
	message := map[string]interface{}{
		"type":  "deckStateUpdate",
		"decks": snapshots,
	}
	return json.Marshal(message)
}

func (s *WebUIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to upgrade to websocket")
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	s.log.Info().Msgf("New WebSocket client connected: %s", conn.RemoteAddr())

	welcome := []byte(`{"type":"welcome","message":"Connected to deckrouter"}`)
	if err := s.writeToClient(conn, welcome); err != nil {
		s.log.Error().Err(err).Msg("Failed to send welcome message")
		s.dropClient(conn)
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.log.Info().Msgf("WebSocket client disconnected: %s", conn.RemoteAddr())
			s.dropClient(conn)
			break
		}

		var clientMsg map[string]interface{}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.log.Error().Err(err).Msg("Failed to parse client message")
			continue
		}
		msgType, ok := clientMsg["type"].(string)
		if !ok {
			s.log.Error().Msg("Message missing 'type' field")
			continue
		}

		switch msgType {
		case "getState":
			jsonData, err := s.buildStateMessage()
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to marshal deck state")
				continue
			}
			if err := s.writeToClient(conn, jsonData); err != nil {
				s.log.Error().Err(err).Msg("Failed to send state to client")
				s.dropClient(conn)
				return
			}
		default:
			s.log.Debug().Str("type", msgType).Msg("Unknown message type")
		}
	}
}

// writeToClient serializes websocket writes under the client mutex; gorilla
// connections support at most one concurrent writer, and the broadcast loop
// writes to the same connections as the per-connection read loops.
func (s *WebUIServer) writeToClient(conn *websocket.Conn, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, message)
}

func (s *WebUIServer) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
}

func (s *WebUIServer) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					s.log.Error().Err(err).Msg("Failed to send message to client")
					client.Close()
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		case <-s.stopChan:
			return
		}
	}
}

// monitorDecks polls deck state and broadcasts only when something changed.
func (s *WebUIServer) monitorDecks() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var prevStateHash string
	for {
		select {
		case <-ticker.C:
			jsonData, err := s.buildStateMessage()
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to marshal deck state")
				continue
			}
			currentStateHash := fmt.Sprintf("%x", jsonData)
			if prevStateHash == currentStateHash {
				continue
			}
			prevStateHash = currentStateHash
			s.broadcast <- jsonData
		case <-s.stopChan:
			return
		}
	}
}

// BroadcastMessage sends a message to all connected clients.
func (s *WebUIServer) BroadcastMessage(message []byte) {
	s.broadcast <- message
}

package handler

import (
	"fmt"
	"net/http"
	"strings"

	"offline-sync-engine/internal/websocket"
	"offline-sync-engine/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	jwtSecret string
	upgrader  ws.Upgrader
	logger    *zap.Logger
}

// NewWebSocketHandler builds the upgrade endpoint. An empty jwtSecret
// disables token checks.
func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, readBuffer, writeBuffer int, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if h.jwtSecret != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			http.Error(w, "missing authorization token", http.StatusUnauthorized)
			return
		}
		if _, err := jwt.ValidateToken(token, h.jwtSecret); err != nil {
			h.logger.Warn("websocket token rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.manager)
	if err := h.manager.Register(client); err != nil {
		h.logger.Warn("websocket connection refused", zap.Error(err))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler answers control messages. It runs on the hub
// goroutine, so nothing here may block on a sync cycle.
type WebSocketMessageHandler struct {
	sync    SyncController
	manager *websocket.Manager
}

func NewWebSocketMessageHandler(sync SyncController, manager *websocket.Manager) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{sync: sync, manager: manager}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		h.sync.TriggerAsync()
		return h.reply(client, websocket.TypeAck, &websocket.AckPayload{Type: msg.Type, Success: true})

	case websocket.TypeStatus:
		return h.reply(client, websocket.TypeStatus, websocket.NewStatusPayload(h.sync.Status()))

	case websocket.TypePing:
		return h.reply(client, websocket.TypePong, nil)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (h *WebSocketMessageHandler) reply(client *websocket.Client, msgType websocket.MessageType, payload any) error {
	out, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return h.manager.SendToClient(client.ID, out)
}

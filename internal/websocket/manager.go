// Package websocket streams sync status snapshots to connected clients and
// accepts a small set of control messages from them.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"offline-sync-engine/internal/domain"

	"go.uber.org/zap"
)

var ErrManagerClosed = errors.New("websocket manager closed")

const (
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultMaxConnections = 64

	sendBufferSize      = 256
	broadcastBufferSize = 64
)

type Options struct {
	MaxConnections int
	WriteWait      time.Duration
	PongWait       time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod     time.Duration
	MaxMessageSize int64
}

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// Manager is the connection hub. One goroutine (Run) owns registration
// and fan-out; everything else talks to it through channels.
type Manager struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex

	register      chan *Client
	unregister    chan *Client
	handleMessage chan *ClientMessage
	broadcast     chan []byte
	done          chan struct{}
	closeOnce     sync.Once

	opts           Options
	logger         *zap.Logger
	messageHandler MessageHandler
	statusFn       func() domain.StatusSnapshot
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		handleMessage: make(chan *ClientMessage),
		broadcast:     make(chan []byte, broadcastBufferSize),
		done:          make(chan struct{}),
		opts:          opts,
		logger:        logger,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	m.messageHandler = handler
}

// SetStatusSource makes every new client receive the current snapshot as
// its first message.
func (m *Manager) SetStatusSource(fn func() domain.StatusSnapshot) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	m.statusFn = fn
}

// Run serves the hub until ctx is done, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.handleMessage:
			m.processMessage(clientMsg)

		case payload := <-m.broadcast:
			m.fanOut(payload)
		}
	}
}

// Register hands client to the hub. It fails once the hub has stopped.
func (m *Manager) Register(client *Client) error {
	select {
	case m.register <- client:
		return nil
	case <-m.done:
		return ErrManagerClosed
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) dispatch(msg *ClientMessage) bool {
	select {
	case m.handleMessage <- msg:
		return true
	case <-m.done:
		return false
	}
}

// PublishStatus queues snapshot for every client. It never blocks, so it
// is safe to use as a status listener.
func (m *Manager) PublishStatus(snapshot domain.StatusSnapshot) {
	msg, err := NewMessage(TypeStatus, NewStatusPayload(snapshot))
	if err != nil {
		m.logger.Error("failed to build status message", zap.Error(err))
		return
	}
	if err := m.Broadcast(msg); err != nil {
		m.logger.Warn("status broadcast dropped", zap.Error(err))
	}
}

func (m *Manager) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case <-m.done:
		return ErrManagerClosed
	default:
	}

	select {
	case m.broadcast <- messageBytes:
		return nil
	default:
		return errors.New("broadcast buffer full")
	}
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("client send buffer full, message dropped", zap.String("client_id", clientID))
	}
	return nil
}

func (m *Manager) Connections() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if len(m.clients) >= m.opts.MaxConnections {
		m.logger.Warn("max websocket connections reached", zap.String("client_id", client.ID))
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.logger.Info("websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	if m.statusFn != nil {
		if msg, err := NewMessage(TypeStatus, NewStatusPayload(m.statusFn())); err == nil {
			if b, err := json.Marshal(msg); err == nil {
				client.Send <- b
			}
		}
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Info("websocket client unregistered", zap.String("client_id", client.ID))
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("malformed websocket message", zap.String("client_id", clientMsg.Client.ID), zap.Error(err))
		m.replyError(clientMsg.Client.ID, "malformed message")
		return
	}

	m.clientsMutex.RLock()
	handler := m.messageHandler
	m.clientsMutex.RUnlock()
	if handler == nil {
		return
	}
	if err := handler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
		m.logger.Warn("failed to handle websocket message",
			zap.String("client_id", clientMsg.Client.ID),
			zap.String("type", string(msg.Type)),
			zap.Error(err),
		)
		m.replyError(clientMsg.Client.ID, err.Error())
	}
}

func (m *Manager) replyError(clientID, reason string) {
	msg, err := NewMessage(TypeError, &ErrorPayload{Error: reason})
	if err != nil {
		return
	}
	_ = m.SendToClient(clientID, msg)
}

// fanOut drops the message for clients whose buffer is full rather than
// stall the hub.
func (m *Manager) fanOut(payload []byte) {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	for id, client := range m.clients {
		select {
		case client.Send <- payload:
		default:
			m.logger.Warn("client send buffer full, status dropped", zap.String("client_id", id))
		}
	}
}

func (m *Manager) shutdown() {
	m.closeOnce.Do(func() { close(m.done) })

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for id, client := range m.clients {
		delete(m.clients, id)
		close(client.Send)
	}
	m.logger.Info("websocket manager stopped")
}

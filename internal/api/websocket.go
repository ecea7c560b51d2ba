package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

// WebSocket message types
const (
	EventCall          = "call"
	EventCommand       = "command"
	EventResponse      = "response"
	EventError         = "error"
	EventNotification  = "notification"
	EventDeviceAdded   = "device_added"
	EventDeviceRemoved = "device_removed"
	EventAdapterState  = "adapter_state"
)

// WSMessage represents a WebSocket message. Clients send "call" messages
// carrying Method and Arguments, or "command" messages carrying Command.
// Replies echo ID.
type WSMessage struct {
	Event     string                 `json:"event"`
	ID        string                 `json:"id,omitempty"`
	Method    string                 `json:"method,omitempty"`
	Arguments json.RawMessage        `json:"arguments,omitempty"`
	Command   string                 `json:"command,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	id     string
	conn   *websocket.Conn
	send   chan WSMessage
	done   chan struct{}
	server *Server
	once   sync.Once
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan WSMessage, 256),
		done:   make(chan struct{}),
		server: s,
	}

	s.addClient(client)
	s.log.Info().Str("client", client.id).Msg("📡 WebSocket client connected")

	go client.readPump()
	go client.writePump()
}

func (s *Server) addClient(client *WSClient) {
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(client *WSClient) {
	s.clientsMu.Lock()
	delete(s.clients, client)
	s.clientsMu.Unlock()
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		client.close()
	}
}

func (c *WSClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *WSClient) writePump() {
	defer c.close()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.Debug().Err(err).Str("client", c.id).Msg("WebSocket write error")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
		c.server.log.Info().Str("client", c.id).Msg("📡 WebSocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn().Err(err).Str("client", c.id).Msg("WebSocket error")
			}
			break
		}

		// calls may block on a connect, keep reading meanwhile
		go c.handleMessage(msg)
	}
}

func (c *WSClient) handleMessage(msg WSMessage) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	switch msg.Event {
	case EventCall, "":
		if msg.Method == "" {
			c.sendError(msg.ID, "method is required")
			return
		}
		result := c.server.bridge.Handle(ctx, bridge.MethodCall{
			Method:    msg.Method,
			Arguments: msg.Arguments,
		})
		data := map[string]interface{}{"value": result.Value}
		if result.Error != nil {
			data["error"] = result.Error
		}
		c.sendResponse(msg.ID, data)

	case EventCommand:
		result := c.server.executor.Execute(ctx, msg.Command)
		c.sendResponse(msg.ID, map[string]interface{}{
			"success": result.Success,
			"message": result.Message,
			"data":    result.Data,
			"error":   result.Error,
		})

	default:
		c.sendError(msg.ID, fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

func (c *WSClient) deliver(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *WSClient) sendResponse(id string, data map[string]interface{}) {
	c.deliver(WSMessage{
		Event: EventResponse,
		ID:    id,
		Data:  data,
	})
}

func (c *WSClient) sendError(id, message string) {
	c.deliver(WSMessage{
		Event: EventError,
		ID:    id,
		Data: map[string]interface{}{
			"error": message,
		},
	})
}

func (s *Server) broadcast(message WSMessage) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- message:
		default:
			// Client send buffer full, skip
		}
	}
}

// Notify broadcasts a user-facing notification. It lets the server act as
// the session's notifier.
func (s *Server) Notify(message string) {
	s.broadcast(WSMessage{
		Event: EventNotification,
		Data: map[string]interface{}{
			"message": message,
		},
	})
	s.log.Info().Str("message", message).Msg("📡 Broadcast: notification")
}

// BroadcastDeviceAdded broadcasts a newly paired device to all connected clients
func (s *Server) BroadcastDeviceAdded(device printer.Device) {
	s.broadcast(WSMessage{
		Event: EventDeviceAdded,
		Data: map[string]interface{}{
			"name":    device.Name,
			"address": device.Address,
			"device":  device.String(),
		},
	})
	s.log.Info().Str("device", device.String()).Msg("📡 Broadcast: device added")
}

// BroadcastDeviceRemoved broadcasts an unpaired device to all connected clients
func (s *Server) BroadcastDeviceRemoved(device printer.Device) {
	s.broadcast(WSMessage{
		Event: EventDeviceRemoved,
		Data: map[string]interface{}{
			"name":    device.Name,
			"address": device.Address,
			"device":  device.String(),
		},
	})
	s.log.Info().Str("device", device.String()).Msg("📡 Broadcast: device removed")
}

// BroadcastAdapterState broadcasts the adapter power state
func (s *Server) BroadcastAdapterState(enabled bool) {
	s.broadcast(WSMessage{
		Event: EventAdapterState,
		Data: map[string]interface{}{
			"enabled": enabled,
		},
	})
}

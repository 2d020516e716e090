package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/metrics"
	"github.com/afroash/envdash/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// StreamHandler manages WebSocket connections from sensor agents
type StreamHandler struct {
	upgrader       websocket.Upgrader
	ingester       *Ingester
	logger         zerolog.Logger
	allowedOrigins []string

	mutex   sync.RWMutex
	devices map[string]*DeviceConnection // keyed by remote address
}

// DeviceConnection represents an active agent connection
type DeviceConnection struct {
	DeviceID    string    `json:"device_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	BufferSize  int       `json:"buffer_size"`
}

// NewStreamHandler creates a new WebSocket handler. Authentication is applied
// by the router.
func NewStreamHandler(ingester *Ingester, logger zerolog.Logger, allowedOrigins ...string) *StreamHandler {
	h := &StreamHandler{
		ingester:       ingester,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		devices:        make(map[string]*DeviceConnection),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means a non-browser client or same-origin request
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	// The request context ends when ServeHTTP returns, so use a detached one
	h.handleConnection(context.WithoutCancel(r.Context()), conn)
}

// handleConnection manages a single WebSocket connection
func (h *StreamHandler) handleConnection(ctx context.Context, conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	now := time.Now()

	h.mutex.Lock()
	h.devices[connKey] = &DeviceConnection{
		DeviceID:    connKey, // Replaced once a heartbeat names the device
		RemoteAddr:  connKey,
		ConnectedAt: now,
		LastSeen:    now,
	}
	h.mutex.Unlock()
	metrics.StreamConnectionsActive.Inc()

	defer conn.Close()
	defer h.removeDevice(connKey)

	conn.SetReadLimit(maxPayloadBytes * 16)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	// Agents ping; each ping keeps the connection alive
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	h.logger.Info().Str("remote_addr", connKey).Msg("Device connected")

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote_addr", connKey).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.touch(connKey)

		reply := h.handleMessage(ctx, connKey, &msg)
		if reply == nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn().Err(err).Str("remote_addr", connKey).Msg("Failed to send reply")
			return
		}
	}
}

// handleMessage processes a single message and returns the reply to send
func (h *StreamHandler) handleMessage(ctx context.Context, connKey string, msg *models.Message) *models.Message {
	h.logger.Debug().Str("type", string(msg.Type)).Str("remote_addr", connKey).Msg("Received message")

	switch msg.Type {
	case models.MessageTypeReading:
		stored, err := h.ingester.Ingest(ctx, TransportStream, msg.Payload)
		if err != nil {
			return h.errorReply(err)
		}
		return h.ackReply(stored.ID)

	case models.MessageTypeBatch:
		var batch models.BatchMessage
		if err := msg.UnmarshalPayload(&batch); err != nil {
			return h.newReply(models.MessageTypeError, models.ErrorMessage{
				Code:    models.ErrorCodeInvalidPayload,
				Message: "malformed batch: " + err.Error(),
			})
		}
		stored, err := h.ingester.IngestBatch(ctx, TransportStream, batch.Readings)
		if err != nil {
			return h.errorReply(err)
		}
		ids := make([]string, len(stored))
		for i, r := range stored {
			ids[i] = r.ID
		}
		return h.ackReply(ids...)

	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(connKey, msg)
		return nil

	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
		return h.newReply(models.MessageTypeError, models.ErrorMessage{
			Code:    models.ErrorCodeUnknownType,
			Message: "unknown message type " + string(msg.Type),
		})
	}
}

// handleHeartbeat records the device identity and buffer depth
func (h *StreamHandler) handleHeartbeat(connKey string, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	h.mutex.Lock()
	if device, ok := h.devices[connKey]; ok {
		if heartbeat.DeviceID != "" {
			device.DeviceID = heartbeat.DeviceID
		}
		device.BufferSize = heartbeat.BufferSize
	}
	h.mutex.Unlock()

	h.logger.Debug().
		Str("device_id", heartbeat.DeviceID).
		Int64("uptime", heartbeat.Uptime).
		Int("buffer_size", heartbeat.BufferSize).
		Msg("Heartbeat received")
}

func (h *StreamHandler) ackReply(ids ...string) *models.Message {
	return h.newReply(models.MessageTypeAck, models.AckMessage{Status: "ok", IDs: ids})
}

func (h *StreamHandler) errorReply(err error) *models.Message {
	code := models.ErrorCodeStoreUnavailable
	if errors.Is(err, ingest.ErrInvalidPayload) {
		code = models.ErrorCodeInvalidPayload
	}
	return h.newReply(models.MessageTypeError, models.ErrorMessage{Code: code, Message: err.Error()})
}

func (h *StreamHandler) newReply(msgType models.MessageType, payload any) *models.Message {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to create reply")
		return nil
	}
	return msg
}

// touch updates the last seen timestamp for a connection
func (h *StreamHandler) touch(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if device, ok := h.devices[connKey]; ok {
		device.LastSeen = time.Now()
	}
}

// removeDevice removes a connection from the active set
func (h *StreamHandler) removeDevice(connKey string) {
	h.mutex.Lock()
	deviceID := connKey
	if device, ok := h.devices[connKey]; ok {
		deviceID = device.DeviceID
	}
	delete(h.devices, connKey)
	h.mutex.Unlock()

	metrics.StreamConnectionsActive.Dec()
	h.logger.Info().Str("device_id", deviceID).Msg("Device disconnected")
}

// ActiveDevices returns a snapshot of the connected agents
func (h *StreamHandler) ActiveDevices() []DeviceConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	devices := make([]DeviceConnection, 0, len(h.devices))
	for _, device := range h.devices {
		devices = append(devices, *device)
	}
	return devices
}

// HandleDevices lists the connected agents
func (h *StreamHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ActiveDevices())
}

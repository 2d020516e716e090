package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/envdash/internal/models"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const writeWait = 10 * time.Second

// UploaderConfig holds configuration for the uploader
type UploaderConfig struct {
	URL                  string
	AuthToken            string
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	HeartbeatInterval    time.Duration
	BatchSize            int
}

// UploaderStats counts what the uploader has sent and what the server answered
type UploaderStats struct {
	Connects int64
	Sent     int64 // readings written to the socket
	Acked    int64 // readings the server confirmed as stored
	Rejected int64 // error replies from the server
}

// Uploader drains the buffer over a WebSocket to the dashboard server,
// reconnecting with exponential backoff. Delivery is at-most-once: a reading
// written to the socket is not resent.
type Uploader struct {
	config UploaderConfig
	buffer *Buffer
	device *models.DeviceInfo
	logger zerolog.Logger
	notify chan struct{}

	stateMutex sync.RWMutex
	state      ConnectionState

	statsMutex sync.Mutex
	stats      UploaderStats

	currentReconnectInterval time.Duration
}

// NewUploader creates a new uploader
func NewUploader(config UploaderConfig, buffer *Buffer, device *models.DeviceInfo, logger zerolog.Logger) *Uploader {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = config.ReconnectInterval
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 10 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = time.Minute
	}
	return &Uploader{
		config:                   config,
		buffer:                   buffer,
		device:                   device,
		logger:                   logger,
		notify:                   make(chan struct{}, 1),
		state:                    StateDisconnected,
		currentReconnectInterval: config.ReconnectInterval,
	}
}

// Notify wakes the uploader after a payload was buffered
func (u *Uploader) Notify() {
	select {
	case u.notify <- struct{}{}:
	default:
	}
}

// setState safely updates the connection state
func (u *Uploader) setState(state ConnectionState) {
	u.stateMutex.Lock()
	defer u.stateMutex.Unlock()
	u.state = state
	u.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (u *Uploader) State() ConnectionState {
	u.stateMutex.RLock()
	defer u.stateMutex.RUnlock()
	return u.state
}

// IsConnected returns true if currently connected
func (u *Uploader) IsConnected() bool {
	return u.State() == StateConnected
}

// Stats returns a copy of the uploader counters
func (u *Uploader) Stats() UploaderStats {
	u.statsMutex.Lock()
	defer u.statsMutex.Unlock()
	return u.stats
}

func (u *Uploader) count(fn func(s *UploaderStats)) {
	u.statsMutex.Lock()
	fn(&u.stats)
	u.statsMutex.Unlock()
}

// Run connects and uploads until ctx is cancelled, reconnecting as needed
func (u *Uploader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := u.connect(ctx)
		if err != nil {
			u.logger.Warn().Err(err).Msg("Connection failed")
			u.waitBeforeReconnect(ctx)
			continue
		}

		err = u.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.logger.Info().Err(err).Msg("Connection lost, will reconnect")
		u.waitBeforeReconnect(ctx)
	}
}

// connect establishes a WebSocket connection to the server
func (u *Uploader) connect(ctx context.Context) (*websocket.Conn, error) {
	u.setState(StateConnecting)
	u.logger.Info().Str("url", u.config.URL).Msg("Connecting to server...")

	dialer := websocket.Dialer{
		HandshakeTimeout: u.config.ConnectTimeout,
	}

	header := http.Header{}
	if u.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+u.config.AuthToken)
	}

	conn, resp, err := dialer.DialContext(ctx, u.config.URL, header)
	if err != nil {
		u.setState(StateDisconnected)
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	u.setState(StateConnected)
	u.currentReconnectInterval = u.config.ReconnectInterval // reset backoff
	u.count(func(s *UploaderStats) { s.Connects++ })
	u.logger.Info().Msg("Connected to server")
	return conn, nil
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (u *Uploader) waitBeforeReconnect(ctx context.Context) {
	u.logger.Info().Dur("delay", u.currentReconnectInterval).Msg("Waiting before reconnect")
	timer := time.NewTimer(u.currentReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	u.currentReconnectInterval *= 2
	if u.currentReconnectInterval > u.config.MaxReconnectInterval {
		u.currentReconnectInterval = u.config.MaxReconnectInterval
	}
}

// serve runs the read and write loops until either fails or ctx is cancelled
func (u *Uploader) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return u.readLoop(conn)
	})
	g.Go(func() error {
		return u.writeLoop(gctx, conn)
	})
	g.Go(func() error {
		// Unblock the read loop once anything fails
		<-gctx.Done()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return nil
	})

	err := g.Wait()
	u.setState(StateDisconnected)
	return err
}

// readLoop handles server replies; it returns when the connection fails
func (u *Uploader) readLoop(conn *websocket.Conn) error {
	u.logger.Debug().Msg("Starting read loop")
	defer u.logger.Debug().Msg("Read loop stopped")

	deadline := u.config.PingInterval + u.config.PongTimeout
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		u.handleMessage(&msg)
	}
}

// handleMessage processes a message received from the server
func (u *Uploader) handleMessage(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeAck:
		var ack models.AckMessage
		if err := msg.UnmarshalPayload(&ack); err != nil {
			u.logger.Warn().Err(err).Msg("Malformed ack")
			return
		}
		u.count(func(s *UploaderStats) { s.Acked += int64(len(ack.IDs)) })
		u.logger.Debug().Int("count", len(ack.IDs)).Msg("Received ack")
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err != nil {
			u.logger.Warn().Err(err).Msg("Malformed error reply")
			return
		}
		u.count(func(s *UploaderStats) { s.Rejected++ })
		u.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Server error")
	default:
		u.logger.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
	}
}

// writeLoop is the only writer of data frames on conn
func (u *Uploader) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	u.logger.Debug().Msg("Starting write loop")
	defer u.logger.Debug().Msg("Write loop stopped")

	ping := time.NewTicker(u.config.PingInterval)
	defer ping.Stop()
	heartbeat := time.NewTicker(u.config.HeartbeatInterval)
	defer heartbeat.Stop()

	// Register, then drain whatever piled up while disconnected
	if err := u.sendHeartbeat(conn); err != nil {
		return err
	}
	if err := u.flush(conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.notify:
			if err := u.flush(conn); err != nil {
				return err
			}
		case <-heartbeat.C:
			if err := u.sendHeartbeat(conn); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// flush sends the buffer in batches. A batch that fails to send is requeued.
func (u *Uploader) flush(conn *websocket.Conn) error {
	for {
		batch := u.buffer.PopBatch(u.config.BatchSize)
		if len(batch) == 0 {
			return nil
		}

		var msg *models.Message
		var err error
		if len(batch) == 1 {
			msg = &models.Message{Type: models.MessageTypeReading, Payload: batch[0], Timestamp: time.Now()}
		} else {
			msg, err = models.NewMessage(models.MessageTypeBatch, models.BatchMessage{Readings: batch, Count: len(batch)})
			if err != nil {
				u.buffer.Requeue(batch)
				return fmt.Errorf("failed to create batch message: %w", err)
			}
		}

		if err := u.sendMessage(conn, msg); err != nil {
			u.buffer.Requeue(batch)
			return err
		}
		u.count(func(s *UploaderStats) { s.Sent += int64(len(batch)) })
		if len(batch) > 1 {
			u.logger.Info().Int("count", len(batch)).Msg("Sent batch of readings")
		}
	}
}

// sendHeartbeat reports device identity and buffer depth
func (u *Uploader) sendHeartbeat(conn *websocket.Conn) error {
	msg, err := models.NewMessage(models.MessageTypeHeartbeat, models.HeartbeatMessage{
		DeviceID:   u.device.ID,
		Uptime:     int64(u.device.Uptime().Seconds()),
		BufferSize: u.buffer.Size(),
	})
	if err != nil {
		return err
	}
	return u.sendMessage(conn, msg)
}

// sendMessage sends a message over the WebSocket
func (u *Uploader) sendMessage(conn *websocket.Conn, msg *models.Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

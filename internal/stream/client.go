package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionConfig parameterizes one streaming session.
type SessionConfig struct {
	// StartBlock is the first block the provider should deliver.
	StartBlock uint64
	// StopBlock is the last block, exclusive. Zero means open-ended.
	StopBlock uint64
	// OutputModule names the provider module whose output we consume.
	OutputModule string
	// Token is the bearer token presented on dial.
	Token string

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// DefaultSessionConfig returns the session timeouts used when the caller
// leaves them zero.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Dialer opens streaming sessions. The supervisor owns reconnect policy, so
// sessions themselves never reconnect.
type Dialer interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is one live connection to the block-streaming provider.
type Session interface {
	// Recv blocks until the next message arrives. It returns ErrSessionEnded
	// when the provider closes the session normally.
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Client dials the provider over websocket and opens sessions.
type Client struct {
	endpoint string
	cfg      SessionConfig
	logger   *zap.Logger
}

func NewClient(endpoint string, cfg SessionConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSessionConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	return &Client{endpoint: endpoint, cfg: cfg, logger: logger}
}

type sessionRequest struct {
	StartBlock   uint64 `json:"start_block"`
	StopBlock    uint64 `json:"stop_block,omitempty"`
	OutputModule string `json:"output_module"`
}

// Connect dials the endpoint and sends the session request. The provider
// starts emitting messages once the request is accepted.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("stream endpoint is required")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial stream provider: %w", err)
	}

	req := sessionRequest{
		StartBlock:   c.cfg.StartBlock,
		StopBlock:    c.cfg.StopBlock,
		OutputModule: c.cfg.OutputModule,
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send session request: %w", err)
	}

	c.logger.Info("stream session open",
		zap.Uint64("start_block", c.cfg.StartBlock),
		zap.Uint64("stop_block", c.cfg.StopBlock),
		zap.String("output_module", c.cfg.OutputModule),
	)

	return &wsSession{conn: conn, readTimeout: c.cfg.ReadTimeout, logger: c.logger}, nil
}

type wsSession struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *zap.Logger
}

func (s *wsSession) Recv(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(s.readTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		s.conn.SetReadDeadline(deadline)

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, ErrSessionEnded
			}
			return nil, fmt.Errorf("read stream message: %w", err)
		}

		msg, err := ParseMessage(data)
		if err != nil {
			if errors.Is(err, ErrUnknownMessage) {
				s.logger.Warn("skipping unknown stream message", zap.Error(err))
				continue
			}
			return nil, err
		}
		return msg, nil
	}
}

func (s *wsSession) Close() error {
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

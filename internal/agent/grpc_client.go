package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Gateway method names. Requests and replies are google.protobuf.Struct so the
// gateway contract needs no generated stubs on this side.
const (
	gatewayService      = "mutuelle.assistant.v1.AssistantGateway"
	methodOpenSession   = "/" + gatewayService + "/OpenSession"
	methodSendMessage   = "/" + gatewayService + "/SendMessage"
	methodCloseSession  = "/" + gatewayService + "/CloseSession"
	methodGenerate      = "/" + gatewayService + "/Generate"
	defaultRequestLimit = 2 * time.Minute
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errGatewayResponse          = errors.New("gateway returned error")
)

// GrpcClient provides a gRPC client to the assistant gateway service.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          DefaultConfig().GatewayAddr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient creates a new gRPC client to the assistant gateway.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = DefaultGrpcClientConfig().Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultGrpcClientConfig().ConnectTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to assistant gateway at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("assistant gateway at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to assistant gateway", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks if the gateway reports SERVING.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: gatewayService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check failed: status %s", resp.GetStatus())
	}
	return nil
}

// Open asks the gateway for a new conversation seeded with the given turns.
func (c *GrpcClient) Open(ctx context.Context, seed Seed) (Session, error) {
	history := make([]any, 0, 2)
	for _, turn := range seed.Turns() {
		history = append(history, map[string]any{"role": turn.Role, "text": turn.Text})
	}

	resp, err := c.invoke(ctx, methodOpenSession, map[string]any{
		"user_id": seed.UserID,
		"history": history,
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	sessionID := stringField(resp, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("open session: %w: missing session_id", errGatewayResponse)
	}

	c.logger.Debug("Gateway session opened", "user_id", seed.UserID, "session_id", sessionID)
	return &grpcSession{client: c, id: sessionID}, nil
}

// Generate answers a one-shot prompt.
func (c *GrpcClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.invoke(ctx, methodGenerate, map[string]any{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return textField(resp)
}

func (c *GrpcClient) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestLimit)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	if msg := stringField(resp, "error"); msg != "" {
		return nil, fmt.Errorf("%w: %s", errGatewayResponse, msg)
	}
	return resp, nil
}

type grpcSession struct {
	client *GrpcClient
	id     string

	mu     sync.Mutex
	closed bool
}

func (s *grpcSession) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}

	resp, err := s.client.invoke(ctx, methodSendMessage, map[string]any{
		"session_id": s.id,
		"message":    text,
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return textField(resp)
}

func (s *grpcSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.client.invoke(ctx, methodCloseSession, map[string]any{"session_id": s.id}); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func textField(s *structpb.Struct) (string, error) {
	text := stringField(s, "text")
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/gateway"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket keepalive defaults in seconds.
const (
	defaultPingInterval = 30
	defaultPongTimeout  = 10
)

// StateSource exposes the orchestrator's control state.
type StateSource interface {
	Snapshot() access.Snapshot
}

// ChainReader reads the audit chain.
type ChainReader interface {
	Blocks() ([]chain.Block, error)
	Print(w io.Writer) error
}

// ChainChecker validates the audit chain on demand.
type ChainChecker interface {
	Check() chain.Result
	Last() chain.Result
}

// CredentialDirectory manages authorised credentials.
type CredentialDirectory interface {
	List() []credential.Credential
	Get(alias string) (credential.Credential, bool)
	Add(ctx context.Context, c credential.Credential) (credential.Credential, error)
	Remove(ctx context.Context, alias string) error
}

// ThresholdStore holds the detection thresholds.
type ThresholdStore interface {
	All() map[threshold.Kind]string
	Set(ctx context.Context, kind threshold.Kind, value string) error
}

// Journal records operator actions.
type Journal interface {
	Record(e audit.Entry) bool
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
	Dropped() uint64
}

// Authenticator checks operator logins and bearer tokens.
type Authenticator interface {
	Login(username, password, code string) (auth.Token, error)
	Verify(token string) (*auth.Claims, error)
}

// BrokerStatus reports MQTT connectivity.
type BrokerStatus interface {
	IsConnected() bool
}

// DropCounter reports discarded link events.
type DropCounter interface {
	Dropped() uint64
}

// GatewayStatus reports the supervised BLE gateway process.
type GatewayStatus interface {
	Stats() gateway.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	RateLimit   config.RateLimitConfig
	Logger      *logging.Logger
	State       StateSource
	Chain       ChainReader
	Validator   ChainChecker
	Credentials CredentialDirectory
	Thresholds  ThresholdStore
	Auth        Authenticator
	Journal     Journal       // optional
	MQTT        BrokerStatus  // optional
	Links       DropCounter   // optional
	Gateway     GatewayStatus // optional
	Version     string
}

// Server is the operator HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	state       StateSource
	chain       ChainReader
	validator   ChainChecker
	credentials CredentialDirectory
	thresholds  ThresholdStore
	auth        Authenticator
	journal     Journal
	mqtt        BrokerStatus
	links       DropCounter
	gateway     GatewayStatus
	version     string
	startTime   time.Time

	hub     *Hub
	tickets *ticketStore
	limiter *clientLimiter

	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server. The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.State == nil:
		return nil, errors.New("api: state source is required")
	case deps.Chain == nil || deps.Validator == nil:
		return nil, errors.New("api: audit chain and validator are required")
	case deps.Credentials == nil:
		return nil, errors.New("api: credential directory is required")
	case deps.Thresholds == nil:
		return nil, errors.New("api: threshold store is required")
	case deps.Auth == nil:
		return nil, errors.New("api: authenticator is required")
	}

	if deps.WS.PingInterval <= 0 {
		deps.WS.PingInterval = defaultPingInterval
	}
	if deps.WS.PongTimeout <= 0 {
		deps.WS.PongTimeout = defaultPongTimeout
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		state:       deps.State,
		chain:       deps.Chain,
		validator:   deps.Validator,
		credentials: deps.Credentials,
		thresholds:  deps.Thresholds,
		auth:        deps.Auth,
		journal:     deps.Journal,
		mqtt:        deps.MQTT,
		links:       deps.Links,
		gateway:     deps.Gateway,
		version:     deps.Version,
		startTime:   time.Now(),
		tickets:     newTicketStore(),
	}
	s.hub = NewHub(deps.WS, deps.Logger)
	if deps.RateLimit.Enabled {
		s.limiter = newClientLimiter(deps.RateLimit.RequestsPerMinute)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanupLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// cleanupLoop expires WebSocket tickets and idle rate limiters.
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tickets.expire(now)
			if s.limiter != nil {
				s.limiter.prune(now)
			}
		}
	}
}

// record writes an operator action to the journal, if one is configured.
func (s *Server) record(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.journal == nil {
		return
	}
	s.journal.Record(audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     operatorFrom(r.Context()),
		Source:     audit.SourceAPI,
		Details:    details,
	})
}

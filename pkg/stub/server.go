// Package stub is a local emulator of the CLOB HTTP API. It issues
// credentials, serves instrument metadata and accepts orders after checking
// both the L2 request signature and the order's EIP-712 signature.
package stub

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/clob"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// DefaultMaxSkew bounds how far a request timestamp may be from server time.
const DefaultMaxSkew = 30 * time.Second

// Options configures a Server.
type Options struct {
	ChainID        int64
	KeyMode        auth.KeyMode
	MaxSkew        time.Duration
	OrderPath      string
	AllowedOrigins []string
	Clock          util.Clock
	Logger         *zap.Logger
}

type issued struct {
	address common.Address
	creds   auth.Credentials
	key     []byte
}

// Server is the emulator. The zero value is not usable; call NewServer.
type Server struct {
	opts   Options
	router *mux.Router
	hub    *Hub
	logger *zap.Logger

	mu        sync.Mutex
	markets   map[string]Market
	byAddress map[common.Address]*issued
	byKey     map[string]*issued
	orders    []AcceptedOrder
	counters  Counters
}

// NewServer creates an emulator for opts.ChainID (default 137).
func NewServer(opts Options) *Server {
	if opts.ChainID == 0 {
		opts.ChainID = 137
	}
	if opts.MaxSkew == 0 {
		opts.MaxSkew = DefaultMaxSkew
	}
	if opts.OrderPath == "" {
		opts.OrderPath = clob.DefaultOrderPath
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:      opts,
		router:    mux.NewRouter(),
		hub:       NewHub(opts.Logger),
		logger:    opts.Logger,
		markets:   make(map[string]Market),
		byAddress: make(map[common.Address]*issued),
		byKey:     make(map[string]*issued),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc(clob.PathDeriveAPIKey, s.handleDeriveAPIKey).Methods(http.MethodGet)

	s.router.HandleFunc(clob.PathTickSize, s.handleTickSize).Methods(http.MethodGet)
	s.router.HandleFunc(clob.PathNegRisk, s.handleNegRisk).Methods(http.MethodGet)
	s.router.HandleFunc(clob.PathFeeRate, s.handleFeeRate).Methods(http.MethodGet)

	s.router.HandleFunc(s.opts.OrderPath, s.handlePostOrder).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// AddMarket registers or replaces an instrument.
func (s *Server) AddMarket(m Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.TokenID] = m
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			auth.HeaderAPIKey, auth.HeaderSignature, auth.HeaderTimestamp,
			auth.HeaderPassphrase, auth.HeaderSignatureType,
			auth.HeaderL1Address, auth.HeaderL1Signature, auth.HeaderL1Timestamp, auth.HeaderL1Nonce,
		},
	})
	return c.Handler(s.router)
}

// Hub exposes the websocket hub; it must be running (see Run) for /ws.
func (s *Server) Hub() *Hub { return s.hub }

// Serve runs the hub and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("stub_listening", zap.String("addr", ln.Addr().String()), zap.Int64("chain_id", s.opts.ChainID))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Orders returns accepted orders in arrival order.
func (s *Server) Orders() []AcceptedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AcceptedOrder(nil), s.orders...)
}

func (s *Server) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// issue returns the credentials bound to addr, creating them on first use.
// Derivation is deterministic per address for the life of the server.
func (s *Server) issue(addr common.Address) (*issued, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.byAddress[addr]; ok {
		return it, nil
	}

	secret := make([]byte, 32)
	pass := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if _, err := rand.Read(pass); err != nil {
		return nil, err
	}
	creds := auth.Credentials{
		APIKey:     uuid.NewString(),
		Secret:     auth.NewSecret(base64.URLEncoding.EncodeToString(secret)),
		Passphrase: auth.NewSecret(hex.EncodeToString(pass)),
	}
	key, err := auth.DecodeKey(creds.Secret, s.opts.KeyMode)
	if err != nil {
		return nil, err
	}

	it := &issued{address: addr, creds: creds, key: key}
	s.byAddress[addr] = it
	s.byKey[creds.APIKey] = it
	return it, nil
}

func (s *Server) lookupKey(apiKey string) (*issued, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byKey[apiKey]
	return it, ok
}

func (s *Server) market(tokenID string) (Market, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[tokenID]
	return m, ok
}

func (s *Server) count(f func(*Counters)) {
	s.mu.Lock()
	f(&s.counters)
	s.mu.Unlock()
}

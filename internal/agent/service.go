// Package agent runs one edgeio process: a host, its relay and the admin
// HTTP surface, until a shutdown signal arrives.
package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/edgeio/internal/config"
	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/observability"
	"github.com/danmuck/edgeio/internal/relay"
	"github.com/rs/zerolog/log"
)

const serviceName = "edgeio"

// Service owns the process lifecycle around one Relay.
type Service struct {
	cfg   config.Config
	host  *host.Static
	relay *relay.Relay

	mu        sync.Mutex
	adminAddr string
	beats     uint64
}

// NewService builds a Service around a Static host reporting
// cfg.HostVersion. opts are passed through to relay.New.
func NewService(cfg config.Config, opts ...relay.Option) (*Service, error) {
	h := host.NewStatic(cfg.HostVersion)
	opts = append([]relay.Option{relay.WithSessionConfig(cfg.Session)}, opts...)
	r, err := relay.New(h, cfg.Session.Token, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, host: h, relay: r}, nil
}

func (s *Service) Host() *host.Static {
	return s.host
}

func (s *Service) Relay() *relay.Relay {
	return s.relay
}

// AdminAddr reports the bound admin address once the listener is up.
func (s *Service) AdminAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAddr
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve starts the relay and blocks until ctx is done or the admin server
// fails.
func (s *Service) Serve(ctx context.Context) error {
	s.relay.Start()
	defer func() {
		if err := s.relay.Close(); err != nil {
			log.Warn().Msgf("agent.Service.serve relay close err=%v", err)
		}
	}()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.AdminAddr))
		if err != nil {
			return err
		}
		go func() {
			adminErr <- s.serveAdmin(ctx, ln)
		}()
	}

	var tick <-chan time.Time
	if s.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent.Service.serve shutdown")
			return nil
		case err := <-adminErr:
			if err != nil {
				return err
			}
		case <-tick:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	s.mu.Lock()
	s.beats++
	seq := s.beats
	s.mu.Unlock()

	snap := s.relay.Session().Snapshot()
	log.Debug().Msgf("agent.Service.heartbeat seq=%d state=%s", seq, snap.State)
	s.host.Emit(host.EventHeartbeat, map[string]any{
		"seq": seq,
		"at":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) serveAdmin(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.adminAddr = ln.Addr().String()
	s.mu.Unlock()
	log.Info().Msgf("agent.admin listening addr=%q", ln.Addr().String())

	srv := &http.Server{
		Handler: observability.NewAdminRouter(observability.AdminConfig{
			Service:   serviceName,
			Version:   s.host.Version(),
			Token:     s.cfg.AdminToken,
			Status:    func() any { return s.relay.Status() },
			Reconnect: s.relay.Session().Reconnect,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

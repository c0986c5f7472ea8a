package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/config"
	"flowbridge/pkg/dialog"
	"flowbridge/pkg/metrics"
)

// Service runs every channel adapter against one orchestrator and serves
// health, readiness and metrics.
type Service struct {
	cfg          *config.Config
	log          *slog.Logger
	events       *bus.EventBus
	metrics      *metrics.Metrics
	orchestrator *Orchestrator
	channels     []channel.Adapter
	health       *health
}

func NewService(cfg *config.Config, adapters []channel.Adapter, client dialog.Client, log *slog.Logger) (*Service, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config is required")
	case len(adapters) == 0:
		return nil, errors.New("at least one channel adapter is required")
	case client == nil:
		return nil, errors.New("dialog client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	events := bus.NewEventBus()
	m := metrics.NewMetrics()
	return &Service{
		cfg:          cfg,
		log:          log.With("component", "gateway.service"),
		events:       events,
		metrics:      m,
		orchestrator: NewOrchestrator(client, events, m, log),
		channels:     adapters,
		health:       newHealth(names...),
	}, nil
}

// Events exposes the turn lifecycle bus.
func (s *Service) Events() *bus.EventBus {
	return s.events
}

// Run blocks until ctx is cancelled or a channel or the status server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.events.Close()

	s.health.markStarted(time.Now().UTC())

	events, unsubscribe := s.events.Subscribe(ctx, 0)
	defer unsubscribe()
	go func() {
		for event := range events {
			s.health.observe(event)
		}
	}()

	failures := make(chan error, len(s.channels)+1)
	go s.serveStatus(ctx, failures)

	for _, adapter := range s.channels {
		name := adapter.Name()
		s.health.setChannel(name, true, nil)

		go func() {
			err := adapter.Run(ctx, s.orchestrator.HandleInbound)
			s.health.setChannel(name, false, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				failures <- fmt.Errorf("run %s channel: %w", name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failures:
		return err
	}
}

func (s *Service) statusAddr() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = config.DefaultGatewayHost
	}
	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = config.DefaultGatewayPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Service) serveStatus(ctx context.Context, failures chan<- error) {
	server := &http.Server{
		Addr:              s.statusAddr(),
		Handler:           statusMux(s.health, s.metrics, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server listening", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		failures <- fmt.Errorf("start status server: %w", err)
	}
}

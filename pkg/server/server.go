package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const stopWaitTime = 5 * time.Second

// Config is the env-parsed HTTP server surface shared by both daemons.
type Config struct {
	Host string `env:"HOST" envDefault:""`
	Port string `env:"PORT" envDefault:""`
}

// Server is a stoppable long-running component.
type Server interface {
	Start() error
	Stop() error
}

var _ Server = (*httpServer)(nil)

type httpServer struct {
	ctx     context.Context
	cancel  context.CancelFunc
	name    string
	address string
	server  *http.Server
	logger  *slog.Logger
}

func NewServer(ctx context.Context, cancel context.CancelFunc, name string, cfg Config, handler http.Handler, logger *slog.Logger) Server {
	address := net.JoinHostPort(cfg.Host, cfg.Port)

	return &httpServer{
		ctx:     ctx,
		cancel:  cancel,
		name:    name,
		address: address,
		server:  &http.Server{Addr: address, Handler: handler},
		logger:  logger,
	}
}

func (s *httpServer) Start() error {
	errCh := make(chan error, 1)
	s.logger.Info(fmt.Sprintf("%s service started using http on %s", s.name, s.address))

	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-s.ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (s *httpServer) Stop() error {
	defer s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		if cerr := s.server.Close(); cerr != nil {
			return errors.Join(err, cerr)
		}

		return err
	}
	s.logger.Info(fmt.Sprintf("%s service shutdown of http at %s", s.name, s.address))

	return nil
}

// StopSignalHandler blocks until the context is cancelled or an
// interrupt arrives, then stops the given servers.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, svcName string, servers ...Server) error {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)

	select {
	case s := <-sig:
		defer cancel()
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, s))

		var err error
		for _, srv := range servers {
			if serr := srv.Stop(); serr != nil {
				err = errors.Join(err, serr)
			}
		}

		return err
	case <-ctx.Done():
		return nil
	}
}

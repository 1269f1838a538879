package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Service is one long-running part of a binary. It must return once ctx is
// done.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// ServiceManager runs services side by side. The first one to fail, or a
// shutdown signal, stops all of them.
type ServiceManager struct {
	services []Service
}

// NewServiceManager creates a new service manager
func NewServiceManager(services ...Service) *ServiceManager {
	return &ServiceManager{services: services}
}

// Add registers another service
func (sm *ServiceManager) Add(name string, run func(ctx context.Context) error) {
	sm.services = append(sm.services, Service{Name: name, Run: run})
}

// Run starts every service and waits for all of them to return
func (sm *ServiceManager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, svc := range sm.services {
		g.Go(func() error {
			log.Info().Str("service", svc.Name).Msg("Starting service")
			err := svc.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("service", svc.Name).Msg("Service exited with error")
				return err
			}
			log.Info().Str("service", svc.Name).Msg("Service stopped")
			return nil
		})
	}

	return g.Wait()
}

// HTTPService serves srv until ctx is done, then shuts it down within
// shutdownTimeout.
func HTTPService(srv *http.Server, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

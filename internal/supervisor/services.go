// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/scheduler"
)

// SchedulerService adapts the sync scheduler to suture.Service.
type SchedulerService struct {
	sched *scheduler.Scheduler
}

// NewSchedulerService wraps a scheduler for supervision.
func NewSchedulerService(sched *scheduler.Scheduler) *SchedulerService {
	return &SchedulerService{sched: sched}
}

// Serve runs the scheduler loop until the context is canceled.
func (s *SchedulerService) Serve(ctx context.Context) error {
	return s.sched.Run(ctx)
}

func (s *SchedulerService) String() string { return "sync-scheduler" }

// HTTPService adapts an http.Server to suture.Service with graceful
// shutdown.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server for supervision.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve listens until the context is canceled, then shuts the server down
// gracefully. A listen failure is returned so the supervisor can retry.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	logging.Info().Str("addr", s.server.Addr).Msg("http server listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

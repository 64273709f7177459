// Package server assembles the memory service: record store, optional
// embedding stack, retrieval engine, background runners and the HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/plugin/ai"
	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/server/internal/observability"
	"github.com/mnemo-labs/mnemod/server/retrieval"
	apiv1 "github.com/mnemo-labs/mnemod/server/router/api/v1"
	"github.com/mnemo-labs/mnemod/server/router/rss"
	"github.com/mnemo-labs/mnemod/server/runner/backfill"
	"github.com/mnemo-labs/mnemod/server/runner/maintenance"
	"github.com/mnemo-labs/mnemod/server/service/privacy"
	"github.com/mnemo-labs/mnemod/server/stats"
	"github.com/mnemo-labs/mnemod/store"
)

// shutdownTimeout bounds the graceful stop: the HTTP listener first, then
// the runners, then in-flight embedding writes.
const shutdownTimeout = 30 * time.Second

// vectorIndexDirName is the subdirectory of the data directory holding the
// persisted vector index.
const vectorIndexDirName = "vectors"

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo

	// embedder and index stay nil without a usable embedding provider; the
	// service then runs lexical-only.
	embedder ai.EmbeddingService
	index    vector.Index

	apiV1     *apiv1.APIV1Service
	retention *privacy.Retention

	runnerCancel context.CancelFunc
	runnerWG     sync.WaitGroup

	// shutdownRequests receives one signal per accepted POST /shutdown.
	shutdownRequests chan struct{}
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile:          profile,
		Store:            store,
		shutdownRequests: make(chan struct{}, 1),
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.CORS())
	echoServer.Use(requestContextMiddleware)
	s.echoServer = echoServer

	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding config")
	}
	if aiConfig.Enabled {
		embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create embedding service")
		}
		index, err := vector.NewChromemIndex(filepath.Join(profile.Data, vectorIndexDirName), embedder.Dimensions())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open vector index")
		}
		s.embedder = embedder
		s.index = index
		if err := s.restoreIndex(ctx); err != nil {
			return nil, err
		}
	} else {
		slog.Info("no usable embedding provider, running lexical-only")
	}

	collector := stats.NewCollector()
	engine := retrieval.NewEngine(store, s.embedder, s.index, collector)

	s.retention = privacy.NewRetention(store, s.index, privacy.RetentionConfig{
		Enabled: profile.RetentionEnabled,
		Days:    profile.RetentionDays,
		Max:     profile.RetentionMax,
	})

	apiV1Service := apiv1.NewAPIV1Service(profile, store, engine, s.embedder, s.index, collector)
	apiV1Service.OnShutdown = s.requestShutdown
	apiV1Service.Register(echoServer)
	s.apiV1 = apiV1Service

	rss.NewRSSService(profile, store).RegisterRoutes(echoServer)

	return s, nil
}

// Start launches the background runners and serves HTTP. It blocks until
// the listener fails or Shutdown closes it.
func (s *Server) Start(ctx context.Context) error {
	s.startRunners(ctx)

	slog.Info("server started",
		slog.String("address", s.Profile.Addr),
		slog.Int("port", s.Profile.Port),
		slog.String("mode", s.Profile.Mode),
		slog.String("instance", s.apiV1.InstanceID),
		slog.String("version", s.Profile.Version))

	if err := s.echoServer.Start(fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start echo server")
	}
	return nil
}

// Shutdown stops the listener, the runners and the stores, draining
// in-flight embedding writes on the way down.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown echo server gracefully", slog.String("error", err.Error()))
	}

	if s.runnerCancel != nil {
		s.runnerCancel()
	}
	s.runnerWG.Wait()

	s.apiV1.DrainWrites()

	if s.index != nil {
		if err := s.index.Close(); err != nil {
			slog.Error("failed to close vector index", slog.String("error", err.Error()))
		}
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}

	slog.Info("server stopped")
}

// ShutdownRequested signals once per accepted POST /shutdown so the caller
// can drive the same stop path as an OS signal.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownRequests
}

func (s *Server) requestShutdown() {
	select {
	case s.shutdownRequests <- struct{}{}:
	default:
	}
}

// startRunners launches the backfill and retention loops. They stop when
// Shutdown cancels their context.
func (s *Server) startRunners(ctx context.Context) {
	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancel = cancel

	if s.embedder != nil && s.index != nil {
		backfillRunner := backfill.NewRunner(s.Store, s.embedder, s.index)
		s.runnerWG.Add(1)
		go func() {
			defer s.runnerWG.Done()
			backfillRunner.Run(runnerCtx)
		}()
	}

	maintenanceRunner := maintenance.NewRunner(s.retention)
	s.runnerWG.Add(1)
	go func() {
		defer s.runnerWG.Done()
		maintenanceRunner.Run(runnerCtx)
	}()
}

// restoreIndex reloads the vector index from the store's embedding mirror
// rows when the index comes up empty but mirror rows exist. The relational
// store is the source of truth; the index is a rebuildable cache.
func (s *Server) restoreIndex(ctx context.Context) error {
	if s.index.Count() > 0 {
		return nil
	}

	embeddings, err := s.Store.ListMemoryEmbeddings(ctx, &store.FindMemoryEmbedding{})
	if err != nil {
		return errors.Wrap(err, "failed to list embedding mirror rows")
	}

	restored := 0
	for _, embedding := range embeddings {
		if embedding.Dims != s.index.Dimensions() {
			// Written under a different model; the backfill runner re-embeds.
			continue
		}
		if err := s.index.Upsert(ctx, embedding.MemoryID, embedding.Embedding); err != nil {
			return errors.Wrapf(err, "failed to restore vector for memory %d", embedding.MemoryID)
		}
		restored++
	}
	if restored > 0 {
		slog.Info("vector index restored from store", slog.Int(observability.LogFieldCount, restored))
	}
	return nil
}

// requestContextMiddleware attaches a request-scoped logging context so every
// log line for one request carries the same request id.
func requestContextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqCtx := observability.NewRequestContext(slog.Default(), "api")
		ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

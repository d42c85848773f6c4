package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eenlars/evoflow/internal/log"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// Server exposes the read-side API over running and finished evolution runs.
// It never mutates runs; all writes go through the engine.
type Server struct {
	store    storage.Store
	registry *observer.ObserverRegistry
	echo     *echo.Echo
}

func NewServer(store storage.Store, registry *observer.ObserverRegistry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("evoflow"))

	s := &Server{store: store, registry: registry, echo: e}

	e.GET("/healthz", s.health)
	e.GET("/runs", s.listRuns)
	e.GET("/runs/:id", s.getRun)
	e.GET("/runs/:id/generations", s.listGenerations)
	e.GET("/runs/:id/generations/:genID/versions", s.listGenerationVersions)
	e.GET("/runs/:id/events", s.listEvents)
	e.GET("/runs/:id/events/stream", s.streamEvents)

	return s
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(port string) error {
	log.GetLogger().Infof("Starting evoflow API server on :%s", port)
	return s.echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// runView decorates the stored run with its read-side classification: a run
// stuck in "running" past the stale threshold reports as stale without the
// stored status changing.
type runView struct {
	models.Run
	EffectiveStatus models.RunStatus `json:"effective_status"`
}

func toRunView(r models.Run) runView {
	return runView{Run: r, EffectiveStatus: r.EffectiveStatus(time.Now())}
}

func (s *Server) listRuns(c echo.Context) error {
	runs, err := s.store.ListRuns()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]runView, len(runs))
	for i, r := range runs {
		views[i] = toRunView(r)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) getRun(c echo.Context) error {
	run, err := s.store.GetRun(c.Param("id"))
	if err == storage.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toRunView(run))
}

func (s *Server) listGenerations(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.store.GetRun(id); err == storage.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	gens, err := s.store.ListGenerations(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, gens)
}

func (s *Server) listGenerationVersions(c echo.Context) error {
	versions, err := s.store.ListGenerationVersions(c.Param("genID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, versions)
}

// listEvents replays the buffered events of an active run, optionally only
// those after ?since=<seq>. Finished runs have no observer anymore and
// yield 404.
func (s *Server) listEvents(c echo.Context) error {
	obs, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active observer for run")
	}
	return c.JSON(http.StatusOK, obs.EventsSince(sinceParam(c)))
}

func sinceParam(c echo.Context) uint64 {
	raw := c.QueryParam("since")
	if raw == "" {
		return 0
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return since
}

// streamEvents pushes the run's events over SSE: first the buffered history,
// then live events until the client disconnects or the observer closes.
func (s *Server) streamEvents(c echo.Context) error {
	obs, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active observer for run")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	events, cancel := obs.Subscribe()
	defer cancel()

	// Replay history before live events so late subscribers see the whole run.
	lastSeq := sinceParam(c)
	for _, e := range obs.EventsSince(lastSeq) {
		if err := writeSSE(resp, e); err != nil {
			return nil
		}
		lastSeq = e.Seq
	}
	resp.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case e, open := <-events:
			if !open {
				return nil
			}
			if e.Seq <= lastSeq {
				continue
			}
			if err := writeSSE(resp, e); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func writeSSE(resp *echo.Response, e observer.AgentEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(resp, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, payload)
	return err
}

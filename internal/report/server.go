package report

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/platform/db"
	"github.com/ehr/migrate/internal/platform/middleware"
	"github.com/ehr/migrate/pkg/pagination"
)

// StoreOpener opens the journal of a resource. The server closes every
// store it opens.
type StoreOpener func(resource string) (journal.Store, error)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithReportPath maps a resource to its validation report so that summaries
// include rejected rows.
func WithReportPath(fn func(resource string) string) ServerOption {
	return func(s *Server) { s.reportPath = fn }
}

// WithDatabase adds /health/db for the Postgres journal backend.
func WithDatabase(p db.Pinger) ServerOption {
	return func(s *Server) { s.database = p }
}

// Server exposes journal summaries over HTTP for monitoring long loads.
type Server struct {
	echo       *echo.Echo
	resources  map[string]bool
	order      []string
	open       StoreOpener
	reportPath func(string) string
	database   db.Pinger
	logger     zerolog.Logger
}

// NewServer serves summaries of resources.
func NewServer(resources []string, open StoreOpener, opts ...ServerOption) *Server {
	s := &Server{
		resources: make(map[string]bool, len(resources)),
		order:     resources,
		open:      open,
		logger:    zerolog.Nop(),
	}
	for _, r := range resources {
		s.resources[r] = true
	}
	for _, o := range opts {
		o(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.database != nil {
		e.GET("/health/db", db.HealthHandler(s.database))
	}

	v1 := e.Group("/api/v1")
	v1.GET("/resources", s.listSummaries)
	v1.GET("/resources/:resource", s.getSummary)
	v1.GET("/resources/:resource/journal/:kind", s.listEntries)

	s.echo = e
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting report server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down report server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) summarize(ctx context.Context, resource string) (*ResourceSummary, error) {
	store, err := s.open(resource)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sum, err := Summarize(ctx, resource, store)
	if err != nil {
		return nil, err
	}
	if s.reportPath != nil {
		if err := sum.AddValidation(s.reportPath(resource)); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func (s *Server) listSummaries(c echo.Context) error {
	out := make([]*ResourceSummary, 0, len(s.order))
	for _, r := range s.order {
		sum, err := s.summarize(c.Request().Context(), r)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, sum)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSummary(c echo.Context) error {
	resource := c.Param("resource")
	if !s.resources[resource] {
		return echo.NewHTTPError(http.StatusNotFound, "unknown resource: "+resource)
	}
	sum, err := s.summarize(c.Request().Context(), resource)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

type entryView struct {
	SourceID        string     `json:"source_id"`
	SourcePatientID string     `json:"source_patient_id,omitempty"`
	TargetPatientID string     `json:"target_patient_id,omitempty"`
	TargetID        string     `json:"target_id,omitempty"`
	Message         string     `json:"message,omitempty"`
	Extra           []string   `json:"extra,omitempty"`
	At              *time.Time `json:"at,omitempty"`
}

type entryPage struct {
	Total   int         `json:"total"`
	Entries []entryView `json:"entries"`
	Next    string      `json:"next,omitempty"`
}

func validKind(k journal.Kind) bool {
	for _, known := range journal.Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (s *Server) listEntries(c echo.Context) error {
	resource := c.Param("resource")
	if !s.resources[resource] {
		return echo.NewHTTPError(http.StatusNotFound, "unknown resource: "+resource)
	}
	kind := journal.Kind(c.Param("kind"))
	if !validKind(kind) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown journal: "+string(kind))
	}

	count, _ := strconv.Atoi(c.QueryParam("_count"))
	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	page := pagination.New(count, offset)

	store, err := s.open(resource)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer store.Close()

	entries, err := store.Entries(c.Request().Context(), kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := entryPage{Total: len(entries), Entries: []entryView{}}
	end := page.Offset + page.Limit
	if end > len(entries) {
		end = len(entries)
	}
	for i := page.Offset; i < end; i++ {
		e := entries[i]
		v := entryView{
			SourceID:        e.SourceID,
			SourcePatientID: e.SourcePatientID,
			TargetPatientID: e.TargetPatientID,
			TargetID:        e.TargetID,
			Message:         e.Message,
			Extra:           e.Extra,
		}
		if !e.At.IsZero() {
			at := e.At
			v.At = &at
		}
		out.Entries = append(out.Entries, v)
	}
	if end < len(entries) {
		next := url.URL{Path: c.Request().URL.Path, RawQuery: page.Next().Apply(nil).Encode()}
		out.Next = next.String()
	}
	return c.JSON(http.StatusOK, out)
}

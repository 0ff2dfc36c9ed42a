package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/poolpilot/alerts/internal/poolpilot/service"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

const (
	tokenHeader     = "X-Notify-Token"
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Trigger starts one dispatch run on behalf of an external caller.
// *service.Dispatcher satisfies it.
type Trigger interface {
	Trigger(ctx context.Context, req service.TriggerRequest) (types.RunSummary, error)
}

// TokenChecker authenticates read-only endpoints with the same secret as
// /notify.
type TokenChecker func(token string) bool

type Dependencies struct {
	Logger     *zap.Logger
	Addr       string
	Dispatcher Trigger
	RunLog     store.RunLogStore // optional; /v1/runs is not mounted without it
	CheckToken TokenChecker
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	dispatcher Trigger
	runLog     store.RunLogStore
	checkToken TokenChecker
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger.Named("http"),
		mux:        mux,
		dispatcher: d.Dispatcher,
		runLog:     d.RunLog,
		checkToken: d.CheckToken,
	}

	mux.HandleFunc("POST /notify", s.handleNotify)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if d.RunLog != nil {
		mux.HandleFunc("GET /v1/runs", s.handleRuns)
	}

	handler := loggingMiddleware(s.logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	return r.Header.Get(tokenHeader)
}

// parseMaxAge reads the optional max_age query parameter in minutes.  A
// missing parameter returns nil so the configured default applies.
func parseMaxAge(r *http.Request) (*time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("max_age"))
	if raw == "" {
		return nil, nil
	}
	mins, err := strconv.Atoi(raw)
	if err != nil || mins < 0 {
		return nil, errors.New("max_age must be a non-negative number of minutes")
	}
	d := time.Duration(mins) * time.Minute
	return &d, nil
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	maxAge, err := parseMaxAge(r)
	if err != nil {
		// An unauthenticated caller learns nothing about its parameters.
		if s.checkToken == nil || !s.checkToken(token) {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	summary, err := s.dispatcher.Trigger(r.Context(), service.TriggerRequest{
		Token:  token,
		MaxAge: maxAge,
		Source: types.SourceHTTP,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		s.logger.Error("notify error", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	s.respond(w, r, http.StatusOK, summary, func() (protoMessage, error) { return summaryToStruct(summary) })
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{OK: true}
	s.respond(w, r, http.StatusOK, resp, func() (protoMessage, error) { return healthToStruct(resp) })
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.checkToken == nil || !s.checkToken(requestToken(r)) {
		s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	recs, err := s.runLog.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs error", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := runLogResponse(recs)
	s.respond(w, r, http.StatusOK, resp, func() (protoMessage, error) { return runLogToStruct(resp) })
}

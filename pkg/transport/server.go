// Package transport expõe o servidor HTTP de administração do orquestrador:
// health check e operações manuais sobre a tabela de controle.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/raywall/fast-doc-pipeline/pkg/controltable"
	"github.com/raywall/fast-doc-pipeline/pkg/orchestrator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxBodyBytes     = 64 << 10
)

// Repository é o subconjunto da tabela de controle usado pelas rotas.
type Repository interface {
	Get(ctx context.Context, id string) (*controltable.DocumentRecord, error)
	ListByStatus(ctx context.Context, status controltable.Status, limit int32, token string) ([]controltable.DocumentRecord, string, error)
	Register(ctx context.Context, rec controltable.DocumentRecord) (*controltable.DocumentRecord, error)
	Retry(ctx context.Context, id string) (*controltable.DocumentRecord, error)
}

// StatsSource fornece o estado do loop para o /health.
type StatsSource interface {
	Stats() orchestrator.Stats
}

type registerRequest struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

type listResponse struct {
	Items []controltable.DocumentRecord `json:"items"`
	Count int                           `json:"count"`
	Next  string                        `json:"next,omitempty"`
}

type healthResponse struct {
	Status string             `json:"status"`
	Stats  orchestrator.Stats `json:"stats"`
}

type Server struct {
	repo     Repository
	stats    StatsSource
	log      zerolog.Logger
	validate *validator.Validate
	router   *mux.Router
	srv      *http.Server
	now      func() time.Time
}

// NewServer monta as rotas. port 0 deixa o servidor sem listener (útil em testes via Handler).
func NewServer(repo Repository, stats StatsSource, port int, logger zerolog.Logger) *Server {
	s := &Server{
		repo:     repo,
		stats:    stats,
		log:      logger,
		validate: validator.New(),
		router:   mux.NewRouter(),
		now:      time.Now,
	}

	s.router.Use(ObservabilityMiddleware(logger))
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/documents", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/documents/{id}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/documents/{id}/retry", s.handleRetry).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start bloqueia até Shutdown. Não devolve erro no encerramento normal.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("servidor admin ouvindo")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transport: listen %s: %w", s.srv.Addr, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if s.stats != nil {
		resp.Stats = s.stats.Stats()
		if resp.Stats.ShuttingDown {
			resp.Status = "shutting_down"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := controltable.ParseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit deve ser um inteiro positivo")
			return
		}
		limit = min(n, maxListLimit)
	}

	items, next, err := s.repo.ListByStatus(r.Context(), status, int32(limit), q.Get("next"))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	if items == nil {
		items = []controltable.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items), Next: next})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bucket e key são obrigatórios")
		return
	}

	rec, err := s.repo.Register(r.Context(), controltable.NewRecord(req.Bucket, req.Key, 0, "", s.now()))
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().Str("document_id", rec.DocumentID).Str("source", rec.SourceURI()).Msg("documento registrado manualmente")
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	// Retry sozinho não distingue inexistente de não-FAILED
	if _, err := s.repo.Get(r.Context(), id); err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	rec, err := s.repo.Retry(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().Str("document_id", id).Msg("documento recolocado na fila")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, controltable.ErrNotFound):
		writeError(w, http.StatusNotFound, "documento não encontrado")
	case errors.Is(err, controltable.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "documento já registrado")
	case errors.Is(err, controltable.ErrNotFailed):
		writeError(w, http.StatusConflict, "documento não está FAILED")
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("erro na tabela de controle")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/parser"
	"rekapin/backend/internal/service"
)

const (
	defaultTokenRate = "5-M"
	maxBodyBytes     = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	tokenLimiter  *limiter.Limiter
	logger        *slog.Logger
}

type Options struct {
	AllowedOrigin string
	// TokenRate limits token requests per client IP, in limiter notation such as "5-M".
	TokenRate string
	Logger    *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) (*API, error) {
	formatted := opts.TokenRate
	if formatted == "" {
		formatted = defaultTokenRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		tokenLimiter:  limiter.New(memory.NewStore(), rate),
		logger:        logger,
	}, nil
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/token", a.handleToken)

	mux.HandleFunc("/api/v1/messages", a.requireAuth(a.handleMessages, RoleBridge))
	mux.HandleFunc("/api/v1/commands", a.requireAuth(a.handleCommands, RoleBridge))
	mux.HandleFunc("/api/v1/recap", a.requireAuth(a.handleRecap, RoleBridge, RoleViewer))
	mux.HandleFunc("/api/v1/totals", a.requireAuth(a.handleTotals, RoleBridge, RoleViewer))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	limit, err := a.tokenLimiter.Get(r.Context(), clientKey(r))
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if limit.Reached {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many token requests"))
		return
	}

	var req domain.TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.IssueToken(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMessages is the ingestion entrypoint for the chat bridge. The status
// code tells the bridge whether to reply, retry or stay quiet.
func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var msg domain.InboundMessage
	if err := decodeJSON(r, &msg); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.Ingest(r.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMessage):
			a.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, service.ErrPersistence):
			a.writeError(w, http.StatusServiceUnavailable, err)
		default:
			a.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	resp := domain.IngestResponse{
		Outcome:       result.Outcome,
		Verdict:       domain.ViewOf(result.Verdict),
		TransactionID: result.TransactionID,
	}
	writeJSON(w, ingestStatus(result.Outcome), resp)
}

func ingestStatus(outcome domain.IngestOutcome) int {
	switch outcome {
	case domain.OutcomeRecorded:
		return http.StatusCreated
	case domain.OutcomeRejected:
		return http.StatusUnprocessableEntity
	case domain.OutcomeIgnored:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

func (a *API) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var cmd domain.CommandRequest
	if err := decodeJSON(r, &cmd); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !parser.IsCommand(cmd.Text) {
		a.writeError(w, http.StatusBadRequest, errors.New("text is not a command"))
		return
	}

	report, err := a.service.HandleCommand(r.Context(), cmd)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.RecapRequest
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, ok := parser.ParseRecapDate(raw)
		if !ok {
			a.writeError(w, http.StatusBadRequest, errors.New("date must be DDMMYYYY"))
			return
		}
		req.Date = &date
	}

	report, err := a.service.Recap(r.Context(), req, r.URL.Query().Get("location"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	totals, err := a.service.Totals(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCommand):
		a.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrPersistence):
		a.writeError(w, http.StatusServiceUnavailable, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(recorder, r)
		a.logger.Info("http request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.Duration("duration", time.Since(startedAt)),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return validate.Struct(dest)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the cause of 5xx responses from clients and logs it instead.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

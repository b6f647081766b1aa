package adminapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"embedpool/internal/config"
	"embedpool/internal/logging"
	"embedpool/internal/pool"
)

const (
	maxPayloadSize  = 1 << 20 // 1 MiB is ample for a pool config document
	jsonContentType = "application/json"
)

// Handler exposes the administrative surface of the pool engine: pool config
// reads and writes, discovery, key tests, exclusion toggles, and health
// inspection. All decisions live in the pool package; handlers only translate
// HTTP.
type Handler struct {
	cfg        *config.Manager
	pool       *pool.Manager
	prober     *pool.Prober
	selections *logging.SelectionLogStore
	token      string
	logger     *zap.Logger
}

// NewHandler constructs a new admin handler. token must be non-empty.
func NewHandler(cfg *config.Manager, poolMgr *pool.Manager, prober *pool.Prober, selections *logging.SelectionLogStore, token string, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		pool:       poolMgr,
		prober:     prober,
		selections: selections,
		token:      token,
		logger:     logger,
	}
}

// ServeHTTP dispatches admin API requests. It expects to be mounted under
// /admin/api/.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	if !h.authorize(r) {
		w.Header().Set("WWW-Authenticate", "Bearer realm=\"embedpool-admin\"")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	parts := splitPath(r.URL.Path)
	switch {
	case route(parts, "pool") && r.Method == http.MethodGet:
		h.handleGetPool(w)
	case route(parts, "pool") && r.Method == http.MethodPut:
		h.handlePutPool(w, r)
	case route(parts, "pool", "health") && r.Method == http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.pool.HealthSnapshot())
	case route(parts, "pool", "endpoints") && r.Method == http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.pool.Endpoints())
	case route(parts, "pool", "selections") && r.Method == http.MethodGet:
		h.handleGetSelections(w, r)
	case route(parts, "pool", "discover", "*") && r.Method == http.MethodPost:
		h.handleDiscover(w, parts[2])
	case route(parts, "providers") && r.Method == http.MethodGet:
		h.handleGetProviders(w)
	case route(parts, "providers", "*", "test-key") && r.Method == http.MethodPost:
		h.handleTestKey(w, r, parts[1])
	case route(parts, "providers", "*", "exclusion") && r.Method == http.MethodPost:
		h.handleExclusion(w, r, parts[1])
	case route(parts, "providers", "*", "keys", "*", "reset") && r.Method == http.MethodPost:
		h.handleResetKey(w, parts[1], parts[3])
	default:
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}

func (h *Handler) authorize(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return false
	}
	token := strings.TrimSpace(authz[7:])
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *Handler) handleGetPool(w http.ResponseWriter) {
	cfg, err := h.cfg.Pool()
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handlePutPool(w http.ResponseWriter, r *http.Request) {
	bodyReader := http.MaxBytesReader(w, r.Body, maxPayloadSize)
	defer bodyReader.Close()

	payload, err := io.ReadAll(bodyReader)
	if err != nil {
		h.badRequest(w, fmt.Errorf("read body: %w", err))
		return
	}

	var next config.PoolConfig
	decoder := json.NewDecoder(strings.NewReader(string(payload)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&next); err != nil {
		h.badRequest(w, fmt.Errorf("invalid pool config: %w", err))
		return
	}

	if err := h.cfg.ReplacePool(next); err != nil {
		h.badRequest(w, fmt.Errorf("invalid pool config: %w", err))
		return
	}

	report := h.pool.LastSyncReport()
	h.logger.Info("pool config updated via admin API",
		zap.Int("endpoints", report.EndpointCount),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
	)
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetProviders(w http.ResponseWriter) {
	doc := h.cfg.Current()
	if doc == nil {
		h.internalError(w, config.ErrConfigNotLoaded)
		return
	}

	providers := make([]config.Provider, len(doc.Providers))
	copy(providers, doc.Providers)
	for i := range providers {
		keys := make([]config.APIKey, len(providers[i].APIKeys))
		copy(keys, providers[i].APIKeys)
		for j := range keys {
			keys[j].Secret = redactSecret(keys[j].Secret)
		}
		providers[i].APIKeys = keys
	}
	h.writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) handleDiscover(w http.ResponseWriter, model string) {
	doc := h.cfg.Current()
	if doc == nil {
		h.internalError(w, config.ErrConfigNotLoaded)
		return
	}

	bindings := pool.Discover(doc, model)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":    model,
		"count":    len(bindings),
		"bindings": bindings,
	})
}

func (h *Handler) handleTestKey(w http.ResponseWriter, r *http.Request, providerID string) {
	results, err := h.prober.TestProviderKeys(r.Context(), providerID)
	if err != nil {
		if errors.Is(err, config.ErrProviderNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": providerID,
		"results":  results,
	})
}

func (h *Handler) handleExclusion(w http.ResponseWriter, r *http.Request, providerID string) {
	var body struct {
		Excluded bool `json:"excluded"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadSize)).Decode(&body); err != nil {
		h.badRequest(w, fmt.Errorf("invalid body: %w", err))
		return
	}

	if err := h.pool.SetExclusion(providerID, body.Excluded); err != nil {
		if errors.Is(err, config.ErrProviderNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.pool.LastSyncReport())
}

func (h *Handler) handleResetKey(w http.ResponseWriter, providerID, keyID string) {
	if err := h.pool.ResetKeyHealth(providerID, keyID); err != nil {
		if errors.Is(err, config.ErrProviderNotFound) || errors.Is(err, config.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSelections(w http.ResponseWriter, r *http.Request) {
	if h.selections == nil {
		h.writeJSON(w, http.StatusOK, []logging.SelectionLogEntry{})
		return
	}

	query := r.URL.Query()
	opts := logging.QueryOptions{
		ProviderID:  query.Get("provider"),
		TargetModel: query.Get("model"),
		Outcome:     query.Get("outcome"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.badRequest(w, fmt.Errorf("invalid limit '%s'", raw))
			return
		}
		opts.Limit = limit
	}
	h.writeJSON(w, http.StatusOK, h.selections.Query(opts))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.internalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.logger.Warn("admin api bad request", zap.Error(err))
	writeError(w, http.StatusBadRequest, err)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error("admin api internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := map[string]string{"error": err.Error()}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// redactSecret keeps a short recognizable prefix and hides the rest.
func redactSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// route matches path segments against a pattern where "*" accepts any single
// non-empty segment.
func route(parts []string, pattern ...string) bool {
	if len(parts) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if parts[i] != p {
			return false
		}
	}
	return true
}

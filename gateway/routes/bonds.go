package routes

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"impactbond/crypto"
	"impactbond/gateway/middleware"
	"impactbond/native/bond"
	"impactbond/observability/logging"
	"impactbond/observability/metrics"
)

const maxPageSize = 500

type bondHandlers struct {
	mu            sync.Mutex
	registry      *bond.Registry
	metrics       *metrics.BondMetrics
	logger        *slog.Logger
	authenticated bool
}

type transferAdminRequest struct {
	Caller   string `json:"caller"`
	NewAdmin string `json:"newAdmin"`
}

type createBondRequest struct {
	Caller   string `json:"caller"`
	Title    string `json:"title"`
	Goal     string `json:"goal"`
	Verifier string `json:"verifier"`
}

type fundBondRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type verifyBondRequest struct {
	Caller string `json:"caller"`
}

// resolveCaller picks the acting principal. With authentication enabled the
// token subject wins and a conflicting body caller is refused.
func (h *bondHandlers) resolveCaller(r *http.Request, claimed string) ([20]byte, error) {
	if h.authenticated {
		caller, ok := middleware.CallerFromContext(r.Context())
		if !ok {
			return [20]byte{}, bond.ErrUnauthorized
		}
		if claimed != "" {
			parsed, err := parsePrincipal("caller", claimed)
			if err != nil {
				return [20]byte{}, err
			}
			if parsed != caller {
				return [20]byte{}, bond.ErrUnauthorized
			}
		}
		return caller, nil
	}
	if claimed == "" {
		return [20]byte{}, badRequestf("caller required")
	}
	return parsePrincipal("caller", claimed)
}

func bondID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid bond id %q", raw)
	}
	return id, nil
}

// fail renders err and records the failed transition.
func (h *bondHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := writeError(w, err)
	outcome := metrics.OutcomeError
	if code, ok := bond.CodeOf(err); ok {
		outcome = code.String()
	} else if status == http.StatusBadRequest {
		outcome = "BadRequest"
	}
	h.metrics.ObserveTransition(op, outcome)
	attrs := logging.MaskedAttrs(map[string]string{
		"op":        op,
		"code":      outcome,
		"requestId": middleware.RequestIDFromContext(r.Context()),
		"bondId":    chi.URLParam(r, "id"),
	})
	if status >= http.StatusInternalServerError {
		h.logger.Error("registry operation failed", append(attrs, slog.Any("error", err))...)
		return
	}
	h.logger.Debug("registry operation rejected", attrs...)
}

func (h *bondHandlers) getAdmin(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	admin, err := h.registry.Admin()
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "admin", err)
		return
	}
	writeValue(w, crypto.FormatPrincipal(admin))
}

func (h *bondHandlers) transferAdmin(w http.ResponseWriter, r *http.Request) {
	var req transferAdminRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, "transferAdmin", err)
		return
	}
	caller, err := h.resolveCaller(r, req.Caller)
	if err != nil {
		h.fail(w, r, "transferAdmin", err)
		return
	}
	newAdmin, err := parsePrincipal("newAdmin", req.NewAdmin)
	if err != nil {
		h.fail(w, r, "transferAdmin", err)
		return
	}

	h.mu.Lock()
	err = h.registry.TransferAdmin(caller, newAdmin)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "transferAdmin", err)
		return
	}
	h.metrics.ObserveTransition("transferAdmin", metrics.OutcomeOK)
	h.logger.Info("admin transferred", logging.MaskedAttrs(map[string]string{
		"previous":  crypto.FormatPrincipal(caller),
		"admin":     crypto.FormatPrincipal(newAdmin),
		"requestId": middleware.RequestIDFromContext(r.Context()),
	})...)
	writeValue(w, true)
}

func (h *bondHandlers) createBond(w http.ResponseWriter, r *http.Request) {
	var req createBondRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, "create", err)
		return
	}
	caller, err := h.resolveCaller(r, req.Caller)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	verifier, err := parsePrincipal("verifier", req.Verifier)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	goal, err := parseAmount("goal", req.Goal)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}

	h.mu.Lock()
	id, err := h.registry.CreateBond(caller, req.Title, goal, verifier)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	h.metrics.ObserveTransition("create", metrics.OutcomeOK)
	h.metrics.ObserveCreated()
	writeValue(w, id)
}

func (h *bondHandlers) fundBond(w http.ResponseWriter, r *http.Request) {
	id, err := bondID(r)
	if err != nil {
		h.fail(w, r, "fund", err)
		return
	}
	var req fundBondRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, "fund", err)
		return
	}
	caller, err := h.resolveCaller(r, req.Caller)
	if err != nil {
		h.fail(w, r, "fund", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, r, "fund", err)
		return
	}

	h.mu.Lock()
	err = h.registry.FundBond(caller, id, amount)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "fund", err)
		return
	}
	h.metrics.ObserveTransition("fund", metrics.OutcomeOK)
	h.metrics.ObserveFunding(amount)
	writeValue(w, true)
}

func (h *bondHandlers) verifyBond(w http.ResponseWriter, r *http.Request) {
	id, err := bondID(r)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	var req verifyBondRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	caller, err := h.resolveCaller(r, req.Caller)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}

	h.mu.Lock()
	err = h.registry.VerifyBond(caller, id)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	h.metrics.ObserveTransition("verify", metrics.OutcomeOK)
	h.metrics.ObserveVerified()
	writeValue(w, true)
}

func (h *bondHandlers) getBond(w http.ResponseWriter, r *http.Request) {
	id, err := bondID(r)
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	h.mu.Lock()
	b, err := h.registry.GetBond(id)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	writeValue(w, newBondView(b))
}

func (h *bondHandlers) listBonds(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	limit, err := queryUint(r, "limit", bond.DefaultPageSize)
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	h.mu.Lock()
	bonds, err := h.registry.ListBonds(offset, limit)
	h.mu.Unlock()
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	views := make([]bondView, 0, len(bonds))
	for _, b := range bonds {
		views = append(views, newBondView(b))
	}
	writeValue(w, views)
}

func queryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid %s %q", key, raw)
	}
	return v, nil
}

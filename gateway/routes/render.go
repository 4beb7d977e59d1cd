package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"impactbond/crypto"
	"impactbond/native/bond"
)

const maxBodyBytes = 1 << 20

type valueResponse struct {
	Value any `json:"value"`
}

type errorResponse struct {
	Error   *bond.Code `json:"error,omitempty"`
	Message string     `json:"message"`
}

// bondView is the wire form of a bond: bech32 principals and decimal amounts.
type bondView struct {
	ID       uint64 `json:"id"`
	NGO      string `json:"ngo"`
	Verifier string `json:"verifier"`
	Title    string `json:"title"`
	Goal     string `json:"goal"`
	Funded   string `json:"funded"`
	IsFunded bool   `json:"isFunded"`
	Verified bool   `json:"verified"`
	Active   bool   `json:"active"`
}

func newBondView(b *bond.Bond) bondView {
	return bondView{
		ID:       b.ID,
		NGO:      crypto.FormatPrincipal(b.NGO),
		Verifier: crypto.FormatPrincipal(b.Verifier),
		Title:    b.Title,
		Goal:     amountString(b.Goal),
		Funded:   amountString(b.Funded),
		IsFunded: b.IsFunded,
		Verified: b.Verified,
		Active:   b.Active,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// badRequest marks malformed input that never reached the registry.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeValue(w http.ResponseWriter, value any) {
	writeJSON(w, http.StatusOK, valueResponse{Value: value})
}

// writeError renders err and returns the status written.
func writeError(w http.ResponseWriter, err error) int {
	if code, ok := bond.CodeOf(err); ok {
		status := statusForCode(code)
		writeJSON(w, status, errorResponse{Error: &code, Message: err.Error()})
		return status
	}
	var bad *badRequest
	if errors.As(err, &bad) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: bad.msg})
		return http.StatusBadRequest
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	return http.StatusInternalServerError
}

func statusForCode(code bond.Code) int {
	switch code {
	case bond.CodeUnauthorized:
		return http.StatusForbidden
	case bond.CodeNotFound:
		return http.StatusNotFound
	case bond.CodeInvalidPrincipal, bond.CodeInvalidAmount:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequestf("invalid request body: %v", err)
	}
	return nil
}

func parsePrincipal(field, value string) ([20]byte, error) {
	raw, err := crypto.ParsePrincipal(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, badRequestf("invalid %s: %v", field, err)
	}
	return raw, nil
}

// parseAmount accepts a base-10 integer string. Sign checks belong to the
// registry so negative values surface as InvalidAmount.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, badRequestf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequestf("invalid %s %q", field, value)
	}
	return amount, nil
}

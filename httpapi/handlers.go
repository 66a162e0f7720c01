// Package httpapi exposes the authorization engine over HTTP for merchant and
// payer tooling: device registration and revocation, registration lookups,
// nonce inspection, and payment redemption.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	halopay "github.com/halopay/halopay-go"
	"github.com/halopay/halopay-go/executor"
	"github.com/halopay/halopay-go/nonceledger"
	"github.com/halopay/halopay-go/registry"
)

// Handlers bundles the engine components behind the HTTP surface.
type Handlers struct {
	registry *registry.Registry
	nonces   *nonceledger.Ledger
	exec     *executor.Executor
	logger   *zap.Logger
}

// New creates the HTTP handlers.
func New(reg *registry.Registry, nonces *nonceledger.Ledger, exec *executor.Executor, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry: reg,
		nonces:   nonces,
		exec:     exec,
		logger:   logger,
	}
}

// Router returns a chi router with all engine routes mounted.
func (h *Handlers) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(h.requestLogger)

	r.Post("/register", h.handleRegister)
	r.Post("/revoke", h.handleRevoke)
	r.Get("/registrations/{payer}", h.handleRegistrationLookup)
	r.Get("/nonces/{payer}/{nonce}", h.handleNonceLookup)
	r.Post("/payments", h.handlePayment)
	r.Post("/payments/device", h.handleDevicePayment)
	r.Get("/healthz", h.handleHealth)

	return r
}

// RegisterRequest is the body for POST /register.
type RegisterRequest struct {
	Payer  string `json:"payer"`
	Device string `json:"device"`
}

// RevokeRequest is the body for POST /revoke.
type RevokeRequest struct {
	Payer string `json:"payer"`
}

// PaymentRequest is the body for POST /payments and POST /payments/device.
// Exactly one of Payer or Device must be set depending on the route. Amount
// and Nonce are decimal strings in atomic units; Signature is a 0x-prefixed
// 65-byte hex string.
type PaymentRequest struct {
	Payer     string `json:"payer,omitempty"`
	Device    string `json:"device,omitempty"`
	Merchant  string `json:"merchant"`
	Amount    string `json:"amount"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// RegistrationResponse is the body for GET /registrations/{payer}.
type RegistrationResponse struct {
	Payer  string `json:"payer"`
	Device string `json:"device"`
}

// NonceResponse is the body for GET /nonces/{payer}/{nonce}.
type NonceResponse struct {
	Payer string `json:"payer"`
	Nonce string `json:"nonce"`
	Used  bool   `json:"used"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	payer, err := parseAddress(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	device, err := parseAddress(req.Device)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.Register(payer, device); err != nil {
		writeError(w, StatusForError(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, RegistrationResponse{Payer: payer.Hex(), Device: device.Hex()})
}

func (h *Handlers) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	payer, err := parseAddress(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.Revoke(payer); err != nil {
		writeError(w, StatusForError(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleRegistrationLookup(w http.ResponseWriter, r *http.Request) {
	payer, err := parseAddress(chi.URLParam(r, "payer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	device, err := h.registry.DeviceOf(payer)
	if err != nil {
		writeError(w, StatusForError(err), err)
		return
	}
	if device == (common.Address{}) {
		writeError(w, http.StatusNotFound, halopay.ErrNotAuthorized)
		return
	}

	writeJSON(w, http.StatusOK, RegistrationResponse{Payer: payer.Hex(), Device: device.Hex()})
}

func (h *Handlers) handleNonceLookup(w http.ResponseWriter, r *http.Request) {
	payer, err := parseAddress(chi.URLParam(r, "payer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	nonce, err := parseBigInt(chi.URLParam(r, "nonce"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	used, err := h.nonces.IsUsed(payer, nonce)
	if err != nil {
		writeError(w, StatusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, NonceResponse{Payer: payer.Hex(), Nonce: nonce.String(), Used: used})
}

func (h *Handlers) handlePayment(w http.ResponseWriter, r *http.Request) {
	payer, merchant, amount, nonce, sig, ok := h.decodePayment(w, r, "payer")
	if !ok {
		return
	}

	record, err := h.exec.ExecutePayment(r.Context(), payer, merchant, amount, nonce, sig)
	if err != nil {
		writeError(w, StatusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) handleDevicePayment(w http.ResponseWriter, r *http.Request) {
	device, merchant, amount, nonce, sig, ok := h.decodePayment(w, r, "device")
	if !ok {
		return
	}

	record, err := h.exec.ExecutePaymentFromDevice(r.Context(), device, merchant, amount, nonce, sig)
	if err != nil {
		writeError(w, StatusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodePayment parses the shared payment request shape. subjectField names
// the identity field the route expects ("payer" or "device").
func (h *Handlers) decodePayment(w http.ResponseWriter, r *http.Request, subjectField string) (common.Address, common.Address, *big.Int, *big.Int, []byte, bool) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}

	subjectHex := req.Payer
	if subjectField == "device" {
		subjectHex = req.Device
	}

	subject, err := parseAddress(subjectHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", subjectField, err))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}
	merchant, err := parseAddress(req.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid merchant: %w", err))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}
	amount, err := parseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount: %w", err))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}
	nonce, err := parseBigInt(req.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid nonce: %w", err))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}

	sig := common.FromHex(req.Signature)
	if len(sig) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing signature"))
		return common.Address{}, common.Address{}, nil, nil, nil, false
	}

	return subject, merchant, amount, nonce, sig, true
}

// StatusForError maps the engine's error taxonomy to HTTP status codes.
// Shared with the gin adapter.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, halopay.ErrZeroAddress),
		errors.Is(err, halopay.ErrInvalidAmount),
		errors.Is(err, halopay.ErrInvalidNonce):
		return http.StatusBadRequest
	case errors.Is(err, halopay.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, halopay.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, halopay.ErrNotAuthorized),
		errors.Is(err, halopay.ErrHaloNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, halopay.ErrHaloAlreadyRegistered),
		errors.Is(err, halopay.ErrPayerAlreadyRegistered),
		errors.Is(err, halopay.ErrNonceAlreadyUsed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Sugar().Debugw("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %q", s)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

/**
 * @description
 * This file contains the HTTP handlers for the adapter's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * The webhook handler has one overriding rule: BlockCypher retries
 * non-success responses and disables hooks with persistent failures, so a
 * well-formed delivery is always answered 200 once it has been handed to the
 * dispatcher. Only malformed requests and rate-limited callers are refused.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/money: service logic, models and
 *   custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rehive/bitcoin-adapter/internal/app"
	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/money"
	"github.com/rehive/bitcoin-adapter/pkg/blockcypher"
)

// maxWebhookBodyBytes bounds webhook payload reads. BlockCypher transaction
// bodies for large transactions run to a few hundred KB.
const maxWebhookBodyBytes = 1 << 20

// AdapterHandlers holds the collaborators the HTTP handlers use.
type AdapterHandlers struct {
	service    *app.Service
	dispatcher app.WebhookDispatcher
	limiter    *app.RedisWebhookRateLimiter
}

// NewAdapterHandlers creates the handler set for the adapter's API.
func NewAdapterHandlers(service *app.Service, dispatcher app.WebhookDispatcher, limiter *app.RedisWebhookRateLimiter) *AdapterHandlers {
	return &AdapterHandlers{
		service:    service,
		dispatcher: dispatcher,
		limiter:    limiter,
	}
}

type sendResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	TxHash        *string `json:"tx_hash,omitempty"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
}

type balanceResponse struct {
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

type createAccountRequest struct {
	LedgerID string         `json:"ledger_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WebhookHandler ingests one BlockCypher delivery. The hook kind comes from
// the URL path and the watched account from the `id` query parameter, both of
// which the adapter chose when it registered the hook.
func (h *AdapterHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	kind := domain.WebhookKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown webhook kind %q", kind))
		return
	}

	accountID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid or missing account id")
		return
	}

	allowed, retryAfter, limitErr := h.limiter.Allow(r.Context(), accountID.String())
	if limitErr != nil {
		// Redis being down must not block webhook ingestion.
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" err=%v", limitErr)
	} else if !allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many webhook deliveries")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}
	if !json.Valid(body) {
		h.writeError(w, http.StatusBadRequest, "Request body is not valid JSON")
		return
	}

	delivery := domain.WebhookDelivery{
		Kind:      kind,
		AccountID: accountID,
		Payload:   body,
	}
	if err := h.dispatcher.Dispatch(r.Context(), delivery); err != nil {
		// Receipt must still succeed from the provider's point of view: the
		// delivery is lost for now but BlockCypher will retry it.
		log.Printf("level=error component=api msg=\"failed to dispatch webhook delivery\" account=%s err=%v", accountID, err)
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// SendHandler executes an outbound transfer.
func (h *AdapterHandlers) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Recipient == "" {
		h.writeError(w, http.StatusBadRequest, "to_user is required")
		return
	}

	tx, err := h.service.Send(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, money.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	case errors.Is(err, app.ErrNoDefaultAccount):
		h.writeError(w, http.StatusServiceUnavailable, "No operating account configured")
		return
	case errors.Is(err, blockcypher.ErrVerification):
		log.Printf("level=error component=api msg=\"send refused by verification\" err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Transaction verification failed; nothing was broadcast")
		return
	default:
		log.Printf("level=error component=api msg=\"send failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to execute transfer")
		return
	}

	h.writeJSON(w, http.StatusCreated, sendResponse{
		TransactionID: tx.ID.String(),
		Status:        string(tx.Status),
		TxHash:        tx.ExternalID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	})
}

// BalanceHandler reports the operating account balance.
func (h *AdapterHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	minor, display, err := h.service.Balance(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrNoDefaultAccount) {
			h.writeError(w, http.StatusServiceUnavailable, "No operating account configured")
			return
		}
		log.Printf("level=error component=api msg=\"balance query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to query balance")
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: minor, BalanceDisplay: display.String()})
}

// OperatingAccountHandler returns the public view of the operating account.
func (h *AdapterHandlers) OperatingAccountHandler(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.OperatingAccountDetails(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrNoDefaultAccount) {
			h.writeError(w, http.StatusNotFound, "No operating account configured")
			return
		}
		log.Printf("level=error component=api msg=\"operating account lookup failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load operating account")
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

// CreateUserAccountHandler provisions a deposit address for a ledger user.
func (h *AdapterHandlers) CreateUserAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LedgerID == "" {
		h.writeError(w, http.StatusBadRequest, "ledger_id is required")
		return
	}

	account, err := h.service.RegisterUserAccount(r.Context(), req.LedgerID, req.Metadata)
	if err != nil {
		log.Printf("level=error component=api msg=\"account provisioning failed\" ledger_id=%s err=%v", req.LedgerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to provision account")
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// writeJSON is a helper for writing JSON responses.
func (h *AdapterHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AdapterHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

package pass_api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-guestpass/internal/auth"
	"ms-guestpass/internal/passes"
	passdb "ms-guestpass/internal/passes/db"
	"ms-guestpass/internal/passes/qr"
)

type Handler struct {
	PassService *passes.PassService
}

func NewHandler(passService *passes.PassService) *Handler {
	return &Handler{PassService: passService}
}

// Routes mounts the promoter- and manager-facing endpoints. Auth middleware
// is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tickets", h.IssueTicket)
	r.Get("/tickets/{ticketID}/qr", h.TicketQR)
	r.Get("/settings/guest-types/other-label", h.GetOtherLabel)
	r.Patch("/settings/guest-types/other-label", h.UpdateOtherLabel)
}

// IssueTicket handles POST /tickets.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req passes.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	issued, err := h.PassService.IssueTicket(r.Context(), principal.UserID, req)
	if err != nil {
		h.writeIssueError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, issued)
}

// TicketQR handles GET /tickets/{ticketID}/qr and returns the raw QR PNG
// for the ticket's redemption token.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ticketID := chi.URLParam(r, "ticketID")
	token, err := h.PassService.TicketToken(r.Context(), principal.UserID, ticketID)
	if err != nil {
		h.writeIssueError(w, err)
		return
	}

	png, err := qr.EncodeToken(token, 0)
	if err != nil {
		http.Error(w, "failed to encode QR: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="ticket-`+ticketID+`.png"`)
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// GetOtherLabel handles GET /settings/guest-types/other-label.
func (h *Handler) GetOtherLabel(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Role != auth.RoleManager {
		http.Error(w, "manager role required", http.StatusForbidden)
		return
	}

	label, err := h.PassService.OtherLabel(r.Context(), principal.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"otherLabel": label})
}

// UpdateOtherLabel handles PATCH /settings/guest-types/other-label.
func (h *Handler) UpdateOtherLabel(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Role != auth.RoleManager {
		http.Error(w, "manager role required", http.StatusForbidden)
		return
	}

	var req struct {
		OtherLabel string `json:"otherLabel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	label, err := h.PassService.UpdateOtherLabel(r.Context(), principal.UserID, req.OtherLabel)
	if err != nil {
		h.writeIssueError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"otherLabel": label})
}

// writeIssueError maps domain errors onto their HTTP status codes. The
// classifications stay distinct because clients branch on them.
func (h *Handler) writeIssueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passes.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, passes.ErrPromoterInactive):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, passdb.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, passes.ErrEventClosed), errors.Is(err, passdb.ErrQuotaExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

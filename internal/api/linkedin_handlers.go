package api

import (
	"net/http"

	"github.com/postmaster/postmaster-backend/internal/accounts"
	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/auth"
)

var (
	errAccountIDRequired = apperr.New(apperr.CodeInvalidInput, "Account ID is required")
	errInvalidAction     = apperr.New(apperr.CodeInvalidInput, "Invalid action")
)

// ConnectLinkedIn returns the authorize URL the browser should visit.
func (h *Handler) ConnectLinkedIn(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	authURL, err := h.Accounts.ConnectURL(user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ConnectResponse{AuthURL: authURL})
}

// DisconnectLinkedIn deactivates all of the user's accounts.
func (h *Handler) DisconnectLinkedIn(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Accounts.Disconnect(r.Context(), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// LinkedInCallback finishes the OAuth flow and sends the browser back to the
// dashboard with the outcome in the query.
func (h *Handler) LinkedInCallback(w http.ResponseWriter, r *http.Request) {
	var userID string
	if user, ok := auth.UserFromContext(r.Context()); ok {
		userID = user.ID
	}

	q := r.URL.Query()
	params := accounts.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}

	result := func() (res accounts.CallbackResult) {
		defer func() {
			if rvr := recover(); rvr != nil {
				h.logger.Errorw("LinkedIn callback panicked", "panic", rvr)
				res = accounts.CallbackResult{Error: accounts.OutcomeUnexpectedError}
			}
		}()
		return h.Accounts.CompleteConnect(r.Context(), userID, params)
	}()

	target := h.PublicOrigin + "/dashboard?" + result.Query().Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.Accounts.List(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AccountsResponse{Accounts: list})
}

// UpdateAccount handles account actions; only setPrimary exists.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.writeError(w, r, errAccountIDRequired)
		return
	}
	if req.Action != "setPrimary" {
		h.writeError(w, r, errInvalidAction)
		return
	}

	account, err := h.Accounts.SetPrimary(r.Context(), user.ID, req.AccountID, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AccountResponse{Success: true, Account: account})
}

func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.writeError(w, r, errAccountIDRequired)
		return
	}
	if err := h.Accounts.Remove(r.Context(), user.ID, req.AccountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) SetPrimaryAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.writeError(w, r, errAccountIDRequired)
		return
	}
	account, err := h.Accounts.SetPrimary(r.Context(), user.ID, req.AccountID, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AccountResponse{Success: true, Account: account})
}

// TestLinkedIn checks the resolved account's token against LinkedIn.
func (h *Handler) TestLinkedIn(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	profile, err := h.Accounts.TestConnection(r.Context(), user.ID, r.URL.Query().Get("accountId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Profile: profile})
}

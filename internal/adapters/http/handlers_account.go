package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
)

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "current_user")
		return
	}
	user, err := h.service.CurrentUser(r.Context(), principal.UserID)
	if err != nil {
		writeMappedError(r.Context(), w, "current_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_password")
		return
	}
	var req application.ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}
	if err := requireFields([2]string{"current_password", req.CurrentPassword}, [2]string{"new_password", req.NewPassword}); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), principal.UserID, req); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed. Please sign in again.")
}

func (h *Handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_email")
		return
	}
	var req application.ChangeEmailRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_email", err)
		return
	}
	if err := requireFields([2]string{"current_password", req.CurrentPassword}, [2]string{"new_email", req.NewEmail}); err != nil {
		writeValidationError(r.Context(), w, "change_email", err)
		return
	}
	if err := h.service.ChangeEmail(r.Context(), principal.UserID, req); err != nil {
		writeMappedError(r.Context(), w, "change_email", err)
		return
	}
	writeMessage(w, http.StatusOK, "Email changed. Verify the new address and sign in again.")
}

func (h *Handler) changeUsername(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_username")
		return
	}
	var req application.ChangeUsernameRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_username", err)
		return
	}
	if err := requireFields([2]string{"current_password", req.CurrentPassword}, [2]string{"new_username", req.NewUsername}); err != nil {
		writeValidationError(r.Context(), w, "change_username", err)
		return
	}
	if err := h.service.ChangeUsername(r.Context(), principal.UserID, req); err != nil {
		writeMappedError(r.Context(), w, "change_username", err)
		return
	}
	writeMessage(w, http.StatusOK, "Username changed. Please sign in again.")
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "delete_account")
		return
	}
	var req application.DeleteAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "delete_account", err)
		return
	}
	if err := requireFields([2]string{"current_password", req.CurrentPassword}); err != nil {
		writeValidationError(r.Context(), w, "delete_account", err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), principal.UserID, req); err != nil {
		writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted")
}

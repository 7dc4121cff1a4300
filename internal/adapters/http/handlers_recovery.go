package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
)

func (h *Handler) emailVerificationRequest(w http.ResponseWriter, r *http.Request) {
	var req application.EmailVerificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "email_verification_request", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}); err != nil {
		writeValidationError(r.Context(), w, "email_verification_request", err)
		return
	}
	if err := h.service.RequestEmailVerification(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "email_verification_request", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "If the account exists and is unverified, a verification email has been sent")
}

func (h *Handler) emailVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := requireFields([2]string{"token", token}); err != nil {
		writeValidationError(r.Context(), w, "email_verify", err)
		return
	}
	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		writeMappedError(r.Context(), w, "email_verify", err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully")
}

func (h *Handler) passwordForgot(w http.ResponseWriter, r *http.Request) {
	var req application.ForgotPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_forgot", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}); err != nil {
		writeValidationError(r.Context(), w, "password_forgot", err)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "password_forgot", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "If the email exists, a password reset code has been sent")
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req application.ResetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_reset", err)
		return
	}
	if err := requireFields([2]string{"email", req.Email}, [2]string{"code", req.Code}, [2]string{"new_password", req.NewPassword}); err != nil {
		writeValidationError(r.Context(), w, "password_reset", err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "password_reset", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful. You can now login with your new password.")
}

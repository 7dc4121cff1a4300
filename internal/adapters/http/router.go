package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
)

// SessionService is the slice of the application service the HTTP edge calls.
type SessionService interface {
	Register(ctx context.Context, req application.RegisterRequest) (application.TokenResponse, error)
	Login(ctx context.Context, req application.LoginRequest) (application.TokenResponse, error)
	Refresh(ctx context.Context, req application.RefreshRequest) (application.TokenResponse, error)
	Logout(ctx context.Context, token string) error
	ValidateAccessToken(ctx context.Context, token string) (application.Principal, error)
	CurrentUser(ctx context.Context, userID uuid.UUID) (application.UserResponse, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, req application.ChangePasswordRequest) error
	ChangeEmail(ctx context.Context, userID uuid.UUID, req application.ChangeEmailRequest) error
	ChangeUsername(ctx context.Context, userID uuid.UUID, req application.ChangeUsernameRequest) error
	DeleteAccount(ctx context.Context, userID uuid.UUID, req application.DeleteAccountRequest) error
	RequestEmailVerification(ctx context.Context, req application.EmailVerificationRequest) error
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, req application.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req application.ResetPasswordRequest) error
}

// ReadinessCheck reports whether a backing store is reachable.
type ReadinessCheck func(ctx context.Context) error

// Handler is the HTTP adapter entrypoint for the session use-cases.
type Handler struct {
	service SessionService
	checks  map[string]ReadinessCheck
}

func NewHandler(service SessionService, checks map[string]ReadinessCheck) *Handler {
	return &Handler{service: service, checks: checks}
}

// NewRouter registers the /auth/v1 routes and the middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
	})
	r.Get("/swagger/", handler.swaggerUI)
	r.Get("/swagger/openapi.yaml", handler.swaggerSpec)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
		r.Post("/logout", handler.logout)
		r.Post("/email/verification", handler.emailVerificationRequest)
		r.Get("/email/verify", handler.emailVerify)
		r.Post("/password/forgot", handler.passwordForgot)
		r.Post("/password/reset", handler.passwordReset)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/me", handler.me)
			r.Put("/me/password", handler.changePassword)
			r.Put("/me/email", handler.changeEmail)
			r.Put("/me/username", handler.changeUsername)
			r.Delete("/me", handler.deleteAccount)
		})
	})

	return r
}

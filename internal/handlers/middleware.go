package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/checkfox/leadroute/internal/config"
	"github.com/checkfox/leadroute/internal/logger"
)

// AuthMiddleware guards the stats and admin endpoints with a shared secret
type AuthMiddleware struct {
	config *config.Config
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
	}
}

// Authenticate validates the shared secret header if authentication is enabled
func (m *AuthMiddleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Auth.Enabled {
			next(w, r)
			return
		}

		correlationID := uuid.New().String()
		ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)

		providedSecret := r.Header.Get("X-Shared-Secret")
		if providedSecret == "" {
			logger.Warn(ctx, "Authentication failed", "reason", "missing X-Shared-Secret header")
			respondUnauthorized(w, correlationID, "missing authentication header")
			return
		}

		if providedSecret != m.config.Auth.SharedSecret {
			logger.Warn(ctx, "Authentication failed", "reason", "invalid shared secret")
			respondUnauthorized(w, correlationID, "invalid authentication credentials")
			return
		}

		next(w, r)
	}
}

// respondUnauthorized sends a 401 Unauthorized response
func respondUnauthorized(w http.ResponseWriter, correlationID, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-ID", correlationID)
	w.WriteHeader(http.StatusUnauthorized)

	response := ErrorResponse{
		Error:         message,
		CorrelationID: correlationID,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.LogError(context.Background(), "Failed to encode unauthorized response", err,
			"correlation_id", correlationID)
	}
}

// RecoveryMiddleware recovers from panics and returns 500 Internal Server Error
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Recover wraps a handler with panic recovery
func (m *RecoveryMiddleware) Recover(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				correlationID := uuid.New().String()
				ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)
				logger.Error(ctx, "Panic recovered while serving request",
					"panic", rec, "path", r.URL.Path)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Correlation-ID", correlationID)
				w.WriteHeader(http.StatusInternalServerError)

				response := ErrorResponse{
					Error:         "internal server error",
					CorrelationID: correlationID,
				}

				if err := json.NewEncoder(w).Encode(response); err != nil {
					logger.LogError(ctx, "Failed to encode error response", err)
				}
			}
		}()

		next(w, r)
	}
}

package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
)

// ScopeFunc wraps a handler with a database scope in its context.
type ScopeFunc func(http.HandlerFunc) http.HandlerFunc

// WithScope acquires an unscoped pooled connection for the request and
// releases it afterwards. Used by draft and thread endpoints that exist
// before any campaign does.
func WithScope(db *database.DB, logger *zap.Logger) ScopeFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, err := db.WithoutCampaign(r.Context())
			if err != nil {
				logger.Error("failed to acquire database connection", zap.Error(err))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer scope.Close()

			next(w, r.WithContext(database.SetScope(r.Context(), scope)))
		}
	}
}

// WithCampaignScope acquires a connection scoped to the campaign named by
// the cid path parameter, setting app.current_campaign_id for RLS.
func WithCampaignScope(db *database.DB, logger *zap.Logger) ScopeFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			campaignID, err := uuid.Parse(r.PathValue("cid"))
			if err != nil {
				http.Error(w, "invalid campaign id", http.StatusBadRequest)
				return
			}

			scope, err := db.WithCampaign(r.Context(), campaignID)
			if err != nil {
				logger.Error("failed to acquire campaign-scoped connection",
					zap.String("campaign_id", campaignID.String()), zap.Error(err))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer scope.Close()

			next(w, r.WithContext(database.SetScope(r.Context(), scope)))
		}
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/org-import/pkg/composables"
	"github.com/iota-uz/org-import/pkg/httpapi"
)

const (
	TenantHeader    = "X-Tenant-ID"
	ActorHeader     = "X-Actor-ID"
	ActorNameHeader = "X-Actor-Name"
)

// ProvideIdentity reads the tenant and actor forwarded by the authenticating
// gateway. Requests without a valid tenant are rejected; the actor is optional
// here and enforced by the operations that write.
func ProvideIdentity() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := httpapi.RequestMeta(composables.UseRequestID(r.Context()))
			tenantID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(TenantHeader)))
			if err != nil || tenantID == uuid.Nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, "NO_TENANT", "missing or invalid "+TenantHeader, meta)
				return
			}
			ctx := composables.WithTenantID(r.Context(), tenantID)

			if raw := strings.TrimSpace(r.Header.Get(ActorHeader)); raw != "" {
				actorID, err := uuid.Parse(raw)
				if err != nil {
					_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ACTOR", "invalid "+ActorHeader, meta)
					return
				}
				ctx = composables.WithActor(ctx, composables.Actor{
					ID:   actorID,
					Name: strings.TrimSpace(r.Header.Get(ActorNameHeader)),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

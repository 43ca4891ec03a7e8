package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ctxKey int

const ctxTenantKey ctxKey = iota

// tenantHeader carries the caller's tenant on every data-scoped request.
const tenantHeader = "X-Tenant-ID"

// withTenantContext ensures tenant is set in context for downstream handlers.
func withTenantContext(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxTenantKey, tenant)
}

// tenantFromContext returns the tenant stored by requireTenant.
func tenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(ctxTenantKey).(string)
	return tenant
}

// requireTenant rejects tenant-scoped requests that carry no tenant header.
// Operational endpoints (health, metrics, backups) pass through untouched.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tenantScoped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		tenant := strings.TrimSpace(r.Header.Get(tenantHeader))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%s header is required", tenantHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(withTenantContext(r.Context(), tenant)))
	})
}

func tenantScoped(path string) bool {
	for _, prefix := range []string{"/analytics", "/employees", "/contributions", "/interactions", "/kudos", "/exports"} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ipamd/internal/auth"
	"ipamd/internal/domain"
	"ipamd/internal/metrics"
)

// HealthChecker is the slice of the connection pool the readiness probe needs.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type API struct {
	Logger      *slog.Logger
	DB          HealthChecker
	Network     domain.NetworkService
	Allocations domain.AllocationService
	Audit       domain.AuditService
	Users       domain.UserRepository
	Tokens      *auth.TokenService
	Metrics     *metrics.Metrics

	limiter *clientLimiter
}

func NewAPI(logger *slog.Logger, db HealthChecker, network domain.NetworkService,
	allocations domain.AllocationService, audit domain.AuditService,
	users domain.UserRepository, tokens *auth.TokenService, m *metrics.Metrics,
	ratePerSecond float64, rateBurst int) *API {
	return &API{
		Logger:      logger,
		DB:          db,
		Network:     network,
		Allocations: allocations,
		Audit:       audit,
		Users:       users,
		Tokens:      tokens,
		Metrics:     m,
		limiter:     newClientLimiter(ratePerSecond, rateBurst),
	}
}

func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics.Handler())
	}

	public := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return a.instrument(route, a.withRequestMeta(a.rateLimit(h)))
	}
	authed := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return public(route, a.requireAuth(h))
	}
	admin := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return public(route, a.requireAuth(a.requireAdmin(h)))
	}

	mux.HandleFunc("POST /api/v1/auth/login", public("auth_login", a.handleLogin))
	mux.HandleFunc("POST /api/v1/auth/refresh", public("auth_refresh", a.handleRefresh))
	mux.HandleFunc("POST /api/v1/auth/logout", authed("auth_logout", a.handleLogout))
	mux.HandleFunc("GET /api/v1/auth/verify", authed("auth_verify", a.handleVerify))

	mux.HandleFunc("GET /api/v1/subnets", authed("subnets_list", a.handleListSubnets))
	mux.HandleFunc("POST /api/v1/subnets", admin("subnets_create", a.handleCreateSubnet))
	mux.HandleFunc("GET /api/v1/subnets/{id}", authed("subnets_get", a.handleGetSubnet))
	mux.HandleFunc("PUT /api/v1/subnets/{id}", admin("subnets_update", a.handleUpdateSubnet))
	mux.HandleFunc("DELETE /api/v1/subnets/{id}", admin("subnets_delete", a.handleDeleteSubnet))
	mux.HandleFunc("POST /api/v1/subnets/{id}/sync-ips", admin("subnets_sync", a.handleSyncSubnet))
	mux.HandleFunc("POST /api/v1/subnets/validate", authed("subnets_validate", a.handleValidateSubnet))

	mux.HandleFunc("GET /api/v1/ips", authed("ips_list", a.handleListIPs))
	mux.HandleFunc("GET /api/v1/ips/search", authed("ips_search", a.handleSearchIPs))
	mux.HandleFunc("POST /api/v1/ips/allocate", authed("ips_allocate", a.handleAllocate))
	mux.HandleFunc("POST /api/v1/ips/reserve", authed("ips_reserve", a.handleReserve))
	mux.HandleFunc("POST /api/v1/ips/release", authed("ips_release", a.handleRelease))
	mux.HandleFunc("POST /api/v1/ips/bulk-operation", authed("ips_bulk", a.handleBulkOperation))
	mux.HandleFunc("DELETE /api/v1/ips/delete", authed("ips_delete", a.handleDeleteIP))
	mux.HandleFunc("GET /api/v1/ips/{ip}/history", authed("ips_history", a.handleIPHistory))
	mux.HandleFunc("GET /api/v1/ips/statistics", authed("ips_statistics", a.handleStatistics))
	mux.HandleFunc("POST /api/v1/ips/range-status", authed("ips_range", a.handleRangeStatus))
	mux.HandleFunc("POST /api/v1/ips/conflicts/detect", admin("conflicts_detect", a.handleDetectConflicts))
	mux.HandleFunc("POST /api/v1/ips/conflicts/resolve", authed("conflicts_resolve", a.handleResolveConflict))

	mux.HandleFunc("GET /api/v1/dashboard/summary", authed("dashboard", a.handleDashboard))

	mux.HandleFunc("GET /api/v1/users", admin("users_list", a.handleListUsers))
	mux.HandleFunc("POST /api/v1/users", admin("users_create", a.handleCreateUser))
	mux.HandleFunc("PUT /api/v1/users/{id}", admin("users_update", a.handleUpdateUser))
	mux.HandleFunc("DELETE /api/v1/users/{id}", admin("users_delete", a.handleDeleteUser))

	mux.HandleFunc("GET /api/v1/audit-logs", admin("audit_list", a.handleListAuditLogs))
	mux.HandleFunc("GET /api/v1/audit-logs/stats", admin("audit_stats", a.handleAuditStats))
	mux.HandleFunc("GET /api/v1/audit-logs/export", admin("audit_export", a.handleExportAuditLogs))
	mux.HandleFunc("POST /api/v1/audit-logs/archive", admin("audit_archive", a.handleArchiveAuditLogs))

	return mux
}

// withRequestMeta assigns a correlation id and stashes request provenance for
// the audit recorder.
func (a *API) withRequestMeta(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := domain.WithRequestMeta(r.Context(), domain.RequestMeta{
			RequestID:  requestID,
			SourceAddr: clientAddr(r),
			UserAgent:  r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (a *API) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if a.Metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		a.Metrics.ObserveRequest(route, r.Method, rec.status, time.Since(start))
	}
}

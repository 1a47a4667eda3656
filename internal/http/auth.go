package http

import (
	"net/http"
	"strings"

	"ipamd/internal/auth"
	"ipamd/internal/domain"
)

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			a.writeError(w, r, domain.Errorf(domain.ErrUnauthenticated, "缺少访问令牌"))
			return
		}

		principal, err := a.Tokens.VerifyAccess(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			a.Logger.DebugContext(r.Context(), "token rejected", "err", err.Error())
			a.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	}
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		if !principal.IsAdmin() {
			a.Logger.InfoContext(r.Context(), "admin operation refused", "user", principal.Username)
			a.writeError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (a *API) principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[LoginRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.Logger.DebugContext(ctx, "unmarshaling login request", "err", err.Error())
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}
	if req.Username == "" || req.Password == "" {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "用户名和密码不能为空"))
		return
	}

	user, err := a.Users.FindByUsername(ctx, req.Username)
	if err != nil {
		a.Logger.InfoContext(ctx, "login failed", "username", req.Username)
		a.writeError(w, r, domain.Errorf(domain.ErrUnauthenticated, "用户名或密码错误"))
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		a.Logger.InfoContext(ctx, "login failed", "username", req.Username)
		a.writeError(w, r, err)
		return
	}

	pair, err := a.Tokens.Issue(user)
	if err != nil {
		a.Logger.ErrorContext(ctx, "issuing tokens", "err", err.Error())
		a.writeError(w, r, domain.ErrInternal)
		return
	}

	userID := user.ID
	a.Audit.Record(ctx, domain.AuditEntry{
		ActorID:    user.ID,
		Action:     domain.ActionLogin,
		EntityType: domain.EntityUser,
		EntityID:   &userID,
	})

	a.respond(w, r, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/auth/logout [post]
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; logout only leaves an audit trail.
	p := a.principal(r)
	userID := p.UserID
	a.Audit.Record(r.Context(), domain.AuditEntry{
		ActorID:    p.UserID,
		Action:     domain.ActionLogout,
		EntityType: domain.EntityUser,
		EntityID:   &userID,
	})
	a.respond(w, r, http.StatusOK, map[string]string{"message": "已退出登录"})
}

// @Summary Refresh token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body RefreshRequest true "Refresh token"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[RefreshRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	principal, err := a.Tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// Re-read the user so a role change invalidates stale refresh claims.
	user, err := a.Users.FindByID(ctx, principal.UserID)
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrUnauthenticated, "用户不存在"))
		return
	}

	pair, err := a.Tokens.Issue(user)
	if err != nil {
		a.Logger.ErrorContext(ctx, "issuing tokens", "err", err.Error())
		a.writeError(w, r, domain.ErrInternal)
		return
	}

	a.respond(w, r, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// @Summary Verify current token
// @Tags auth
// @Produce json
// @Success 200 {object} VerifyResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/verify [get]
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	p := a.principal(r)
	a.respond(w, r, http.StatusOK, VerifyResponse{
		UserID:   p.UserID,
		Username: p.Username,
		Role:     string(p.Role),
	})
}

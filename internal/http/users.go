package http

import (
	"net/http"

	"ipamd/internal/auth"
	"ipamd/internal/domain"
)

// @Summary List user accounts
// @Tags users
// @Produce json
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Page size, default 50, max 1000"
// @Success 200 {object} PagedResponse[UserResponse]
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/users [get]
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit := pagination(r)

	users, total, err := a.Users.List(ctx, offset, limit)
	if err != nil {
		a.Logger.ErrorContext(ctx, "listing users", "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	items := make([]UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, userToResponse(u))
	}
	a.respond(w, r, http.StatusOK, PagedResponse[UserResponse]{
		Items: items, Total: total, Offset: offset, Limit: limit,
	})
}

// @Summary Create a user account
// @Tags users
// @Accept json
// @Produce json
// @Param payload body CreateUserRequest true "Account payload"
// @Success 201 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/users [post]
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[CreateUserRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}
	if req.Username == "" || req.Password == "" {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "用户名和密码不能为空"))
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.Logger.ErrorContext(ctx, "hashing password", "err", err.Error())
		a.writeError(w, r, domain.ErrInternal)
		return
	}

	user, err := a.Users.Create(ctx, domain.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		a.Logger.ErrorContext(ctx, "creating user", "username", req.Username, "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	userID := user.ID
	a.Audit.Record(ctx, domain.AuditEntry{
		ActorID:    a.principal(r).UserID,
		Action:     domain.ActionUserCreated,
		EntityType: domain.EntityUser,
		EntityID:   &userID,
		NewValues:  map[string]any{"username": user.Username, "role": string(user.Role)},
	})
	a.respond(w, r, http.StatusCreated, userToResponse(user))
}

// @Summary Update a user's password or role
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param payload body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [put]
func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的用户ID"))
		return
	}
	req, err := decode[UpdateUserRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	existing, err := a.Users.FindByID(ctx, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var input domain.UpdateUserInput
	if req.Password != nil {
		if *req.Password == "" {
			a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "密码不能为空"))
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			a.Logger.ErrorContext(ctx, "hashing password", "err", err.Error())
			a.writeError(w, r, domain.ErrInternal)
			return
		}
		input.PasswordHash = &hash
	}
	if req.Role != nil {
		role, err := parseRole(*req.Role)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		input.Role = &role
	}

	user, err := a.Users.Update(ctx, id, input)
	if err != nil {
		a.Logger.ErrorContext(ctx, "updating user", "id", id, "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	a.Audit.Record(ctx, domain.AuditEntry{
		ActorID:    a.principal(r).UserID,
		Action:     domain.ActionUserUpdated,
		EntityType: domain.EntityUser,
		EntityID:   &id,
		OldValues:  map[string]any{"username": existing.Username, "role": string(existing.Role)},
		NewValues:  map[string]any{"username": user.Username, "role": string(user.Role)},
	})
	a.respond(w, r, http.StatusOK, userToResponse(user))
}

// @Summary Delete a user account
// @Tags users
// @Param id path int true "User ID"
// @Success 204 "No content"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [delete]
func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的用户ID"))
		return
	}
	if id == a.principal(r).UserID {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "不能删除当前登录的用户"))
		return
	}

	existing, err := a.Users.FindByID(ctx, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	deleted, err := a.Users.Delete(ctx, id)
	if err != nil {
		a.Logger.ErrorContext(ctx, "deleting user", "id", id, "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	if !deleted {
		a.writeError(w, r, domain.Errorf(domain.ErrNotFound, "用户 %d 不存在", id))
		return
	}

	a.Audit.Record(ctx, domain.AuditEntry{
		ActorID:    a.principal(r).UserID,
		Action:     domain.ActionUserDeleted,
		EntityType: domain.EntityUser,
		EntityID:   &id,
		OldValues:  map[string]any{"username": existing.Username, "role": string(existing.Role)},
	})
	w.WriteHeader(http.StatusNoContent)
}

func parseRole(raw string) (domain.Role, error) {
	switch raw {
	case "", string(domain.RoleUser):
		return domain.RoleUser, nil
	case string(domain.RoleAdmin):
		return domain.RoleAdmin, nil
	default:
		return "", domain.Errorf(domain.ErrInvalidInput, "无效的角色: %s", raw)
	}
}

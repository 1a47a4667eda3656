package http

import (
	"errors"
	"net/http"

	"ipamd/internal/domain"
)

// ErrorResponse is the envelope for every failure: a stable kind tag for UI
// localisation plus the Chinese detail string.
type ErrorResponse struct {
	Kind  string `json:"kind" example:"not_found"`
	Error string `json:"error" example:"网段 7 不存在"`
}

var kindStatus = map[string]int{
	domain.ErrMalformedCIDR.Kind:    http.StatusBadRequest,
	domain.ErrMalformedIP.Kind:      http.StatusBadRequest,
	domain.ErrInvalidInput.Kind:     http.StatusBadRequest,
	domain.ErrPreferredOutside.Kind: http.StatusBadRequest,
	domain.ErrNotReleasable.Kind:    http.StatusBadRequest,
	domain.ErrDeleteRefused.Kind:    http.StatusBadRequest,
	domain.ErrReservationQuota.Kind: http.StatusBadRequest,
	domain.ErrUnauthenticated.Kind:  http.StatusUnauthorized,
	domain.ErrForbidden.Kind:        http.StatusForbidden,
	domain.ErrNotFound.Kind:         http.StatusNotFound,
	domain.ErrNoCapacity.Kind:       http.StatusNotFound,
	domain.ErrPreferredTaken.Kind:   http.StatusConflict,
	domain.ErrSubnetNotEmpty.Kind:   http.StatusConflict,
	domain.ErrConflict.Kind:         http.StatusConflict,
	domain.ErrRateLimited.Kind:      http.StatusTooManyRequests,
	domain.ErrInternal.Kind:         http.StatusInternalServerError,
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var de *domain.Error
	if !errors.As(err, &de) {
		a.Logger.ErrorContext(ctx, "unexpected error", "err", err.Error())
		de = &domain.Error{Kind: domain.ErrInternal.Kind, Detail: domain.ErrInternal.Detail}
	}

	status, ok := kindStatus[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		a.Logger.ErrorContext(ctx, "internal error", "kind", de.Kind, "err", err.Error())
	}

	if err := encode(w, r, status, ErrorResponse{Kind: de.Kind, Error: de.Detail}); err != nil {
		a.Logger.ErrorContext(ctx, "cant respond to client", "err", err.Error())
	}
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := encode(w, r, status, v); err != nil {
		a.Logger.ErrorContext(r.Context(), "cant respond to client", "err", err.Error())
	}
}

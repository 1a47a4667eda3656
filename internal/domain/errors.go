package domain

import "fmt"

// Error is a tagged engine error. Kind is a stable machine tag the UI keys
// localisation on; Detail is the operator-facing message.
type Error struct {
	Kind   string
	Detail string
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Detail
}

// Is matches on Kind so errors.Is(err, ErrNotFound) works for detailed copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf returns a copy of base carrying a formatted detail string.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrMalformedCIDR    = &Error{Kind: "malformed_cidr", Detail: "无效的网段格式"}
	ErrMalformedIP      = &Error{Kind: "malformed_ip", Detail: "无效的IP地址格式"}
	ErrNotFound         = &Error{Kind: "not_found", Detail: "资源不存在"}
	ErrPreferredTaken   = &Error{Kind: "preferred_unavailable", Detail: "指定的IP地址不可用"}
	ErrPreferredOutside = &Error{Kind: "preferred_not_in_subnet", Detail: "指定的IP地址不属于目标网段"}
	ErrNoCapacity       = &Error{Kind: "no_capacity", Detail: "网段中没有可用的IP地址"}
	ErrNotReleasable    = &Error{Kind: "not_releasable", Detail: "IP地址无法释放"}
	ErrDeleteRefused    = &Error{Kind: "delete_refused", Detail: "IP地址已分配，无法删除。请先释放该IP地址"}
	ErrReservationQuota = &Error{Kind: "reservation_quota_exceeded", Detail: "保留IP地址数量已达到限制"}
	ErrSubnetNotEmpty   = &Error{Kind: "subnet_not_empty", Detail: "无法删除网段，存在已分配的IP地址"}
	ErrConflict         = &Error{Kind: "conflict", Detail: "IP地址冲突"}
	ErrForbidden        = &Error{Kind: "forbidden", Detail: "没有权限执行该操作"}
	ErrUnauthenticated  = &Error{Kind: "unauthenticated", Detail: "未认证或令牌无效"}
	ErrRateLimited      = &Error{Kind: "rate_limited", Detail: "请求过于频繁，请稍后再试"}
	ErrInvalidInput     = &Error{Kind: "invalid_input", Detail: "请求参数无效"}
	ErrInternal         = &Error{Kind: "internal", Detail: "服务器内部错误"}

	// ErrContention marks a lock timeout or serialisation failure surfaced
	// by the store. The engine retries these before giving up.
	ErrContention = &Error{Kind: "contention", Detail: "数据库并发冲突"}
)

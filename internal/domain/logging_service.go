package domain

import (
	"context"
	"log/slog"
)

type loggingAllocationService struct {
	logger *slog.Logger
	next   AllocationService
}

// NewLoggingAllocationService wraps the allocation engine with structured
// logging of every lifecycle transition.
func NewLoggingAllocationService(logger *slog.Logger, next AllocationService) AllocationService {
	if logger == nil || next == nil {
		return next
	}

	return &loggingAllocationService{
		logger: logger,
		next:   next,
	}
}

func (s *loggingAllocationService) Allocate(ctx context.Context, actorID int64, input AllocateInput) (IPAddress, error) {
	ip, err := s.next.Allocate(ctx, actorID, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "allocate failed", "subnet_id", input.SubnetID, "preferred_ip", input.PreferredIP, "actor_id", actorID, "err", err.Error())
		return IPAddress{}, err
	}

	s.logger.InfoContext(ctx, "ip allocated", "ip", ip.IP.String(), "subnet_id", ip.SubnetID, "actor_id", actorID)
	return ip, nil
}

func (s *loggingAllocationService) Reserve(ctx context.Context, actorID int64, input ReserveInput) (IPAddress, error) {
	ip, err := s.next.Reserve(ctx, actorID, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "reserve failed", "ip", input.IP, "actor_id", actorID, "err", err.Error())
		return IPAddress{}, err
	}

	s.logger.InfoContext(ctx, "ip reserved", "ip", ip.IP.String(), "actor_id", actorID)
	return ip, nil
}

func (s *loggingAllocationService) Release(ctx context.Context, actorID int64, input ReleaseInput) (IPAddress, error) {
	ip, err := s.next.Release(ctx, actorID, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "release failed", "ip", input.IP, "actor_id", actorID, "err", err.Error())
		return IPAddress{}, err
	}

	s.logger.InfoContext(ctx, "ip released", "ip", ip.IP.String(), "actor_id", actorID)
	return ip, nil
}

func (s *loggingAllocationService) DeleteIP(ctx context.Context, actorID int64, input DeleteIPInput) error {
	err := s.next.DeleteIP(ctx, actorID, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "delete ip failed", "ip", input.IP, "actor_id", actorID, "err", err.Error())
		return err
	}

	s.logger.DebugContext(ctx, "ip deleted", "ip", input.IP, "actor_id", actorID)
	return nil
}

func (s *loggingAllocationService) BulkApply(ctx context.Context, actorID int64, input BulkInput) (BulkResult, error) {
	result, err := s.next.BulkApply(ctx, actorID, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "bulk operation failed", "operation", string(input.Operation), "count", len(input.IPs), "actor_id", actorID, "err", err.Error())
		return BulkResult{}, err
	}

	s.logger.InfoContext(ctx, "bulk operation finished", "operation", string(input.Operation), "success", result.SuccessCount, "failed", result.FailedCount, "actor_id", actorID)
	return result, nil
}

func (s *loggingAllocationService) ResolveConflict(ctx context.Context, actorID int64, ip string) (IPAddress, error) {
	resolved, err := s.next.ResolveConflict(ctx, actorID, ip)
	if err != nil {
		s.logger.ErrorContext(ctx, "resolve conflict failed", "ip", ip, "actor_id", actorID, "err", err.Error())
		return IPAddress{}, err
	}

	s.logger.InfoContext(ctx, "conflict resolved", "ip", ip, "actor_id", actorID)
	return resolved, nil
}

func (s *loggingAllocationService) ListIPs(ctx context.Context, q ListQuery) ([]IPAddress, int64, error) {
	ips, total, err := s.next.ListIPs(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "list ips failed", "err", err.Error())
	}
	return ips, total, err
}

func (s *loggingAllocationService) SearchIPs(ctx context.Context, q SearchQuery) ([]IPAddress, int64, error) {
	ips, total, err := s.next.SearchIPs(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "search ips failed", "query", q.Query, "err", err.Error())
	}
	return ips, total, err
}

func (s *loggingAllocationService) Statistics(ctx context.Context, subnetID *int64) (Statistics, error) {
	stats, err := s.next.Statistics(ctx, subnetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "statistics failed", "err", err.Error())
	}
	return stats, err
}

func (s *loggingAllocationService) RangeStatus(ctx context.Context, startIP, endIP string) ([]RangeStatus, error) {
	out, err := s.next.RangeStatus(ctx, startIP, endIP)
	if err != nil {
		s.logger.ErrorContext(ctx, "range status failed", "start", startIP, "end", endIP, "err", err.Error())
	}
	return out, err
}

func (s *loggingAllocationService) DetectConflicts(ctx context.Context, actorID int64, subnetID *int64) ([]ConflictGroup, error) {
	groups, err := s.next.DetectConflicts(ctx, actorID, subnetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "conflict detection failed", "err", err.Error())
		return nil, err
	}

	if len(groups) > 0 {
		s.logger.WarnContext(ctx, "ip conflicts detected", "groups", len(groups))
	}
	return groups, nil
}

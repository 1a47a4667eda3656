package domain

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Per-actor reservation cap within one subnet: at most 20% of the subnet's
// materialised addresses and never more than 100.
const (
	maxReservedFraction = 0.2
	maxReservedAbsolute = 100
)

type allocationService struct {
	tx          TxRunner
	ips         IPRepository
	subnets     SubnetRepository
	detector    *ConflictDetector
	audit       Recorder
	bulkCeiling int
	now         func() time.Time
}

func NewAllocationService(tx TxRunner, ips IPRepository, subnets SubnetRepository, detector *ConflictDetector, audit Recorder, bulkCeiling int) AllocationService {
	if bulkCeiling <= 0 {
		bulkCeiling = 1000
	}
	return &allocationService{
		tx:          tx,
		ips:         ips,
		subnets:     subnets,
		detector:    detector,
		audit:       audit,
		bulkCeiling: bulkCeiling,
		now:         time.Now,
	}
}

func (s *allocationService) Allocate(ctx context.Context, actorID int64, input AllocateInput) (IPAddress, error) {
	if _, err := s.subnets.FindByID(ctx, input.SubnetID); err != nil {
		return IPAddress{}, err
	}

	var before, after IPAddress
	err := runInTx(ctx, s.tx, func(ctx context.Context) error {
		var target IPAddress
		if input.PreferredIP != "" {
			addr, err := ParseIP(input.PreferredIP)
			if err != nil {
				return err
			}
			target, err = s.ips.LockByIP(ctx, addr)
			if err != nil {
				return err
			}
			if target.SubnetID != input.SubnetID {
				return Errorf(ErrPreferredOutside, "指定的IP地址 %s 不属于目标网段", input.PreferredIP)
			}
			if target.Status != StatusAvailable {
				return Errorf(ErrPreferredTaken, "IP地址 %s 不可用，当前状态: %s", input.PreferredIP, target.Status)
			}
		} else {
			var err error
			target, err = s.ips.FirstAvailable(ctx, input.SubnetID)
			if err != nil {
				return err
			}
		}

		allocatedAt := s.now()
		if input.AllocatedAt != nil {
			allocatedAt = *input.AllocatedAt
		}

		before = target
		var err error
		after, err = s.ips.Assign(ctx, target.ID, Assignment{
			Status:      StatusAllocated,
			MACAddress:  input.MACAddress,
			Hostname:    input.Hostname,
			DeviceType:  input.DeviceType,
			Location:    input.Location,
			AssignedTo:  input.AssignedTo,
			Description: input.Description,
			AllocatedAt: allocatedAt,
			AllocatedBy: actorID,
		})
		return err
	})
	if err != nil {
		return IPAddress{}, err
	}

	s.recordTransition(ctx, actorID, ActionAllocated, before, after)
	return after, nil
}

func (s *allocationService) Reserve(ctx context.Context, actorID int64, input ReserveInput) (IPAddress, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return IPAddress{}, Errorf(ErrInvalidInput, "保留IP地址必须提供原因")
	}

	var before, after IPAddress
	err := runInTx(ctx, s.tx, func(ctx context.Context) error {
		addr, err := ParseIP(input.IP)
		if err != nil {
			return err
		}
		target, err := s.ips.LockByIP(ctx, addr)
		if err != nil {
			return err
		}
		if target.Status != StatusAvailable {
			return Errorf(ErrConflict, "IP地址 %s 不可用，当前状态: %s", input.IP, target.Status)
		}

		if err := s.checkReservationQuota(ctx, target.SubnetID, actorID); err != nil {
			return err
		}

		before = target
		after, err = s.ips.Assign(ctx, target.ID, Assignment{
			Status:      StatusReserved,
			AssignedTo:  "保留 - " + reason,
			Description: reason,
			AllocatedAt: s.now(),
			AllocatedBy: actorID,
		})
		return err
	})
	if err != nil {
		return IPAddress{}, err
	}

	s.recordTransition(ctx, actorID, ActionReserved, before, after)
	return after, nil
}

func (s *allocationService) Release(ctx context.Context, actorID int64, input ReleaseInput) (IPAddress, error) {
	var before, after IPAddress
	err := runInTx(ctx, s.tx, func(ctx context.Context) error {
		addr, err := ParseIP(input.IP)
		if err != nil {
			return err
		}
		target, err := s.ips.LockByIP(ctx, addr)
		if err != nil {
			return err
		}
		if target.Status != StatusAllocated && target.Status != StatusReserved {
			return Errorf(ErrNotReleasable, "IP地址 %s 无法释放，当前状态: %s", input.IP, target.Status)
		}

		before = target
		after, err = s.ips.Release(ctx, target.ID, input.Reason)
		return err
	})
	if err != nil {
		return IPAddress{}, err
	}

	s.recordTransition(ctx, actorID, ActionReleased, before, after)
	return after, nil
}

func (s *allocationService) DeleteIP(ctx context.Context, actorID int64, input DeleteIPInput) error {
	var before IPAddress
	err := runInTx(ctx, s.tx, func(ctx context.Context) error {
		addr, err := ParseIP(input.IP)
		if err != nil {
			return err
		}
		target, err := s.ips.LockByIP(ctx, addr)
		if err != nil {
			return err
		}
		if target.Status == StatusAllocated {
			return Errorf(ErrDeleteRefused, "IP地址 %s 已分配，无法删除。请先释放该IP地址", input.IP)
		}

		before = target
		deleted, err := s.ips.Delete(ctx, target.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return Errorf(ErrNotFound, "IP地址 %s 不存在", input.IP)
		}
		return nil
	})
	if err != nil {
		return err
	}

	id := before.ID
	old := SnapshotIP(before)
	if input.Reason != "" {
		old["reason"] = input.Reason
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionDeleted,
		EntityType: EntityIP,
		EntityID:   &id,
		OldValues:  old,
	})
	return nil
}

func (s *allocationService) ResolveConflict(ctx context.Context, actorID int64, ip string) (IPAddress, error) {
	var before, after IPAddress
	err := runInTx(ctx, s.tx, func(ctx context.Context) error {
		addr, err := ParseIP(ip)
		if err != nil {
			return err
		}
		target, err := s.ips.LockByIP(ctx, addr)
		if err != nil {
			return err
		}
		if target.Status != StatusConflict {
			return Errorf(ErrInvalidInput, "IP地址 %s 不处于冲突状态，当前状态: %s", ip, target.Status)
		}

		before = target
		after, err = s.ips.Release(ctx, target.ID, "冲突已解决")
		return err
	})
	if err != nil {
		return IPAddress{}, err
	}

	s.recordTransition(ctx, actorID, ActionResolved, before, after)
	return after, nil
}

// BulkApply iterates per address under the same per-address locking
// discipline, accumulating outcomes. A failing address never aborts the
// batch. Per-address audit events are emitted by the individual operations;
// one summary event covers the batch.
func (s *allocationService) BulkApply(ctx context.Context, actorID int64, input BulkInput) (BulkResult, error) {
	if len(input.IPs) == 0 {
		return BulkResult{}, Errorf(ErrInvalidInput, "批量操作的IP列表不能为空")
	}
	if len(input.IPs) > s.bulkCeiling {
		return BulkResult{}, Errorf(ErrInvalidInput, "批量操作的IP数量超过上限 %d", s.bulkCeiling)
	}

	var result BulkResult
	for _, ip := range input.IPs {
		var err error
		switch input.Operation {
		case BulkReserve:
			_, err = s.Reserve(ctx, actorID, ReserveInput{IP: ip, Reason: input.Reason})
		case BulkRelease:
			_, err = s.Release(ctx, actorID, ReleaseInput{IP: ip, Reason: input.Reason})
		case BulkDelete:
			err = s.DeleteIP(ctx, actorID, DeleteIPInput{IP: ip, Reason: input.Reason})
		default:
			return BulkResult{}, Errorf(ErrInvalidInput, "不支持的批量操作: %s", input.Operation)
		}
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{IP: ip, Reason: errorDetail(err)})
			continue
		}
		result.Success = append(result.Success, ip)
	}
	result.SuccessCount = len(result.Success)
	result.FailedCount = len(result.Failed)

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionBulkOperation,
		EntityType: EntityIP,
		NewValues: map[string]any{
			"operation":     string(input.Operation),
			"reason":        input.Reason,
			"requested":     len(input.IPs),
			"success_count": result.SuccessCount,
			"failed_count":  result.FailedCount,
		},
	})
	return result, nil
}

func (s *allocationService) ListIPs(ctx context.Context, q ListQuery) ([]IPAddress, int64, error) {
	if q.SubnetID != nil {
		if _, err := s.subnets.FindByID(ctx, *q.SubnetID); err != nil {
			return nil, 0, err
		}
	}
	return s.ips.ListBySubnet(ctx, q)
}

func (s *allocationService) SearchIPs(ctx context.Context, q SearchQuery) ([]IPAddress, int64, error) {
	return s.ips.Search(ctx, q)
}

func (s *allocationService) Statistics(ctx context.Context, subnetID *int64) (Statistics, error) {
	counts, err := s.ips.CountByStatus(ctx, subnetID)
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{
		Available: counts[StatusAvailable],
		Allocated: counts[StatusAllocated],
		Reserved:  counts[StatusReserved],
		Conflict:  counts[StatusConflict],
	}
	stats.Total = stats.Available + stats.Allocated + stats.Reserved + stats.Conflict
	if stats.Total > 0 {
		stats.UtilizationRate = math.Round(float64(stats.Allocated)/float64(stats.Total)*10000) / 100
	}
	return stats, nil
}

func (s *allocationService) RangeStatus(ctx context.Context, startIP, endIP string) ([]RangeStatus, error) {
	start, err := ParseIP(startIP)
	if err != nil {
		return nil, err
	}
	end, err := ParseIP(endIP)
	if err != nil {
		return nil, err
	}
	lo, hi := IPv4ToUint32(start), IPv4ToUint32(end)
	if lo > hi {
		return nil, Errorf(ErrInvalidInput, "起始IP %s 大于结束IP %s", startIP, endIP)
	}
	if hi-lo+1 > DefaultHostCeiling {
		return nil, Errorf(ErrInvalidInput, "IP范围过大（%d 个地址，上限 %d）", hi-lo+1, DefaultHostCeiling)
	}

	records, err := s.ips.FindInRange(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	byNum := make(map[uint32]IPAddress, len(records))
	for _, rec := range records {
		byNum[IPv4ToUint32(rec.IP)] = rec
	}

	out := make([]RangeStatus, 0, hi-lo+1)
	for v := lo; ; v++ {
		if rec, ok := byNum[v]; ok {
			out = append(out, RangeStatus{
				IP:         rec.IP,
				Status:     rec.Status,
				Hostname:   rec.Hostname,
				MACAddress: rec.MACAddress,
				AssignedTo: rec.AssignedTo,
			})
		} else {
			out = append(out, RangeStatus{IP: Uint32ToIPv4(v), Status: StatusNotManaged})
		}
		if v == hi {
			break
		}
	}
	return out, nil
}

func (s *allocationService) DetectConflicts(ctx context.Context, actorID int64, subnetID *int64) ([]ConflictGroup, error) {
	return s.detector.Detect(ctx, actorID, subnetID)
}

// checkReservationQuota reads counts inside the reserving transaction. The
// cap is advisory: two in-quota actors racing may exceed it by one.
func (s *allocationService) checkReservationQuota(ctx context.Context, subnetID, actorID int64) error {
	reserved, err := s.ips.CountReservedByActor(ctx, subnetID, actorID)
	if err != nil {
		return err
	}
	total, err := s.ips.CountBySubnet(ctx, subnetID)
	if err != nil {
		return err
	}
	maxAllowed := int64(float64(total) * maxReservedFraction)
	if maxAllowed > maxReservedAbsolute {
		maxAllowed = maxReservedAbsolute
	}
	if reserved >= maxAllowed {
		return Errorf(ErrReservationQuota,
			"保留IP地址数量已达到限制。当前已保留 %d 个，最大允许保留 %d 个IP地址", reserved, maxAllowed)
	}
	return nil
}

func (s *allocationService) recordTransition(ctx context.Context, actorID int64, action string, before, after IPAddress) {
	id := after.ID
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: EntityIP,
		EntityID:   &id,
		OldValues:  SnapshotIP(before),
		NewValues:  SnapshotIP(after),
	})
}

func errorDetail(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return err.Error()
}

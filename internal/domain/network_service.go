package domain

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

type networkService struct {
	tx          TxRunner
	subnets     SubnetRepository
	ips         IPRepository
	detector    *ConflictDetector
	audit       Recorder
	hostCeiling int
}

func NewNetworkService(tx TxRunner, subnets SubnetRepository, ips IPRepository, detector *ConflictDetector, audit Recorder, hostCeiling int) NetworkService {
	if hostCeiling <= 0 {
		hostCeiling = DefaultHostCeiling
	}
	return &networkService{
		tx:          tx,
		subnets:     subnets,
		ips:         ips,
		detector:    detector,
		audit:       audit,
		hostCeiling: hostCeiling,
	}
}

func (s *networkService) ListSubnets(ctx context.Context, offset, limit int) ([]SubnetWithCounts, int64, error) {
	subnets, err := s.subnets.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.subnets.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return subnets, total, nil
}

func (s *networkService) GetSubnet(ctx context.Context, id int64) (Subnet, error) {
	return s.subnets.FindByID(ctx, id)
}

func (s *networkService) CreateSubnet(ctx context.Context, actorID int64, input CreateSubnetInput) (Subnet, SyncResult, error) {
	prefix, gateway, err := s.validateSubnetInput(input.CIDR, input.Gateway, input.VLANID)
	if err != nil {
		return Subnet{}, SyncResult{}, err
	}

	if _, err := s.subnets.FindByCIDR(ctx, prefix.String()); err == nil {
		return Subnet{}, SyncResult{}, Errorf(ErrConflict, "网段 %s 已存在", prefix)
	} else if !errors.Is(err, ErrNotFound) {
		return Subnet{}, SyncResult{}, err
	}

	var (
		created Subnet
		sync    SyncResult
	)
	err = runInTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		created, err = s.subnets.Create(ctx, Subnet{
			CIDR:        prefix,
			Netmask:     NetmaskString(prefix),
			Gateway:     gateway,
			VLANID:      input.VLANID,
			Description: input.Description,
			Location:    input.Location,
			CreatedBy:   actorID,
		})
		if err != nil {
			return err
		}
		sync, err = s.materialise(ctx, created.ID, prefix)
		return err
	})
	if err != nil {
		return Subnet{}, SyncResult{}, err
	}

	// Detection after a successful write is advisory; the write stands.
	_, _ = s.detector.Detect(ctx, actorID, &created.ID)
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionSubnetCreated,
		EntityType: EntitySubnet,
		EntityID:   &created.ID,
		NewValues:  SnapshotSubnet(created),
	})
	return created, sync, nil
}

func (s *networkService) UpdateSubnet(ctx context.Context, actorID, id int64, input UpdateSubnetInput) (Subnet, *SyncResult, error) {
	existing, err := s.subnets.FindByID(ctx, id)
	if err != nil {
		return Subnet{}, nil, err
	}

	newPrefix := existing.CIDR
	cidrChanged := false
	if input.CIDR != nil && *input.CIDR != existing.CIDR.String() {
		newPrefix, err = ParseCIDR(*input.CIDR)
		if err != nil {
			return Subnet{}, nil, err
		}
		if other, err := s.subnets.FindByCIDR(ctx, newPrefix.String()); err == nil && other.ID != id {
			return Subnet{}, nil, Errorf(ErrConflict, "网段 %s 已存在", newPrefix)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return Subnet{}, nil, err
		}
		cidrChanged = true
		normalized := newPrefix.String()
		input.CIDR = &normalized
	}

	if input.Gateway != nil && *input.Gateway != "" {
		gw, err := ParseIP(*input.Gateway)
		if err != nil {
			return Subnet{}, nil, err
		}
		if !IsUsableHost(newPrefix, gw) {
			return Subnet{}, nil, Errorf(ErrInvalidInput, "网关 %s 不在网段 %s 的可用主机范围内", gw, newPrefix)
		}
	}
	if input.VLANID != nil && *input.VLANID != 0 && (*input.VLANID < 1 || *input.VLANID > 4094) {
		return Subnet{}, nil, Errorf(ErrInvalidInput, "VLAN ID 必须在 1 到 4094 之间")
	}

	var (
		updated Subnet
		sync    *SyncResult
	)
	err = runInTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		updated, err = s.subnets.Update(ctx, id, input, NetmaskString(newPrefix))
		if err != nil {
			return err
		}
		if cidrChanged {
			result, err := s.materialise(ctx, id, newPrefix)
			if err != nil {
				return err
			}
			sync = &result
		}
		return nil
	})
	if err != nil {
		return Subnet{}, nil, err
	}

	if cidrChanged {
		_, _ = s.detector.Detect(ctx, actorID, &id)
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionSubnetUpdated,
		EntityType: EntitySubnet,
		EntityID:   &id,
		OldValues:  SnapshotSubnet(existing),
		NewValues:  SnapshotSubnet(updated),
	})
	return updated, sync, nil
}

func (s *networkService) DeleteSubnet(ctx context.Context, actorID, id int64) error {
	subnet, err := s.subnets.FindByID(ctx, id)
	if err != nil {
		return err
	}

	err = runInTx(ctx, s.tx, func(ctx context.Context) error {
		// Hold the subnet's address rows so an in-flight allocation cannot
		// commit between the liveness count and the cascade delete.
		if err := s.ips.LockSubnetAddresses(ctx, id); err != nil {
			return err
		}
		counts, err := s.ips.CountByStatus(ctx, &id)
		if err != nil {
			return err
		}
		live := counts[StatusAllocated] + counts[StatusReserved]
		if live > 0 {
			return Errorf(ErrSubnetNotEmpty, "无法删除网段，存在 %d 个已分配或保留的IP地址", live)
		}
		deleted, err := s.subnets.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return Errorf(ErrNotFound, "网段不存在: %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionSubnetDeleted,
		EntityType: EntitySubnet,
		EntityID:   &id,
		OldValues:  SnapshotSubnet(subnet),
	})
	return nil
}

func (s *networkService) SyncSubnet(ctx context.Context, actorID, id int64) (SyncResult, error) {
	subnet, err := s.subnets.FindByID(ctx, id)
	if err != nil {
		return SyncResult{}, err
	}

	var sync SyncResult
	err = runInTx(ctx, s.tx, func(ctx context.Context) error {
		sync, err = s.materialise(ctx, id, subnet.CIDR)
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}

	_, _ = s.detector.Detect(ctx, actorID, &id)
	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     ActionSubnetSynced,
		EntityType: EntitySubnet,
		EntityID:   &id,
		NewValues: map[string]any{
			"cidr":    sync.CIDR,
			"added":   sync.Added,
			"removed": sync.Removed,
			"kept":    sync.Kept,
		},
	})
	return sync, nil
}

func (s *networkService) ValidateSubnet(ctx context.Context, cidr string, excludeID *int64) (SubnetValidation, error) {
	prefix, err := ParseCIDR(cidr)
	if err != nil {
		return SubnetValidation{
			Valid:   false,
			Message: "无效的网段格式，请使用CIDR格式如192.168.1.0/24",
		}, nil
	}

	all, err := s.subnets.All(ctx)
	if err != nil {
		return SubnetValidation{}, err
	}

	var overlapping []Subnet
	for _, other := range all {
		if excludeID != nil && other.ID == *excludeID {
			continue
		}
		if other.CIDR == prefix {
			return SubnetValidation{
				Valid:       false,
				Message:     fmt.Sprintf("网段 %s 已存在", prefix),
				Overlapping: []Subnet{other},
			}, nil
		}
		if Overlaps(other.CIDR, prefix) {
			overlapping = append(overlapping, other)
		}
	}

	// Range overlap is reported but does not block: only exact duplicates are
	// rejected on the write path.
	if len(overlapping) > 0 {
		return SubnetValidation{
			Valid:       true,
			Message:     fmt.Sprintf("网段验证通过，但与 %d 个现有网段范围重叠", len(overlapping)),
			Overlapping: overlapping,
		}, nil
	}
	return SubnetValidation{Valid: true, Message: "网段验证通过"}, nil
}

// materialise reconciles the address store to the host set of prefix. Runs
// inside the caller's transaction. Only vacant (available) stale rows are
// removed; allocated, reserved and conflict rows outside the new CIDR stay
// put for the operator to resolve.
func (s *networkService) materialise(ctx context.Context, subnetID int64, prefix netip.Prefix) (SyncResult, error) {
	hosts, err := Hosts(prefix, s.hostCeiling)
	if err != nil {
		return SyncResult{}, err
	}

	existing, err := s.ips.AddressSet(ctx, subnetID)
	if err != nil {
		return SyncResult{}, err
	}

	expected := make(map[netip.Addr]bool, len(hosts))
	for _, h := range hosts {
		expected[h] = true
	}

	var toAdd []netip.Addr
	for _, h := range hosts {
		if _, ok := existing[h]; !ok {
			toAdd = append(toAdd, h)
		}
	}
	// An ip materialised under another subnet stays there: ip values are
	// globally unique and the conflict surfaces through detection instead.
	if len(toAdd) > 0 {
		taken, err := s.ips.ExistingIPs(ctx, toAdd)
		if err != nil {
			return SyncResult{}, err
		}
		if len(taken) > 0 {
			filtered := toAdd[:0]
			for _, a := range toAdd {
				if !taken[a] {
					filtered = append(filtered, a)
				}
			}
			toAdd = filtered
		}
	}

	added := 0
	if len(toAdd) > 0 {
		added, err = s.ips.BulkCreate(ctx, subnetID, toAdd)
		if err != nil {
			return SyncResult{}, err
		}
	}

	// Stale rows are those outside the new host range; an empty range makes
	// every available row stale.
	lo, hi := uint32(1), uint32(0)
	if first, last, ok := HostRange(prefix); ok {
		lo, hi = IPv4ToUint32(first), IPv4ToUint32(last)
	}
	removed, err := s.ips.DeleteStaleAvailable(ctx, subnetID, lo, hi)
	if err != nil {
		return SyncResult{}, err
	}

	kept := 0
	for a := range existing {
		if expected[a] {
			kept++
		}
	}

	return SyncResult{
		SubnetID: subnetID,
		CIDR:     prefix.String(),
		Added:    added,
		Removed:  int(removed),
		Kept:     kept,
	}, nil
}

func (s *networkService) validateSubnetInput(cidr, gateway string, vlanID int32) (netip.Prefix, netip.Addr, error) {
	prefix, err := ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return netip.Prefix{}, netip.Addr{}, err
	}
	var gw netip.Addr
	if gateway != "" {
		gw, err = ParseIP(gateway)
		if err != nil {
			return netip.Prefix{}, netip.Addr{}, err
		}
		if !IsUsableHost(prefix, gw) {
			return netip.Prefix{}, netip.Addr{}, Errorf(ErrInvalidInput, "网关 %s 不在网段 %s 的可用主机范围内", gw, prefix)
		}
	}
	if vlanID != 0 && (vlanID < 1 || vlanID > 4094) {
		return netip.Prefix{}, netip.Addr{}, Errorf(ErrInvalidInput, "VLAN ID 必须在 1 到 4094 之间")
	}
	return prefix, gw, nil
}

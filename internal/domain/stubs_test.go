package domain

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"time"
)

// passTx runs the function directly; the fakes below have no transactions.
type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failTx fails every run with the configured error, n times.
type failTx struct {
	err   error
	left  int
	calls int
}

func (t *failTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if t.left != 0 {
		t.left--
		return t.err
	}
	return fn(ctx)
}

type captureRecorder struct {
	entries []AuditEntry
}

func (c *captureRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureRecorder) actions() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

// memStore is a shared in-memory backing for the repository fakes.
type memStore struct {
	nextSubnetID int64
	nextIPID     int64
	subnets      map[int64]Subnet
	ips          map[int64]*IPAddress

	// lockedSubnets records LockSubnetAddresses calls in order.
	lockedSubnets []int64
}

func newMemStore() *memStore {
	return &memStore{
		subnets: make(map[int64]Subnet),
		ips:     make(map[int64]*IPAddress),
	}
}

func (m *memStore) addIP(rec IPAddress) *IPAddress {
	m.nextIPID++
	rec.ID = m.nextIPID
	m.ips[rec.ID] = &rec
	return m.ips[rec.ID]
}

func (m *memStore) sortedIPs(filter func(*IPAddress) bool) []IPAddress {
	var out []IPAddress
	for _, rec := range m.ips {
		if filter == nil || filter(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return IPv4ToUint32(out[i].IP) < IPv4ToUint32(out[j].IP)
	})
	return out
}

type memSubnetRepo struct {
	store *memStore
}

func (r *memSubnetRepo) List(_ context.Context, offset, limit int) ([]SubnetWithCounts, error) {
	var out []SubnetWithCounts
	for _, s := range r.store.subnets {
		sc := SubnetWithCounts{Subnet: s}
		for _, rec := range r.store.ips {
			if rec.SubnetID != s.ID {
				continue
			}
			sc.TotalIPs++
			switch rec.Status {
			case StatusAllocated:
				sc.AllocatedIPs++
			case StatusAvailable:
				sc.AvailableIPs++
			}
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSubnetRepo) All(_ context.Context) ([]Subnet, error) {
	var out []Subnet
	for _, s := range r.store.subnets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSubnetRepo) Count(_ context.Context) (int64, error) {
	return int64(len(r.store.subnets)), nil
}

func (r *memSubnetRepo) FindByID(_ context.Context, id int64) (Subnet, error) {
	s, ok := r.store.subnets[id]
	if !ok {
		return Subnet{}, Errorf(ErrNotFound, "网段 %d 不存在", id)
	}
	return s, nil
}

func (r *memSubnetRepo) FindByCIDR(_ context.Context, cidr string) (Subnet, error) {
	for _, s := range r.store.subnets {
		if s.CIDR.String() == cidr {
			return s, nil
		}
	}
	return Subnet{}, Errorf(ErrNotFound, "网段 %s 不存在", cidr)
}

func (r *memSubnetRepo) Create(_ context.Context, subnet Subnet) (Subnet, error) {
	r.store.nextSubnetID++
	subnet.ID = r.store.nextSubnetID
	subnet.CreatedAt = time.Now()
	subnet.UpdatedAt = subnet.CreatedAt
	r.store.subnets[subnet.ID] = subnet
	return subnet, nil
}

func (r *memSubnetRepo) Update(_ context.Context, id int64, input UpdateSubnetInput, netmask string) (Subnet, error) {
	s, ok := r.store.subnets[id]
	if !ok {
		return Subnet{}, Errorf(ErrNotFound, "网段 %d 不存在", id)
	}
	if input.CIDR != nil {
		prefix, err := netip.ParsePrefix(*input.CIDR)
		if err != nil {
			return Subnet{}, err
		}
		s.CIDR = prefix
		s.Netmask = netmask
	}
	if input.Gateway != nil {
		if *input.Gateway == "" {
			s.Gateway = netip.Addr{}
		} else {
			gw, err := netip.ParseAddr(*input.Gateway)
			if err != nil {
				return Subnet{}, err
			}
			s.Gateway = gw
		}
	}
	if input.VLANID != nil {
		s.VLANID = *input.VLANID
	}
	if input.Description != nil {
		s.Description = *input.Description
	}
	if input.Location != nil {
		s.Location = *input.Location
	}
	s.UpdatedAt = time.Now()
	r.store.subnets[id] = s
	return s, nil
}

func (r *memSubnetRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.store.subnets[id]; !ok {
		return false, nil
	}
	delete(r.store.subnets, id)
	for ipID, rec := range r.store.ips {
		if rec.SubnetID == id {
			delete(r.store.ips, ipID)
		}
	}
	return true, nil
}

type memIPRepo struct {
	store *memStore
}

func (r *memIPRepo) FindByID(_ context.Context, id int64) (IPAddress, error) {
	rec, ok := r.store.ips[id]
	if !ok {
		return IPAddress{}, Errorf(ErrNotFound, "IP记录 %d 不存在", id)
	}
	return *rec, nil
}

func (r *memIPRepo) FindByIP(_ context.Context, ip netip.Addr) (IPAddress, error) {
	for _, rec := range r.store.ips {
		if rec.IP == ip {
			return *rec, nil
		}
	}
	return IPAddress{}, Errorf(ErrNotFound, "IP地址 %s 不存在", ip)
}

func (r *memIPRepo) LockByIP(ctx context.Context, ip netip.Addr) (IPAddress, error) {
	return r.FindByIP(ctx, ip)
}

func (r *memIPRepo) LockSubnetAddresses(_ context.Context, subnetID int64) error {
	r.store.lockedSubnets = append(r.store.lockedSubnets, subnetID)
	return nil
}

func (r *memIPRepo) FirstAvailable(_ context.Context, subnetID int64) (IPAddress, error) {
	candidates := r.store.sortedIPs(func(rec *IPAddress) bool {
		return rec.SubnetID == subnetID && rec.Status == StatusAvailable
	})
	if len(candidates) == 0 {
		return IPAddress{}, Errorf(ErrNoCapacity, "网段中没有可用的IP地址")
	}
	return candidates[0], nil
}

func (r *memIPRepo) ListBySubnet(_ context.Context, q ListQuery) ([]IPAddress, int64, error) {
	all := r.store.sortedIPs(func(rec *IPAddress) bool {
		if q.SubnetID != nil && rec.SubnetID != *q.SubnetID {
			return false
		}
		if q.Status != nil && rec.Status != *q.Status {
			return false
		}
		return true
	})
	total := int64(len(all))
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && q.Limit < len(all) {
		all = all[:q.Limit]
	}
	return all, total, nil
}

func (r *memIPRepo) Search(_ context.Context, q SearchQuery) ([]IPAddress, int64, error) {
	matches := r.store.sortedIPs(func(rec *IPAddress) bool {
		if q.SubnetID != nil && rec.SubnetID != *q.SubnetID {
			return false
		}
		if q.Status != nil && rec.Status != *q.Status {
			return false
		}
		if q.Query == "" {
			return true
		}
		needle := strings.ToLower(q.Query)
		if addr, err := ParseIP(q.Query); err == nil {
			if rec.IP == addr {
				return true
			}
		} else if strings.Contains(rec.IP.String(), needle) {
			return true
		}
		for _, hay := range []string{rec.Hostname, rec.MACAddress, rec.AssignedTo, rec.Description} {
			if strings.Contains(strings.ToLower(hay), needle) {
				return true
			}
		}
		return false
	})
	return matches, int64(len(matches)), nil
}

func (r *memIPRepo) AddressSet(_ context.Context, subnetID int64) (map[netip.Addr]IPStatus, error) {
	out := make(map[netip.Addr]IPStatus)
	for _, rec := range r.store.ips {
		if rec.SubnetID == subnetID {
			out[rec.IP] = rec.Status
		}
	}
	return out, nil
}

func (r *memIPRepo) ExistingIPs(_ context.Context, ips []netip.Addr) (map[netip.Addr]bool, error) {
	out := make(map[netip.Addr]bool)
	for _, rec := range r.store.ips {
		for _, ip := range ips {
			if rec.IP == ip {
				out[ip] = true
			}
		}
	}
	return out, nil
}

func (r *memIPRepo) BulkCreate(_ context.Context, subnetID int64, ips []netip.Addr) (int, error) {
	for _, ip := range ips {
		for _, rec := range r.store.ips {
			if rec.IP == ip {
				return 0, Errorf(ErrConflict, "记录已存在: unique_ip")
			}
		}
	}
	now := time.Now()
	for _, ip := range ips {
		r.store.addIP(IPAddress{
			IP:        ip,
			SubnetID:  subnetID,
			Status:    StatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return len(ips), nil
}

func (r *memIPRepo) DeleteStaleAvailable(_ context.Context, subnetID int64, lo, hi uint32) (int64, error) {
	var removed int64
	for id, rec := range r.store.ips {
		if rec.SubnetID != subnetID || rec.Status != StatusAvailable {
			continue
		}
		v := IPv4ToUint32(rec.IP)
		if v < lo || v > hi {
			delete(r.store.ips, id)
			removed++
		}
	}
	return removed, nil
}

func (r *memIPRepo) Assign(_ context.Context, id int64, a Assignment) (IPAddress, error) {
	rec, ok := r.store.ips[id]
	if !ok {
		return IPAddress{}, Errorf(ErrNotFound, "IP记录 %d 不存在", id)
	}
	rec.Status = a.Status
	rec.MACAddress = a.MACAddress
	rec.Hostname = a.Hostname
	rec.DeviceType = a.DeviceType
	rec.Location = a.Location
	rec.AssignedTo = a.AssignedTo
	rec.Description = a.Description
	allocatedAt := a.AllocatedAt
	allocatedBy := a.AllocatedBy
	rec.AllocatedAt = &allocatedAt
	rec.AllocatedBy = &allocatedBy
	rec.UpdatedAt = time.Now()
	return *rec, nil
}

func (r *memIPRepo) Release(_ context.Context, id int64, reason string) (IPAddress, error) {
	rec, ok := r.store.ips[id]
	if !ok {
		return IPAddress{}, Errorf(ErrNotFound, "IP记录 %d 不存在", id)
	}
	rec.Status = StatusAvailable
	rec.MACAddress = ""
	rec.Hostname = ""
	rec.DeviceType = ""
	rec.Location = ""
	rec.AssignedTo = ""
	rec.Description = reason
	rec.AllocatedAt = nil
	rec.AllocatedBy = nil
	rec.UpdatedAt = time.Now()
	return *rec, nil
}

func (r *memIPRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.store.ips[id]; !ok {
		return false, nil
	}
	delete(r.store.ips, id)
	return true, nil
}

func (r *memIPRepo) CountByStatus(_ context.Context, subnetID *int64) (map[IPStatus]int64, error) {
	out := make(map[IPStatus]int64)
	for _, rec := range r.store.ips {
		if subnetID != nil && rec.SubnetID != *subnetID {
			continue
		}
		out[rec.Status]++
	}
	return out, nil
}

func (r *memIPRepo) CountBySubnet(_ context.Context, subnetID int64) (int64, error) {
	var n int64
	for _, rec := range r.store.ips {
		if rec.SubnetID == subnetID {
			n++
		}
	}
	return n, nil
}

func (r *memIPRepo) CountReservedByActor(_ context.Context, subnetID, actorID int64) (int64, error) {
	var n int64
	for _, rec := range r.store.ips {
		if rec.SubnetID == subnetID && rec.Status == StatusReserved &&
			rec.AllocatedBy != nil && *rec.AllocatedBy == actorID {
			n++
		}
	}
	return n, nil
}

func (r *memIPRepo) CountAllocatedBySubnet(_ context.Context, subnetID int64) (int64, error) {
	var n int64
	for _, rec := range r.store.ips {
		if rec.SubnetID == subnetID && rec.Status == StatusAllocated {
			n++
		}
	}
	return n, nil
}

func (r *memIPRepo) Duplicates(_ context.Context, subnetID *int64) ([]IPAddress, error) {
	byIP := make(map[netip.Addr]int)
	for _, rec := range r.store.ips {
		if subnetID != nil && rec.SubnetID != *subnetID {
			continue
		}
		byIP[rec.IP]++
	}
	out := r.store.sortedIPs(func(rec *IPAddress) bool {
		if subnetID != nil && rec.SubnetID != *subnetID {
			return false
		}
		return byIP[rec.IP] > 1
	})
	return out, nil
}

func (r *memIPRepo) MarkConflict(_ context.Context, ips []netip.Addr) (int64, error) {
	var n int64
	for _, rec := range r.store.ips {
		for _, ip := range ips {
			if rec.IP == ip {
				rec.Status = StatusConflict
				n++
			}
		}
	}
	return n, nil
}

func (r *memIPRepo) FindInRange(_ context.Context, lo, hi uint32) ([]IPAddress, error) {
	return r.store.sortedIPs(func(rec *IPAddress) bool {
		v := IPv4ToUint32(rec.IP)
		return v >= lo && v <= hi
	}), nil
}

func mustPrefix(s string) netip.Prefix {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

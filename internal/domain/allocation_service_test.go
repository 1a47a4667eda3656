package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type allocationFixture struct {
	svc      AllocationService
	network  NetworkService
	store    *memStore
	recorder *captureRecorder
	subnet   Subnet
}

func newAllocationFixture(t *testing.T, cidr string) *allocationFixture {
	t.Helper()
	store := newMemStore()
	recorder := &captureRecorder{}
	ips := &memIPRepo{store: store}
	subnets := &memSubnetRepo{store: store}
	detector := NewConflictDetector(passTx{}, ips, recorder)
	network := NewNetworkService(passTx{}, subnets, ips, detector, recorder, 0)
	svc := NewAllocationService(passTx{}, ips, subnets, detector, recorder, 0)

	subnet, _, err := network.CreateSubnet(context.Background(), 1, CreateSubnetInput{CIDR: cidr})
	if err != nil {
		t.Fatalf("fixture subnet create failed: %v", err)
	}
	return &allocationFixture{svc: svc, network: network, store: store, recorder: recorder, subnet: subnet}
}

func TestAllocatePicksLowestAvailable(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	first, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, Hostname: "web-1"})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if first.IP != mustAddr("192.168.1.1") {
		t.Fatalf("expected lowest host .1, got %s", first.IP)
	}
	if first.Status != StatusAllocated {
		t.Fatalf("expected allocated, got %s", first.Status)
	}
	if first.AllocatedBy == nil || *first.AllocatedBy != 7 {
		t.Fatal("allocated_by must record the actor")
	}
	if first.AllocatedAt == nil {
		t.Fatal("allocated_at must be set")
	}

	second, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if second.IP != mustAddr("192.168.1.2") {
		t.Fatalf("expected next lowest host .2, got %s", second.IP)
	}
}

func TestAllocatePreferredIP(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	ip, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.5"})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if ip.IP != mustAddr("192.168.1.5") {
		t.Fatalf("expected preferred .5, got %s", ip.IP)
	}

	// The same preferred ip is now taken.
	_, err = f.svc.Allocate(ctx, 8, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.5"})
	if !errors.Is(err, ErrPreferredTaken) {
		t.Fatalf("expected ErrPreferredTaken, got %v", err)
	}
}

func TestAllocatePreferredOutsideSubnet(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")

	// An ip that exists but belongs to another subnet.
	f.store.addIP(IPAddress{IP: mustAddr("10.9.9.1"), SubnetID: f.subnet.ID + 100, Status: StatusAvailable})

	_, err := f.svc.Allocate(context.Background(), 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "10.9.9.1"})
	if !errors.Is(err, ErrPreferredOutside) {
		t.Fatalf("expected ErrPreferredOutside, got %v", err)
	}
}

func TestAllocateExhaustsCapacity(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/30")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID}); err != nil {
			t.Fatalf("allocate %d failed: %v", i, err)
		}
	}
	_, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID})
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestAllocateHonoursClientTimestamp(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ip, err := f.svc.Allocate(context.Background(), 7, AllocateInput{SubnetID: f.subnet.ID, AllocatedAt: &want})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if ip.AllocatedAt == nil || !ip.AllocatedAt.Equal(want) {
		t.Fatalf("expected client timestamp %v, got %v", want, ip.AllocatedAt)
	}
}

func TestAllocateUnknownSubnet(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")

	_, err := f.svc.Allocate(context.Background(), 7, AllocateInput{SubnetID: 999})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReserveRequiresReason(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")

	_, err := f.svc.Reserve(context.Background(), 7, ReserveInput{IP: "192.168.1.1", Reason: "  "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReserveSynthesisesAssignee(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")

	ip, err := f.svc.Reserve(context.Background(), 7, ReserveInput{IP: "192.168.1.1", Reason: "维护窗口"})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if ip.Status != StatusReserved {
		t.Fatalf("expected reserved, got %s", ip.Status)
	}
	if ip.AssignedTo != "保留 - 维护窗口" {
		t.Fatalf("unexpected assignee: %q", ip.AssignedTo)
	}
}

func TestReserveTakenIPFails(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.1"}); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	_, err := f.svc.Reserve(ctx, 7, ReserveInput{IP: "192.168.1.1", Reason: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// A /29 materialises 6 hosts; the per-actor cap is floor(0.2*6) = 1.
func TestReserveQuotaPerActor(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, 7, ReserveInput{IP: "192.168.1.1", Reason: "x"}); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	_, err := f.svc.Reserve(ctx, 7, ReserveInput{IP: "192.168.1.2", Reason: "x"})
	if !errors.Is(err, ErrReservationQuota) {
		t.Fatalf("expected ErrReservationQuota, got %v", err)
	}

	// A different actor has their own budget.
	if _, err := f.svc.Reserve(ctx, 8, ReserveInput{IP: "192.168.1.2", Reason: "x"}); err != nil {
		t.Fatalf("other actor reserve failed: %v", err)
	}
}

// A /30 has 2 hosts: floor(0.2*2) = 0, so reservation is never possible.
func TestReserveQuotaZeroOnTinySubnet(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/30")

	_, err := f.svc.Reserve(context.Background(), 7, ReserveInput{IP: "192.168.1.1", Reason: "x"})
	if !errors.Is(err, ErrReservationQuota) {
		t.Fatalf("expected ErrReservationQuota, got %v", err)
	}
}

func TestReleaseRoundTrip(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	allocated, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, Hostname: "web-1", MACAddress: "aa:bb:cc:dd:ee:ff"})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	released, err := f.svc.Release(ctx, 7, ReleaseInput{IP: allocated.IP.String(), Reason: "退役"})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.Status != StatusAvailable {
		t.Fatalf("expected available, got %s", released.Status)
	}
	if released.Hostname != "" || released.MACAddress != "" || released.AssignedTo != "" {
		t.Fatal("release must clear assignment metadata")
	}
	if released.Description != "退役" {
		t.Fatalf("description must carry the release reason, got %q", released.Description)
	}
	if released.AllocatedAt != nil || released.AllocatedBy != nil {
		t.Fatal("release must clear allocation provenance")
	}

	// The freed address is allocatable again.
	again, err := f.svc.Allocate(ctx, 8, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: allocated.IP.String()})
	if err != nil {
		t.Fatalf("re-allocate failed: %v", err)
	}
	if again.IP != allocated.IP {
		t.Fatalf("expected %s, got %s", allocated.IP, again.IP)
	}
}

func TestReleaseAvailableFails(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")

	_, err := f.svc.Release(context.Background(), 7, ReleaseInput{IP: "192.168.1.1"})
	if !errors.Is(err, ErrNotReleasable) {
		t.Fatalf("expected ErrNotReleasable, got %v", err)
	}
}

func TestDeleteAllocatedRefused(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.1"}); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	err := f.svc.DeleteIP(ctx, 7, DeleteIPInput{IP: "192.168.1.1"})
	if !errors.Is(err, ErrDeleteRefused) {
		t.Fatalf("expected ErrDeleteRefused, got %v", err)
	}
}

func TestDeleteReservedSucceeds(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/24")
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, 7, ReserveInput{IP: "192.168.1.1", Reason: "x"}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.DeleteIP(ctx, 7, DeleteIPInput{IP: "192.168.1.1", Reason: "清理"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	ips := &memIPRepo{store: f.store}
	if _, err := ips.FindByIP(ctx, mustAddr("192.168.1.1")); !errors.Is(err, ErrNotFound) {
		t.Fatal("record must be gone after delete")
	}
}

func TestResolveConflictReleasesRecord(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	for _, rec := range f.store.ips {
		if rec.IP == mustAddr("192.168.1.1") {
			rec.Status = StatusConflict
		}
	}

	ip, err := f.svc.ResolveConflict(ctx, 7, "192.168.1.1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if ip.Status != StatusAvailable {
		t.Fatalf("expected available after resolve, got %s", ip.Status)
	}

	_, err = f.svc.ResolveConflict(ctx, 7, "192.168.1.2")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("resolving a non-conflicted address must fail, got %v", err)
	}
}

func TestBulkApplyPartialFailure(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/24")
	ctx := context.Background()

	// .2 is already allocated, so bulk-reserving .1..3 fails midway yet the
	// others go through.
	if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.2"}); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	result, err := f.svc.BulkApply(ctx, 7, BulkInput{
		IPs:       []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"},
		Operation: BulkReserve,
		Reason:    "批量保留",
	})
	if err != nil {
		t.Fatalf("bulk apply failed: %v", err)
	}
	if result.SuccessCount != 2 || result.FailedCount != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %+v", result)
	}
	if result.Failed[0].IP != "192.168.1.2" {
		t.Fatalf("expected .2 to fail, got %s", result.Failed[0].IP)
	}
	if result.Failed[0].Reason == "" {
		t.Fatal("failure must carry a reason")
	}
}

func TestBulkApplyReleaseIsIdempotentAcrossRuns(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.1"}); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	first, err := f.svc.BulkApply(ctx, 7, BulkInput{IPs: []string{"192.168.1.1"}, Operation: BulkRelease})
	if err != nil {
		t.Fatalf("bulk release failed: %v", err)
	}
	if first.SuccessCount != 1 {
		t.Fatalf("expected release to succeed, got %+v", first)
	}

	// Second run: already available, reported as failed, state unchanged.
	second, err := f.svc.BulkApply(ctx, 7, BulkInput{IPs: []string{"192.168.1.1"}, Operation: BulkRelease})
	if err != nil {
		t.Fatalf("bulk release failed: %v", err)
	}
	if second.SuccessCount != 0 || second.FailedCount != 1 {
		t.Fatalf("expected a reported failure, got %+v", second)
	}
	ips := &memIPRepo{store: f.store}
	rec, err := ips.FindByIP(ctx, mustAddr("192.168.1.1"))
	if err != nil || rec.Status != StatusAvailable {
		t.Fatalf("state must be unchanged, got %v %v", rec.Status, err)
	}
}

func TestBulkApplyRejectsEmptyAndOversized(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.BulkApply(ctx, 7, BulkInput{Operation: BulkRelease}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty list: expected ErrInvalidInput, got %v", err)
	}

	big := make([]string, 1001)
	for i := range big {
		big[i] = "10.0.0.1"
	}
	if _, err := f.svc.BulkApply(ctx, 7, BulkInput{IPs: big, Operation: BulkRelease}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized list: expected ErrInvalidInput, got %v", err)
	}
}

func TestBulkApplyRecordsSummaryEvent(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/24")
	ctx := context.Background()

	if _, err := f.svc.BulkApply(ctx, 7, BulkInput{IPs: []string{"192.168.1.1"}, Operation: BulkReserve, Reason: "x"}); err != nil {
		t.Fatalf("bulk apply failed: %v", err)
	}

	var summary *AuditEntry
	for i := range f.recorder.entries {
		if f.recorder.entries[i].Action == ActionBulkOperation {
			summary = &f.recorder.entries[i]
		}
	}
	if summary == nil {
		t.Fatalf("expected a bulk_operation audit event, got %v", f.recorder.actions())
	}
	if summary.NewValues["success_count"] != 1 {
		t.Fatalf("unexpected summary: %v", summary.NewValues)
	}
}

func TestStatisticsUtilisation(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID}); err != nil {
			t.Fatalf("allocate failed: %v", err)
		}
	}

	stats, err := f.svc.Statistics(ctx, &f.subnet.ID)
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.Total != 6 || stats.Allocated != 3 || stats.Available != 3 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.UtilizationRate != 50 {
		t.Fatalf("expected 50%% utilisation, got %v", stats.UtilizationRate)
	}
}

func TestRangeStatusMarksUnmanagedGaps(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	// .1..6 are managed; .7 (broadcast) and .8 are not records.
	out, err := f.svc.RangeStatus(ctx, "192.168.1.5", "192.168.1.8")
	if err != nil {
		t.Fatalf("range status failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(out))
	}
	if out[0].Status != StatusAvailable || out[1].Status != StatusAvailable {
		t.Fatalf("expected managed entries first, got %+v", out[:2])
	}
	if out[2].Status != StatusNotManaged || out[3].Status != StatusNotManaged {
		t.Fatalf("expected unmanaged tail, got %+v", out[2:])
	}
}

func TestRangeStatusRejectsInvertedAndHugeRanges(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/29")
	ctx := context.Background()

	if _, err := f.svc.RangeStatus(ctx, "192.168.1.10", "192.168.1.1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("inverted range: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.RangeStatus(ctx, "10.0.0.0", "10.255.255.255"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("huge range: expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitionsAreAudited(t *testing.T) {
	f := newAllocationFixture(t, "192.168.1.0/24")
	ctx := context.Background()

	if _, err := f.svc.Allocate(ctx, 7, AllocateInput{SubnetID: f.subnet.ID, PreferredIP: "192.168.1.1"}); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if _, err := f.svc.Release(ctx, 7, ReleaseInput{IP: "192.168.1.1"}); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	var got []string
	for _, e := range f.recorder.entries {
		if e.EntityType == EntityIP && e.EntityID != nil {
			got = append(got, e.Action)
		}
	}
	if len(got) != 2 || got[0] != ActionAllocated || got[1] != ActionReleased {
		t.Fatalf("expected allocated then released, got %v", got)
	}
	// old -> new snapshots must show the transition.
	for _, e := range f.recorder.entries {
		if e.Action == ActionAllocated {
			if e.OldValues["status"] != string(StatusAvailable) || e.NewValues["status"] != string(StatusAllocated) {
				t.Fatalf("bad snapshots: %v -> %v", e.OldValues, e.NewValues)
			}
		}
	}
}

func TestContentionRetriedThenInternal(t *testing.T) {
	store := newMemStore()
	recorder := &captureRecorder{}
	ips := &memIPRepo{store: store}
	subnets := &memSubnetRepo{store: store}
	subnet, err := subnets.Create(context.Background(), Subnet{CIDR: mustPrefix("10.0.0.0/29")})
	if err != nil {
		t.Fatalf("fixture subnet create failed: %v", err)
	}
	store.addIP(IPAddress{IP: mustAddr("10.0.0.1"), SubnetID: subnet.ID, Status: StatusAvailable})

	tx := &failTx{err: ErrContention, left: -1} // fail forever
	detector := NewConflictDetector(tx, ips, recorder)
	svc := NewAllocationService(tx, ips, subnets, detector, recorder, 0)

	_, err = svc.Allocate(context.Background(), 7, AllocateInput{SubnetID: subnet.ID})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal after retries, got %v", err)
	}
	if tx.calls != 3 {
		t.Fatalf("expected 1 try + 2 retries, got %d calls", tx.calls)
	}
}

func TestContentionRecoversWithinBudget(t *testing.T) {
	store := newMemStore()
	recorder := &captureRecorder{}
	ips := &memIPRepo{store: store}
	subnets := &memSubnetRepo{store: store}
	subnet, err := subnets.Create(context.Background(), Subnet{CIDR: mustPrefix("10.0.0.0/29")})
	if err != nil {
		t.Fatalf("fixture subnet create failed: %v", err)
	}
	store.addIP(IPAddress{IP: mustAddr("10.0.0.1"), SubnetID: subnet.ID, Status: StatusAvailable})

	tx := &failTx{err: ErrContention, left: 2}
	detector := NewConflictDetector(tx, ips, recorder)
	svc := NewAllocationService(tx, ips, subnets, detector, recorder, 0)

	ip, err := svc.Allocate(context.Background(), 7, AllocateInput{SubnetID: subnet.ID})
	if err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if ip.IP != mustAddr("10.0.0.1") {
		t.Fatalf("unexpected ip: %s", ip.IP)
	}
}

func TestSearchFullAddressMatchesExactly(t *testing.T) {
	f := newAllocationFixture(t, "10.0.0.0/24")
	ctx := context.Background()

	exact, total, err := f.svc.SearchIPs(ctx, SearchQuery{Query: "10.0.0.1"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 1 || len(exact) != 1 {
		t.Fatalf("a full dotted-quad must match exactly one record, got %d", total)
	}
	if exact[0].IP != mustAddr("10.0.0.1") {
		t.Fatalf("expected 10.0.0.1, got %s", exact[0].IP)
	}

	// Partial input stays a substring match over the same column.
	partial, _, err := f.svc.SearchIPs(ctx, SearchQuery{Query: "10.0.0."})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(partial) != 254 {
		t.Fatalf("expected the whole /24 for a prefix query, got %d", len(partial))
	}
}

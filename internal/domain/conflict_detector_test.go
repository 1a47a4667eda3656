package domain

import (
	"context"
	"testing"
)

func newDetectorFixture() (*ConflictDetector, *memStore, *captureRecorder) {
	store := newMemStore()
	recorder := &captureRecorder{}
	detector := NewConflictDetector(passTx{}, &memIPRepo{store: store}, recorder)
	return detector, store, recorder
}

func TestDetectMarksActiveDuplicateGroups(t *testing.T) {
	detector, store, recorder := newDetectorFixture()

	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 1, Status: StatusAllocated})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 2, Status: StatusAvailable})

	groups, err := detector.Detect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	if groups[0].IP != mustAddr("10.0.0.5") || len(groups[0].Records) != 2 {
		t.Fatalf("unexpected group: %+v", groups[0])
	}

	// Every member of the group moves to conflict.
	for _, rec := range store.ips {
		if rec.Status != StatusConflict {
			t.Fatalf("expected all members conflicted, got %s for %s", rec.Status, rec.IP)
		}
	}

	// One audit event per member.
	var events int
	for _, e := range recorder.entries {
		if e.Action == ActionConflict {
			events++
			if e.NewValues["status"] != string(StatusConflict) {
				t.Fatalf("bad event snapshot: %v", e.NewValues)
			}
		}
	}
	if events != 2 {
		t.Fatalf("expected 2 conflict events, got %d", events)
	}
}

func TestDetectIgnoresVacantDuplicates(t *testing.T) {
	detector, store, recorder := newDetectorFixture()

	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 1, Status: StatusAvailable})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 2, Status: StatusAvailable})

	groups, err := detector.Detect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("vacant duplicates must not qualify, got %d groups", len(groups))
	}
	for _, rec := range store.ips {
		if rec.Status != StatusAvailable {
			t.Fatalf("records must be untouched, got %s", rec.Status)
		}
	}
	if len(recorder.entries) != 0 {
		t.Fatalf("no audit events expected, got %v", recorder.actions())
	}
}

func TestDetectNoDuplicates(t *testing.T) {
	detector, store, _ := newDetectorFixture()

	store.addIP(IPAddress{IP: mustAddr("10.0.0.1"), SubnetID: 1, Status: StatusAllocated})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.2"), SubnetID: 1, Status: StatusAllocated})

	groups, err := detector.Detect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestDetectScopedToSubnet(t *testing.T) {
	detector, store, _ := newDetectorFixture()

	// Duplicate pair inside subnet 1, another pair split across 2 and 3.
	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 1, Status: StatusAllocated})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.5"), SubnetID: 1, Status: StatusReserved})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.9"), SubnetID: 2, Status: StatusAllocated})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.9"), SubnetID: 3, Status: StatusAvailable})

	one := int64(1)
	groups, err := detector.Detect(context.Background(), 1, &one)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(groups) != 1 || groups[0].IP != mustAddr("10.0.0.5") {
		t.Fatalf("expected only the in-scope group, got %+v", groups)
	}

	// The out-of-scope pair is untouched.
	for _, rec := range store.ips {
		if rec.IP == mustAddr("10.0.0.9") && rec.Status == StatusConflict {
			t.Fatal("out-of-scope records must not be marked")
		}
	}
}

func TestDetectGroupsSortedByIP(t *testing.T) {
	detector, store, _ := newDetectorFixture()

	store.addIP(IPAddress{IP: mustAddr("10.0.0.20"), SubnetID: 1, Status: StatusAllocated})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.20"), SubnetID: 2, Status: StatusAvailable})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.3"), SubnetID: 1, Status: StatusReserved})
	store.addIP(IPAddress{IP: mustAddr("10.0.0.3"), SubnetID: 2, Status: StatusAvailable})

	groups, err := detector.Detect(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected two groups, got %d", len(groups))
	}
	if groups[0].IP != mustAddr("10.0.0.3") || groups[1].IP != mustAddr("10.0.0.20") {
		t.Fatalf("groups out of order: %s, %s", groups[0].IP, groups[1].IP)
	}
}

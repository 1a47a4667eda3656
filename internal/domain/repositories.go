package domain

import (
	"context"
	"net/netip"
	"time"
)

// TxRunner scopes a function to one storage transaction. Repository calls made
// with the ctx it passes down share that transaction; returning an error rolls
// everything back. Engine operations take their row locks inside one run.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type SubnetRepository interface {
	List(ctx context.Context, offset, limit int) ([]SubnetWithCounts, error)
	All(ctx context.Context) ([]Subnet, error)
	Count(ctx context.Context) (int64, error)
	FindByID(ctx context.Context, id int64) (Subnet, error)
	FindByCIDR(ctx context.Context, cidr string) (Subnet, error)
	Create(ctx context.Context, subnet Subnet) (Subnet, error)
	Update(ctx context.Context, id int64, input UpdateSubnetInput, netmask string) (Subnet, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type IPRepository interface {
	FindByID(ctx context.Context, id int64) (IPAddress, error)
	FindByIP(ctx context.Context, ip netip.Addr) (IPAddress, error)
	// LockByIP is FindByIP under a pessimistic row lock; callers must hold a
	// transaction opened through TxRunner.
	LockByIP(ctx context.Context, ip netip.Addr) (IPAddress, error)
	// FirstAvailable picks the lowest-numeric available address of the subnet
	// and locks its row.
	FirstAvailable(ctx context.Context, subnetID int64) (IPAddress, error)
	// LockSubnetAddresses takes row locks on every address of the subnet so a
	// liveness count cannot race a concurrent allocation; callers must hold a
	// transaction opened through TxRunner.
	LockSubnetAddresses(ctx context.Context, subnetID int64) error
	ListBySubnet(ctx context.Context, q ListQuery) ([]IPAddress, int64, error)
	Search(ctx context.Context, q SearchQuery) ([]IPAddress, int64, error)
	// AddressSet returns ip -> status for every record owned by the subnet.
	AddressSet(ctx context.Context, subnetID int64) (map[netip.Addr]IPStatus, error)
	// ExistingIPs filters ips down to those already present in any subnet.
	ExistingIPs(ctx context.Context, ips []netip.Addr) (map[netip.Addr]bool, error)
	// BulkCreate inserts the addresses as available in one statement.
	// A duplicate ip fails the whole batch.
	BulkCreate(ctx context.Context, subnetID int64, ips []netip.Addr) (int, error)
	// DeleteStaleAvailable removes available rows of the subnet whose numeric
	// ip falls outside [lo, hi].
	DeleteStaleAvailable(ctx context.Context, subnetID int64, lo, hi uint32) (int64, error)
	Assign(ctx context.Context, id int64, a Assignment) (IPAddress, error)
	// Release moves the row back to available, clearing assignment metadata;
	// description carries the release reason.
	Release(ctx context.Context, id int64, reason string) (IPAddress, error)
	Delete(ctx context.Context, id int64) (bool, error)
	CountByStatus(ctx context.Context, subnetID *int64) (map[IPStatus]int64, error)
	CountBySubnet(ctx context.Context, subnetID int64) (int64, error)
	CountReservedByActor(ctx context.Context, subnetID, actorID int64) (int64, error)
	CountAllocatedBySubnet(ctx context.Context, subnetID int64) (int64, error)
	// Duplicates returns every record whose ip value occurs more than once,
	// optionally scoped to one subnet.
	Duplicates(ctx context.Context, subnetID *int64) ([]IPAddress, error)
	MarkConflict(ctx context.Context, ips []netip.Addr) (int64, error)
	FindInRange(ctx context.Context, lo, hi uint32) ([]IPAddress, error)
}

type AuditRepository interface {
	Append(ctx context.Context, ev AuditEvent) (AuditEvent, error)
	Search(ctx context.Context, q AuditQuery) ([]AuditEvent, int64, error)
	// HistoryForIP matches events whose entity is the address record or whose
	// snapshots carry the ip, so history survives record deletion.
	HistoryForIP(ctx context.Context, ip string, limit int) ([]AuditEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (AuditStats, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context, offset, limit int) ([]User, int64, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id int64, input UpdateUserInput) (User, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

package domain

import (
	"net/netip"
	"time"
)

// IPStatus is the lifecycle state of a tracked address.
type IPStatus string

const (
	StatusAvailable IPStatus = "available"
	StatusAllocated IPStatus = "allocated"
	StatusReserved  IPStatus = "reserved"
	StatusConflict  IPStatus = "conflict"

	// StatusNotManaged is only ever reported by range scans for addresses
	// that have no record; it is never stored.
	StatusNotManaged IPStatus = "not_managed"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Subnet struct {
	ID          int64
	CIDR        netip.Prefix
	Netmask     string
	Gateway     netip.Addr // zero value when unset
	VLANID      int32      // 0 when untagged
	Description string
	Location    string
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SubnetWithCounts decorates a subnet with its address tallies for list views.
type SubnetWithCounts struct {
	Subnet
	TotalIPs     int64
	AllocatedIPs int64
	AvailableIPs int64
}

type IPAddress struct {
	ID          int64
	IP          netip.Addr
	SubnetID    int64
	Status      IPStatus
	MACAddress  string
	Hostname    string
	DeviceType  string
	Location    string
	AssignedTo  string
	Description string
	AllocatedAt *time.Time
	AllocatedBy *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment is the full set of fields written when an address moves to
// allocated or reserved. Release clears everything except the description.
type Assignment struct {
	Status      IPStatus
	MACAddress  string
	Hostname    string
	DeviceType  string
	Location    string
	AssignedTo  string
	Description string
	AllocatedAt time.Time
	AllocatedBy int64
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SyncResult reports one materialisation run of a subnet's host set.
type SyncResult struct {
	SubnetID int64
	CIDR     string
	Added    int
	Removed  int
	Kept     int
}

// ConflictGroup is a set of address records sharing the same ip value.
type ConflictGroup struct {
	IP      netip.Addr
	Records []IPAddress
}

type Statistics struct {
	Total           int64
	Available       int64
	Allocated       int64
	Reserved        int64
	Conflict        int64
	UtilizationRate float64 // allocated / total in percent, two decimals
}

type RangeStatus struct {
	IP         netip.Addr
	Status     IPStatus
	Hostname   string
	MACAddress string
	AssignedTo string
}

type BulkFailure struct {
	IP     string
	Reason string
}

type BulkResult struct {
	SuccessCount int
	FailedCount  int
	Success      []string
	Failed       []BulkFailure
}

type SubnetValidation struct {
	Valid       bool
	Message     string
	Overlapping []Subnet
}

type AuditEvent struct {
	ID         int64
	ActorID    int64
	Action     string
	EntityType string
	EntityID   *int64
	OldValues  map[string]any
	NewValues  map[string]any
	RequestID  string
	SourceAddr string
	UserAgent  string
	CreatedAt  time.Time
}

// Audit action tags, one per state-changing operation.
const (
	ActionAllocated     = "allocated"
	ActionReserved      = "reserved"
	ActionReleased      = "released"
	ActionDeleted       = "deleted"
	ActionConflict      = "conflict_marked"
	ActionResolved      = "conflict_resolved"
	ActionBulkOperation = "bulk_operation"
	ActionSubnetCreated = "subnet_created"
	ActionSubnetUpdated = "subnet_updated"
	ActionSubnetDeleted = "subnet_deleted"
	ActionSubnetSynced  = "subnet_synced"
	ActionLogin         = "login"
	ActionLogout        = "logout"
	ActionUserCreated   = "user_created"
	ActionUserUpdated   = "user_updated"
	ActionUserDeleted   = "user_deleted"
)

const (
	EntityIP     = "ip"
	EntitySubnet = "subnet"
	EntityUser   = "user"
)

type AuditStats struct {
	Total    int64
	ByAction map[string]int64
	ByEntity map[string]int64
}

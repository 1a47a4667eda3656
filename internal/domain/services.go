package domain

import "context"

// NetworkService manages subnets and keeps their materialised host sets in
// step with the CIDR.
type NetworkService interface {
	ListSubnets(ctx context.Context, offset, limit int) ([]SubnetWithCounts, int64, error)
	GetSubnet(ctx context.Context, id int64) (Subnet, error)
	CreateSubnet(ctx context.Context, actorID int64, input CreateSubnetInput) (Subnet, SyncResult, error)
	UpdateSubnet(ctx context.Context, actorID, id int64, input UpdateSubnetInput) (Subnet, *SyncResult, error)
	DeleteSubnet(ctx context.Context, actorID, id int64) error
	SyncSubnet(ctx context.Context, actorID, id int64) (SyncResult, error)
	ValidateSubnet(ctx context.Context, cidr string, excludeID *int64) (SubnetValidation, error)
}

// AllocationService drives the per-address lifecycle state machine.
type AllocationService interface {
	Allocate(ctx context.Context, actorID int64, input AllocateInput) (IPAddress, error)
	Reserve(ctx context.Context, actorID int64, input ReserveInput) (IPAddress, error)
	Release(ctx context.Context, actorID int64, input ReleaseInput) (IPAddress, error)
	DeleteIP(ctx context.Context, actorID int64, input DeleteIPInput) error
	BulkApply(ctx context.Context, actorID int64, input BulkInput) (BulkResult, error)
	ResolveConflict(ctx context.Context, actorID int64, ip string) (IPAddress, error)
	ListIPs(ctx context.Context, q ListQuery) ([]IPAddress, int64, error)
	SearchIPs(ctx context.Context, q SearchQuery) ([]IPAddress, int64, error)
	Statistics(ctx context.Context, subnetID *int64) (Statistics, error)
	RangeStatus(ctx context.Context, startIP, endIP string) ([]RangeStatus, error)
	DetectConflicts(ctx context.Context, actorID int64, subnetID *int64) ([]ConflictGroup, error)
}

// AuditEntry is what the engine hands the recorder per state change. Request
// provenance (id, source address, user agent) is attached by the gateway.
type AuditEntry struct {
	ActorID    int64
	Action     string
	EntityType string
	EntityID   *int64
	OldValues  map[string]any
	NewValues  map[string]any
}

// Recorder appends audit events. Record is best-effort: implementations log
// failures and never propagate them into the business operation.
type Recorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditService is the full audit surface: the recorder plus its query,
// export and retention operations.
type AuditService interface {
	Recorder
	Search(ctx context.Context, q AuditQuery) ([]AuditEvent, int64, error)
	HistoryForIP(ctx context.Context, ip string, limit int) ([]AuditEvent, error)
	Export(ctx context.Context, q AuditQuery, format ExportFormat) ([]byte, string, error)
	Archive(ctx context.Context, days int) (int64, error)
	Stats(ctx context.Context) (AuditStats, error)
}

type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportJSON  ExportFormat = "json"
	ExportExcel ExportFormat = "excel"
)

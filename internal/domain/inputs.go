package domain

import "time"

type CreateSubnetInput struct {
	CIDR        string
	Netmask     string
	Gateway     string
	VLANID      int32
	Description string
	Location    string
}

// UpdateSubnetInput uses pointers so only supplied fields are touched.
type UpdateSubnetInput struct {
	CIDR        *string
	Gateway     *string
	VLANID      *int32
	Description *string
	Location    *string
}

type AllocateInput struct {
	SubnetID    int64
	PreferredIP string
	MACAddress  string
	Hostname    string
	DeviceType  string
	Location    string
	AssignedTo  string
	Description string
	AllocatedAt *time.Time
}

type ReserveInput struct {
	IP     string
	Reason string
}

type ReleaseInput struct {
	IP     string
	Reason string
}

type DeleteIPInput struct {
	IP     string
	Reason string
}

// UpdateUserInput uses pointers so only supplied fields are touched. The
// password arrives already hashed.
type UpdateUserInput struct {
	PasswordHash *string
	Role         *Role
}

type BulkOperation string

const (
	BulkReserve BulkOperation = "reserve"
	BulkRelease BulkOperation = "release"
	BulkDelete  BulkOperation = "delete"
)

type BulkInput struct {
	IPs       []string
	Operation BulkOperation
	Reason    string
}

type SearchQuery struct {
	Query      string
	SubnetID   *int64
	Status     *IPStatus
	DeviceType string
	Location   string
	AssignedTo string
	Offset     int
	Limit      int
}

type ListQuery struct {
	SubnetID *int64
	Status   *IPStatus
	Offset   int
	Limit    int
}

type AuditQuery struct {
	ActorID    *int64
	EntityType string
	EntityID   *int64
	Action     string
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

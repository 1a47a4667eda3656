package http

import (
	"time"

	"ipamd/internal/domain"
)

// SubnetResponse is the client view of a subnet, with address tallies when
// the listing carried them.
type SubnetResponse struct {
	ID           int64     `json:"id" example:"1"`
	CIDR         string    `json:"cidr" example:"10.0.0.0/24"`
	Netmask      string    `json:"netmask" example:"255.255.255.0"`
	Gateway      string    `json:"gateway,omitempty" example:"10.0.0.254"`
	VLANID       int32     `json:"vlan_id,omitempty" example:"100"`
	Description  string    `json:"description" example:"Office network"`
	Location     string    `json:"location,omitempty" example:"DC-1"`
	TotalIPs     int64     `json:"total_ips"`
	AllocatedIPs int64     `json:"allocated_ips"`
	AvailableIPs int64     `json:"available_ips"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at" example:"2024-05-10T15:04:05Z"`
	UpdatedAt    time.Time `json:"updated_at" example:"2024-05-10T15:04:05Z"`
}

// CreateSubnetRequest is the payload accepted when creating a subnet.
type CreateSubnetRequest struct {
	CIDR        string `json:"cidr" example:"10.0.0.0/24" validate:"required"`
	Netmask     string `json:"netmask" example:"255.255.255.0"`
	Gateway     string `json:"gateway" example:"10.0.0.254"`
	VLANID      int32  `json:"vlan_id" example:"100"`
	Description string `json:"description" example:"Office network"`
	Location    string `json:"location" example:"DC-1"`
}

// UpdateSubnetRequest carries only the fields to change.
type UpdateSubnetRequest struct {
	CIDR        *string `json:"cidr,omitempty"`
	Gateway     *string `json:"gateway,omitempty"`
	VLANID      *int32  `json:"vlan_id,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
}

type ValidateSubnetRequest struct {
	CIDR      string `json:"cidr" example:"10.0.1.0/24" validate:"required"`
	ExcludeID *int64 `json:"exclude_id,omitempty"`
}

type ValidateSubnetResponse struct {
	Valid       bool             `json:"valid"`
	Message     string           `json:"message"`
	Overlapping []SubnetResponse `json:"overlapping,omitempty"`
}

type SyncResultResponse struct {
	SubnetID int64  `json:"subnet_id"`
	CIDR     string `json:"cidr"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Kept     int    `json:"kept"`
}

// IPResponse is the client view of one address record.
type IPResponse struct {
	ID          int64      `json:"id" example:"42"`
	IP          string     `json:"ip" example:"10.0.0.5"`
	SubnetID    int64      `json:"subnet_id" example:"1"`
	Status      string     `json:"status" example:"allocated"`
	MACAddress  string     `json:"mac_address,omitempty"`
	Hostname    string     `json:"hostname,omitempty" example:"printer-1"`
	DeviceType  string     `json:"device_type,omitempty"`
	Location    string     `json:"location,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Description string     `json:"description,omitempty"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	AllocatedBy *int64     `json:"allocated_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type AllocateRequest struct {
	SubnetID    int64      `json:"subnet_id" validate:"required"`
	PreferredIP string     `json:"preferred_ip,omitempty" example:"10.0.0.5"`
	MACAddress  string     `json:"mac_address,omitempty"`
	Hostname    string     `json:"hostname,omitempty"`
	DeviceType  string     `json:"device_type,omitempty"`
	Location    string     `json:"location,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Description string     `json:"description,omitempty"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
}

type ReserveRequest struct {
	IP     string `json:"ip" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type ReleaseRequest struct {
	IP     string `json:"ip" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

type DeleteIPRequest struct {
	IP     string `json:"ip" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

type ResolveConflictRequest struct {
	IP string `json:"ip" validate:"required"`
}

type BulkOperationRequest struct {
	IPs       []string `json:"ips" validate:"required"`
	Operation string   `json:"operation" example:"reserve" validate:"required"`
	Reason    string   `json:"reason,omitempty"`
}

type BulkFailureResponse struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

type BulkOperationResponse struct {
	SuccessCount int                   `json:"success_count"`
	FailedCount  int                   `json:"failed_count"`
	Success      []string              `json:"success"`
	Failed       []BulkFailureResponse `json:"failed"`
}

type RangeStatusRequest struct {
	StartIP string `json:"start_ip" example:"10.0.0.1" validate:"required"`
	EndIP   string `json:"end_ip" example:"10.0.0.50" validate:"required"`
}

type RangeStatusResponse struct {
	IP         string `json:"ip"`
	Status     string `json:"status" example:"not_managed"`
	Hostname   string `json:"hostname,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

type StatisticsResponse struct {
	Total           int64   `json:"total"`
	Available       int64   `json:"available"`
	Allocated       int64   `json:"allocated"`
	Reserved        int64   `json:"reserved"`
	Conflict        int64   `json:"conflict"`
	UtilizationRate float64 `json:"utilization_rate" example:"37.5"`
}

type ConflictGroupResponse struct {
	IP      string       `json:"ip"`
	Records []IPResponse `json:"records"`
}

type PagedResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type" example:"Bearer"`
	ExpiresIn    int64  `json:"expires_in" example:"3600"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type VerifyResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role" example:"admin"`
}

// UserResponse is the client view of an account; the password hash never
// leaves the server.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username" example:"operator"`
	Role      string    `json:"role" example:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" example:"user"`
}

type UpdateUserRequest struct {
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

type AuditEventResponse struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action" example:"allocated"`
	EntityType string         `json:"entity_type" example:"ip"`
	EntityID   *int64         `json:"entity_id,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	RequestID  string         `json:"request_id"`
	SourceAddr string         `json:"source_addr"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

type AuditStatsResponse struct {
	Total    int64            `json:"total"`
	ByAction map[string]int64 `json:"by_action"`
	ByEntity map[string]int64 `json:"by_entity"`
}

type ArchiveRequest struct {
	Days int `json:"days" example:"90" validate:"required"`
}

type ArchiveResponse struct {
	Deleted int64 `json:"deleted"`
}

type DashboardResponse struct {
	SubnetCount    int64                `json:"subnet_count"`
	Statistics     StatisticsResponse   `json:"statistics"`
	RecentActivity []AuditEventResponse `json:"recent_activity"`
}

func subnetToResponse(s domain.Subnet) SubnetResponse {
	resp := SubnetResponse{
		ID:          s.ID,
		CIDR:        s.CIDR.String(),
		Netmask:     s.Netmask,
		VLANID:      s.VLANID,
		Description: s.Description,
		Location:    s.Location,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Gateway.IsValid() {
		resp.Gateway = s.Gateway.String()
	}
	return resp
}

func subnetWithCountsToResponse(s domain.SubnetWithCounts) SubnetResponse {
	resp := subnetToResponse(s.Subnet)
	resp.TotalIPs = s.TotalIPs
	resp.AllocatedIPs = s.AllocatedIPs
	resp.AvailableIPs = s.AvailableIPs
	return resp
}

func syncResultToResponse(sr domain.SyncResult) SyncResultResponse {
	return SyncResultResponse{
		SubnetID: sr.SubnetID,
		CIDR:     sr.CIDR,
		Added:    sr.Added,
		Removed:  sr.Removed,
		Kept:     sr.Kept,
	}
}

func ipToResponse(ip domain.IPAddress) IPResponse {
	return IPResponse{
		ID:          ip.ID,
		IP:          ip.IP.String(),
		SubnetID:    ip.SubnetID,
		Status:      string(ip.Status),
		MACAddress:  ip.MACAddress,
		Hostname:    ip.Hostname,
		DeviceType:  ip.DeviceType,
		Location:    ip.Location,
		AssignedTo:  ip.AssignedTo,
		Description: ip.Description,
		AllocatedAt: ip.AllocatedAt,
		AllocatedBy: ip.AllocatedBy,
		CreatedAt:   ip.CreatedAt,
		UpdatedAt:   ip.UpdatedAt,
	}
}

func ipsToResponse(ips []domain.IPAddress) []IPResponse {
	out := make([]IPResponse, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ipToResponse(ip))
	}
	return out
}

func statisticsToResponse(s domain.Statistics) StatisticsResponse {
	return StatisticsResponse{
		Total:           s.Total,
		Available:       s.Available,
		Allocated:       s.Allocated,
		Reserved:        s.Reserved,
		Conflict:        s.Conflict,
		UtilizationRate: s.UtilizationRate,
	}
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func auditEventToResponse(ev domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:         ev.ID,
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		OldValues:  ev.OldValues,
		NewValues:  ev.NewValues,
		RequestID:  ev.RequestID,
		SourceAddr: ev.SourceAddr,
		UserAgent:  ev.UserAgent,
		CreatedAt:  ev.CreatedAt,
	}
}

func auditEventsToResponse(events []domain.AuditEvent) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventToResponse(ev))
	}
	return out
}

func (r CreateSubnetRequest) toInput() domain.CreateSubnetInput {
	return domain.CreateSubnetInput{
		CIDR:        r.CIDR,
		Netmask:     r.Netmask,
		Gateway:     r.Gateway,
		VLANID:      r.VLANID,
		Description: r.Description,
		Location:    r.Location,
	}
}

func (r UpdateSubnetRequest) toInput() domain.UpdateSubnetInput {
	return domain.UpdateSubnetInput{
		CIDR:        r.CIDR,
		Gateway:     r.Gateway,
		VLANID:      r.VLANID,
		Description: r.Description,
		Location:    r.Location,
	}
}

func (r AllocateRequest) toInput() domain.AllocateInput {
	return domain.AllocateInput{
		SubnetID:    r.SubnetID,
		PreferredIP: r.PreferredIP,
		MACAddress:  r.MACAddress,
		Hostname:    r.Hostname,
		DeviceType:  r.DeviceType,
		Location:    r.Location,
		AssignedTo:  r.AssignedTo,
		Description: r.Description,
		AllocatedAt: r.AllocatedAt,
	}
}

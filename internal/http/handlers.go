package http

import (
	"net/http"

	"ipamd/internal/domain"
)

// @Summary Health check
// @Tags health
// @Success 200 {string} string "ok"
// @Router /healthz [get]
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// @Summary Readiness check
// @Tags health
// @Success 200 {string} string "ready"
// @Failure 503 {string} string "db unavailable"
// @Router /readyz [get]
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := a.DB.Ping(ctx); err != nil {
		a.Logger.Error("db ping failed", "err", err)
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// @Summary List subnets with address tallies
// @Tags subnets
// @Produce json
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Page size, default 50, max 1000"
// @Success 200 {object} PagedResponse[SubnetResponse]
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets [get]
func (a *API) handleListSubnets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit := pagination(r)

	subnets, total, err := a.Network.ListSubnets(ctx, offset, limit)
	if err != nil {
		a.Logger.ErrorContext(ctx, "reading subnets", "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	items := make([]SubnetResponse, 0, len(subnets))
	for _, s := range subnets {
		items = append(items, subnetWithCountsToResponse(s))
	}
	a.respond(w, r, http.StatusOK, PagedResponse[SubnetResponse]{
		Items: items, Total: total, Offset: offset, Limit: limit,
	})
}

// @Summary Create subnet and materialise its hosts
// @Tags subnets
// @Accept json
// @Produce json
// @Param subnet body CreateSubnetRequest true "Subnet payload"
// @Success 201 {object} SubnetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/subnets [post]
func (a *API) handleCreateSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[CreateSubnetRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.Logger.DebugContext(ctx, "unmarshaling subnet from request", "err", err.Error())
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	subnet, sync, err := a.Network.CreateSubnet(ctx, a.principal(r).UserID, req.toInput())
	if err != nil {
		a.Logger.ErrorContext(ctx, "creating subnet", "cidr", req.CIDR, "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	resp := subnetWithCountsToResponse(domain.SubnetWithCounts{
		Subnet:       subnet,
		TotalIPs:     int64(sync.Added),
		AvailableIPs: int64(sync.Added),
	})
	a.respond(w, r, http.StatusCreated, resp)
}

// @Summary Get subnet by ID
// @Tags subnets
// @Produce json
// @Param id path int true "Subnet ID"
// @Success 200 {object} SubnetResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subnets/{id} [get]
func (a *API) handleGetSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的网段ID"))
		return
	}

	subnet, err := a.Network.GetSubnet(ctx, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, subnetToResponse(subnet))
}

// @Summary Update subnet; a CIDR change re-materialises hosts
// @Tags subnets
// @Accept json
// @Produce json
// @Param id path int true "Subnet ID"
// @Param subnet body UpdateSubnetRequest true "Fields to change"
// @Success 200 {object} SubnetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subnets/{id} [put]
func (a *API) handleUpdateSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的网段ID"))
		return
	}
	req, err := decode[UpdateSubnetRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	subnet, _, err := a.Network.UpdateSubnet(ctx, a.principal(r).UserID, id, req.toInput())
	if err != nil {
		a.Logger.ErrorContext(ctx, "updating subnet", "id", id, "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, subnetToResponse(subnet))
}

// @Summary Delete subnet
// @Tags subnets
// @Param id path int true "Subnet ID"
// @Success 204 "No content"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/subnets/{id} [delete]
func (a *API) handleDeleteSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的网段ID"))
		return
	}

	if err := a.Network.DeleteSubnet(ctx, a.principal(r).UserID, id); err != nil {
		a.Logger.ErrorContext(ctx, "deleting subnet", "id", id, "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Re-materialise the subnet's host set
// @Tags subnets
// @Produce json
// @Param id path int true "Subnet ID"
// @Success 200 {object} SyncResultResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/subnets/{id}/sync-ips [post]
func (a *API) handleSyncSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parsePathInt64(r, "id")
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "无效的网段ID"))
		return
	}

	sync, err := a.Network.SyncSubnet(ctx, a.principal(r).UserID, id)
	if err != nil {
		a.Logger.ErrorContext(ctx, "syncing subnet", "id", id, "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, syncResultToResponse(sync))
}

// @Summary Validate a candidate CIDR
// @Tags subnets
// @Accept json
// @Produce json
// @Param payload body ValidateSubnetRequest true "CIDR to validate"
// @Success 200 {object} ValidateSubnetResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/subnets/validate [post]
func (a *API) handleValidateSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[ValidateSubnetRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	v, err := a.Network.ValidateSubnet(ctx, req.CIDR, req.ExcludeID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := ValidateSubnetResponse{Valid: v.Valid, Message: v.Message}
	for _, s := range v.Overlapping {
		resp.Overlapping = append(resp.Overlapping, subnetToResponse(s))
	}
	a.respond(w, r, http.StatusOK, resp)
}

// @Summary List addresses, ordered by numeric ip
// @Tags ips
// @Produce json
// @Param subnet_id query int false "Filter by subnet"
// @Param status query string false "Filter by status"
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Page size, default 50, max 1000"
// @Success 200 {object} PagedResponse[IPResponse]
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/ips [get]
func (a *API) handleListIPs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit := pagination(r)
	q := domain.ListQuery{
		SubnetID: queryInt64Ptr(r, "subnet_id"),
		Status:   statusFilter(r),
		Offset:   offset,
		Limit:    limit,
	}

	ips, total, err := a.Allocations.ListIPs(ctx, q)
	if err != nil {
		a.Logger.ErrorContext(ctx, "listing ips", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, PagedResponse[IPResponse]{
		Items: ipsToResponse(ips), Total: total, Offset: offset, Limit: limit,
	})
}

// @Summary Search addresses by free text and filters
// @Tags ips
// @Produce json
// @Param query query string false "Matches ip, hostname, mac, assignee, description"
// @Success 200 {object} PagedResponse[IPResponse]
// @Router /api/v1/ips/search [get]
func (a *API) handleSearchIPs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit := pagination(r)
	q := domain.SearchQuery{
		Query:      r.URL.Query().Get("query"),
		SubnetID:   queryInt64Ptr(r, "subnet_id"),
		Status:     statusFilter(r),
		DeviceType: r.URL.Query().Get("device_type"),
		Location:   r.URL.Query().Get("location"),
		AssignedTo: r.URL.Query().Get("assigned_to"),
		Offset:     offset,
		Limit:      limit,
	}

	ips, total, err := a.Allocations.SearchIPs(ctx, q)
	if err != nil {
		a.Logger.ErrorContext(ctx, "searching ips", "query", q.Query, "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, PagedResponse[IPResponse]{
		Items: ipsToResponse(ips), Total: total, Offset: offset, Limit: limit,
	})
}

// @Summary Allocate an address
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body AllocateRequest true "Allocation request"
// @Success 200 {object} IPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/ips/allocate [post]
func (a *API) handleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[AllocateRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	ip, err := a.Allocations.Allocate(ctx, a.principal(r).UserID, req.toInput())
	if a.Metrics != nil {
		a.Metrics.ObserveTransition(domain.ActionAllocated, err)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ipToResponse(ip))
}

// @Summary Reserve an address
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body ReserveRequest true "Reservation request"
// @Success 200 {object} IPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/ips/reserve [post]
func (a *API) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[ReserveRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	ip, err := a.Allocations.Reserve(ctx, a.principal(r).UserID, domain.ReserveInput{IP: req.IP, Reason: req.Reason})
	if a.Metrics != nil {
		a.Metrics.ObserveTransition(domain.ActionReserved, err)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ipToResponse(ip))
}

// @Summary Release an address back to available
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body ReleaseRequest true "Release request"
// @Success 200 {object} IPResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ips/release [post]
func (a *API) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[ReleaseRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	ip, err := a.Allocations.Release(ctx, a.principal(r).UserID, domain.ReleaseInput{IP: req.IP, Reason: req.Reason})
	if a.Metrics != nil {
		a.Metrics.ObserveTransition(domain.ActionReleased, err)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ipToResponse(ip))
}

// @Summary Apply one operation to many addresses
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body BulkOperationRequest true "Bulk request"
// @Success 200 {object} BulkOperationResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ips/bulk-operation [post]
func (a *API) handleBulkOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[BulkOperationRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	result, err := a.Allocations.BulkApply(ctx, a.principal(r).UserID, domain.BulkInput{
		IPs:       req.IPs,
		Operation: domain.BulkOperation(req.Operation),
		Reason:    req.Reason,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := BulkOperationResponse{
		SuccessCount: result.SuccessCount,
		FailedCount:  result.FailedCount,
		Success:      result.Success,
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, BulkFailureResponse{IP: f.IP, Reason: f.Reason})
	}
	a.respond(w, r, http.StatusOK, resp)
}

// @Summary Delete an unallocated address record
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body DeleteIPRequest true "Delete request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/ips/delete [delete]
func (a *API) handleDeleteIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[DeleteIPRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	err = a.Allocations.DeleteIP(ctx, a.principal(r).UserID, domain.DeleteIPInput{IP: req.IP, Reason: req.Reason})
	if a.Metrics != nil {
		a.Metrics.ObserveTransition(domain.ActionDeleted, err)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, map[string]string{"message": "IP地址已删除"})
}

// @Summary Audit history of one address
// @Tags ips
// @Produce json
// @Param ip path string true "Dotted-quad address"
// @Param limit query int false "Max events, default 100"
// @Success 200 {array} AuditEventResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ips/{ip}/history [get]
func (a *API) handleIPHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := a.Audit.HistoryForIP(ctx, r.PathValue("ip"), queryInt(r, "limit", 100))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, auditEventsToResponse(events))
}

// @Summary Address counts and utilisation
// @Tags ips
// @Produce json
// @Param subnet_id query int false "Scope to one subnet"
// @Success 200 {object} StatisticsResponse
// @Router /api/v1/ips/statistics [get]
func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := a.Allocations.Statistics(ctx, queryInt64Ptr(r, "subnet_id"))
	if err != nil {
		a.Logger.ErrorContext(ctx, "reading statistics", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, statisticsToResponse(stats))
}

// @Summary Per-address status over an arbitrary range
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body RangeStatusRequest true "Inclusive range"
// @Success 200 {array} RangeStatusResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ips/range-status [post]
func (a *API) handleRangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[RangeStatusRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	statuses, err := a.Allocations.RangeStatus(ctx, req.StartIP, req.EndIP)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out := make([]RangeStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, RangeStatusResponse{
			IP:         s.IP.String(),
			Status:     string(s.Status),
			Hostname:   s.Hostname,
			MACAddress: s.MACAddress,
			AssignedTo: s.AssignedTo,
		})
	}
	a.respond(w, r, http.StatusOK, out)
}

// @Summary Scan for duplicate addresses and mark conflicts
// @Tags ips
// @Produce json
// @Param subnet_id query int false "Scope to one subnet"
// @Success 200 {array} ConflictGroupResponse
// @Router /api/v1/ips/conflicts/detect [post]
func (a *API) handleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := a.Allocations.DetectConflicts(ctx, a.principal(r).UserID, queryInt64Ptr(r, "subnet_id"))
	if err != nil {
		a.Logger.ErrorContext(ctx, "detecting conflicts", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	if a.Metrics != nil {
		a.Metrics.AddConflicts(len(groups))
	}

	out := make([]ConflictGroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, ConflictGroupResponse{
			IP:      g.IP.String(),
			Records: ipsToResponse(g.Records),
		})
	}
	a.respond(w, r, http.StatusOK, out)
}

// @Summary Manually resolve a conflicted address
// @Tags ips
// @Accept json
// @Produce json
// @Param payload body ResolveConflictRequest true "Address in conflict"
// @Success 200 {object} IPResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ips/conflicts/resolve [post]
func (a *API) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[ResolveConflictRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	ip, err := a.Allocations.ResolveConflict(ctx, a.principal(r).UserID, req.IP)
	if a.Metrics != nil {
		a.Metrics.ObserveTransition(domain.ActionResolved, err)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ipToResponse(ip))
}

// @Summary Dashboard summary
// @Tags dashboard
// @Produce json
// @Success 200 {object} DashboardResponse
// @Router /api/v1/dashboard/summary [get]
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := a.Allocations.Statistics(ctx, nil)
	if err != nil {
		a.Logger.ErrorContext(ctx, "reading statistics", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	_, subnetCount, err := a.Network.ListSubnets(ctx, 0, 1)
	if err != nil {
		a.Logger.ErrorContext(ctx, "counting subnets", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	recent, _, err := a.Audit.Search(ctx, domain.AuditQuery{Limit: 10})
	if err != nil {
		a.Logger.ErrorContext(ctx, "reading recent activity", "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	a.respond(w, r, http.StatusOK, DashboardResponse{
		SubnetCount:    subnetCount,
		Statistics:     statisticsToResponse(stats),
		RecentActivity: auditEventsToResponse(recent),
	})
}

// @Summary Query the audit log
// @Tags audit
// @Produce json
// @Success 200 {object} PagedResponse[AuditEventResponse]
// @Router /api/v1/audit-logs [get]
func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit := pagination(r)
	q := auditQueryFrom(r)
	q.Offset = offset
	q.Limit = limit

	events, total, err := a.Audit.Search(ctx, q)
	if err != nil {
		a.Logger.ErrorContext(ctx, "searching audit logs", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, PagedResponse[AuditEventResponse]{
		Items: auditEventsToResponse(events), Total: total, Offset: offset, Limit: limit,
	})
}

// @Summary Audit log aggregates
// @Tags audit
// @Produce json
// @Success 200 {object} AuditStatsResponse
// @Router /api/v1/audit-logs/stats [get]
func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := a.Audit.Stats(ctx)
	if err != nil {
		a.Logger.ErrorContext(ctx, "reading audit stats", "err", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, AuditStatsResponse{
		Total:    stats.Total,
		ByAction: stats.ByAction,
		ByEntity: stats.ByEntity,
	})
}

// @Summary Export a filtered audit window
// @Tags audit
// @Produce json
// @Param format query string false "csv, json or excel"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/audit-logs/export [get]
func (a *API) handleExportAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	data, contentType, err := a.Audit.Export(ctx, auditQueryFrom(r), domain.ExportFormat(format))
	if err != nil {
		a.Logger.ErrorContext(ctx, "exporting audit logs", "format", format, "err", err.Error())
		a.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.`+exportExtension(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.Logger.ErrorContext(ctx, "cant respond to client", "err", err.Error())
	}
}

// @Summary Hard-delete audit events older than N days
// @Tags audit
// @Accept json
// @Produce json
// @Param payload body ArchiveRequest true "Retention window, minimum 30 days"
// @Success 200 {object} ArchiveResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/audit-logs/archive [post]
func (a *API) handleArchiveAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[ArchiveRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "请求格式错误"))
		return
	}

	deleted, err := a.Audit.Archive(ctx, req.Days)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ArchiveResponse{Deleted: deleted})
}

func statusFilter(r *http.Request) *domain.IPStatus {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil
	}
	status := domain.IPStatus(raw)
	return &status
}

func auditQueryFrom(r *http.Request) domain.AuditQuery {
	q := domain.AuditQuery{
		ActorID:    queryInt64Ptr(r, "actor_id"),
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   queryInt64Ptr(r, "entity_id"),
		Action:     r.URL.Query().Get("action"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if ts, err := parseTime(from); err == nil {
			q.From = &ts
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if ts, err := parseTime(to); err == nil {
			q.To = &ts
		}
	}
	return q
}

func exportExtension(format string) string {
	if format == "json" {
		return "json"
	}
	return "csv"
}

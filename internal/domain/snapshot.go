package domain

// SnapshotIP captures the audited fields of an address record.
func SnapshotIP(ip IPAddress) map[string]any {
	snap := map[string]any{
		"ip":          ip.IP.String(),
		"subnet_id":   ip.SubnetID,
		"status":      string(ip.Status),
		"mac_address": ip.MACAddress,
		"hostname":    ip.Hostname,
		"device_type": ip.DeviceType,
		"location":    ip.Location,
		"assigned_to": ip.AssignedTo,
		"description": ip.Description,
	}
	if ip.AllocatedAt != nil {
		snap["allocated_at"] = ip.AllocatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if ip.AllocatedBy != nil {
		snap["allocated_by"] = *ip.AllocatedBy
	}
	return snap
}

// SnapshotSubnet captures the audited fields of a subnet.
func SnapshotSubnet(s Subnet) map[string]any {
	snap := map[string]any{
		"cidr":        s.CIDR.String(),
		"netmask":     s.Netmask,
		"vlan_id":     s.VLANID,
		"description": s.Description,
		"location":    s.Location,
	}
	if s.Gateway.IsValid() {
		snap["gateway"] = s.Gateway.String()
	}
	return snap
}

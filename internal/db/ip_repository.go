package db

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ipamd/internal/domain"
)

const ipColumns = `id, ip, subnet_id, status, mac_address, hostname, device_type, location,
	assigned_to, description, allocated_at, allocated_by, created_at, updated_at`

type IPRepository struct {
	pool *pgxpool.Pool
}

func NewIPRepository(pool *pgxpool.Pool) *IPRepository {
	return &IPRepository{pool: pool}
}

func (r *IPRepository) FindByID(ctx context.Context, id int64) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+ipColumns+` FROM ip_addresses WHERE id = $1`, id)
	ip, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNotFound, "IP记录 %d 不存在", id)
	}
	return ip, err
}

func (r *IPRepository) FindByIP(ctx context.Context, ip netip.Addr) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+ipColumns+` FROM ip_addresses WHERE ip = $1`, ip.String())
	rec, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNotFound, "IP地址 %s 不存在", ip)
	}
	return rec, err
}

func (r *IPRepository) LockByIP(ctx context.Context, ip netip.Addr) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+ipColumns+` FROM ip_addresses WHERE ip = $1 FOR UPDATE`, ip.String())
	rec, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNotFound, "IP地址 %s 不存在", ip)
	}
	return rec, err
}

func (r *IPRepository) FirstAvailable(ctx context.Context, subnetID int64) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+ipColumns+` FROM ip_addresses
		WHERE subnet_id = $1 AND status = 'available'
		ORDER BY ip_numeric
		LIMIT 1
		FOR UPDATE`, subnetID)
	rec, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNoCapacity, "网段中没有可用的IP地址")
	}
	return rec, err
}

func (r *IPRepository) LockSubnetAddresses(ctx context.Context, subnetID int64) error {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id FROM ip_addresses WHERE subnet_id = $1 FOR UPDATE`, subnetID)
	if err != nil {
		return translate(err)
	}
	rows.Close()
	return translate(rows.Err())
}

func (r *IPRepository) ListBySubnet(ctx context.Context, lq domain.ListQuery) ([]domain.IPAddress, int64, error) {
	q := queryerFrom(ctx, r.pool)
	var status *string
	if lq.Status != nil {
		s := string(*lq.Status)
		status = &s
	}
	where := `($1::bigint IS NULL OR subnet_id = $1) AND ($2::text IS NULL OR status = $2)`

	var total int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM ip_addresses WHERE `+where, lq.SubnetID, status).Scan(&total)
	if err != nil {
		return nil, 0, translate(err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+ipColumns+` FROM ip_addresses
		WHERE `+where+`
		ORDER BY ip_numeric
		OFFSET $3 LIMIT $4`, lq.SubnetID, status, lq.Offset, lq.Limit)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	ips, err := scanIPs(rows)
	return ips, total, err
}

func (r *IPRepository) Search(ctx context.Context, sq domain.SearchQuery) ([]domain.IPAddress, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	n := 1
	add := func(cond string, value any) {
		where = append(where, fmt.Sprintf(cond, n))
		args = append(args, value)
		n++
	}
	if sq.Query != "" {
		pattern := "%" + sq.Query + "%"
		// A full dotted-quad query matches the ip column exactly, so 10.0.0.1
		// does not pull in 10.0.0.10; partial input stays a substring match.
		if _, err := domain.ParseIP(sq.Query); err == nil {
			where = append(where, fmt.Sprintf(
				`(ip = $%[1]d OR hostname ILIKE $%[2]d OR mac_address ILIKE $%[2]d OR assigned_to ILIKE $%[2]d OR description ILIKE $%[2]d)`,
				n, n+1))
			args = append(args, sq.Query, pattern)
			n += 2
		} else {
			add(`(ip ILIKE $%[1]d OR hostname ILIKE $%[1]d OR mac_address ILIKE $%[1]d OR assigned_to ILIKE $%[1]d OR description ILIKE $%[1]d)`, pattern)
		}
	}
	if sq.SubnetID != nil {
		add(`subnet_id = $%d`, *sq.SubnetID)
	}
	if sq.Status != nil {
		add(`status = $%d`, string(*sq.Status))
	}
	if sq.DeviceType != "" {
		add(`device_type = $%d`, sq.DeviceType)
	}
	if sq.Location != "" {
		add(`location ILIKE $%d`, "%"+sq.Location+"%")
	}
	if sq.AssignedTo != "" {
		add(`assigned_to ILIKE $%d`, "%"+sq.AssignedTo+"%")
	}
	cond := strings.Join(where, " AND ")

	q := queryerFrom(ctx, r.pool)
	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM ip_addresses WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	stmt := fmt.Sprintf(`SELECT %s FROM ip_addresses WHERE %s ORDER BY ip_numeric OFFSET $%d LIMIT $%d`,
		ipColumns, cond, n, n+1)
	rows, err := q.Query(ctx, stmt, append(args, sq.Offset, sq.Limit)...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	ips, err := scanIPs(rows)
	return ips, total, err
}

func (r *IPRepository) AddressSet(ctx context.Context, subnetID int64) (map[netip.Addr]domain.IPStatus, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT ip, status FROM ip_addresses WHERE subnet_id = $1`, subnetID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[netip.Addr]domain.IPStatus)
	for rows.Next() {
		var ip, status string
		if err := rows.Scan(&ip, &status); err != nil {
			return nil, translate(err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("stored ip %q: %w", ip, err)
		}
		out[addr] = domain.IPStatus(status)
	}
	return out, translate(rows.Err())
}

func (r *IPRepository) ExistingIPs(ctx context.Context, ips []netip.Addr) (map[netip.Addr]bool, error) {
	if len(ips) == 0 {
		return map[netip.Addr]bool{}, nil
	}
	values := make([]string, len(ips))
	for i, ip := range ips {
		values[i] = ip.String()
	}

	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT ip FROM ip_addresses WHERE ip = ANY($1)`, values)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[netip.Addr]bool)
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, translate(err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("stored ip %q: %w", ip, err)
		}
		out[addr] = true
	}
	return out, translate(rows.Err())
}

func (r *IPRepository) BulkCreate(ctx context.Context, subnetID int64, ips []netip.Addr) (int, error) {
	if len(ips) == 0 {
		return 0, nil
	}
	values := make([]string, len(ips))
	numerics := make([]int64, len(ips))
	for i, ip := range ips {
		values[i] = ip.String()
		numerics[i] = int64(domain.IPv4ToUint32(ip))
	}

	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		INSERT INTO ip_addresses (ip, ip_numeric, subnet_id, status)
		SELECT v.ip, v.num, $3, 'available'
		FROM unnest($1::text[], $2::bigint[]) AS v(ip, num)`,
		values, numerics, subnetID)
	if err != nil {
		return 0, translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *IPRepository) DeleteStaleAvailable(ctx context.Context, subnetID int64, lo, hi uint32) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		DELETE FROM ip_addresses
		WHERE subnet_id = $1 AND status = 'available'
		AND (ip_numeric < $2 OR ip_numeric > $3)`,
		subnetID, int64(lo), int64(hi))
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *IPRepository) Assign(ctx context.Context, id int64, a domain.Assignment) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `
		UPDATE ip_addresses
		SET status = $2, mac_address = $3, hostname = $4, device_type = $5,
		    location = $6, assigned_to = $7, description = $8,
		    allocated_at = $9, allocated_by = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+ipColumns,
		id, string(a.Status), a.MACAddress, a.Hostname, a.DeviceType,
		a.Location, a.AssignedTo, a.Description, a.AllocatedAt, a.AllocatedBy)
	rec, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNotFound, "IP记录 %d 不存在", id)
	}
	return rec, err
}

func (r *IPRepository) Release(ctx context.Context, id int64, reason string) (domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `
		UPDATE ip_addresses
		SET status = 'available', mac_address = '', hostname = '', device_type = '',
		    location = '', assigned_to = '', description = $2,
		    allocated_at = NULL, allocated_by = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+ipColumns, id, reason)
	rec, err := scanIP(row)
	if isNoRows(err) {
		return domain.IPAddress{}, domain.Errorf(domain.ErrNotFound, "IP记录 %d 不存在", id)
	}
	return rec, err
}

func (r *IPRepository) Delete(ctx context.Context, id int64) (bool, error) {
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM ip_addresses WHERE id = $1`, id)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *IPRepository) CountByStatus(ctx context.Context, subnetID *int64) (map[domain.IPStatus]int64, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT status, COUNT(*) FROM ip_addresses
		WHERE ($1::bigint IS NULL OR subnet_id = $1)
		GROUP BY status`, subnetID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[domain.IPStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, translate(err)
		}
		out[domain.IPStatus(status)] = n
	}
	return out, translate(rows.Err())
}

func (r *IPRepository) CountBySubnet(ctx context.Context, subnetID int64) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	var n int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM ip_addresses WHERE subnet_id = $1`, subnetID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *IPRepository) CountReservedByActor(ctx context.Context, subnetID, actorID int64) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM ip_addresses
		WHERE subnet_id = $1 AND status = 'reserved' AND allocated_by = $2`,
		subnetID, actorID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *IPRepository) CountAllocatedBySubnet(ctx context.Context, subnetID int64) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM ip_addresses
		WHERE subnet_id = $1 AND status = 'allocated'`, subnetID).Scan(&n)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *IPRepository) Duplicates(ctx context.Context, subnetID *int64) ([]domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+ipColumns+` FROM ip_addresses
		WHERE ($1::bigint IS NULL OR subnet_id = $1)
		AND ip IN (
			SELECT ip FROM ip_addresses
			WHERE ($1::bigint IS NULL OR subnet_id = $1)
			GROUP BY ip
			HAVING COUNT(*) > 1
		)
		ORDER BY ip_numeric, id
		FOR UPDATE`, subnetID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanIPs(rows)
}

func (r *IPRepository) MarkConflict(ctx context.Context, ips []netip.Addr) (int64, error) {
	if len(ips) == 0 {
		return 0, nil
	}
	values := make([]string, len(ips))
	for i, ip := range ips {
		values[i] = ip.String()
	}
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE ip_addresses SET status = 'conflict', updated_at = now()
		WHERE ip = ANY($1)`, values)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *IPRepository) FindInRange(ctx context.Context, lo, hi uint32) ([]domain.IPAddress, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+ipColumns+` FROM ip_addresses
		WHERE ip_numeric BETWEEN $1 AND $2
		ORDER BY ip_numeric`, int64(lo), int64(hi))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanIPs(rows)
}

func scanIP(row pgx.Row) (domain.IPAddress, error) {
	var (
		rec domain.IPAddress
		ip  string
	)
	err := row.Scan(&rec.ID, &ip, &rec.SubnetID, &rec.Status, &rec.MACAddress,
		&rec.Hostname, &rec.DeviceType, &rec.Location, &rec.AssignedTo,
		&rec.Description, &rec.AllocatedAt, &rec.AllocatedBy,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.IPAddress{}, err
		}
		return domain.IPAddress{}, translate(err)
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return domain.IPAddress{}, fmt.Errorf("stored ip %q: %w", ip, err)
	}
	rec.IP = addr
	return rec, nil
}

func scanIPs(rows pgx.Rows) ([]domain.IPAddress, error) {
	var out []domain.IPAddress
	for rows.Next() {
		var (
			rec domain.IPAddress
			ip  string
		)
		err := rows.Scan(&rec.ID, &ip, &rec.SubnetID, &rec.Status, &rec.MACAddress,
			&rec.Hostname, &rec.DeviceType, &rec.Location, &rec.AssignedTo,
			&rec.Description, &rec.AllocatedAt, &rec.AllocatedBy,
			&rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, translate(err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("stored ip %q: %w", ip, err)
		}
		rec.IP = addr
		out = append(out, rec)
	}
	return out, translate(rows.Err())
}

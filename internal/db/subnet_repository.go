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

const subnetColumns = `id, cidr, netmask, gateway, vlan_id, description, location, created_by, created_at, updated_at`

type SubnetRepository struct {
	pool *pgxpool.Pool
}

func NewSubnetRepository(pool *pgxpool.Pool) *SubnetRepository {
	return &SubnetRepository{pool: pool}
}

func (r *SubnetRepository) List(ctx context.Context, offset, limit int) ([]domain.SubnetWithCounts, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT s.id, s.cidr, s.netmask, s.gateway, s.vlan_id, s.description, s.location,
		       s.created_by, s.created_at, s.updated_at,
		       COUNT(i.id),
		       COUNT(i.id) FILTER (WHERE i.status = 'allocated'),
		       COUNT(i.id) FILTER (WHERE i.status = 'available')
		FROM subnets s
		LEFT JOIN ip_addresses i ON i.subnet_id = s.id
		GROUP BY s.id
		ORDER BY s.id
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.SubnetWithCounts
	for rows.Next() {
		var (
			sc      domain.SubnetWithCounts
			cidr    string
			gateway *string
			vlan    *int32
		)
		err := rows.Scan(&sc.ID, &cidr, &sc.Netmask, &gateway, &vlan, &sc.Description, &sc.Location,
			&sc.CreatedBy, &sc.CreatedAt, &sc.UpdatedAt,
			&sc.TotalIPs, &sc.AllocatedIPs, &sc.AvailableIPs)
		if err != nil {
			return nil, translate(err)
		}
		if err := fillSubnet(&sc.Subnet, cidr, gateway, vlan); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, translate(rows.Err())
}

func (r *SubnetRepository) All(ctx context.Context) ([]domain.Subnet, error) {
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+subnetColumns+` FROM subnets ORDER BY id`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanSubnets(rows)
}

func (r *SubnetRepository) Count(ctx context.Context) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	var n int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM subnets`).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *SubnetRepository) FindByID(ctx context.Context, id int64) (domain.Subnet, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+subnetColumns+` FROM subnets WHERE id = $1`, id)
	subnet, err := scanSubnet(row)
	if isNoRows(err) {
		return domain.Subnet{}, domain.Errorf(domain.ErrNotFound, "网段 %d 不存在", id)
	}
	return subnet, err
}

func (r *SubnetRepository) FindByCIDR(ctx context.Context, cidr string) (domain.Subnet, error) {
	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+subnetColumns+` FROM subnets WHERE cidr = $1`, cidr)
	subnet, err := scanSubnet(row)
	if isNoRows(err) {
		return domain.Subnet{}, domain.Errorf(domain.ErrNotFound, "网段 %s 不存在", cidr)
	}
	return subnet, err
}

func (r *SubnetRepository) Create(ctx context.Context, subnet domain.Subnet) (domain.Subnet, error) {
	q := queryerFrom(ctx, r.pool)
	gateway := ""
	if subnet.Gateway.IsValid() {
		gateway = subnet.Gateway.String()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO subnets (cidr, netmask, gateway, vlan_id, description, location, created_by)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING `+subnetColumns,
		subnet.CIDR.String(), subnet.Netmask, gateway, subnet.VLANID,
		subnet.Description, subnet.Location, subnet.CreatedBy)
	return scanSubnet(row)
}

func (r *SubnetRepository) Update(ctx context.Context, id int64, input domain.UpdateSubnetInput, netmask string) (domain.Subnet, error) {
	sets := []string{"updated_at = now()"}
	args := []any{}
	n := 1
	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, n))
		args = append(args, value)
		n++
	}
	if input.CIDR != nil {
		set("cidr", *input.CIDR)
		set("netmask", netmask)
	}
	if input.Gateway != nil {
		sets = append(sets, fmt.Sprintf("gateway = NULLIF($%d, '')", n))
		args = append(args, *input.Gateway)
		n++
	}
	if input.VLANID != nil {
		set("vlan_id", *input.VLANID)
	}
	if input.Description != nil {
		set("description", *input.Description)
	}
	if input.Location != nil {
		set("location", *input.Location)
	}
	args = append(args, id)

	q := queryerFrom(ctx, r.pool)
	stmt := fmt.Sprintf(`UPDATE subnets SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), n, subnetColumns)
	row := q.QueryRow(ctx, stmt, args...)
	subnet, err := scanSubnet(row)
	if isNoRows(err) {
		return domain.Subnet{}, domain.Errorf(domain.ErrNotFound, "网段 %d 不存在", id)
	}
	return subnet, err
}

func (r *SubnetRepository) Delete(ctx context.Context, id int64) (bool, error) {
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM subnets WHERE id = $1`, id)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanSubnet(row pgx.Row) (domain.Subnet, error) {
	var (
		subnet  domain.Subnet
		cidr    string
		gateway *string
		vlan    *int32
	)
	err := row.Scan(&subnet.ID, &cidr, &subnet.Netmask, &gateway, &vlan,
		&subnet.Description, &subnet.Location, &subnet.CreatedBy,
		&subnet.CreatedAt, &subnet.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.Subnet{}, err
		}
		return domain.Subnet{}, translate(err)
	}
	if err := fillSubnet(&subnet, cidr, gateway, vlan); err != nil {
		return domain.Subnet{}, err
	}
	return subnet, nil
}

func scanSubnets(rows pgx.Rows) ([]domain.Subnet, error) {
	var out []domain.Subnet
	for rows.Next() {
		var (
			subnet  domain.Subnet
			cidr    string
			gateway *string
			vlan    *int32
		)
		err := rows.Scan(&subnet.ID, &cidr, &subnet.Netmask, &gateway, &vlan,
			&subnet.Description, &subnet.Location, &subnet.CreatedBy,
			&subnet.CreatedAt, &subnet.UpdatedAt)
		if err != nil {
			return nil, translate(err)
		}
		if err := fillSubnet(&subnet, cidr, gateway, vlan); err != nil {
			return nil, err
		}
		out = append(out, subnet)
	}
	return out, translate(rows.Err())
}

func fillSubnet(subnet *domain.Subnet, cidr string, gateway *string, vlan *int32) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("stored cidr %q: %w", cidr, err)
	}
	subnet.CIDR = prefix
	if gateway != nil && *gateway != "" {
		addr, err := netip.ParseAddr(*gateway)
		if err != nil {
			return fmt.Errorf("stored gateway %q: %w", *gateway, err)
		}
		subnet.Gateway = addr
	}
	if vlan != nil {
		subnet.VLANID = *vlan
	}
	return nil
}

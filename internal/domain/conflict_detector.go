package domain

import (
	"context"
	"net/netip"
	"sort"
)

// ConflictDetector finds address records that share an ip value and moves
// them to the conflict state. The store's unique index makes duplicates rare;
// they arise from cross-subnet migrations during materialisation or from
// external imports, and the detector is the safeguard that surfaces them.
type ConflictDetector struct {
	tx    TxRunner
	ips   IPRepository
	audit Recorder
}

func NewConflictDetector(tx TxRunner, ips IPRepository, audit Recorder) *ConflictDetector {
	return &ConflictDetector{tx: tx, ips: ips, audit: audit}
}

// Detect scans one subnet (or all, when subnetID is nil) and marks every
// group of >=2 records sharing an ip, provided at least one member is
// allocated or reserved. All members of a qualifying group transition to
// conflict. Returns the qualifying groups.
func (d *ConflictDetector) Detect(ctx context.Context, actorID int64, subnetID *int64) ([]ConflictGroup, error) {
	var groups []ConflictGroup
	err := d.tx.InTx(ctx, func(ctx context.Context) error {
		groups = nil
		records, err := d.ips.Duplicates(ctx, subnetID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		byIP := make(map[netip.Addr][]IPAddress)
		for _, rec := range records {
			byIP[rec.IP] = append(byIP[rec.IP], rec)
		}

		var toMark []netip.Addr
		for ip, members := range byIP {
			if len(members) < 2 || !anyActive(members) {
				continue
			}
			groups = append(groups, ConflictGroup{IP: ip, Records: members})
			toMark = append(toMark, ip)
		}
		if len(toMark) == 0 {
			return nil
		}
		_, err = d.ips.MarkConflict(ctx, toMark)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].IP.Compare(groups[j].IP) < 0
	})
	for _, g := range groups {
		for _, rec := range g.Records {
			id := rec.ID
			d.audit.Record(ctx, AuditEntry{
				ActorID:    actorID,
				Action:     ActionConflict,
				EntityType: EntityIP,
				EntityID:   &id,
				OldValues:  SnapshotIP(rec),
				NewValues: map[string]any{
					"ip":     rec.IP.String(),
					"status": string(StatusConflict),
				},
			})
		}
	}
	return groups, nil
}

func anyActive(members []IPAddress) bool {
	for _, m := range members {
		if m.Status == StatusAllocated || m.Status == StatusReserved {
			return true
		}
	}
	return false
}

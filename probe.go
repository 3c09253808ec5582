package regmint

import (
	"github.com/cockroachdb/pebble"

	"github.com/regmint/regmint/uid"
)

// Prober reports which of a candidate batch are already in use.
type Prober interface {
	FindExisting(r pebble.Reader, cands []uid.UID, desc TableDescriptor) ([]uid.UID, error)
}

// storeProber is the two-tier check: the central registry first, then the
// target table's own identifier column. The second tier exists because a
// table may opt out of central tracking (sensitive document identifiers)
// while still requiring local uniqueness, and because rows may carry
// identifiers that predate the registry.
type storeProber struct {
	reg Registry
}

func (p *storeProber) FindExisting(r pebble.Reader, cands []uid.UID, desc TableDescriptor) ([]uid.UID, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	var taken []uid.UID
	if !desc.TrackingDisabled {
		for _, u := range cands {
			has, err := p.reg.Has(r, u)
			if err != nil {
				return nil, err
			}
			if has {
				taken = append(taken, u)
			}
		}
	}
	if !desc.TrackingDisabled && len(taken) > 0 {
		return taken, nil
	}

	table, column := desc.probeTarget()
	if table == "" {
		return nil, nil
	}
	want := make(map[string]uid.UID, len(cands))
	for _, u := range cands {
		want[u.String()] = u
	}
	err := ScanTable(r, table, func(row string, cols map[string]string) error {
		if u, ok := want[cols[column]]; ok {
			taken = append(taken, u)
			delete(want, u.String())
			if len(want) == 0 {
				return errStopScan
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

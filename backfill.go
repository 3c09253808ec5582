package regmint

import (
	"context"
	"time"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"

	"github.com/regmint/regmint/uid"
)

// Strategy tags reported in metrics and audit events.
const (
	StrategyRow      byte = 'R'
	StrategyVertical byte = 'V'
	StrategyAllocate byte = 'A'
)

func strategyName(strategy byte) string {
	switch strategy {
	case StrategyRow:
		return "row"
	case StrategyVertical:
		return "vertical"
	case StrategyAllocate:
		return "allocate"
	}
	return "unknown"
}

// CreateMissingIdentifiers assigns identifiers to every row (or vertical
// group) of the table that lacks one, in bounded rounds inside a single
// atomic batch: either the whole invocation commits or none of it does.
// It returns the number of rows (row-keyed) or groups (vertical) updated.
//
// The call is idempotent; rows that already carry an identifier are never
// revisited, so a maintenance job can simply re-invoke it on a schedule.
// Invocations on the same table are serialized within the process;
// cross-process runs on one vertical table must be serialized externally.
func (e *Engine) CreateMissingIdentifiers(ctx context.Context, desc TableDescriptor) (int, error) {
	if e.db == nil {
		return 0, ErrClosed
	}
	desc.SetDefaults()
	if err := desc.ValidateForBackfill(); err != nil {
		return 0, err
	}

	lock := e.tableLock(desc.Table)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	b := e.db.NewIndexedBatch()

	strategy := StrategyRow
	var total int
	var err error
	if len(desc.Vertical) == 0 {
		total, err = e.backfillRows(ctx, b, desc)
	} else {
		strategy = StrategyVertical
		total, err = e.backfillVertical(ctx, b, desc)
	}
	if err != nil {
		_ = b.Close()
		return 0, err
	}
	if err = b.Commit(e.opts.PebbleWriteOptions); err != nil {
		return 0, errors.Wrap(err, "regmint: backfill commit")
	}

	BackfillUpdated.WithLabelValues(desc.Table, strategyName(strategy)).Add(float64(total))
	BackfillDuration.WithLabelValues(desc.Table).Observe(time.Since(started).Seconds())
	if total > 0 {
		e.emit(strategy, desc.Table, total)
		e.log.Info("backfill pass done",
			"table", desc.Table, "strategy", strategyName(strategy), "updated", total)
	}
	return total, nil
}

// AllocateIdentifiers is the live-request path: n fresh identifiers,
// recorded in the registry (unless tracking is disabled) and committed.
func (e *Engine) AllocateIdentifiers(n int, desc TableDescriptor) ([]uid.UID, error) {
	if e.db == nil {
		return nil, ErrClosed
	}
	desc.SetDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	b := e.db.NewIndexedBatch()
	ids, err := e.alloc.Allocate(b, n, desc)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if !desc.TrackingDisabled {
		if err = e.reg.RecordBatch(b, ids, desc, time.Now()); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	if err = b.Commit(e.opts.PebbleWriteOptions); err != nil {
		return nil, errors.Wrap(err, "regmint: allocate commit")
	}
	if len(ids) > 0 {
		e.emit(StrategyAllocate, desc.Table, len(ids))
	}
	return ids, nil
}

// Row-keyed strategy: count, allocate min(count, MaxBatch), pair row i with
// identifier i by position, loop until a pass finds nothing.
func (e *Engine) backfillRows(ctx context.Context, b *pebble.Batch, desc TableDescriptor) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		count, err := e.countMissingRows(b, desc)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			break
		}
		n := count
		if n > e.opts.MaxBatch {
			n = e.opts.MaxBatch
		}

		ids, err := e.alloc.Allocate(b, n, desc)
		if err != nil {
			return 0, err
		}
		rows, err := e.fetchMissingRowKeys(b, desc, n)
		if err != nil {
			return 0, err
		}
		if len(rows) != n {
			return 0, ErrBackfillInconsistent
		}
		if !desc.TrackingDisabled {
			if err = e.reg.RecordBatch(b, ids, desc, time.Now()); err != nil {
				return 0, err
			}
		}
		for i, row := range rows {
			if err = e.assignRow(b, desc, row, ids[i]); err != nil {
				return 0, err
			}
		}
		total += n
	}
	return total, nil
}

func (e *Engine) countMissingRows(r pebble.Reader, desc TableDescriptor) (int, error) {
	count := 0
	err := ScanTable(r, desc.Table, func(row string, cols map[string]string) error {
		if identifierMissing(cols, desc.IDColumn) {
			count++
		}
		return nil
	})
	return count, err
}

// Row keys come back in key order, so consecutive rounds never re-select
// rows a previous round already stamped.
func (e *Engine) fetchMissingRowKeys(r pebble.Reader, desc TableDescriptor, limit int) ([]string, error) {
	var rows []string
	err := ScanTable(r, desc.Table, func(row string, cols map[string]string) error {
		if identifierMissing(cols, desc.IDColumn) {
			rows = append(rows, row)
			if len(rows) == limit {
				return errStopScan
			}
		}
		return nil
	})
	return rows, err
}

func (e *Engine) assignRow(b *pebble.Batch, desc TableDescriptor, row string, u uid.UID) error {
	cols, err := readRow(b, desc.Table, row)
	if err != nil {
		return err
	}
	if cols == nil {
		return ErrBackfillInconsistent
	}
	if !identifierMissing(cols, desc.IDColumn) {
		return ErrConstraintViolation
	}
	cols[desc.IDColumn] = u.String()
	return errors.Wrap(
		b.Set(TKey(desc.Table, row), encodeRow(cols), e.opts.PebbleWriteOptions),
		"regmint: assign row")
}

// Vertical strategy. A group is defined by business-key equality over the
// Vertical columns, not by a first-class group entity, so "the group has an
// identifier" means "at least one member row does". Two sub-passes follow
// from that: A seeds brand-new groups with fresh identifiers, B repairs
// groups where a later-inserted row missed the group's identifier. Each
// sub-pass loops to exhaustion because group boundaries can shift between
// rounds; A runs strictly before B.
func (e *Engine) backfillVertical(ctx context.Context, b *pebble.Batch, desc TableDescriptor) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		sigs, err := e.missingGroups(b, desc)
		if err != nil {
			return 0, err
		}
		if len(sigs) == 0 {
			break
		}
		ids, err := e.alloc.Allocate(b, len(sigs), desc)
		if err != nil {
			return 0, err
		}
		if !desc.TrackingDisabled {
			if err = e.reg.RecordBatch(b, ids, desc, time.Now()); err != nil {
				return 0, err
			}
		}
		assign := make(map[uint64]uid.UID, len(sigs))
		for i, sig := range sigs {
			assign[sig] = ids[i]
		}
		if err = e.assignGroups(b, desc, assign); err != nil {
			return 0, err
		}
		total += len(sigs)
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		assign, err := e.partialGroups(b, desc)
		if err != nil {
			return 0, err
		}
		if len(assign) == 0 {
			break
		}
		if err = e.assignGroups(b, desc, assign); err != nil {
			return 0, err
		}
		total += len(assign)
	}
	return total, nil
}

// groupSignature hashes the ordered Vertical column values. Absent columns
// hash as empty values, so rows missing a key column still group
// deterministically.
func groupSignature(cols map[string]string, vertical []string) uint64 {
	var enc []byte
	for _, col := range vertical {
		enc = append(enc, toytlv.Record('V', []byte(cols[col]))...)
	}
	return xxhash.Sum64(enc)
}

// missingGroups finds distinct key combinations where no member row carries
// an identifier, in first-row key order, bounded to one round.
func (e *Engine) missingGroups(r pebble.Reader, desc TableDescriptor) ([]uint64, error) {
	labeled := make(map[uint64]bool)
	seen := make(map[uint64]bool)
	var order []uint64

	err := ScanTable(r, desc.Table, func(row string, cols map[string]string) error {
		sig := groupSignature(cols, desc.Vertical)
		if identifierMissing(cols, desc.IDColumn) {
			if !seen[sig] {
				seen[sig] = true
				order = append(order, sig)
			}
		} else {
			labeled[sig] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var groups []uint64
	for _, sig := range order {
		if labeled[sig] {
			continue
		}
		groups = append(groups, sig)
		if len(groups) == e.opts.MaxBatch {
			break
		}
	}
	return groups, nil
}

// partialGroups finds groups where some rows carry an identifier and others
// do not, returning the group's existing identifier to copy. When old data
// carries two different identifiers inside one group, the first labeled row
// in key order wins.
func (e *Engine) partialGroups(r pebble.Reader, desc TableDescriptor) (map[uint64]uid.UID, error) {
	existing := make(map[uint64]uid.UID)
	hasMissing := make(map[uint64]bool)
	var order []uint64

	err := ScanTable(r, desc.Table, func(row string, cols map[string]string) error {
		sig := groupSignature(cols, desc.Vertical)
		if u, ok := currentID(cols, desc.IDColumn); ok {
			if _, have := existing[sig]; !have {
				existing[sig] = u
			}
		} else if identifierMissing(cols, desc.IDColumn) {
			if !hasMissing[sig] {
				hasMissing[sig] = true
				order = append(order, sig)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	assign := make(map[uint64]uid.UID)
	for _, sig := range order {
		u, ok := existing[sig]
		if !ok {
			continue
		}
		assign[sig] = u
		if len(assign) == e.opts.MaxBatch {
			break
		}
	}
	return assign, nil
}

// assignGroups stamps every unassigned row of every targeted group in one
// scan over the table.
func (e *Engine) assignGroups(b *pebble.Batch, desc TableDescriptor, assign map[uint64]uid.UID) error {
	type update struct {
		row  string
		cols map[string]string
	}
	var updates []update

	err := ScanTable(b, desc.Table, func(row string, cols map[string]string) error {
		if !identifierMissing(cols, desc.IDColumn) {
			return nil
		}
		u, ok := assign[groupSignature(cols, desc.Vertical)]
		if !ok {
			return nil
		}
		cols[desc.IDColumn] = u.String()
		updates = append(updates, update{row: row, cols: cols})
		return nil
	})
	if err != nil {
		return err
	}

	for _, up := range updates {
		err = b.Set(TKey(desc.Table, up.row), encodeRow(up.cols), e.opts.PebbleWriteOptions)
		if err != nil {
			return errors.Wrap(err, "regmint: assign group")
		}
	}
	return nil
}

package regmint

import (
	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/regmint/regmint/uid"
	"github.com/regmint/regmint/utils"
)

// Allocator turns raw generator output into batches guaranteed free of
// collisions against the registry and the target table at read time. It has
// no persistence side effects.
//
// A collision means 62 random bits repeated and should never happen in
// practice; frequent collisions are a broken random source, which is why the
// retry count is small and hard failure is loud.
type Allocator struct {
	gen        *uid.Generator
	probe      Prober
	log        utils.Logger
	maxRetries int

	// Identifiers issued by this process recently. Two in-process callers
	// can otherwise both pass the storage probe before either commits.
	recent *lru.Cache[uid.UID, struct{}]
}

// Allocate returns n fresh identifiers, pairwise distinct and unused. On a
// reported collision the whole batch is discarded and regenerated rather
// than patched; beyond maxRetries the error is ErrAllocationExhausted.
func (a *Allocator) Allocate(r pebble.Reader, n int, desc TableDescriptor) ([]uid.UID, error) {
	if n <= 0 {
		return nil, nil
	}

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		batch := a.gen.Batch(n)

		taken := a.recentHits(batch)
		if len(taken) == 0 {
			var err error
			taken, err = a.probe.FindExisting(r, batch, desc)
			if err != nil {
				return nil, err
			}
		}
		if len(taken) == 0 {
			for _, u := range batch {
				a.recent.Add(u, struct{}{})
			}
			AllocBatches.WithLabelValues(desc.Table).Inc()
			return batch, nil
		}

		AllocCollisions.WithLabelValues(desc.Table).Add(float64(len(taken)))
		a.log.Warn("identifier collision, regenerating batch",
			"table", desc.Table, "n", n, "collisions", len(taken), "attempt", attempt+1)
	}
	return nil, ErrAllocationExhausted
}

func (a *Allocator) recentHits(batch []uid.UID) []uid.UID {
	var hits []uid.UID
	for _, u := range batch {
		if a.recent.Contains(u) {
			hits = append(hits, u)
		}
	}
	return hits
}

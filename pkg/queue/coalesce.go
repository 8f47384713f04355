package queue

import (
	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/future"
	"github.com/lacunalabs/blobcache/pkg/log"
	"github.com/lacunalabs/blobcache/pkg/metrics"
	"github.com/lacunalabs/blobcache/pkg/types"
)

var queueLog = log.WithComponent("queue")

// drain runs one full pass of the coalescer algorithm (spec.md §4.4): it
// snapshots and clears the current buffer, collapses same-kind runs within
// each key bucket, then repeatedly interleaves one head item per bucket
// into a batch until every bucket is empty. drainMu serializes concurrent
// callers (the background loop and an explicit Flush) onto one physical
// pass at a time.
func (q *Queue) drain() {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	globals, buckets, order := q.snapshot()
	if len(globals) == 0 && len(order) == 0 {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.QueueFlushDuration)

	for _, item := range globals {
		q.executeGlobal(item)
	}

	for _, key := range order {
		buckets[key] = collapseRuns(buckets[key])
	}

	for len(order) > 0 {
		var batch []*Item
		batch, order = drainRound(buckets, order)
		q.executeBatch(batch)
	}
}

func (q *Queue) snapshot() ([]*Item, map[string][]*Item, []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	globals := q.globalOps
	buckets := q.buckets
	order := q.bucketKeys

	q.globalOps = nil
	q.buckets = make(map[string][]*Item)
	q.bucketKeys = nil
	q.depth = 0

	return globals, buckets, order
}

// collapseRuns merges each maximal run of consecutive same-kind
// coalescable items into one, multicasting to every collapsed sink
// (spec.md §4.4 step 3). Non-coalescable kinds (GetCreatedAt) pass through.
func collapseRuns(items []*Item) []*Item {
	var out []*Item
	for i := 0; i < len(items); {
		cur := items[i]
		if !cur.kind.Coalescable() {
			out = append(out, cur)
			i++
			continue
		}
		j := i + 1
		for j < len(items) && items[j].kind == cur.kind {
			cur = mergeItems(cur, items[j])
			j++
		}
		out = append(out, cur)
		i = j
	}
	return out
}

// mergeItems folds b into a. For BulkInsert the surviving payload is b's
// (write-wins-last); BulkGet/BulkInvalidate carry no payload to merge.
func mergeItems(a, b *Item) *Item {
	sinks := make([]*future.Source[Outcome], 0, len(a.sinks)+len(b.sinks))
	sinks = append(sinks, a.sinks...)
	sinks = append(sinks, b.sinks...)

	merged := &Item{
		kind:    a.kind,
		key:     a.key,
		typeTag: a.typeTag,
		sinks:   sinks,
	}
	if a.kind == types.OpBulkInsert {
		merged.value = b.value
		merged.expires = b.expires
	}
	return merged
}

// drainRound pops the head item of every bucket in order (step 4), and
// returns the keys that still have remaining items for the next round.
func drainRound(buckets map[string][]*Item, order []string) ([]*Item, []string) {
	batch := make([]*Item, 0, len(order))
	next := make([]string, 0, len(order))
	for _, key := range order {
		items := buckets[key]
		if len(items) == 0 {
			continue
		}
		batch = append(batch, items[0])
		rest := items[1:]
		if len(rest) > 0 {
			buckets[key] = rest
			next = append(next, key)
		} else {
			delete(buckets, key)
		}
	}
	return batch, next
}

// executeBatch groups a cross-key batch by kind (step 5): BulkGet/
// BulkInsert/BulkInvalidate combine into one physical SQL call per distinct
// type tag; everything else executes individually.
func (q *Queue) executeBatch(batch []*Item) {
	var gets, inserts, invalidates []*Item
	for _, item := range batch {
		switch item.kind {
		case types.OpBulkGet:
			gets = append(gets, item)
		case types.OpBulkInsert:
			inserts = append(inserts, item)
		case types.OpBulkInvalidate:
			invalidates = append(invalidates, item)
		default:
			q.executeSingle(item)
		}
	}
	if len(gets) > 0 {
		metrics.QueueFlushBatchSize.WithLabelValues(types.OpBulkGet.String()).Observe(float64(len(gets)))
	}
	if len(inserts) > 0 {
		metrics.QueueFlushBatchSize.WithLabelValues(types.OpBulkInsert.String()).Observe(float64(len(inserts)))
	}
	if len(invalidates) > 0 {
		metrics.QueueFlushBatchSize.WithLabelValues(types.OpBulkInvalidate.String()).Observe(float64(len(invalidates)))
	}
	q.executeGets(gets)
	q.executeInserts(inserts)
	q.executeInvalidates(invalidates)
}

func groupByTypeTag(items []*Item) map[string][]*Item {
	groups := make(map[string][]*Item)
	for _, item := range items {
		groups[item.typeTag] = append(groups[item.typeTag], item)
	}
	return groups
}

func (q *Queue) executeGets(items []*Item) {
	for typeTag, group := range groupByTypeTag(items) {
		keys := make([]string, len(group))
		for i, it := range group {
			keys[i] = it.key
		}
		timer := metrics.NewTimer()
		results, err := q.store.GetBulk(keys, typeTag)
		timer.ObserveDurationVec(metrics.StoreOperationDuration, "get_bulk")
		if err != nil {
			for _, it := range group {
				fire(it, Outcome{Err: err})
			}
			continue
		}
		byKey := make(map[string][]byte, len(results))
		for _, kv := range results {
			byKey[kv.Key] = kv.Value
		}
		for _, it := range group {
			if v, ok := byKey[it.key]; ok {
				fire(it, Outcome{Value: v, Found: true})
			} else {
				fire(it, Outcome{Err: cacheerr.KeyNotFound(it.key)})
			}
		}
	}
}

func (q *Queue) executeInserts(items []*Item) {
	for typeTag, group := range groupByTypeTag(items) {
		pairs := make([]types.InsertPair, len(group))
		for i, it := range group {
			pairs[i] = types.InsertPair{Key: it.key, Value: it.value, Expires: it.expires}
		}
		timer := metrics.NewTimer()
		err := q.store.InsertBulk(pairs, typeTag)
		timer.ObserveDurationVec(metrics.StoreOperationDuration, "insert_bulk")
		for _, it := range group {
			fire(it, Outcome{Err: err})
		}
	}
}

func (q *Queue) executeInvalidates(items []*Item) {
	for typeTag, group := range groupByTypeTag(items) {
		keys := make([]string, len(group))
		for i, it := range group {
			keys[i] = it.key
		}
		timer := metrics.NewTimer()
		err := q.store.Invalidate(keys, typeTag)
		timer.ObserveDurationVec(metrics.StoreOperationDuration, "invalidate")
		if err != nil {
			queueLog.Debug().Err(err).Str("type", typeTag).Msg("invalidate batch failed")
		}
		for _, it := range group {
			fire(it, Outcome{Err: err})
		}
	}
}

func (q *Queue) executeSingle(item *Item) {
	switch item.kind {
	case types.OpGetCreatedAt:
		createdAt, found, err := q.store.GetCreatedAt(item.key, item.typeTag)
		fire(item, Outcome{CreatedAt: createdAt, Found: found, Err: err})
	}
}

func (q *Queue) executeGlobal(item *Item) {
	switch item.kind {
	case types.OpGetAllKeys:
		keys, err := q.store.GetAllKeys(item.typeTag)
		if err != nil {
			fire(item, Outcome{Err: cacheerr.Enumeration(err)})
			return
		}
		fire(item, Outcome{Keys: keys})
	case types.OpInvalidateAll:
		err := q.store.InvalidateAll(item.typeTag)
		if err != nil {
			queueLog.Debug().Err(err).Str("type", item.typeTag).Msg("invalidate_all failed")
		}
		fire(item, Outcome{Err: err})
	case types.OpVacuum:
		timer := metrics.NewTimer()
		err := q.store.Vacuum()
		timer.ObserveDuration(metrics.VacuumDuration)
		fire(item, Outcome{Err: err})
	}
}

func fire(item *Item, outcome Outcome) {
	for _, sink := range item.sinks {
		sink.Complete(outcome, nil)
	}
}

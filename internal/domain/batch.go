package domain

// BuildBatches partitions records by (source, dedup key). Batches come back in
// order of first appearance and records keep their emission order, so the
// result is deterministic for a given input.
func BuildBatches(records []Observation, g Granularity) []Batch {
	index := make(map[BatchKey]int)
	var batches []Batch
	for _, r := range records {
		source := r.Source
		if source == "" {
			source = "UNKNOWN"
		}
		key := BatchKey{Source: source, Dedup: KeyFor(r.ObservedAt, g)}
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, Batch{Key: key})
		}
		batches[i].Records = append(batches[i].Records, r)
	}
	return batches
}

// NormalizeRecords rewrites every ObservedAt in place to its canonical UTC,
// whole-second form. Records already degraded stay degraded.
func NormalizeRecords(records []Observation) {
	for i := range records {
		ts := NormalizeTimestamp(records[i].ObservedAt)
		records[i].ObservedAt = ts.Time
		records[i].Degraded = records[i].Degraded || ts.Degraded
	}
}

package job

import (
	"encoding/json"
	"fmt"
)

// MergeOneLevel merges src into dst and returns the result. Top-level keys
// whose values are maps on both sides are merged key-wise; scalars, arrays,
// and type-mismatched values are replaced wholesale by src. Nesting deeper
// than one map level is not recursed into. Neither input is mutated.
func MergeOneLevel(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		sm, sok := sv.(map[string]any)
		dm, dok := out[k].(map[string]any)
		if sok && dok {
			merged := make(map[string]any, len(dm)+len(sm))
			for mk, mv := range dm {
				merged[mk] = mv
			}
			for mk, mv := range sm {
				merged[mk] = mv
			}
			out[k] = merged
			continue
		}
		out[k] = sv
	}
	return out
}

// ApplyMetadata merges a phase's metadata map into the job record using
// [MergeOneLevel] semantics, going through the record's JSON representation
// so that metadata keys address the persisted field names.
func ApplyMetadata(j *Job, metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("job: marshal record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("job: unmarshal record: %w", err)
	}
	merged := MergeOneLevel(doc, metadata)
	buf, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("job: marshal merged record: %w", err)
	}
	updated := Job{}
	if err := json.Unmarshal(buf, &updated); err != nil {
		return fmt.Errorf("job: metadata does not fit record schema: %w", err)
	}
	// Progress is monotonic non-decreasing: a later snapshot counting fewer
	// finished segments (a lossy phase after translation, say) must not roll
	// the user-visible numbers back.
	if updated.Progress.CompletedSegments < j.Progress.CompletedSegments {
		updated.Progress.CompletedSegments = j.Progress.CompletedSegments
	}
	if updated.Progress.Percent < j.Progress.Percent {
		updated.Progress.Percent = j.Progress.Percent
	}
	*j = updated
	return nil
}

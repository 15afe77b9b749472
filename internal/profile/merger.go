package profile

import "time"

// Merge reconciles an extraction result against the stored profile:
// overwrite-if-known for name and style, set-union for topics, overwrite for
// the narrative description. It reports changed=false when nothing differs,
// in which case the caller must skip the store write so repeated extraction
// of identical information never generates redundant writes.
func Merge(userID string, prev *Profile, ext Extraction, now time.Time) (Profile, bool) {
	var merged Profile
	if prev != nil {
		merged = *prev
		merged.Topics = append([]string(nil), prev.Topics...)
	}
	merged.UserID = userID

	changed := false
	if ext.Name != "" && ext.Name != merged.Name {
		merged.Name = ext.Name
		changed = true
	}
	if ext.Style != "" && ext.Style != merged.Style {
		merged.Style = ext.Style
		changed = true
	}

	seen := make(map[string]struct{}, len(merged.Topics))
	for _, t := range merged.Topics {
		seen[t] = struct{}{}
	}
	for _, t := range ext.Topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged.Topics = append(merged.Topics, t)
		changed = true
	}

	if ext.Description != "" && ext.Description != merged.Description {
		merged.Description = ext.Description
		changed = true
	}

	if changed {
		merged.LastUpdated = now
	}
	return merged, changed
}

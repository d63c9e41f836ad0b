// Package dedupe filters already-known publications out of a batch by exact
// external-ID equality. No fuzzy matching: identity is the resolved ID
// string, nothing else.
package dedupe

import "github.com/devicepubs/curator/internal/record"

// Filter returns the records whose ExternalID is not yet in seen, adding
// each survivor to seen as it passes. Within a batch the first occurrence in
// iteration order wins and later duplicates are dropped, so the result is
// stable for a given input ordering and running Filter again over its own
// output changes nothing.
func Filter(batch []*record.Publication, seen map[string]bool) []*record.Publication {
	out := make([]*record.Publication, 0, len(batch))
	for _, pub := range batch {
		if pub == nil || seen[pub.ExternalID] {
			continue
		}
		seen[pub.ExternalID] = true
		out = append(out, pub)
	}
	return out
}

// SeenSet builds a seen map from stored external IDs, for seeding Filter
// with what the store already holds.
func SeenSet(ids []string) map[string]bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen
}

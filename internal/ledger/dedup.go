package ledger

import "github.com/rmedina/go-requisition-backend/internal/domain"

// dedupIndex maps submission tokens to their position in the just-loaded
// record slice. It is rebuilt from the ledger snapshot inside the locked
// append path, so it is always consistent with the data it guards and needs
// no synchronization of its own.
type dedupIndex map[string]int

func buildDedupIndex(records []domain.Requisition) dedupIndex {
	idx := make(dedupIndex, len(records))
	for i, r := range records {
		if r.DedupToken != "" {
			idx[r.DedupToken] = i
		}
	}
	return idx
}

func (d dedupIndex) contains(token string) (int, bool) {
	i, ok := d[token]
	return i, ok
}

package keypool

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MaxAuditWindow is the largest window Audit accepts.
const MaxAuditWindow Handle = 1 << 20

// Audit checks the free/allocated partition over the window [0, limit):
// every handle in it must be either free or allocated, never both and never
// neither. The first violation found, in ascending handle order, is
// returned wrapped in ErrPartition. A limit above MaxAuditWindow fails with
// ErrAuditWindow before any work is done; the window is first clamped to
// the domain.
func (p *Pool[V]) Audit(limit Handle) error {
	if limit <= 0 {
		return nil
	}
	if limit-1 > p.free.ceiling {
		limit = p.free.ceiling + 1
	}
	if limit > MaxAuditWindow {
		return fmt.Errorf("keypool: audit window %d above %d: %w", limit, MaxAuditWindow, ErrAuditWindow)
	}
	n := uint(limit)
	seen := bitset.New(n)
	for _, r := range p.free.ranges {
		if r.Start >= limit {
			break
		}
		// ranges are disjoint, so flipping a clear span sets it
		seen.FlipRange(uint(r.Start), uint(min(r.End, limit-1))+1)
	}
	for _, h := range p.Handles() {
		if h >= limit {
			break
		}
		if seen.Test(uint(h)) {
			return fmt.Errorf("keypool: handle %d is both free and allocated: %w", h, ErrPartition)
		}
		seen.Set(uint(h))
	}
	if gap, ok := seen.NextClear(0); ok && gap < n {
		return fmt.Errorf("keypool: handle %d is neither free nor allocated: %w", gap, ErrPartition)
	}
	return nil
}

package service

import (
	"sync"

	id "census/pkg/domain"
)

// pendingInvalidations tracks imports whose cache version could not be bumped
// after a committed change. Their cached aggregates may be stale, so the
// service bypasses the cache for them until a bump succeeds.
type pendingInvalidations struct {
	mu   sync.Mutex
	seq  uint64
	byID map[id.ImportID]uint64
}

func newPendingInvalidations() *pendingInvalidations {
	return &pendingInvalidations{byID: make(map[id.ImportID]uint64)}
}

// add marks importID and returns the mark's generation.
func (p *pendingInvalidations) add(importID id.ImportID) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.byID[importID] = p.seq
	return p.seq
}

// snapshot returns every pending import with its generation.
func (p *pendingInvalidations) snapshot() map[id.ImportID]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.byID) == 0 {
		return nil
	}
	out := make(map[id.ImportID]uint64, len(p.byID))
	for importID, gen := range p.byID {
		out[importID] = gen
	}
	return out
}

// resolve clears importID unless it was marked again after generation gen.
// A newer mark belongs to a commit the successful bump may have preceded.
func (p *pendingInvalidations) resolve(importID id.ImportID, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byID[importID] == gen {
		delete(p.byID, importID)
	}
}

func (p *pendingInvalidations) has(importID id.ImportID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[importID]
	return ok
}

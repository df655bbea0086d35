package mmu

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// tlbEntry caches a completed VPN->PPN translation plus the leaf PTE's
// permission bits, to avoid re-walking the page table on every access.
type tlbEntry struct {
	ppn  uint64
	perm uint8
}

// TLB is an optional VPN-keyed translation cache, reusing the Akita
// cache-directory component for tag/LRU bookkeeping. Each directory "block"
// holds exactly one page-table entry, so its configured block size is 1:
// the VPN itself, not a byte range, is the cache key.
type TLB struct {
	directory *akitacache.DirectoryImpl
	assoc     int
	entries   []tlbEntry
}

// NewTLB creates a TLB with numSets sets and associativity ways.
func NewTLB(numSets, associativity int) *TLB {
	return &TLB{
		directory: akitacache.NewDirectory(numSets, associativity, 1, akitacache.NewLRUVictimFinder()),
		assoc:     associativity,
		entries:   make([]tlbEntry, numSets*associativity),
	}
}

func (t *TLB) index(block *akitacache.Block) int {
	return block.SetID*t.assoc + block.WayID
}

// Lookup returns the cached translation for vpn, if present.
func (t *TLB) Lookup(vpn uint64) (tlbEntry, bool) {
	block := t.directory.Lookup(0, vpn)
	if block == nil || !block.IsValid {
		return tlbEntry{}, false
	}
	t.directory.Visit(block)
	return t.entries[t.index(block)], true
}

// Insert caches the translation for vpn, evicting an existing entry if the
// set is full.
func (t *TLB) Insert(vpn uint64, e tlbEntry) {
	victim := t.directory.FindVictim(vpn)
	if victim == nil {
		return
	}
	victim.Tag = vpn
	victim.IsValid = true
	t.entries[t.index(victim)] = e
	t.directory.Visit(victim)
}

// Flush invalidates every cached translation (sfence.vma with no arguments).
func (t *TLB) Flush() {
	t.directory.Reset()
}

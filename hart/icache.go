package hart

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rv64emu/insts"
)

// ICache memoizes decoded instructions by physical PC, reusing the same
// akita/v4/mem/cache directory construction as mmu.TLB: one cached value
// per directory "block", block size 1, keyed by address instead of a byte
// range.
type ICache struct {
	directory *akitacache.DirectoryImpl
	assoc     int
	entries   []insts.Instruction
}

// NewICache creates an ICache with numSets sets and associativity ways.
func NewICache(numSets, associativity int) *ICache {
	return &ICache{
		directory: akitacache.NewDirectory(numSets, associativity, 1, akitacache.NewLRUVictimFinder()),
		assoc:     associativity,
		entries:   make([]insts.Instruction, numSets*associativity),
	}
}

func (c *ICache) index(block *akitacache.Block) int {
	return block.SetID*c.assoc + block.WayID
}

// Lookup returns the cached decode for the instruction at pc, if present.
func (c *ICache) Lookup(pc uint64) (insts.Instruction, bool) {
	block := c.directory.Lookup(0, pc)
	if block == nil || !block.IsValid {
		return insts.Instruction{}, false
	}
	c.directory.Visit(block)
	return c.entries[c.index(block)], true
}

// Insert caches the decode for the instruction at pc.
func (c *ICache) Insert(pc uint64, inst insts.Instruction) {
	victim := c.directory.FindVictim(pc)
	if victim == nil {
		return
	}
	victim.Tag = pc
	victim.IsValid = true
	c.entries[c.index(victim)] = inst
	c.directory.Visit(victim)
}

// Flush invalidates every cached decode. Invoked on FENCE.I, SRET, MRET,
// trap entry, and SFENCE.VMA.
func (c *ICache) Flush() {
	c.directory.Reset()
}

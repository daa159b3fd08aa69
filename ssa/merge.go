package ssa

import (
	"pykit/cfg"
	"pykit/ir"
	"pykit/opcode"
)

// MergeBlocks collapses trivial block chains (spec.md §4.7 step 6): a
// successor folds into its predecessor when the predecessor jumps
// unconditionally to it, it is the jump's only target, it has no other
// incoming edge, neither block carries an exc_setup leader, and the
// successor has no leaders that the join would push out of the block
// head.
func MergeBlocks(fn *ir.Function) {
	for changed := true; changed; {
		changed = false
		g := cfg.Build(fn)
		for _, b := range fn.Blocks() {
			s, ok := mergeCandidate(g, b)
			if !ok {
				continue
			}
			merge(fn, b, s)
			changed = true
			break // edges changed; rebuild the graph
		}
	}
}

func mergeCandidate(g *cfg.Graph, b *ir.Block) (*ir.Block, bool) {
	term := b.Terminator()
	if term == nil || term.Opcode() != opcode.Jump {
		return nil, false
	}
	succs := g.Succs(b)
	if len(succs) != 1 {
		return nil, false
	}
	s := succs[0]
	if s == b || s.Function() != b.Function() {
		return nil, false
	}
	if len(g.Preds(s)) != 1 {
		return nil, false
	}
	if len(s.Leaders()) != 0 || hasExcSetup(b) {
		return nil, false
	}
	return s, true
}

func hasExcSetup(b *ir.Block) bool {
	for _, op := range b.Leaders() {
		if op.Opcode() == opcode.ExcSetup {
			return true
		}
	}
	return false
}

func merge(fn *ir.Function, b, s *ir.Block) {
	term := b.Terminator()
	_ = ir.Delete(term) // the jump into s; terminators have no uses

	for _, op := range s.Ops() {
		ir.Unlink(op)
		b.Append(op)
	}
	// Redirect anything still naming s (phis in s's former successors)
	// at b, then drop the empty block.
	ir.ReplaceUses(s, b)
	fn.DelBlock(s)
}

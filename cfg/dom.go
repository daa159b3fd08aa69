package cfg

import "pykit/ir"

// DomSets maps each block to the set of blocks dominating it. The
// entry is dominated only by itself; an unreachable block is
// (vacuously) dominated by every block.
type DomSets map[*ir.Block]map[*ir.Block]bool

// Dominates reports whether a dominates b.
func (d DomSets) Dominates(a, b *ir.Block) bool { return d[b][a] }

// Dom returns b's dominator set as a slice, in unspecified order.
func (d DomSets) Dom(b *ir.Block) []*ir.Block {
	out := make([]*ir.Block, 0, len(d[b]))
	for blk := range d[b] {
		out = append(out, blk)
	}
	return out
}

// ComputeDominators runs the iterative data-flow fixed point of
// spec.md §4.5 over g:
//
//	dom(entry) = {entry}
//	dom(b)     = {b} ∪ ⋂ dom(p) over predecessors p
//
// starting every non-entry block at the full node set and sweeping in
// layout order until no set changes. The straightforward O(V·E·α)
// solver is deliberate; anything faster must match it bit for bit.
func ComputeDominators(g *Graph) DomSets {
	nodes := g.Nodes()
	doms := make(DomSets, len(nodes))

	entry := g.Entry()
	all := make(map[*ir.Block]bool, len(nodes))
	for _, b := range nodes {
		all[b] = true
	}
	for _, b := range nodes {
		if b == entry {
			doms[b] = map[*ir.Block]bool{b: true}
			continue
		}
		set := make(map[*ir.Block]bool, len(nodes))
		for n := range all {
			set[n] = true
		}
		doms[b] = set
	}

	for changed := true; changed; {
		changed = false
		for _, b := range nodes {
			if b == entry {
				continue
			}
			preds := g.PredSet(b)
			if len(preds) == 0 {
				// Unreachable: the intersection over no predecessors is
				// the ambient top, so the set stays full.
				continue
			}
			next := intersect(doms, preds)
			next[b] = true
			if !sameSet(doms[b], next) {
				doms[b] = next
				changed = true
			}
		}
	}
	return doms
}

func intersect(doms DomSets, preds []*ir.Block) map[*ir.Block]bool {
	out := make(map[*ir.Block]bool, len(doms[preds[0]]))
	for n := range doms[preds[0]] {
		out[n] = true
	}
	for _, p := range preds[1:] {
		set := doms[p]
		for n := range out {
			if !set[n] {
				delete(out, n)
			}
		}
	}
	return out
}

func sameSet(a, b map[*ir.Block]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if !b[n] {
			return false
		}
	}
	return true
}

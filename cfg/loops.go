package cfg

import (
	"errors"
	"sort"

	"pykit/ir"
)

// ErrIrreducibleCFG reports a retreating edge whose target does not
// dominate its source: a loop that is not natural. Only reducible
// control flow is supported (spec.md §4.6).
var ErrIrreducibleCFG = errors.New("cfg: irreducible control flow graph")

// Loop is one tree of the loop-nesting forest. Blocks holds the
// loop's body in depth-first spanning-tree order, head first;
// Children holds the loops nested directly within it.
type Loop struct {
	Blocks   []*ir.Block
	Children []*Loop
}

// Head returns the loop header: the block every back edge targets.
func (l *Loop) Head() *ir.Block { return l.Blocks[0] }

// Tail returns the last body block in spanning-tree order.
func (l *Loop) Tail() *ir.Block { return l.Blocks[len(l.Blocks)-1] }

// Contains reports whether b belongs to the loop's body.
func (l *Loop) Contains(b *ir.Block) bool {
	for _, blk := range l.Blocks {
		if blk == b {
			return true
		}
	}
	return false
}

// FindNaturalLoops returns the loop-nesting forest for fn. g may be
// nil, in which case the CFG is built first. It fails with
// ErrIrreducibleCFG when the function contains a retreating edge that
// is not a back edge.
func FindNaturalLoops(fn *ir.Function, g *Graph) ([]*Loop, error) {
	if g == nil {
		g = Build(fn)
	}
	doms := ComputeDominators(g)

	// Depth-first numbering from the entry; retreating edges with a
	// non-dominating target make the nest irreducible.
	preorder := make(map[*ir.Block]int)
	onstack := make(map[*ir.Block]bool)
	backEdges := make(map[*ir.Block][]*ir.Block) // header -> tails
	var irreducible bool

	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		preorder[b] = len(preorder)
		onstack[b] = true
		for _, s := range g.Succs(b) {
			if _, seen := preorder[s]; !seen {
				visit(s)
			} else if onstack[s] {
				if doms.Dominates(s, b) {
					backEdges[s] = append(backEdges[s], b)
				} else {
					irreducible = true
				}
			}
		}
		onstack[b] = false
	}
	visit(g.Entry())
	if irreducible {
		return nil, ErrIrreducibleCFG
	}
	if len(backEdges) == 0 {
		return nil, nil
	}

	// Natural loop of a back edge (t -> h): every block reaching t
	// without passing through h, plus h itself. Back edges sharing a
	// header merge into one loop.
	var loops []*Loop
	for _, h := range orderBlocks(headers(backEdges), preorder) {
		body := map[*ir.Block]bool{h: true}
		var stack []*ir.Block
		for _, t := range backEdges[h] {
			if !body[t] {
				body[t] = true
				stack = append(stack, t)
			}
		}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, p := range g.PredSet(n) {
				if !body[p] {
					body[p] = true
					stack = append(stack, p)
				}
			}
		}
		blocks := make([]*ir.Block, 0, len(body))
		for b := range body {
			blocks = append(blocks, b)
		}
		loops = append(loops, &Loop{Blocks: orderBlocks(blocks, preorder)})
	}

	return nest(loops, preorder), nil
}

// FlatLoops returns every loop in the forest, preorder.
func FlatLoops(forest []*Loop) []*Loop {
	var out []*Loop
	for _, l := range forest {
		out = append(out, l)
		out = append(out, FlatLoops(l.Children)...)
	}
	return out
}

func headers(backEdges map[*ir.Block][]*ir.Block) []*ir.Block {
	out := make([]*ir.Block, 0, len(backEdges))
	for h := range backEdges {
		out = append(out, h)
	}
	return out
}

func orderBlocks(blocks []*ir.Block, preorder map[*ir.Block]int) []*ir.Block {
	sorted := append([]*ir.Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool {
		return preorder[sorted[i]] < preorder[sorted[j]]
	})
	return sorted
}

// nest arranges loops into a forest: a loop is a child of the
// smallest other loop whose body contains its header.
func nest(loops []*Loop, preorder map[*ir.Block]int) []*Loop {
	bySize := append([]*Loop(nil), loops...)
	sort.Slice(bySize, func(i, j int) bool {
		return len(bySize[i].Blocks) < len(bySize[j].Blocks)
	})

	var forest []*Loop
	for i, l := range bySize {
		var parent *Loop
		for _, candidate := range bySize[i+1:] {
			if candidate != l && candidate.Contains(l.Head()) {
				parent = candidate
				break
			}
		}
		if parent != nil {
			parent.Children = append(parent.Children, l)
		} else {
			forest = append(forest, l)
		}
	}

	sortLoops(forest, preorder)
	return forest
}

func sortLoops(loops []*Loop, preorder map[*ir.Block]int) {
	sort.Slice(loops, func(i, j int) bool {
		return preorder[loops[i].Head()] < preorder[loops[j].Head()]
	})
	for _, l := range loops {
		sortLoops(l.Children, preorder)
	}
}

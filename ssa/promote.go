package ssa

import (
	"github.com/pkg/errors"

	"pykit/cfg"
	"pykit/ir"
	"pykit/opcode"
	"pykit/types"
)

// FindAllocas returns fn's promotable stack slots in first-appearance
// order. An alloca is promotable iff every use is a load from it or a
// store to it through its pointer operand; any other use (address
// taken, pointer arithmetic, passed to a call, stored as a value)
// escapes the slot and disqualifies it.
func FindAllocas(fn *ir.Function) []*ir.Operation {
	var slots []*ir.Operation
	for _, op := range fn.Ops() {
		if op.Opcode() != opcode.Alloca {
			continue
		}
		if promotable(fn, op) {
			slots = append(slots, op)
		}
	}
	return slots
}

func promotable(fn *ir.Function, slot *ir.Operation) bool {
	for _, use := range fn.Uses().Uses(slot) {
		switch use.Opcode() {
		case opcode.Load:
			// always through the pointer operand
		case opcode.Store:
			args := use.Args()
			if args[0].Value == slot || args[1].Value != slot {
				return false // stored as a value, not through
			}
		default:
			return false
		}
	}
	return true
}

// Promote rewrites every promotable slot of fn into SSA registers:
// allocas move to the entry block, phis join values at merge points,
// loads and stores dissolve into direct value flow, and the slots
// themselves are deleted (spec.md §4.7 steps 1–5).
func Promote(fn *ir.Function) error {
	slots := FindAllocas(fn)
	if len(slots) == 0 {
		return nil
	}
	moveAllocasToEntry(fn, slots)

	g := cfg.Build(fn)
	blockPhis, phiSlot := insertPhis(fn, g, slots)
	if err := propagate(fn, g, slots, blockPhis, phiSlot); err != nil {
		return err
	}
	prunePhis(fn)
	return nil
}

// moveAllocasToEntry relocates the promotable slots to the start
// block, after its leaders, preserving their relative order.
func moveAllocasToEntry(fn *ir.Function, slots []*ir.Operation) {
	for _, slot := range slots {
		ir.Unlink(slot)
	}
	entry := fn.StartBlock()
	mark := entry.Head()
	for mark != nil && opcode.IsLeader(mark.Opcode()) {
		mark = mark.Next()
	}
	for _, slot := range slots {
		if mark != nil {
			entry.InsertBefore(slot, mark)
		} else {
			entry.Append(slot)
		}
	}
}

func pointee(slot *ir.Operation) types.Type {
	return types.ResolveTypedef(slot.Type()).(types.Pointer).Base
}

// insertPhis places one empty phi per promotable slot at the front of
// every block with two or more predecessors, after any phis already
// there so the leader prefix stays in declared order.
func insertPhis(fn *ir.Function, g *cfg.Graph, slots []*ir.Operation) (map[*ir.Block]map[*ir.Operation]*ir.Operation, map[*ir.Operation]*ir.Operation) {
	blockPhis := make(map[*ir.Block]map[*ir.Operation]*ir.Operation)
	phiSlot := make(map[*ir.Operation]*ir.Operation)

	for _, b := range fn.Blocks() {
		if len(g.PredSet(b)) < 2 {
			continue
		}
		var lastPhi *ir.Operation
		for op := b.Head(); op != nil && op.Opcode() == opcode.Phi; op = op.Next() {
			lastPhi = op
		}
		forSlot := make(map[*ir.Operation]*ir.Operation, len(slots))
		for _, slot := range slots {
			phi := ir.NewOperation(opcode.Phi, pointee(slot),
				[]ir.Arg{ir.ListArg([]ir.Value{}), ir.ListArg([]ir.Value{})}, "")
			switch {
			case lastPhi != nil:
				b.InsertAfter(phi, lastPhi)
			case b.Head() != nil:
				b.InsertBefore(phi, b.Head())
			default:
				b.Append(phi)
			}
			lastPhi = phi
			forSlot[slot] = phi
			phiSlot[phi] = slot
		}
		blockPhis[b] = forSlot
	}
	return blockPhis, phiSlot
}

// propagate walks blocks in layout order carrying a slot-to-value map,
// dissolving loads and stores of promotable slots, then fills every
// inserted phi from its predecessors' final maps and deletes the
// slots. A predecessor that never defined a slot contributes Undef of
// the slot's pointee type.
func propagate(fn *ir.Function, g *cfg.Graph, slots []*ir.Operation,
	blockPhis map[*ir.Block]map[*ir.Operation]*ir.Operation,
	phiSlot map[*ir.Operation]*ir.Operation) error {

	slotSet := make(map[*ir.Operation]bool, len(slots))
	for _, s := range slots {
		slotSet[s] = true
	}
	lookup := func(vars map[*ir.Operation]ir.Value, slot *ir.Operation) ir.Value {
		if v, ok := vars[slot]; ok {
			return v
		}
		return ir.NewUndef(pointee(slot))
	}

	blockvars := make(map[*ir.Block]map[*ir.Operation]ir.Value, fn.NumBlocks())
	processed := make(map[*ir.Block]bool, fn.NumBlocks())

	for _, b := range fn.Blocks() {
		vars := make(map[*ir.Operation]ir.Value)
		// A single processed predecessor flows its values straight
		// through; merge points read theirs from the phis at the head.
		if preds := g.PredSet(b); len(preds) == 1 && processed[preds[0]] {
			for k, v := range blockvars[preds[0]] {
				vars[k] = v
			}
		}

		for _, op := range b.Ops() {
			switch op.Opcode() {
			case opcode.Alloca:
				if slotSet[op] {
					vars[op] = ir.NewUndef(pointee(op))
				}
			case opcode.Load:
				slot, ok := op.Args()[0].Value.(*ir.Operation)
				if !ok || !slotSet[slot] {
					continue
				}
				ir.ReplaceUses(op, lookup(vars, slot))
				if err := ir.Delete(op); err != nil {
					return errors.Wrapf(err, "ssa: deleting load %%%s", op.Name())
				}
			case opcode.Store:
				slot, ok := op.Args()[1].Value.(*ir.Operation)
				if !ok || !slotSet[slot] {
					continue
				}
				vars[slot] = op.Args()[0].Value
				if err := ir.Delete(op); err != nil {
					return errors.Wrapf(err, "ssa: deleting store %%%s", op.Name())
				}
			case opcode.Phi:
				if slot, ok := phiSlot[op]; ok {
					vars[slot] = op
				}
			}
		}
		blockvars[b] = vars
		processed[b] = true
	}

	for b, forSlot := range blockPhis {
		preds := g.PredSet(b)
		for slot, phi := range forSlot {
			blocks := make([]ir.Value, len(preds))
			values := make([]ir.Value, len(preds))
			for i, p := range preds {
				blocks[i] = p
				values[i] = lookup(blockvars[p], slot)
			}
			phi.SetArgs([]ir.Arg{ir.ListArg(blocks), ir.ListArg(values)})
		}
	}

	for _, slot := range slots {
		if err := ir.Delete(slot); err != nil {
			return errors.Wrapf(err, "ssa: deleting promoted alloca %%%s", slot.Name())
		}
	}
	return nil
}

// prunePhis deletes unused phis and collapses phis whose incoming
// values are all equal, repeating to a fixed point.
func prunePhis(fn *ir.Function) {
	for changed := true; changed; {
		changed = false
		for _, op := range fn.Ops() {
			if op.Opcode() != opcode.Phi {
				continue
			}
			if !fn.Uses().HasUses(op) {
				if ir.Delete(op) == nil {
					changed = true
				}
				continue
			}
			if v := collapsedValue(op); v != nil {
				ir.ReplaceUses(op, v)
				if ir.Delete(op) == nil {
					changed = true
				}
			}
		}
	}
}

// collapsedValue returns the single value a phi forwards when all its
// incoming values are equal, or nil.
func collapsedValue(phi *ir.Operation) ir.Value {
	args := phi.Args()
	if len(args) != 2 || len(args[1].List) == 0 {
		return nil
	}
	vals := args[1].List
	first := vals[0]
	for _, v := range vals[1:] {
		if !sameValue(v, first) {
			return nil
		}
	}
	if first == ir.Value(phi) {
		return nil
	}
	return first
}

// sameValue compares as Values: identity, except Undef, which is equal
// by type.
func sameValue(a, b ir.Value) bool {
	if a == b {
		return true
	}
	ua, ok1 := a.(*ir.Undef)
	ub, ok2 := b.(*ir.Undef)
	return ok1 && ok2 && ua.Type().Equal(ub.Type())
}

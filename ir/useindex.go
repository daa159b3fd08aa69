package ir

// UseIndex is the single source of truth for def/use information
// within one Function (spec.md §3). It maps each Operation, FuncArg,
// or Block used by some Operation to the set of Operations whose args
// contain it. Constants, GlobalValues, Functions-as-values and Undef
// are not tracked: they are immutable or external and are never the
// target of delete/replace_uses.
//
// Uses are a set, not a multiset: an operation referencing the same
// value twice (e.g. add(%x, %x)) contributes exactly one entry.
type UseIndex struct {
	uses map[Value]map[*Operation]struct{}
}

func newUseIndex() *UseIndex {
	return &UseIndex{uses: make(map[Value]map[*Operation]struct{})}
}

// tracked reports whether v is a kind the index tracks uses for.
func tracked(v Value) bool {
	switch v.(type) {
	case *Operation, *FuncArg, *Block:
		return true
	default:
		return false
	}
}

// Uses returns the set of Operations that reference v, as a fresh
// slice in unspecified order. Returns nil if v is untracked or has no
// uses.
func (idx *UseIndex) Uses(v Value) []*Operation {
	set := idx.uses[v]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Operation, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	return out
}

// HasUses reports whether v is referenced by at least one Operation.
func (idx *UseIndex) HasUses(v Value) bool {
	return len(idx.uses[v]) > 0
}

// TrackedValues returns every value with at least one recorded use, in
// unspecified order. The verifier uses this to check the index against
// the args in both directions.
func (idx *UseIndex) TrackedValues() []Value {
	out := make([]Value, 0, len(idx.uses))
	for v := range idx.uses {
		out = append(out, v)
	}
	return out
}

func (idx *UseIndex) addUse(v Value, user *Operation) {
	if !tracked(v) {
		return
	}
	set := idx.uses[v]
	if set == nil {
		set = make(map[*Operation]struct{})
		idx.uses[v] = set
	}
	set[user] = struct{}{}
}

func (idx *UseIndex) removeUse(v Value, user *Operation) {
	if !tracked(v) {
		return
	}
	set := idx.uses[v]
	if set == nil {
		return
	}
	delete(set, user)
	if len(set) == 0 {
		delete(idx.uses, v)
	}
}

// registerArgs adds one use entry per distinct tracked Value in args
// for user.
func (idx *UseIndex) registerArgs(user *Operation, args []Arg) {
	for _, v := range uniqueValues(flattenArgs(args)) {
		idx.addUse(v, user)
	}
}

// unregisterArgs removes user's use entries for every distinct tracked
// Value in args.
func (idx *UseIndex) unregisterArgs(user *Operation, args []Arg) {
	for _, v := range uniqueValues(flattenArgs(args)) {
		idx.removeUse(v, user)
	}
}

// rebuildArgs computes the symmetric difference between oldArgs and
// newArgs and updates the index accordingly (spec.md §4.1 set_args).
func (idx *UseIndex) rebuildArgs(user *Operation, oldArgs, newArgs []Arg) {
	before := uniqueValues(flattenArgs(oldArgs))
	after := uniqueValues(flattenArgs(newArgs))
	afterSet := make(map[Value]bool, len(after))
	for _, v := range after {
		afterSet[v] = true
	}
	beforeSet := make(map[Value]bool, len(before))
	for _, v := range before {
		beforeSet[v] = true
	}
	for _, v := range before {
		if !afterSet[v] {
			idx.removeUse(v, user)
		}
	}
	for _, v := range after {
		if !beforeSet[v] {
			idx.addUse(v, user)
		}
	}
}

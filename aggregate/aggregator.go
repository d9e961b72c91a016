package aggregate

import (
	"math"

	"github.com/relboost/engine/catindex"
	"github.com/relboost/engine/criterion"
	"github.com/relboost/engine/intset"
	"github.com/relboost/engine/relerr"
	"github.com/relboost/engine/reldata"
)

// Aggregator is the C4 incremental aggregation state machine (spec.md
// §4.4): it maintains ŷ[pop_row] over the currently activated matches of a
// single (column, aggregation kind) pair, with O(1) activate/deactivate and
// O(|changed rows|) commit/revert. One Aggregator exists per candidate
// column considered at a tree node; the enumerator (C6) drives it.
type Aggregator struct {
	kind   Kind
	traits Traits
	store  *reldata.Store
	crit   *criterion.Criterion
	nPop   int

	yhatCurrent, yhatStored, yhatCommitted []float64
	yhatAtLastCritUpdate                   []float64

	sumCurrent, sumStored, sumCommitted             []float64
	sumSqCurrent, sumSqStored, sumSqCommitted        []float64
	sumCubedCurrent, sumCubedStored, sumCubedCommitted []float64
	countCurrent, countStored, countCommitted       []int64

	// extremumCurrent/.../Committed hold, per population row, the
	// canonical store index of: the current MIN/MAX/FIRST/LAST winner, or
	// the MEDIAN rank pointer. -1 means no active match in that row.
	extremumCurrent, extremumStored, extremumCommitted []int

	rowRanges map[uint64]reldata.Range

	// Count-distinct family: groupOf[i-rangeBegin] is the id of the
	// contiguous same-value run i belongs to within its population row's
	// sorted sub-range (spec.md §4.4's note on "duplicate value groups").
	rangeBegin                                 int
	groupOf                                     []int
	groupCountCurrent, groupCountCommitted      []int32
	touchedGroups                               *intset.Set

	// touched records, for every match whose Activated flag has changed
	// since the last commit, its value AT the last commit — so
	// RevertToCommit can restore it exactly rather than blindly toggle.
	touched map[int]bool

	updatesCurrent *intset.Set
	updatesStored  *intset.Set
}

// New builds an Aggregator of the given kind over the matches in r, whose
// Value (and, for FIRST/LAST, SortKey) fields must already be populated via
// PopulateValues. nPop is the number of population rows ŷ is indexed over.
// Kinds whose traits require a value-sorted per-row sub-range
// (NeedsSorting) partition nulls to the front and sort the remainder once,
// here, at construction — never again during the node's fit (spec.md §3).
func New(kind Kind, store *reldata.Store, r reldata.Range, nPop int, crit *criterion.Criterion) *Aggregator {
	traits := TraitsFor(kind)
	a := &Aggregator{
		kind:           kind,
		traits:         traits,
		store:          store,
		crit:           crit,
		nPop:           nPop,
		touched:        make(map[int]bool),
		updatesCurrent: intset.New(),
		updatesStored:  intset.New(),
	}

	a.yhatCurrent = make([]float64, nPop)
	a.yhatStored = make([]float64, nPop)
	a.yhatCommitted = make([]float64, nPop)
	a.yhatAtLastCritUpdate = make([]float64, nPop)

	if traits.NeedsSum {
		a.sumCurrent = make([]float64, nPop)
		a.sumStored = make([]float64, nPop)
		a.sumCommitted = make([]float64, nPop)
	}
	if traits.NeedsSumSq {
		a.sumSqCurrent = make([]float64, nPop)
		a.sumSqStored = make([]float64, nPop)
		a.sumSqCommitted = make([]float64, nPop)
	}
	if traits.NeedsSumCubed {
		a.sumCubedCurrent = make([]float64, nPop)
		a.sumCubedStored = make([]float64, nPop)
		a.sumCubedCommitted = make([]float64, nPop)
	}
	if traits.NeedsCount {
		a.countCurrent = make([]int64, nPop)
		a.countStored = make([]int64, nPop)
		a.countCommitted = make([]int64, nPop)
	}

	sortedRange := r
	if traits.NeedsSorting {
		sep := store.PartitionNullFront(r)
		sortedRange = reldata.Range{Begin: sep, End: r.End}
		store.SortForAggregation(sortedRange)
		a.rowRanges = store.RowRanges(sortedRange)
	}

	if traits.NeedsMatchPtr {
		a.extremumCurrent = fillInt(nPop, -1)
		a.extremumStored = fillInt(nPop, -1)
		a.extremumCommitted = fillInt(nPop, -1)
	}

	if traits.NeedsGrouping {
		a.buildGroups(sortedRange)
		a.groupCountCurrent = make([]int32, a.nGroups())
		a.groupCountCommitted = make([]int32, a.nGroups())
		a.touchedGroups = intset.New()
	}

	return a
}

func fillInt(n int, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (a *Aggregator) nGroups() int {
	if len(a.groupOf) == 0 {
		return 0
	}
	return a.groupOf[len(a.groupOf)-1] + 1
}

// buildGroups assigns each match in the (already null-partitioned and
// sorted) range a group id shared with every other match in the same
// population row carrying the identical value — the contiguous run that
// COUNT DISTINCT / COUNT MINUS COUNT DISTINCT increment as a unit.
func (a *Aggregator) buildGroups(r reldata.Range) {
	n := r.Len()
	a.rangeBegin = r.Begin
	a.groupOf = make([]int, n)
	if n == 0 {
		return
	}
	group := 0
	prev := a.store.Match(r.Begin)
	a.groupOf[0] = 0
	for k := 1; k < n; k++ {
		m := a.store.Match(r.Begin + k)
		if m.IxPopulation != prev.IxPopulation || m.Value != prev.Value {
			group++
		}
		a.groupOf[k] = group
		prev = m
	}
}

// PopulateValues sets Value (and SortKey) on every match in r, ahead of
// constructing an Aggregator over them. sortKeyProvider may be nil, in
// which case SortKey mirrors Value — true for every aggregation kind
// except FIRST/LAST, which order by time stamp instead (spec.md §4.2).
func PopulateValues(store *reldata.Store, r reldata.Range, valueProvider, sortKeyProvider reldata.Provider) {
	for i := r.Begin; i < r.End; i++ {
		m := store.Match(i)
		m.Value = valueProvider.Value(m)
		if sortKeyProvider != nil {
			m.SortKey = sortKeyProvider.Value(m)
		} else {
			m.SortKey = m.Value
		}
	}
}

// IsActivated reports whether the match at canonical index idx currently
// contributes to its population row's ŷ.
func (a *Aggregator) IsActivated(idx int) bool { return a.store.Match(idx).Activated }

// Store returns the match store this Aggregator was built over, so callers
// (the split enumerator) can read match fields without duplicating state.
func (a *Aggregator) Store() *reldata.Store { return a.store }

// Kind returns the aggregation kind this Aggregator maintains.
func (a *Aggregator) Kind() Kind { return a.kind }

// Traits returns the static traits of this Aggregator's kind.
func (a *Aggregator) Traits() Traits { return a.traits }

// YHat returns the live ŷ vector, indexed by population row. Callers must
// not retain it across a Commit/RevertToCommit/Reset.
func (a *Aggregator) YHat() []float64 { return a.yhatCurrent }

func (a *Aggregator) touchRow(i uint64) {
	a.updatesCurrent.Add(i)
	a.updatesStored.Add(i)
}

func (a *Aggregator) touchMatch(idx int, m *reldata.Match) {
	if _, seen := a.touched[idx]; !seen {
		a.touched[idx] = m.Activated
	}
}

func (a *Aggregator) direction() int {
	switch a.kind {
	case MIN, FIRST:
		return 1
	case MAX, LAST:
		return -1
	default:
		return 0
	}
}

func (a *Aggregator) better(candidate, current *reldata.Match) bool {
	switch a.kind {
	case MIN:
		return candidate.Value < current.Value
	case MAX:
		return candidate.Value > current.Value
	case FIRST:
		return candidate.SortKey < current.SortKey
	case LAST:
		return candidate.SortKey > current.SortKey
	default:
		return false
	}
}

// Activate marks the match at canonical index idx as contributing to its
// population row's ŷ, in O(1) amortised time (spec.md §4.4). Activating an
// already-active match is a programmer error.
func (a *Aggregator) Activate(idx int) {
	m := a.store.Match(idx)
	relerr.Invariant(!m.Activated, "activate: match %d already active", idx)
	a.touchMatch(idx, m)
	m.Activated = true
	i := m.IxPopulation
	a.touchRow(i)

	switch a.kind {
	case SUM:
		a.yhatCurrent[i] += m.Value
	case COUNT:
		a.yhatCurrent[i]++
	case AVG:
		a.sumCurrent[i] += m.Value
		a.countCurrent[i]++
		a.yhatCurrent[i] = a.sumCurrent[i] / float64(a.countCurrent[i])
	case VAR, STDDEV:
		a.sumCurrent[i] += m.Value
		a.sumSqCurrent[i] += m.Value * m.Value
		a.countCurrent[i]++
		a.yhatCurrent[i] = a.varOrStd(i)
	case SKEWNESS:
		v := m.Value
		a.sumCurrent[i] += v
		a.sumSqCurrent[i] += v * v
		a.sumCubedCurrent[i] += v * v * v
		a.countCurrent[i]++
		a.yhatCurrent[i] = a.skewness(i)
	case MIN, MAX, FIRST, LAST:
		a.countCurrent[i]++
		cur := a.extremumCurrent[i]
		// On a tie the extremum moves to the match the removal scan would
		// reach last (the lowest index for MIN/FIRST, the highest for
		// MAX/LAST), so no active equal-valued match is left behind it.
		if cur == -1 || a.better(m, a.store.Match(cur)) ||
			(!a.better(a.store.Match(cur), m) && (idx-cur)*a.direction() < 0) {
			a.extremumCurrent[i] = idx
		}
		a.yhatCurrent[i] = a.store.Match(a.extremumCurrent[i]).Value
	case MEDIAN:
		a.activateMedian(idx, m, i)
	case COUNTDISTINCT:
		g := a.groupOf[idx-a.rangeBegin]
		a.touchedGroups.Add(uint64(g))
		a.groupCountCurrent[g]++
		if a.groupCountCurrent[g] == 1 {
			a.yhatCurrent[i]++
		}
	case COUNTMINUSCOUNTDISTINCT:
		g := a.groupOf[idx-a.rangeBegin]
		a.touchedGroups.Add(uint64(g))
		a.groupCountCurrent[g]++
		a.yhatCurrent[i]++
		if a.groupCountCurrent[g] == 1 {
			a.yhatCurrent[i]--
		}
	}
}

// Deactivate marks the match at canonical index idx as no longer
// contributing to its population row's ŷ. Deactivating an inactive match
// is a programmer error.
func (a *Aggregator) Deactivate(idx int) {
	m := a.store.Match(idx)
	relerr.Invariant(m.Activated, "deactivate: match %d not active", idx)
	a.touchMatch(idx, m)
	m.Activated = false
	i := m.IxPopulation
	a.touchRow(i)

	switch a.kind {
	case SUM:
		a.yhatCurrent[i] -= m.Value
	case COUNT:
		a.yhatCurrent[i]--
	case AVG:
		a.sumCurrent[i] -= m.Value
		a.countCurrent[i]--
		if a.countCurrent[i] == 0 {
			a.yhatCurrent[i] = 0
		} else {
			a.yhatCurrent[i] = a.sumCurrent[i] / float64(a.countCurrent[i])
		}
	case VAR, STDDEV:
		a.sumCurrent[i] -= m.Value
		a.sumSqCurrent[i] -= m.Value * m.Value
		a.countCurrent[i]--
		if a.countCurrent[i] == 0 {
			a.yhatCurrent[i] = 0
		} else {
			a.yhatCurrent[i] = a.varOrStd(i)
		}
	case SKEWNESS:
		v := m.Value
		a.sumCurrent[i] -= v
		a.sumSqCurrent[i] -= v * v
		a.sumCubedCurrent[i] -= v * v * v
		a.countCurrent[i]--
		if a.countCurrent[i] == 0 {
			a.yhatCurrent[i] = 0
		} else {
			a.yhatCurrent[i] = a.skewness(i)
		}
	case MIN, MAX, FIRST, LAST:
		a.countCurrent[i]--
		relerr.Invariant(a.countCurrent[i] >= 0, "count underflow for population row %d", i)
		if a.countCurrent[i] == 0 {
			a.extremumCurrent[i] = -1
			a.yhatCurrent[i] = 0
		} else if a.extremumCurrent[i] == idx {
			a.extremumCurrent[i] = a.scanNextExtremum(idx, i)
			a.yhatCurrent[i] = a.store.Match(a.extremumCurrent[i]).Value
		}
	case MEDIAN:
		a.deactivateMedian(idx, m, i)
	case COUNTDISTINCT:
		g := a.groupOf[idx-a.rangeBegin]
		a.touchedGroups.Add(uint64(g))
		a.groupCountCurrent[g]--
		if a.groupCountCurrent[g] == 0 {
			a.yhatCurrent[i]--
		}
	case COUNTMINUSCOUNTDISTINCT:
		g := a.groupOf[idx-a.rangeBegin]
		a.touchedGroups.Add(uint64(g))
		a.groupCountCurrent[g]--
		a.yhatCurrent[i]--
		if a.groupCountCurrent[g] == 0 {
			a.yhatCurrent[i]++
		}
	}
}

func (a *Aggregator) varOrStd(i uint64) float64 {
	n := float64(a.countCurrent[i])
	mean := a.sumCurrent[i] / n
	variance := a.sumSqCurrent[i]/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	if a.kind == STDDEV {
		return math.Sqrt(variance)
	}
	return variance
}

func (a *Aggregator) skewness(i uint64) float64 {
	n := float64(a.countCurrent[i])
	mean := a.sumCurrent[i] / n
	m2 := a.sumSqCurrent[i]/n - mean*mean
	if m2 <= 0 {
		return 0
	}
	m3 := a.sumCubedCurrent[i]/n - 3*mean*a.sumSqCurrent[i]/n + 2*mean*mean*mean
	skew := m3 / math.Pow(m2, 1.5)
	if math.IsNaN(skew) || math.IsInf(skew, 0) {
		return 0
	}
	return skew
}

// scanNextExtremum finds the next-best activated match in popRow's sorted
// sub-range after removing the current extremum at removedIdx. The
// sub-range is sorted ascending, so the scan walks toward higher indices
// (higher values) for MIN/FIRST and toward lower indices (lower values)
// for MAX/LAST. A scan
// that runs off the row's bounds without finding an active match indicates
// a bug in the running count (spec.md §4.4).
func (a *Aggregator) scanNextExtremum(removedIdx int, popRow uint64) int {
	rr := a.rowRanges[popRow]
	dir := a.direction()
	for j := removedIdx + dir; j >= rr.Begin && j < rr.End; j += dir {
		if a.store.Match(j).Activated {
			return j
		}
	}
	relerr.Invariant(false, "extremum scan crossed population row %d boundary", popRow)
	return -1
}

func (a *Aggregator) predecessor(fromIdx int, popRow uint64) int {
	rr := a.rowRanges[popRow]
	for j := fromIdx - 1; j >= rr.Begin; j-- {
		if a.store.Match(j).Activated {
			return j
		}
	}
	relerr.Invariant(false, "median predecessor scan crossed population row %d boundary", popRow)
	return -1
}

func (a *Aggregator) successor(fromIdx int, popRow uint64) int {
	rr := a.rowRanges[popRow]
	for j := fromIdx + 1; j < rr.End; j++ {
		if a.store.Match(j).Activated {
			return j
		}
	}
	relerr.Invariant(false, "median successor scan crossed population row %d boundary", popRow)
	return -1
}

// activateMedian maintains extremumCurrent[i] as the rank-R(count) match —
// where R(n) = n/2, integer division, the "greater of the two central
// values" convention — under a single new activation. Let old/new be the
// row's count before/after this activation: R changes by at most one
// position whenever new is even, since R(new) = R(old+1) only differs from
// R(old) when old+1 is even.
func (a *Aggregator) activateMedian(idx int, m *reldata.Match, i uint64) {
	a.countCurrent[i]++
	count := a.countCurrent[i]
	ptr := a.extremumCurrent[i]
	if ptr == -1 {
		a.extremumCurrent[i] = idx
		a.yhatCurrent[i] = m.Value
		return
	}
	ptrMatch := a.store.Match(ptr)
	if m.Value <= ptrMatch.Value {
		if count%2 == 1 {
			a.extremumCurrent[i] = a.predecessor(ptr, i)
		}
	} else {
		if count%2 == 0 {
			a.extremumCurrent[i] = a.successor(ptr, i)
		}
	}
	a.yhatCurrent[i] = a.store.Match(a.extremumCurrent[i]).Value
}

// deactivateMedian is activateMedian's inverse: removing a match shifts
// R(count) down by one position whenever the pre-removal count was even.
func (a *Aggregator) deactivateMedian(idx int, m *reldata.Match, i uint64) {
	countOld := a.countCurrent[i]
	a.countCurrent[i]--
	countNew := a.countCurrent[i]
	relerr.Invariant(countNew >= 0, "count underflow for population row %d", i)
	if countNew == 0 {
		a.extremumCurrent[i] = -1
		a.yhatCurrent[i] = 0
		return
	}
	ptr := a.extremumCurrent[i]
	countOldEven := countOld%2 == 0
	switch {
	case idx == ptr:
		if countOldEven {
			a.extremumCurrent[i] = a.predecessor(ptr, i)
		} else {
			a.extremumCurrent[i] = a.successor(ptr, i)
		}
	case m.Value <= a.store.Match(ptr).Value:
		if !countOldEven {
			a.extremumCurrent[i] = a.successor(ptr, i)
		}
	default:
		if countOldEven {
			a.extremumCurrent[i] = a.predecessor(ptr, i)
		}
	}
	a.yhatCurrent[i] = a.store.Match(a.extremumCurrent[i]).Value
}

// ActivateAll deactivates every match in r then activates each one in
// order, establishing the root node's starting state (spec.md §4.4). If
// initOpt is set, the criterion is (re)seeded from the resulting ŷ; if it
// is not, the criterion is left untouched.
func (a *Aggregator) ActivateAll(r reldata.Range, initOpt bool) {
	for i := r.Begin; i < r.End; i++ {
		a.store.Match(i).Activated = false
	}
	for i := r.Begin; i < r.End; i++ {
		a.Activate(i)
	}
	a.updatesCurrent.Clear()
	if initOpt {
		a.crit.InitYHat(a.yhatCurrent, nil)
		copy(a.yhatAtLastCritUpdate, a.yhatCurrent)
	}
}

// ActivatePartitionFromAbove activates order[sep:], where order is a
// caller-built slice of canonical store indices sorted by the column
// currently under consideration (spec.md §4.6's column-specific sweep
// order, distinct from the aggregator's own fixed construction-time sort).
func (a *Aggregator) ActivatePartitionFromAbove(order []int, sep int) {
	for k := sep; k < len(order); k++ {
		a.Activate(order[k])
	}
}

// DeactivatePartitionFromAbove is ActivatePartitionFromAbove's inverse.
func (a *Aggregator) DeactivatePartitionFromAbove(order []int, sep int) {
	for k := sep; k < len(order); k++ {
		a.Deactivate(order[k])
	}
}

// ActivatePartitionFromBelow activates order[:sep].
func (a *Aggregator) ActivatePartitionFromBelow(order []int, sep int) {
	for k := 0; k < sep; k++ {
		a.Activate(order[k])
	}
}

// DeactivatePartitionFromBelow is ActivatePartitionFromBelow's inverse.
func (a *Aggregator) DeactivatePartitionFromBelow(order []int, sep int) {
	for k := 0; k < sep; k++ {
		a.Deactivate(order[k])
	}
}

// ActivateMatchesInWindow activates order[lo:hi] — a time-lag or rolling
// window sub-range of a caller-built, time-sorted order.
func (a *Aggregator) ActivateMatchesInWindow(order []int, lo, hi int) {
	for k := lo; k < hi; k++ {
		a.Activate(order[k])
	}
}

// DeactivateMatchesOutsideWindow deactivates order[:lo] and order[hi:],
// the complement of a previously activated window.
func (a *Aggregator) DeactivateMatchesOutsideWindow(order []int, lo, hi int) {
	for k := 0; k < lo; k++ {
		a.Deactivate(order[k])
	}
	for k := hi; k < len(order); k++ {
		a.Deactivate(order[k])
	}
}

// ActivateCategory activates every match idx holds for code that is not
// already active.
func (a *Aggregator) ActivateCategory(idx *catindex.CategoryIndex, code int64) {
	for _, m := range idx.Matches(code) {
		if !a.store.Match(m).Activated {
			a.Activate(m)
		}
	}
}

// DeactivateCategory deactivates every currently-active match idx holds
// for code.
func (a *Aggregator) DeactivateCategory(idx *catindex.CategoryIndex, code int64) {
	for _, m := range idx.Matches(code) {
		if a.store.Match(m).Activated {
			a.Deactivate(m)
		}
	}
}

// ActivateMatchesContainingCategories tries each category in cats
// independently, starting from the current committed state: activates the
// category's matches, records the criterion, then rolls back per policy
// before trying the next. Returns the criterion storage index recorded for
// each category, in cats' order.
func (a *Aggregator) ActivateMatchesContainingCategories(cats []int64, policy RevertPolicy, idx *catindex.CategoryIndex) []int {
	stored := make([]int, len(cats))
	for k, code := range cats {
		matches := idx.Matches(code)
		a.ActivateCategory(idx, code)
		a.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		stored[k] = a.crit.StoreCurrentStage(len(matches), 0)
		if policy == RevertAfterEachCategory {
			a.RevertToCommit()
		}
	}
	if policy == RevertAfterAllCategories {
		a.RevertToCommit()
	}
	return stored
}

// ActivateMatchesNotContainingCategories is the complement of
// ActivateMatchesContainingCategories: it assumes universe is already
// fully activated, and for each category deactivates that category's
// matches, records, then rolls back per policy.
func (a *Aggregator) ActivateMatchesNotContainingCategories(cats []int64, policy RevertPolicy, idx *catindex.CategoryIndex) []int {
	stored := make([]int, len(cats))
	for k, code := range cats {
		matches := idx.Matches(code)
		a.DeactivateCategory(idx, code)
		a.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		stored[k] = a.crit.StoreCurrentStage(len(matches), 0)
		if policy == RevertAfterEachCategory {
			a.RevertToCommit()
		}
	}
	if policy == RevertAfterAllCategories {
		a.RevertToCommit()
	}
	return stored
}

// ActivateWord activates every match idx holds for token that is not
// already active. A match may be bucketed under several tokens, so
// activating one token never implies another token's matches are
// untouched.
func (a *Aggregator) ActivateWord(idx *catindex.WordIndex, token uint32) {
	for _, m := range idx.Matches(token) {
		if !a.store.Match(m).Activated {
			a.Activate(m)
		}
	}
}

// DeactivateWord deactivates every currently-active match idx holds for
// token.
func (a *Aggregator) DeactivateWord(idx *catindex.WordIndex, token uint32) {
	for _, m := range idx.Matches(token) {
		if a.store.Match(m).Activated {
			a.Deactivate(m)
		}
	}
}

// ActivateMatchesContainingWords is ActivateMatchesContainingCategories'
// text-column analogue (spec.md §4.4's "…_containing_words, analogous"):
// tries each token in tokens independently, starting from the current
// committed state, activates the token's matches, records the criterion,
// then rolls back per policy before trying the next.
func (a *Aggregator) ActivateMatchesContainingWords(tokens []uint32, policy RevertPolicy, idx *catindex.WordIndex) []int {
	stored := make([]int, len(tokens))
	for k, tok := range tokens {
		matches := idx.Matches(tok)
		a.ActivateWord(idx, tok)
		a.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		stored[k] = a.crit.StoreCurrentStage(len(matches), 0)
		if policy == RevertAfterEachCategory {
			a.RevertToCommit()
		}
	}
	if policy == RevertAfterAllCategories {
		a.RevertToCommit()
	}
	return stored
}

// ActivateMatchesNotContainingWords is ActivateMatchesContainingWords'
// complement: it assumes universe is already fully activated, and for each
// token deactivates that token's matches, records, then rolls back per
// policy.
func (a *Aggregator) ActivateMatchesNotContainingWords(tokens []uint32, policy RevertPolicy, idx *catindex.WordIndex) []int {
	stored := make([]int, len(tokens))
	for k, tok := range tokens {
		matches := idx.Matches(tok)
		a.DeactivateWord(idx, tok)
		a.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		stored[k] = a.crit.StoreCurrentStage(len(matches), 0)
		if policy == RevertAfterEachCategory {
			a.RevertToCommit()
		}
	}
	if policy == RevertAfterAllCategories {
		a.RevertToCommit()
	}
	return stored
}

// ActivateMatchesWithNullValues activates the given canonical indices —
// the null-prefix matches PartitionNullFront moved to the front and
// deactivated — so a "is null" condition can be tested as its own
// candidate split.
func (a *Aggregator) ActivateMatchesWithNullValues(nullIndices []int) {
	for _, idx := range nullIndices {
		if !a.store.Match(idx).Activated {
			a.Activate(idx)
		}
	}
}

// DeactivateMatchesWithNullValues is the inverse of
// ActivateMatchesWithNullValues.
func (a *Aggregator) DeactivateMatchesWithNullValues(nullIndices []int) {
	for _, idx := range nullIndices {
		if a.store.Match(idx).Activated {
			a.Deactivate(idx)
		}
	}
}

// UpdateOptimisationCriterionAndClearUpdatesCurrent feeds every population
// row touched since the last call into the criterion's incremental update,
// then clears the tracking set (spec.md §4.4). Call this after every batch
// of Activate/Deactivate calls whose effect on the criterion should be
// recorded, and before Criterion.StoreCurrentStage.
func (a *Aggregator) UpdateOptimisationCriterionAndClearUpdatesCurrent() {
	rows := a.updatesCurrent.Values()
	if len(rows) > 0 {
		a.crit.UpdateSamples(rows, a.yhatCurrent, a.yhatAtLastCritUpdate)
		for _, r := range rows {
			a.yhatAtLastCritUpdate[r] = a.yhatCurrent[r]
		}
	}
	a.updatesCurrent.Clear()
}

// Commit advances the committed snapshot to the current live state, over
// only the population rows touched since the last commit (spec.md §4.4).
func (a *Aggregator) Commit() {
	rows := a.updatesStored.Values()
	for _, i := range rows {
		a.yhatCommitted[i] = a.yhatCurrent[i]
		a.yhatAtLastCritUpdate[i] = a.yhatCurrent[i]
		if a.traits.NeedsSum {
			a.sumCommitted[i] = a.sumCurrent[i]
		}
		if a.traits.NeedsSumSq {
			a.sumSqCommitted[i] = a.sumSqCurrent[i]
		}
		if a.traits.NeedsSumCubed {
			a.sumCubedCommitted[i] = a.sumCubedCurrent[i]
		}
		if a.traits.NeedsCount {
			a.countCommitted[i] = a.countCurrent[i]
		}
		if a.traits.NeedsMatchPtr {
			a.extremumCommitted[i] = a.extremumCurrent[i]
		}
	}
	if a.traits.NeedsGrouping {
		for _, g := range a.touchedGroups.Values() {
			a.groupCountCommitted[g] = a.groupCountCurrent[g]
		}
		a.touchedGroups.Clear()
	}
	a.touched = make(map[int]bool)
	a.updatesStored.Clear()
	a.crit.Commit()
}

// RevertToCommit restores the live state to the last commit, over only the
// population rows touched since then, and flips back every match's
// Activated flag to its pre-change value (spec.md §4.4).
func (a *Aggregator) RevertToCommit() {
	rows := a.updatesStored.Values()
	for _, i := range rows {
		a.yhatCurrent[i] = a.yhatCommitted[i]
		a.yhatAtLastCritUpdate[i] = a.yhatCommitted[i]
		if a.traits.NeedsSum {
			a.sumCurrent[i] = a.sumCommitted[i]
		}
		if a.traits.NeedsSumSq {
			a.sumSqCurrent[i] = a.sumSqCommitted[i]
		}
		if a.traits.NeedsSumCubed {
			a.sumCubedCurrent[i] = a.sumCubedCommitted[i]
		}
		if a.traits.NeedsCount {
			a.countCurrent[i] = a.countCommitted[i]
		}
		if a.traits.NeedsMatchPtr {
			a.extremumCurrent[i] = a.extremumCommitted[i]
		}
	}
	if a.traits.NeedsGrouping {
		for _, g := range a.touchedGroups.Values() {
			a.groupCountCurrent[g] = a.groupCountCommitted[g]
		}
		a.touchedGroups.Clear()
	}
	for idx, orig := range a.touched {
		a.store.Match(idx).Activated = orig
	}
	a.touched = make(map[int]bool)
	a.updatesStored.Clear()
	a.updatesCurrent.Clear()
	a.crit.RevertToCommit()
}

// Reset zeroes every snapshot and clears all tracking state, returning the
// Aggregator to the state New would produce (minus the one-time null
// partition/sort, which is never redone).
func (a *Aggregator) Reset() {
	for i := range a.yhatCurrent {
		a.yhatCurrent[i], a.yhatStored[i], a.yhatCommitted[i], a.yhatAtLastCritUpdate[i] = 0, 0, 0, 0
	}
	if a.traits.NeedsSum {
		for i := range a.sumCurrent {
			a.sumCurrent[i], a.sumStored[i], a.sumCommitted[i] = 0, 0, 0
		}
	}
	if a.traits.NeedsSumSq {
		for i := range a.sumSqCurrent {
			a.sumSqCurrent[i], a.sumSqStored[i], a.sumSqCommitted[i] = 0, 0, 0
		}
	}
	if a.traits.NeedsSumCubed {
		for i := range a.sumCubedCurrent {
			a.sumCubedCurrent[i], a.sumCubedStored[i], a.sumCubedCommitted[i] = 0, 0, 0
		}
	}
	if a.traits.NeedsCount {
		for i := range a.countCurrent {
			a.countCurrent[i], a.countStored[i], a.countCommitted[i] = 0, 0, 0
		}
	}
	if a.traits.NeedsMatchPtr {
		for i := range a.extremumCurrent {
			a.extremumCurrent[i], a.extremumStored[i], a.extremumCommitted[i] = -1, -1, -1
		}
	}
	if a.traits.NeedsGrouping {
		for i := range a.groupCountCurrent {
			a.groupCountCurrent[i], a.groupCountCommitted[i] = 0, 0
		}
		a.touchedGroups.Clear()
	}
	a.touched = make(map[int]bool)
	a.updatesCurrent.Clear()
	a.updatesStored.Clear()
}

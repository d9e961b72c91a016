// Package splitsearch implements the C6 split enumerator: the component
// that, given a node's matches and a candidate column, drives an
// aggregate.Aggregator through every eligible split and records each
// candidate's criterion value, then picks the best (spec.md §4.6).
package splitsearch

import (
	"math"
	"math/rand"
	"sort"

	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/catindex"
	"github.com/relboost/engine/criterion"
	"github.com/relboost/engine/reldata"
)

// Candidate is one enumerated split: a column identity, a critical value
// (threshold, or category/word set), and the criterion storage index its
// effect was recorded at.
type Candidate struct {
	ColumnUsed    int
	DataUsed      int
	CriticalValue float64
	Categories    []int64
	StorageIx     int
}

// Config bounds how exhaustively a column is swept (spec.md §4.6).
type Config struct {
	GridFactor      float64 // grid size target is GridFactor * sqrt(n)
	ShareConditions float64 // fraction of candidate columns sampled per node
	MinSampleSize   int
	Seed            int64
}

// DefaultConfig mirrors the teacher's conservative split-search defaults.
func DefaultConfig() Config {
	return Config{GridFactor: 2.0, ShareConditions: 1.0, MinSampleSize: 1}
}

// NumericalOrder builds the canonical-index order, ascending by value, a
// numerical/discrete threshold sweep runs over.
func NumericalOrder(store *reldata.Store, r reldata.Range, valueOf func(m *reldata.Match) float64) []int {
	order := make([]int, 0, r.Len())
	for i := r.Begin; i < r.End; i++ {
		order = append(order, i)
	}
	sort.Slice(order, func(i, j int) bool {
		return valueOf(store.Match(order[i])) < valueOf(store.Match(order[j]))
	})
	return order
}

// NumericalOrderIndices is NumericalOrder's counterpart for a node whose
// owned matches are an explicit, possibly non-contiguous, index set —
// the shape every node below the tree's root owns, once a split has
// partitioned its parent's matches by which side of the condition they
// fell on (spec.md §4.6).
func NumericalOrderIndices(store *reldata.Store, indices []int, valueOf func(m *reldata.Match) float64) []int {
	order := append([]int(nil), indices...)
	sort.Slice(order, func(i, j int) bool {
		return valueOf(store.Match(order[i])) < valueOf(store.Match(order[j]))
	})
	return order
}

// Grid returns up to GridFactor*sqrt(n) (at least one) evenly spaced
// separator positions within [1, n-1], deduplicated and ascending, used to
// bound the number of thresholds a numerical sweep tests (spec.md §4.6's
// grid_factor*sqrt(n) rule).
func Grid(n int, cfg Config) []int {
	if n < 2 {
		return nil
	}
	target := int(cfg.GridFactor * math.Sqrt(float64(n)))
	if target < 1 {
		target = 1
	}
	if target >= n-1 {
		out := make([]int, n-1)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	seen := make(map[int]bool, target)
	out := make([]int, 0, target)
	step := float64(n-1) / float64(target+1)
	for k := 1; k <= target; k++ {
		sep := int(math.Round(float64(k) * step))
		if sep < 1 {
			sep = 1
		}
		if sep > n-1 {
			sep = n - 1
		}
		if !seen[sep] {
			seen[sep] = true
			out = append(out, sep)
		}
	}
	sort.Ints(out)
	return out
}

// SweepNumericalThreshold tries every separator in seps (ascending
// positions within order, each splitting order into a "below" partition
// order[:sep] and an "above" partition order[sep:]), recording the
// criterion with only the above partition activated — the "apply from
// above" candidate. Each candidate's CriticalValue is the value of
// order[sep-1], the largest value below the separator. The caller must
// enter with every match in order already activated (the node's committed
// baseline); this function restores that same state before returning,
// using only Activate/Deactivate — never Commit — so a node's permanent
// committed baseline is untouched by an unaccepted trial sweep. Starting
// fully activated and deactivating order's bottom partition one match at
// a time as sep increases makes total work across the whole sweep O(n),
// not O(n*len(seps)): every match crosses exactly one separator it hasn't
// already crossed.
func SweepNumericalThreshold(agg *aggregate.Aggregator, crit *criterion.Criterion, order []int, seps []int, valueAt func(canonicalIdx int) float64) []Candidate {
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()

	candidates := make([]Candidate, len(seps))
	cursor := 0
	for i, sep := range seps {
		for cursor < sep {
			agg.Deactivate(order[cursor])
			cursor++
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(sep, len(order)-sep)
		critVal := 0.0
		if sep > 0 {
			critVal = valueAt(order[sep-1])
		}
		candidates[i] = Candidate{CriticalValue: critVal, StorageIx: ix}
	}
	for cursor > 0 {
		cursor--
		agg.Activate(order[cursor])
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	return candidates
}

// SweepNumericalThresholdBelow is SweepNumericalThreshold's mirror image:
// it deactivates everything, activates order[:sep] (the "apply from
// below" partition) as sep grows, again O(n) total, then restores full
// activation before returning — the same no-Commit discipline, needed
// because the two sweep directions are not simply complementary for every
// aggregation kind (only SUM/COUNT are; AVG/VAR/MEDIAN/etc. are not), so
// spec.md §4.6 requires both be measured independently.
func SweepNumericalThresholdBelow(agg *aggregate.Aggregator, crit *criterion.Criterion, order []int, seps []int, valueAt func(canonicalIdx int) float64) []Candidate {
	for _, idx := range order {
		if agg.IsActivated(idx) {
			agg.Deactivate(idx)
		}
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()

	candidates := make([]Candidate, len(seps))
	cursor := 0
	for i, sep := range seps {
		for cursor < sep {
			agg.Activate(order[cursor])
			cursor++
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(sep, len(order)-sep)
		critVal := 0.0
		if sep > 0 {
			critVal = valueAt(order[sep-1])
		}
		candidates[i] = Candidate{CriticalValue: critVal, StorageIx: ix}
	}
	for cursor < len(order) {
		agg.Activate(order[cursor])
		cursor++
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	return candidates
}

// SweepCategorySingletons tests every category in idx independently from
// the current committed baseline (which must be the "nothing activated"
// state), recording one candidate per category — the "containing"
// direction spec.md §4.6 describes.
func SweepCategorySingletons(agg *aggregate.Aggregator, idx *catindex.CategoryIndex) []Candidate {
	cats := idx.Categories()
	stored := agg.ActivateMatchesContainingCategories(cats, aggregate.RevertAfterEachCategory, idx)
	out := make([]Candidate, len(cats))
	for k, c := range cats {
		out[k] = Candidate{Categories: []int64{c}, StorageIx: stored[k]}
	}
	return out
}

// SweepCategorySingletonsComplement is SweepCategorySingletons' mirror
// image (spec.md §4.4's "…_not_containing_categories, analogous"): the
// current committed baseline must be "everything activated", and each
// category's matches are deactivated rather than activated.
func SweepCategorySingletonsComplement(agg *aggregate.Aggregator, idx *catindex.CategoryIndex) []Candidate {
	cats := idx.Categories()
	stored := agg.ActivateMatchesNotContainingCategories(cats, aggregate.RevertAfterEachCategory, idx)
	out := make([]Candidate, len(cats))
	for k, c := range cats {
		out[k] = Candidate{Categories: []int64{c}, StorageIx: stored[k]}
	}
	return out
}

// SweepCategorySets ranks categories by their already-recorded singleton
// criterion value (descending), then tests each prefix of that ranking, up
// to and including the half-way point, as a single multi-category
// candidate, recording one candidate per prefix length — the "set split"
// construction spec.md §4.6 describes. Prefixes longer than half the
// ranked list are not tried. SweepCategorySetsComplement ranks by its own
// complement singletons, so its prefixes are not necessarily the
// complements of the longer prefixes skipped here. singletons must be the
// result of a prior
// SweepCategorySingletons call over the same idx, still valid in crit's
// storage buffer.
func SweepCategorySets(agg *aggregate.Aggregator, crit *criterion.Criterion, idx *catindex.CategoryIndex, singletons []Candidate) []Candidate {
	if len(singletons) == 0 {
		return nil
	}
	ranked := append([]Candidate(nil), singletons...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return crit.ValueAt(ranked[i].StorageIx) > crit.ValueAt(ranked[j].StorageIx)
	})

	limit := len(ranked) / 2
	out := make([]Candidate, 0, limit)
	prefix := make([]int64, 0, limit)
	for _, s := range ranked {
		if len(prefix) >= limit {
			break
		}
		code := s.Categories[0]
		prefix = append(prefix, code)
		agg.ActivateCategory(idx, code)
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(len(prefix), len(ranked)-len(prefix))
		out = append(out, Candidate{Categories: append([]int64(nil), prefix...), StorageIx: ix})
	}
	agg.RevertToCommit()
	return out
}

// SweepCategorySetsComplement is SweepCategorySets' mirror image: ranked
// by the complement singletons' own criterion value, it grows a prefix of
// *deactivated* categories from an "everything activated" committed
// baseline, again capped at half the ranked list. complementSingletons
// must be the result of a prior SweepCategorySingletonsComplement call
// over the same idx.
func SweepCategorySetsComplement(agg *aggregate.Aggregator, crit *criterion.Criterion, idx *catindex.CategoryIndex, complementSingletons []Candidate) []Candidate {
	if len(complementSingletons) == 0 {
		return nil
	}
	ranked := append([]Candidate(nil), complementSingletons...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return crit.ValueAt(ranked[i].StorageIx) > crit.ValueAt(ranked[j].StorageIx)
	})

	limit := len(ranked) / 2
	out := make([]Candidate, 0, limit)
	prefix := make([]int64, 0, limit)
	for _, s := range ranked {
		if len(prefix) >= limit {
			break
		}
		code := s.Categories[0]
		prefix = append(prefix, code)
		agg.DeactivateCategory(idx, code)
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(len(ranked)-len(prefix), len(prefix))
		out = append(out, Candidate{Categories: append([]int64(nil), prefix...), StorageIx: ix})
	}
	agg.RevertToCommit()
	return out
}

// SweepWordSingletons is SweepCategorySingletons' text-column analogue
// (spec.md §4.3/§4.4): the current committed baseline must be "nothing
// activated". Token ids are widened to int64 and carried in Candidate's
// Categories field, the same generic "selected code set" slot
// SweepCategorySingletons uses — a word-membership candidate and a
// category-membership candidate differ only in which index built them.
func SweepWordSingletons(agg *aggregate.Aggregator, idx *catindex.WordIndex) []Candidate {
	toks := idx.Tokens()
	stored := agg.ActivateMatchesContainingWords(toks, aggregate.RevertAfterEachCategory, idx)
	out := make([]Candidate, len(toks))
	for k, t := range toks {
		out[k] = Candidate{Categories: []int64{int64(t)}, StorageIx: stored[k]}
	}
	return out
}

// SweepWordSingletonsComplement is SweepWordSingletons' mirror image: the
// current committed baseline must be "everything activated".
func SweepWordSingletonsComplement(agg *aggregate.Aggregator, idx *catindex.WordIndex) []Candidate {
	toks := idx.Tokens()
	stored := agg.ActivateMatchesNotContainingWords(toks, aggregate.RevertAfterEachCategory, idx)
	out := make([]Candidate, len(toks))
	for k, t := range toks {
		out[k] = Candidate{Categories: []int64{int64(t)}, StorageIx: stored[k]}
	}
	return out
}

// SweepWordSets is SweepCategorySets' text-column analogue, capped at half
// the ranked token list in the same way.
func SweepWordSets(agg *aggregate.Aggregator, crit *criterion.Criterion, idx *catindex.WordIndex, singletons []Candidate) []Candidate {
	if len(singletons) == 0 {
		return nil
	}
	ranked := append([]Candidate(nil), singletons...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return crit.ValueAt(ranked[i].StorageIx) > crit.ValueAt(ranked[j].StorageIx)
	})

	limit := len(ranked) / 2
	out := make([]Candidate, 0, limit)
	prefix := make([]int64, 0, limit)
	for _, s := range ranked {
		if len(prefix) >= limit {
			break
		}
		tok := s.Categories[0]
		prefix = append(prefix, tok)
		agg.ActivateWord(idx, uint32(tok))
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(len(prefix), len(ranked)-len(prefix))
		out = append(out, Candidate{Categories: append([]int64(nil), prefix...), StorageIx: ix})
	}
	agg.RevertToCommit()
	return out
}

// SweepWordSetsComplement is SweepCategorySetsComplement's text-column
// analogue.
func SweepWordSetsComplement(agg *aggregate.Aggregator, crit *criterion.Criterion, idx *catindex.WordIndex, complementSingletons []Candidate) []Candidate {
	if len(complementSingletons) == 0 {
		return nil
	}
	ranked := append([]Candidate(nil), complementSingletons...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return crit.ValueAt(ranked[i].StorageIx) > crit.ValueAt(ranked[j].StorageIx)
	})

	limit := len(ranked) / 2
	out := make([]Candidate, 0, limit)
	prefix := make([]int64, 0, limit)
	for _, s := range ranked {
		if len(prefix) >= limit {
			break
		}
		tok := s.Categories[0]
		prefix = append(prefix, tok)
		agg.DeactivateWord(idx, uint32(tok))
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
		ix := crit.StoreCurrentStage(len(ranked)-len(prefix), len(prefix))
		out = append(out, Candidate{Categories: append([]int64(nil), prefix...), StorageIx: ix})
	}
	agg.RevertToCommit()
	return out
}

// BestCandidate returns the candidate with the highest recorded criterion
// value, ties resolved to the first-enumerated (lowest storage index)
// candidate, matching criterion.Criterion.FindMaximum's tie-break.
func BestCandidate(crit *criterion.Criterion, candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	bestVal := crit.ValueAt(best.StorageIx)
	for _, c := range candidates[1:] {
		v := crit.ValueAt(c.StorageIx)
		if v > bestVal {
			best, bestVal = c, v
		}
	}
	return best, true
}

// SampleColumns selects a share_conditions-sized, seeded subsample of
// candidate column indices to sweep at this node, matching spec.md §4.6's
// stochastic column subsampling (one per node, reused across every
// aggregation kind bound to a surviving column). The PRNG is stdlib
// math/rand rather than a pack dependency: no example repo exercises a
// seeded-permutation library, and this is the one place in the engine
// where a third-party source of randomness would have nothing concrete to
// add over math/rand.Perm (documented in DESIGN.md).
func SampleColumns(n int, cfg Config, seed int64) []int {
	if cfg.ShareConditions >= 1.0 || n == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	k := int(math.Ceil(cfg.ShareConditions * float64(n)))
	if k < 1 {
		k = 1
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	sel := append([]int(nil), perm[:k]...)
	sort.Ints(sel)
	return sel
}

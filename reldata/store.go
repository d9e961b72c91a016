package reldata

import (
	"math"
	"sort"
)

// Range is a half-open index range [Begin, End) into a Store's canonical
// match slice.
type Range struct {
	Begin, End int
}

// Len returns the number of matches in the range.
func (r Range) Len() int { return r.End - r.Begin }

// Store owns the contiguous sequence of Match produced by the matchmaker
// (C1, spec.md §4.1). It reorders matches in place (null partitioning,
// sorting) but never resizes the backing slice after construction, so a
// *Match obtained via Match(i) stays valid — and at the same logical row —
// for the lifetime of a node's fit, exactly as spec.md §4.1 requires.
type Store struct {
	matches []Match
}

// NewStore takes ownership of matches. Callers must not retain or mutate
// the slice afterward.
func NewStore(matches []Match) *Store {
	return &Store{matches: matches}
}

// Len returns the total number of matches.
func (s *Store) Len() int { return len(s.matches) }

// Full returns the range covering every match in the store.
func (s *Store) Full() Range { return Range{0, len(s.matches)} }

// Match returns a stable pointer to the match at canonical index i.
func (s *Store) Match(i int) *Match { return &s.matches[i] }

// Slice returns a read-only view of the matches in r, sharing the Store's
// backing array.
func (s *Store) Slice(r Range) []Match { return s.matches[r.Begin:r.End] }

func isNullMatch(m *Match) bool {
	return math.IsNaN(m.Value) || math.IsInf(m.Value, 0) ||
		math.IsNaN(m.SortKey) || math.IsInf(m.SortKey, 0)
}

// PartitionNullFront stably moves every null/inf-valued match in r to the
// front, deactivates them, and returns the separator: the first index of
// the non-null remainder. Matches before the separator are never
// reactivated (spec.md §3's "stable null separator" invariant).
func (s *Store) PartitionNullFront(r Range) int {
	sub := s.matches[r.Begin:r.End]
	nulls := make([]Match, 0, len(sub))
	rest := make([]Match, 0, len(sub))
	for i := range sub {
		if isNullMatch(&sub[i]) {
			nulls = append(nulls, sub[i])
		} else {
			rest = append(rest, sub[i])
		}
	}
	for i := range nulls {
		nulls[i].Activated = false
	}
	copy(sub, nulls)
	copy(sub[len(nulls):], rest)
	return r.Begin + len(nulls)
}

// SortForAggregation sorts r by (IxPopulation, SortKey, IxPeripheral)
// ascending. It is called once per aggregator construction for kinds whose
// running state needs a value-sorted per-population-row sub-range
// (MIN/MAX/FIRST/LAST/MEDIAN/COUNT DISTINCT/COUNT MINUS COUNT DISTINCT;
// spec.md §3). Callers must run PartitionNullFront first so the null
// prefix is excluded from the grouped region the sort establishes.
func (s *Store) SortForAggregation(r Range) {
	sub := s.matches[r.Begin:r.End]
	sort.Slice(sub, func(i, j int) bool {
		if sub[i].IxPopulation != sub[j].IxPopulation {
			return sub[i].IxPopulation < sub[j].IxPopulation
		}
		if sub[i].SortKey != sub[j].SortKey {
			return sub[i].SortKey < sub[j].SortKey
		}
		return sub[i].IxPeripheral < sub[j].IxPeripheral
	})
}

// RowRanges returns, for a range already passed through
// SortForAggregation, the contiguous [begin,end) canonical-index sub-range
// owned by each population row. Aggregation kinds that scan toward a
// neighbouring match (MIN/MAX/MEDIAN) use these bounds to assert the scan
// never crosses into another population row's matches.
func (s *Store) RowRanges(r Range) map[uint64]Range {
	out := make(map[uint64]Range)
	if r.Len() == 0 {
		return out
	}
	begin := r.Begin
	cur := s.matches[begin].IxPopulation
	for i := r.Begin + 1; i < r.End; i++ {
		if s.matches[i].IxPopulation != cur {
			out[cur] = Range{begin, i}
			begin = i
			cur = s.matches[i].IxPopulation
		}
	}
	out[cur] = Range{begin, r.End}
	return out
}

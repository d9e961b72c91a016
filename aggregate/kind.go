// Package aggregate implements the C4 aggregator: the incremental
// aggregation state machine that maintains, per population row, ŷ over the
// currently activated subset of its matches, with O(1) activate/deactivate
// and O(k) revert-to-commit (spec.md §4.4). This is the hottest of the
// core's hot paths; every exported method here is called inside the split
// enumerator's innermost sweep loop.
package aggregate

import "github.com/relboost/engine/relerr"

// Kind names one of the aggregation families spec.md §6 enumerates.
type Kind int

const (
	SUM Kind = iota
	COUNT
	AVG
	VAR
	STDDEV
	SKEWNESS
	MIN
	MAX
	FIRST
	LAST
	MEDIAN
	COUNTDISTINCT
	COUNTMINUSCOUNTDISTINCT
)

func (k Kind) String() string {
	switch k {
	case SUM:
		return "SUM"
	case COUNT:
		return "COUNT"
	case AVG:
		return "AVG"
	case VAR:
		return "VAR"
	case STDDEV:
		return "STDDEV"
	case SKEWNESS:
		return "SKEWNESS"
	case MIN:
		return "MIN"
	case MAX:
		return "MAX"
	case FIRST:
		return "FIRST"
	case LAST:
		return "LAST"
	case MEDIAN:
		return "MEDIAN"
	case COUNTDISTINCT:
		return "COUNT DISTINCT"
	case COUNTMINUSCOUNTDISTINCT:
		return "COUNT MINUS COUNT DISTINCT"
	default:
		return "UNKNOWN"
	}
}

var byName = map[string]Kind{
	"AVG":                        AVG,
	"COUNT":                      COUNT,
	"COUNT DISTINCT":             COUNTDISTINCT,
	"COUNT MINUS COUNT DISTINCT": COUNTMINUSCOUNTDISTINCT,
	"FIRST":                      FIRST,
	"LAST":                       LAST,
	"MAX":                        MAX,
	"MEDIAN":                     MEDIAN,
	"MIN":                        MIN,
	"SKEWNESS":                   SKEWNESS,
	"STDDEV":                     STDDEV,
	"SUM":                        SUM,
	"VAR":                        VAR,
}

// ParseKind resolves an aggregation-kind name to its Kind, or raises
// relerr.ErrUnknownAggregationKind — a configuration error surfaced at
// construction time, per spec.md §7.
func ParseKind(name string) (Kind, error) {
	k, ok := byName[name]
	if !ok {
		return 0, relerr.ErrUnknownAggregationKind.New(name)
	}
	return k, nil
}

// Traits are the per-kind static flags spec.md §4.4 calls "the single
// source of truth" for which running statistics an aggregator of this kind
// must maintain, and which ones commit/revert/reset must touch.
type Traits struct {
	NeedsCount     bool
	NeedsSum       bool
	NeedsSumSq     bool
	NeedsSumCubed  bool
	NeedsSorting   bool
	NeedsMatchPtr  bool
	NeedsAltered   bool
	NeedsGrouping  bool // count-distinct family: same-value grouping for O(1) duplicate checks
}

// TraitsFor returns the static traits for k.
func TraitsFor(k Kind) Traits {
	switch k {
	case SUM, COUNT:
		return Traits{}
	case AVG:
		return Traits{NeedsCount: true, NeedsSum: true}
	case VAR, STDDEV:
		return Traits{NeedsCount: true, NeedsSum: true, NeedsSumSq: true}
	case SKEWNESS:
		return Traits{NeedsCount: true, NeedsSum: true, NeedsSumSq: true, NeedsSumCubed: true}
	case MIN, MAX, FIRST, LAST:
		return Traits{NeedsCount: true, NeedsSorting: true, NeedsMatchPtr: true, NeedsAltered: true}
	case MEDIAN:
		return Traits{NeedsCount: true, NeedsSorting: true, NeedsMatchPtr: true, NeedsAltered: true}
	case COUNTDISTINCT, COUNTMINUSCOUNTDISTINCT:
		return Traits{NeedsSorting: true, NeedsAltered: true, NeedsGrouping: true}
	default:
		return Traits{}
	}
}

// RevertPolicy selects the rollback discipline a categorical/word sweep
// uses between candidates (spec.md §4.4).
type RevertPolicy int

const (
	RevertNotAtAll RevertPolicy = iota
	RevertAfterEachCategory
	RevertAfterAllCategories
)

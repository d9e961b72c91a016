// Package catindex implements the C3 category/word indices: auxiliary
// structures that, given a category code or token id, enumerate the
// matches holding it in sub-linear time, used to drive categorical and
// text-membership splits (spec.md §4.3). Both indices are backed by
// github.com/google/btree so that Categories()/Tokens() iterate in
// ascending-code order — the deterministic, rank-stable column/category
// enumeration order spec.md §5 requires across worker ranks.
package catindex

import (
	"github.com/google/btree"

	"github.com/relboost/engine/reldata"
)

type bucket struct {
	code    int64
	matches []int
}

func (b *bucket) Less(than btree.Item) bool { return b.code < than.(*bucket).code }

// CategoryIndex maps a categorical code to the canonical match-store
// indices holding that code, rebuilt fresh per (column, node) split
// search as spec.md §4.3 requires.
type CategoryIndex struct {
	tree   *btree.BTree
	byCode map[int64]*bucket
}

// BuildCategoryIndex scans matches in r and buckets them by categoryOf(m).
func BuildCategoryIndex(store *reldata.Store, r reldata.Range, categoryOf func(m *reldata.Match) int64) *CategoryIndex {
	idx := &CategoryIndex{tree: btree.New(32), byCode: make(map[int64]*bucket)}
	for i := r.Begin; i < r.End; i++ {
		code := categoryOf(store.Match(i))
		b, ok := idx.byCode[code]
		if !ok {
			b = &bucket{code: code}
			idx.byCode[code] = b
			idx.tree.ReplaceOrInsert(b)
		}
		b.matches = append(b.matches, i)
	}
	return idx
}

// BuildCategoryIndexFromIndices is BuildCategoryIndex's counterpart for a
// node whose owned matches are a non-contiguous subset of the store,
// produced by an ancestor's split rather than a fresh contiguous range.
func BuildCategoryIndexFromIndices(store *reldata.Store, indices []int, categoryOf func(m *reldata.Match) int64) *CategoryIndex {
	idx := &CategoryIndex{tree: btree.New(32), byCode: make(map[int64]*bucket)}
	for _, i := range indices {
		code := categoryOf(store.Match(i))
		b, ok := idx.byCode[code]
		if !ok {
			b = &bucket{code: code}
			idx.byCode[code] = b
			idx.tree.ReplaceOrInsert(b)
		}
		b.matches = append(b.matches, i)
	}
	return idx
}

// Categories returns every category code present in the index, ascending.
func (c *CategoryIndex) Categories() []int64 {
	out := make([]int64, 0, c.tree.Len())
	c.tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(*bucket).code)
		return true
	})
	return out
}

// Matches returns the canonical match-store indices holding code, or nil
// if code is absent from the index.
func (c *CategoryIndex) Matches(code int64) []int {
	b, ok := c.byCode[code]
	if !ok {
		return nil
	}
	return b.matches
}

// Len returns the number of distinct categories indexed.
func (c *CategoryIndex) Len() int { return c.tree.Len() }

// AllMatches returns every canonical index covered by the index, used by
// activate_all over the universe of matches the index was built from.
func (c *CategoryIndex) AllMatches() []int {
	out := make([]int, 0, len(c.byCode))
	c.tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(*bucket).matches...)
		return true
	})
	return out
}

type wordBucket struct {
	token   uint32
	matches []int
}

func (b *wordBucket) Less(than btree.Item) bool { return b.token < than.(*wordBucket).token }

// WordIndex is the text-column analogue of CategoryIndex, mapping a token
// id to the matches whose peripheral row's bag of words contains it. A
// single match may appear under several tokens.
type WordIndex struct {
	tree    *btree.BTree
	byToken map[uint32]*wordBucket
}

// BuildWordIndex scans matches in r and, for each, looks up its token bag
// via tokensOf, bucketing the match under every token it contains.
func BuildWordIndex(store *reldata.Store, r reldata.Range, tokensOf func(m *reldata.Match) []uint32) *WordIndex {
	idx := &WordIndex{tree: btree.New(32), byToken: make(map[uint32]*wordBucket)}
	for i := r.Begin; i < r.End; i++ {
		for _, tok := range tokensOf(store.Match(i)) {
			b, ok := idx.byToken[tok]
			if !ok {
				b = &wordBucket{token: tok}
				idx.byToken[tok] = b
				idx.tree.ReplaceOrInsert(b)
			}
			b.matches = append(b.matches, i)
		}
	}
	return idx
}

// BuildWordIndexFromIndices is BuildWordIndex's counterpart for a node
// whose owned matches are a non-contiguous subset of the store, produced
// by an ancestor's split rather than a fresh contiguous range — the
// text-column analogue of BuildCategoryIndexFromIndices.
func BuildWordIndexFromIndices(store *reldata.Store, indices []int, tokensOf func(m *reldata.Match) []uint32) *WordIndex {
	idx := &WordIndex{tree: btree.New(32), byToken: make(map[uint32]*wordBucket)}
	for _, i := range indices {
		for _, tok := range tokensOf(store.Match(i)) {
			b, ok := idx.byToken[tok]
			if !ok {
				b = &wordBucket{token: tok}
				idx.byToken[tok] = b
				idx.tree.ReplaceOrInsert(b)
			}
			b.matches = append(b.matches, i)
		}
	}
	return idx
}

// AllMatches returns every canonical index covered by the index, with
// duplicates removed — a match may be bucketed under several tokens —
// used by activate_all over the universe of matches the index was built
// from.
func (w *WordIndex) AllMatches() []int {
	seen := make(map[int]bool)
	out := make([]int, 0, len(w.byToken))
	w.tree.Ascend(func(it btree.Item) bool {
		for _, m := range it.(*wordBucket).matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
		return true
	})
	return out
}

// Tokens returns every token id present in the index, ascending.
func (w *WordIndex) Tokens() []uint32 {
	out := make([]uint32, 0, w.tree.Len())
	w.tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(*wordBucket).token)
		return true
	})
	return out
}

// Matches returns the canonical match-store indices whose bag of words
// contains token.
func (w *WordIndex) Matches(token uint32) []int {
	b, ok := w.byToken[token]
	if !ok {
		return nil
	}
	return b.matches
}

// Len returns the number of distinct tokens indexed.
func (w *WordIndex) Len() int { return w.tree.Len() }

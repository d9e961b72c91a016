package ensemble

import (
	"io"

	"gopkg.in/yaml.v2"

	"github.com/relboost/engine/tree"
)

// Hyperparameters holds every tuning knob spec.md §6 lists, plus the
// ensemble-level knobs (§4.8) that sit above a single tree's Config:
// how many trees to fit and, for the boosting variant, the learning rate
// each tree's feature is folded into the shared residual at.
type Hyperparameters struct {
	MaxDepth        int     `yaml:"max_depth"`
	MinNumSamples   int     `yaml:"min_num_samples"`
	GridFactor      float64 `yaml:"grid_factor"`
	ShareConditions float64 `yaml:"share_conditions"`
	Regularization  float64 `yaml:"regularisation"`
	AllowSets       bool    `yaml:"allow_sets"`
	RandomSeed      int64   `yaml:"random_seed"`

	NumTrees     int     `yaml:"num_trees"`
	LearningRate float64 `yaml:"learning_rate"`
}

// DefaultHyperparameters mirrors tree.DefaultConfig's conservative choices,
// extended with the ensemble-level defaults (one tree, no boosting fold).
func DefaultHyperparameters() *Hyperparameters {
	tc := tree.DefaultConfig()
	return &Hyperparameters{
		MaxDepth:        tc.MaxDepth,
		MinNumSamples:   tc.MinNumSamples,
		GridFactor:      tc.GridFactor,
		ShareConditions: tc.ShareConditions,
		Regularization:  tc.Regularization,
		AllowSets:       tc.AllowSets,
		RandomSeed:      tc.RandomSeed,
		NumTrees:        1,
		LearningRate:    1.0,
	}
}

// LoadHyperparameters parses a YAML document into a Hyperparameters value,
// substituting DefaultHyperparameters() for each numeric field left at
// zero other than regularisation — the same substitution pattern sqle.New
// applies to a nil/zero *Config (engine.go), just field-by-field instead
// of whole-struct. allow_sets is not substituted, so a document that omits
// it yields false.
func LoadHyperparameters(r io.Reader) (*Hyperparameters, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	h := &Hyperparameters{}
	if err := yaml.Unmarshal(data, h); err != nil {
		return nil, err
	}
	h.applyDefaults()
	return h, nil
}

func (h *Hyperparameters) applyDefaults() {
	d := DefaultHyperparameters()
	if h.MaxDepth == 0 {
		h.MaxDepth = d.MaxDepth
	}
	if h.MinNumSamples == 0 {
		h.MinNumSamples = d.MinNumSamples
	}
	if h.GridFactor == 0 {
		h.GridFactor = d.GridFactor
	}
	if h.ShareConditions == 0 {
		h.ShareConditions = d.ShareConditions
	}
	if h.RandomSeed == 0 {
		h.RandomSeed = d.RandomSeed
	}
	if h.NumTrees == 0 {
		h.NumTrees = d.NumTrees
	}
	if h.LearningRate == 0 {
		h.LearningRate = d.LearningRate
	}
}

// TreeConfig projects the tree-level subset of h into a tree.Config, the
// form tree.Node.FitAsRoot expects. seed is offset by the tree's position
// in the ensemble so successive trees sample different candidate columns
// (spec.md §4.8's "fixed lexical sequence seeded by a pseudo-random
// generator" requirement).
func (h *Hyperparameters) TreeConfig(treeIndex int) tree.Config {
	return tree.Config{
		MaxDepth:        h.MaxDepth,
		MinNumSamples:   h.MinNumSamples,
		GridFactor:      h.GridFactor,
		ShareConditions: h.ShareConditions,
		Regularization:  h.Regularization,
		AllowSets:       h.AllowSets,
		RandomSeed:      h.RandomSeed + int64(treeIndex),
	}
}

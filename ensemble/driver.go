// Package ensemble implements the C8 tree-ensemble driver: the component
// that loops over peripheral tables and aggregation kinds, instantiates
// trees, records column importances, and emits the per-population-row
// feature vector spec.md §4.8 describes. It is intentionally thin — a
// marshalling layer over C4/C5/C6/C7 — and owns none of their algorithms.
package ensemble

import (
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/criterion"
	"github.com/relboost/engine/internal/rlog"
	"github.com/relboost/engine/reduce"
	"github.com/relboost/engine/reldata"
	"github.com/relboost/engine/tree"
)

// FitJob names one (peripheral table, aggregation kind, column-to-be-
// aggregated) triple: a single tree's worth of work (spec.md §4.8).
type FitJob struct {
	Table           string
	Kind            aggregate.Kind
	ColumnName      string
	ValueProvider   reldata.Provider
	SortKeyProvider reldata.Provider // nil unless Kind is FIRST/LAST
	Columns         []tree.ColumnSpec
	NPop            int
}

// Result is one job's completed fit: every tree grown (one per boosting
// round), each tree's own emitted feature, and their learning-rate-folded
// combination.
type Result struct {
	RunID      string
	Trees      []*tree.Node
	Features   [][]float64
	Prediction []float64
}

// Driver owns the hyperparameters, auditor and importance tracker shared
// across every job it fits (spec.md §4.8's "reuses the match store and
// aggregator across trees where the data model allows" — here, across
// boosting rounds of the same job, since each round needs its own
// Aggregator/Criterion bound to the updated residual target).
type Driver struct {
	Hyperparameters *Hyperparameters
	Auditor         FitAuditor
	Importance      *ImportanceTracker
	Reducer         reduce.Reducer
}

// NewDriver returns a Driver with the given hyperparameters (nil substitutes
// DefaultHyperparameters, mirroring sqle.New's nil-Config handling) and a
// fresh log auditor / importance tracker. Fields may be overwritten before
// the first Fit call to swap in a different auditor or reducer.
func NewDriver(h *Hyperparameters) *Driver {
	if h == nil {
		h = DefaultHyperparameters()
	}
	return &Driver{
		Hyperparameters: h,
		Auditor:         NewLogAuditor(rlog.For("ensemble").Logger),
		Importance:      NewImportanceTracker(),
		Reducer:         reduce.Local{},
	}
}

// Fit runs job.NPop-sized target through one tree (or, when
// Hyperparameters.NumTrees > 1, a boosting sequence of trees whose features
// fold into a shared residual via the learning rate) and returns every
// tree fit plus the ensemble's combined prediction (spec.md §4.8).
func (d *Driver) Fit(store *reldata.Store, r reldata.Range, job FitJob, target []float64) (*Result, error) {
	if err := validateFitJob(job); err != nil {
		return nil, err
	}

	runUUID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "ensemble: generating run id")
	}
	runID := runUUID.String()
	span := opentracing.GlobalTracer().StartSpan("ensemble.Fit",
		opentracing.Tag{Key: "table", Value: job.Table},
		opentracing.Tag{Key: "kind", Value: job.Kind.String()},
		opentracing.Tag{Key: "column", Value: job.ColumnName},
		opentracing.Tag{Key: "run_id", Value: runID},
	)
	defer span.Finish()

	aggregate.PopulateValues(store, r, job.ValueProvider, job.SortKeyProvider)

	residual := append([]float64(nil), target...)
	prediction := make([]float64, job.NPop)

	h := d.Hyperparameters
	res := &Result{RunID: runID}

	log := rlog.For("ensemble")
	for b := 0; b < h.NumTrees; b++ {
		start := time.Now()

		crit := criterion.NewSquareLoss(residual)
		agg := aggregate.New(job.Kind, store, r, job.NPop, crit)
		root := &tree.Node{}

		observe := func(spec tree.ColumnSpec, gain float64, accepted bool) {
			ref := ColumnRef{Table: job.Table, Name: spec.Name, DataUsed: spec.DataUsed, ColumnUsed: spec.ColumnUsed}
			if accepted {
				d.Importance.Observe(ref, gain)
				return
			}
			d.Auditor.SplitRejected(SplitRejectInfo{RunID: runID, Table: job.Table, Column: spec.Name, Gain: gain})
		}

		root.FitAsRoot(agg, crit, store, r, job.Columns, h.TreeConfig(b), d.Reducer, observe)

		feature := append([]float64(nil), agg.YHat()...)
		for i := range residual {
			contribution := h.LearningRate * feature[i]
			prediction[i] += contribution
			residual[i] -= contribution
		}

		res.Trees = append(res.Trees, root)
		res.Features = append(res.Features, feature)

		d.Auditor.TreeFitted(TreeFitInfo{
			RunID:        runID,
			TreeIndex:    b,
			Table:        job.Table,
			Kind:         job.Kind.String(),
			Column:       job.ColumnName,
			DepthReached: maxDepth(root),
			Duration:     time.Since(start),
		})
		log.WithFields(map[string]interface{}{
			"tree_index": b, "table": job.Table, "kind": job.Kind.String(), "column": job.ColumnName,
		}).Debug("boosting round complete")
	}

	res.Prediction = prediction
	return res, nil
}

// Transform replays every tree in trees (in the order Fit produced them)
// over a fresh match range, folding each tree's feature into the combined
// prediction at the same learning rate Fit used.
func (d *Driver) Transform(store *reldata.Store, r reldata.Range, job FitJob, trees []*tree.Node) ([]float64, error) {
	if len(trees) == 0 {
		return nil, errors.New("ensemble: Transform called with no trees")
	}
	aggregate.PopulateValues(store, r, job.ValueProvider, job.SortKeyProvider)

	prediction := make([]float64, job.NPop)
	h := d.Hyperparameters
	for _, root := range trees {
		crit := criterion.NewSquareLoss(make([]float64, job.NPop))
		agg := aggregate.New(job.Kind, store, r, job.NPop, crit)
		root.TransformAsRoot(agg, store, r, job.Columns)
		for i, v := range agg.YHat() {
			prediction[i] += h.LearningRate * v
		}
	}
	return prediction, nil
}

func maxDepth(n *tree.Node) int {
	if n == nil || n.IsLeaf {
		return 0
	}
	g, s := maxDepth(n.ChildGreater), maxDepth(n.ChildSmaller)
	if g > s {
		return g + 1
	}
	return s + 1
}

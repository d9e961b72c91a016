// Command relfeatures is a thin demonstration CLI over the engine: it
// builds a toy population/peripheral pair in memory, fits a boosted
// ensemble of trees against a target, and prints the resulting feature
// vector and column-importance map. It is not a server and does not read
// or write any external data format; the surrounding pipeline (data
// loading, persistence, scoring service) is out of scope here just as it
// is for the library itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/ensemble"
	"github.com/relboost/engine/reldata"
	"github.com/relboost/engine/tree"
)

var (
	numTrees     int
	learningRate float64
	maxDepth     int
)

func main() {
	root := &cobra.Command{
		Use:   "relfeatures",
		Short: "Fit and transform a toy relational feature-engineering example",
	}

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a boosted tree ensemble over an in-memory toy dataset and print its feature vector",
		RunE:  runFit,
	}
	fitCmd.Flags().IntVar(&numTrees, "num-trees", 3, "number of boosting rounds")
	fitCmd.Flags().Float64Var(&learningRate, "learning-rate", 0.3, "boosting learning rate")
	fitCmd.Flags().IntVar(&maxDepth, "max-depth", 3, "maximum tree depth")

	root.AddCommand(fitCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// toyDataset builds four population rows ("customers"), each matched to
// two or three peripheral rows ("orders"). "amount" is the peripheral
// column SUM aggregates and "age" is the column available to the split
// search.
func toyDataset() (store *reldata.Store, r reldata.Range, job ensemble.FitJob, target []float64) {
	amounts := floatValues(12, 45, 30, 9, 60, 15, 20, 5, 8, 90)
	ages := floatValues(22, 41, 35, 19, 52, 28, 44, 23, 20, 61)
	pops := []uint64{0, 0, 0, 1, 1, 2, 2, 2, 3, 3}

	amount, err := reldata.NewColumn("amount", reldata.KindNumerical, amounts)
	if err != nil {
		panic(err)
	}
	age, err := reldata.NewColumn("age", reldata.KindNumerical, ages)
	if err != nil {
		panic(err)
	}

	matches := make([]reldata.Match, len(pops))
	for i, p := range pops {
		matches[i] = reldata.Match{IxPeripheral: uint64(i), IxPopulation: p}
	}
	store = reldata.NewStore(matches)
	r = store.Full()

	columns := []tree.ColumnSpec{
		{DataUsed: tree.PeripheralNumerical, ColumnUsed: 0, Kind: tree.KindNumerical,
			Provider: reldata.PeripheralNumerical{Col: age}, Name: "age"},
	}

	job = ensemble.FitJob{
		Table:         "orders",
		Kind:          aggregate.SUM,
		ColumnName:    "amount",
		ValueProvider: reldata.PeripheralNumerical{Col: amount},
		Columns:       columns,
		NPop:          4,
	}
	target = []float64{57, 75, 40, 95}
	return store, r, job, target
}

func floatValues(vs ...float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func runFit(cmd *cobra.Command, args []string) error {
	store, r, job, target := toyDataset()

	h := ensemble.DefaultHyperparameters()
	h.NumTrees = numTrees
	h.LearningRate = learningRate
	h.MaxDepth = maxDepth
	h.Regularization = 0

	driver := ensemble.NewDriver(h)
	res, err := driver.Fit(store, r, job, target)
	if err != nil {
		return err
	}

	fmt.Printf("run %s fit %d tree(s)\n", res.RunID, len(res.Trees))
	fmt.Println("prediction:", res.Prediction)
	for i, feature := range res.Features {
		fmt.Printf("tree %d feature: %v\n", i, feature)
	}

	fmt.Println("column importance:")
	for ref, share := range driver.Importance.Normalized() {
		fmt.Printf("  %s.%s: %.4f\n", ref.Table, ref.Name, share)
	}
	return nil
}

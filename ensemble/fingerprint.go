package ensemble

import "github.com/mitchellh/hashstructure"

// fingerprintInput is the stable, hashable projection of a fit run's
// configuration: its hyperparameters plus the schema signature (peripheral
// table name, aggregation kind, column name) the tree was fit against.
type fingerprintInput struct {
	Hyperparameters Hyperparameters
	Table           string
	Kind            string
	Column          string
}

// FitFingerprint hashes a tree fit's hyperparameters and schema signature
// into a stable run id via mitchellh/hashstructure (SPEC_FULL.md §11):
// computing this is an ambient driver concern even though spec.md §1 places
// fingerprint *persistence* out of scope.
func FitFingerprint(h Hyperparameters, table, kind, column string) (uint64, error) {
	return hashstructure.Hash(fingerprintInput{
		Hyperparameters: h,
		Table:           table,
		Kind:            kind,
		Column:          column,
	}, nil)
}

package ensemble

import (
	"time"

	"github.com/sirupsen/logrus"
)

// TreeFitInfo summarises one completed tree fit, the unit of work
// FitAuditor.TreeFitted logs (spec.md §4.8's "one structured line per tree
// fit").
type TreeFitInfo struct {
	RunID       string
	TreeIndex   int
	Table       string
	Kind        string
	Column      string
	DepthReached int
	Duration    time.Duration
}

// SplitRejectInfo summarises a node whose best candidate failed the
// regularisation+epsilon acceptance check and was left a leaf.
type SplitRejectInfo struct {
	RunID  string
	Table  string
	Column string
	Gain   float64
}

// FitAuditor is the structural analogue of auth.AuditMethod: a narrow
// interface the driver calls into after each tree fit and each rejected
// split, independent of whatever sink is wired behind it.
type FitAuditor interface {
	TreeFitted(info TreeFitInfo)
	SplitRejected(info SplitRejectInfo)
}

// NewLogAuditor returns a FitAuditor that logs to l, built the same way
// auth.NewAuditLog wraps a *logrus.Logger into a component-scoped entry.
func NewLogAuditor(l *logrus.Logger) FitAuditor {
	return &logAuditor{log: l.WithField("component", "ensemble")}
}

const fitAuditMessage = "tree fitted"
const rejectAuditMessage = "split rejected"

type logAuditor struct {
	log *logrus.Entry
}

// TreeFitted implements FitAuditor.
func (a *logAuditor) TreeFitted(info TreeFitInfo) {
	a.log.WithFields(logrus.Fields{
		"run_id":        info.RunID,
		"tree_index":    info.TreeIndex,
		"table":         info.Table,
		"kind":          info.Kind,
		"column":        info.Column,
		"depth_reached": info.DepthReached,
		"duration":      info.Duration,
	}).Info(fitAuditMessage)
}

// SplitRejected implements FitAuditor.
func (a *logAuditor) SplitRejected(info SplitRejectInfo) {
	a.log.WithFields(logrus.Fields{
		"run_id": info.RunID,
		"table":  info.Table,
		"column": info.Column,
		"gain":   info.Gain,
	}).Debug(rejectAuditMessage)
}

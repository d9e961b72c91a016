// Package rlog centralizes logrus setup for the engine, the way
// auth.NewAuditLog wraps a *logrus.Logger into a component-scoped
// *logrus.Entry. Every package that logs does so through For(component),
// never by holding the global logrus logger directly, so a caller can
// swap the sink (formatter, level, output) in one place.
package rlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

// For returns a *logrus.Entry tagged with the given component name, e.g.
// rlog.For("ensemble").WithField("tree", id).Info("fit complete").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetLevel adjusts the verbosity of every component logger. Fit drivers
// typically call this once at startup from their embedding pipeline.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// SetOutput redirects every component logger's writer.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

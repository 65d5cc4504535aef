package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/inferkit"
)

var _ inferkit.Logger = Logrus{}

type Logrus struct{ E *logrus.Entry }

// New wraps l, tagging every line with component.
func New(l *logrus.Logger, component string) Logrus {
	e := logrus.NewEntry(l)
	if component != "" {
		e = e.WithField("component", component)
	}
	return Logrus{E: e}
}

func (l Logrus) Debug(msg string, f inferkit.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logrus) Info(msg string, f inferkit.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logrus) Warn(msg string, f inferkit.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logrus) Error(msg string, f inferkit.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

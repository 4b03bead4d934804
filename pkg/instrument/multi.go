package instrument

import (
	"time"

	"github.com/ripplekit/ripple"
)

// Multi fans observer callbacks out to several observers in order. A graph
// carries at most one observer, so Multi is how metrics and tracing attach
// together:
//
//	g := ripple.NewGraph(ripple.WithObserver(
//	    instrument.Multi(instrument.NewMetrics(), instrument.NewTracing()),
//	))
func Multi(obs ...ripple.Observer) ripple.Observer {
	return multi(obs)
}

type multi []ripple.Observer

func (m multi) SourceWrite() {
	for _, o := range m {
		o.SourceWrite()
	}
}

func (m multi) Recompute(err error) {
	for _, o := range m {
		o.Recompute(err)
	}
}

func (m multi) Notify(err error) {
	for _, o := range m {
		o.Notify(err)
	}
}

func (m multi) Flush(effects int, elapsed time.Duration) {
	for _, o := range m {
		o.Flush(effects, elapsed)
	}
}

package schedule

import (
	"time"
)

// minWait keeps a cron cadence from spinning when the next activation is
// (or rounds to) now.
const minWait = time.Second

// Cadence yields the pause between watch iterations. Both kinds use the same
// pause whether or not the previous iteration failed.
type Cadence struct {
	spec Spec
	loc  *time.Location
}

// Every returns a fixed-interval cadence.
func Every(d time.Duration) Cadence {
	return Cadence{spec: Spec{Kind: KindInterval, Every: d, Source: "duration"}}
}

// NewCadence builds the cadence for spec. Cron activations are computed in loc
// (nil means time.Local).
func NewCadence(spec Spec, loc *time.Location) Cadence {
	if spec.Kind == KindCron && spec.sched == nil {
		if parsed, err := parseCron(spec.Cron); err == nil {
			spec = parsed
		}
	}
	return Cadence{spec: spec, loc: loc}
}

// Next returns how long to sleep after an iteration that finished at now.
func (c Cadence) Next(now time.Time) time.Duration {
	if c.spec.Kind == KindCron && c.spec.sched != nil {
		loc := c.loc
		if loc == nil {
			loc = time.Local
		}
		d := c.spec.sched.Next(now.In(loc)).Sub(now)
		if d < minWait {
			return minWait
		}
		return d
	}
	if c.spec.Every <= 0 {
		return minWait
	}
	return c.spec.Every
}

// String describes the cadence for logs.
func (c Cadence) String() string {
	if c.spec.Kind == KindCron {
		return "cron " + c.spec.Cron
	}
	return "every " + c.spec.Every.String()
}

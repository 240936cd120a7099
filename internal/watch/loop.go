package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"statusbot/internal/storage"
	logx "statusbot/pkg/logx"
)

// DefaultInterval is the pause between iterations when no cadence is configured.
const DefaultInterval = 600 * time.Second

// Settings are the hot-reloadable knobs of the loop.
type Settings struct {
	Fields   Fields
	Verdicts map[string]string
	Cadence  Cadence

	// HoldCursorOnDeliveryFailure keeps the cursor in place when the status
	// notification produced by an iteration could not be delivered.
	HoldCursorOnDeliveryFailure bool
}

// Options are the fixed collaborators of the loop.
type Options struct {
	Source   Source
	Notifier Notifier
	Clock    Clock
	// Store is optional; nil keeps state in memory for the process lifetime.
	Store StateStore
	Log   logx.Logger
	// OnTick, if set, observes every completed iteration.
	OnTick func(Outcome)
}

type runtimeSettings struct {
	fields  Fields
	interp  *Interpreter
	cadence Cadence
	hold    bool
}

type fixedCadence time.Duration

func (c fixedCadence) Next(time.Time) time.Duration { return time.Duration(c) }

// Loop owns the cursor and the last delivered message and drives
// fetch -> validate -> interpret -> notify on a cadence.
//
// Iterations run on a single goroutine. Apply may be called concurrently.
type Loop struct {
	source   Source
	notifier Notifier
	clock    Clock
	store    StateStore
	log      logx.Logger
	onTick   func(Outcome)

	settings atomic.Pointer[runtimeSettings]

	cursor      int64
	lastMessage string
}

// New builds a loop whose cursor starts at the clock's current time.
func New(opts Options, s Settings) (*Loop, error) {
	if opts.Source == nil {
		return nil, errors.New("watch: source is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("watch: notifier is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	l := &Loop{
		source:   opts.Source,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		store:    opts.Store,
		log:      opts.Log,
		onTick:   opts.OnTick,
		cursor:   opts.Clock.Now().Unix(),
	}
	if err := l.Apply(s); err != nil {
		return nil, err
	}
	return l, nil
}

// Apply swaps verdicts, wire fields and cadence; it takes effect on the next iteration.
func (l *Loop) Apply(s Settings) error {
	if len(s.Verdicts) == 0 {
		return errors.New("watch: at least one verdict is required")
	}
	c := s.Cadence
	if c == nil {
		c = fixedCadence(DefaultInterval)
	}
	l.settings.Store(&runtimeSettings{
		fields:  s.Fields.withDefaults(),
		interp:  NewInterpreter(s.Verdicts),
		cadence: c,
		hold:    s.HoldCursorOnDeliveryFailure,
	})
	return nil
}

// Cursor returns the current cursor. Not safe to call while an iteration runs.
func (l *Loop) Cursor() int64 { return l.cursor }

// LastMessage returns the last delivered text. Not safe to call while an iteration runs.
func (l *Loop) LastMessage() string { return l.lastMessage }

// Restore loads persisted state, if a store is configured and holds any.
// A persisted cursor replaces the startup cursor so changes made while the
// process was down are still reported.
func (l *Loop) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	st, ok, err := l.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if st.Cursor > 0 {
		l.cursor = st.Cursor
	}
	l.lastMessage = st.LastMessage
	l.log.Info("state restored",
		logx.Int64("cursor", l.cursor),
		logx.Bool("has_last_message", l.lastMessage != ""),
		logx.Time("saved_at", st.UpdatedAt),
	)
	return nil
}

// Run repeats Tick until ctx is done. Cancellation is only observed between
// iterations: an iteration in flight always completes.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("watch loop started", logx.Int64("cursor", l.cursor))
	for {
		if ctx.Err() != nil {
			l.log.Info("watch loop stopped", logx.Int64("cursor", l.cursor))
			return nil
		}

		out := l.Tick(context.WithoutCancel(ctx))
		if l.onTick != nil {
			l.onTick(out)
		}

		wait := l.settings.Load().cadence.Next(l.clock.Now())
		l.log.Debug("sleeping", logx.Duration("wait", wait))
		if err := l.clock.Sleep(ctx, wait); err != nil {
			l.log.Info("watch loop stopped", logx.Int64("cursor", l.cursor))
			return nil
		}
	}
}

// Tick performs exactly one iteration without sleeping.
func (l *Loop) Tick(ctx context.Context) Outcome {
	rs := l.settings.Load()
	prevCursor, prevMsg := l.cursor, l.lastMessage

	out := l.iterate(ctx, rs)
	out.Cursor = l.cursor

	if l.store != nil && (l.cursor != prevCursor || l.lastMessage != prevMsg) {
		st := storage.State{Cursor: l.cursor, LastMessage: l.lastMessage, UpdatedAt: l.clock.Now()}
		if err := l.store.SaveState(ctx, st); err != nil {
			l.log.Warn("state save failed", logx.Err(err))
		}
	}
	return out
}

func (l *Loop) iterate(ctx context.Context, rs *runtimeSettings) Outcome {
	l.log.Debug("fetching statuses", logx.Int64("cursor", l.cursor))
	raw, err := l.source.Fetch(ctx, l.cursor)
	if err != nil {
		return l.fail(ctx, PhaseFetch, classify(err, SourceUnreachable))
	}

	snap, err := Validate(raw, rs.fields)
	if err != nil {
		return l.fail(ctx, PhaseValidate, classify(err, MalformedResponse))
	}

	next := l.cursor
	if snap.HasAdvance && snap.Advance > next {
		next = snap.Advance
	}
	if !rs.hold {
		l.advance(next)
	}

	if len(snap.Records) == 0 {
		l.advance(next)
		l.log.Debug("no new statuses", logx.Int64("cursor", l.cursor))
		return Outcome{Phase: PhaseIdle}
	}

	rec := snap.Records[0]
	l.log.Debug("interpreting status",
		logx.String("name", rec.Name),
		logx.String("status", rec.Status),
		logx.Int("batch", len(snap.Records)),
	)
	text, err := rs.interp.Interpret(rec)
	if err != nil {
		l.advance(next)
		return l.fail(ctx, PhaseInterpret, err)
	}

	out := Outcome{Phase: PhaseNotify, Text: text}
	if text == l.lastMessage {
		l.advance(next)
		out.Suppressed = true
		l.log.Debug("notification unchanged; not resending")
		return out
	}

	if err := l.deliver(ctx, "status", text); err != nil {
		out.DeliveryErr = err
		l.log.Error("notification delivery failed", logx.Err(err), logx.Bool("cursor_held", rs.hold))
		return out
	}
	l.advance(next)
	l.lastMessage = text
	out.Delivered = true
	l.log.Info("notification delivered", logx.String("name", rec.Name), logx.String("status", rec.Status))
	return out
}

// fail reports a contained failure to the operator channel, deduplicated
// against the last delivered message.
func (l *Loop) fail(ctx context.Context, phase Phase, err error) Outcome {
	kind := KindOf(err)
	l.log.Error("iteration failed",
		logx.String("phase", string(phase)),
		logx.String("kind", kind.String()),
		logx.Err(err),
	)

	text := DiagnosticText(err)
	out := Outcome{Phase: phase, Err: err, Text: text}
	if text == l.lastMessage {
		out.Suppressed = true
		l.log.Warn("diagnostic unchanged; not resending", logx.String("kind", kind.String()))
		return out
	}

	if derr := l.deliver(ctx, "diagnostic", text); derr != nil {
		out.DeliveryErr = derr
		l.log.Error("diagnostic delivery failed", logx.Err(derr))
		return out
	}
	l.lastMessage = text
	out.Delivered = true
	return out
}

func (l *Loop) deliver(ctx context.Context, kind, text string) error {
	err := classify(l.notifier.Deliver(ctx, text), DeliveryError)
	if l.store != nil {
		e := storage.DeliveryEntry{At: l.clock.Now(), Kind: kind, Text: text, OK: err == nil}
		if err != nil {
			e.Error = err.Error()
		}
		if jerr := l.store.AppendDelivery(ctx, e); jerr != nil {
			l.log.Warn("delivery journal append failed", logx.Err(jerr))
		}
	}
	return err
}

func (l *Loop) advance(next int64) {
	if next > l.cursor {
		l.cursor = next
	}
}

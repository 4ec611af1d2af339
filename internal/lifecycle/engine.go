package lifecycle

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// EventSink receives lifecycle events for durable logging (§4.H). It is a
// narrow interface so this package never imports the event-bus package
// directly.
type EventSink interface {
	Emit(eventType string, payload map[string]any)
}

// Engine dispatches events against a loaded Spec, evaluating guards,
// running effects, and chaining transient states, exactly as spec.md §4.C
// prescribes.
type Engine struct {
	spec     *Spec
	registry *Registry
	sink     EventSink
	logger   *log.Logger

	// byFromEvent indexes transitions by (from, event) in declared order,
	// with every wildcard-from transition appended last regardless of its
	// position in the source spec, matching the ordering rule in step 3 of
	// spec.md §4.C.
	byFromEvent map[string][]Transition
}

// Load validates spec (structural invariants plus guard-ordering) and
// verifies every referenced guard/effect name has a registered
// implementation, then returns a ready-to-use Engine. This is the loader
// spec.md §4.C and §8 invariant 9 require: reject the spec if any
// referenced name is unregistered.
func Load(spec *Spec, registry *Registry, sink EventSink, logger *log.Logger) (*Engine, error) {
	if errs := spec.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("lifecycle: invalid spec: %v", errs)
	}
	for _, name := range spec.Guards {
		if !registry.HasGuard(name) {
			return nil, fmt.Errorf("lifecycle: guard %q has no registered implementation", name)
		}
	}
	for _, name := range spec.Effects {
		if !registry.HasEffect(name) {
			return nil, fmt.Errorf("lifecycle: effect %q has no registered implementation", name)
		}
	}

	e := &Engine{spec: spec, registry: registry, sink: sink, logger: logger}
	e.index()
	return e, nil
}

// index builds byFromEvent, appending wildcard transitions after every
// specific-from transition for the same event, regardless of source order.
func (e *Engine) index() {
	e.byFromEvent = map[string][]Transition{}
	var wildcards []Transition

	for _, tr := range e.spec.Transitions {
		if tr.From == Wildcard {
			wildcards = append(wildcards, tr)
			continue
		}
		e.byFromEvent[key(tr.From, tr.Event)] = append(e.byFromEvent[key(tr.From, tr.Event)], tr)
	}

	// Wildcard transitions apply to every event they declare, against
	// every non-terminal state, appended last in declared order.
	for _, tr := range wildcards {
		for name, st := range e.spec.States {
			if st.Type == StateTerminal {
				continue
			}
			e.byFromEvent[key(name, tr.Event)] = append(e.byFromEvent[key(name, tr.Event)], tr)
		}
	}
}

func key(from, event string) string { return from + "\x00" + event }

// Emit dispatches event against ws, applying the first matching transition
// (guarded transitions tried in declared order, before any unguarded
// fallback), then chaining through any resulting transient states with no
// observable pause. It returns the (possibly mutated) ws.
func (e *Engine) Emit(ws *WorkerState, event string, payload Payload) (*WorkerState, error) {
	current := ws.Current
	st, ok := e.spec.States[current]
	if !ok {
		return ws, fmt.Errorf("lifecycle: worker %s: unknown current state %q", ws.WorkerID, current)
	}

	if st.Type == StateTerminal {
		if !allowedRecovery(st, event) {
			e.log("event rejected by terminal state", "worker", ws.WorkerID, "state", current, "event", event)
			return ws, nil
		}
	}

	candidates := e.byFromEvent[key(current, event)]
	tr, ok := e.firstMatch(candidates, ws, payload)
	if !ok {
		e.log("no matching transition", "worker", ws.WorkerID, "state", current, "event", event, "reason", "no match")
		return ws, nil
	}

	if err := e.fire(ws, tr, payload); err != nil {
		return ws, err
	}

	return e.chainTransients(ws, payload)
}

// allowedRecovery reports whether event is in a terminal state's declared
// recovery allowlist.
func allowedRecovery(st State, event string) bool {
	for _, ev := range st.Recover {
		if ev == event {
			return true
		}
	}
	return false
}

// firstMatch returns the first candidate whose guard passes (or which is
// unguarded). Guarded candidates are always ordered before unguarded ones
// by spec.Validate's guard-ordering check, so declaration order alone is
// sufficient here.
func (e *Engine) firstMatch(candidates []Transition, ws *WorkerState, payload Payload) (Transition, bool) {
	for _, tr := range candidates {
		if tr.Guard == "" {
			return tr, true
		}
		guard, ok := e.registry.Guard(tr.Guard)
		if !ok {
			continue // unreachable after Load, defensive only
		}
		if guard(ws, payload) {
			return tr, true
		}
	}
	return Transition{}, false
}

// fire applies a transition's effects in declared order, then sets the
// worker's state, recording history and emitting a lifecycle event.
func (e *Engine) fire(ws *WorkerState, tr Transition, payload Payload) error {
	for _, effName := range tr.Effects {
		eff, ok := e.registry.Effect(effName)
		if !ok {
			continue // unreachable after Load, defensive only
		}
		if err := eff(ws, payload); err != nil {
			return fmt.Errorf("lifecycle: worker %s: effect %q: %w", ws.WorkerID, effName, err)
		}
	}

	from := ws.Current
	ws.addRecord(from, tr.Event, tr.To)
	e.log("transition fired", "worker", ws.WorkerID, "from", from, "event", tr.Event, "to", tr.To)
	e.emitEvent(ws, from, tr.Event, tr.To)
	return nil
}

// chainTransients follows a transient state's declared Chain event with no
// pause until the worker lands on a non-transient state. A transient state
// must never be the function's return value as an observable resting
// state (spec.md invariant 8).
func (e *Engine) chainTransients(ws *WorkerState, payload Payload) (*WorkerState, error) {
	for {
		st, ok := e.spec.States[ws.Current]
		if !ok {
			return ws, fmt.Errorf("lifecycle: worker %s: unknown state %q mid-chain", ws.WorkerID, ws.Current)
		}
		if st.Type != StateTransient {
			return ws, nil
		}

		candidates := e.byFromEvent[key(ws.Current, st.Chain)]
		tr, ok := e.firstMatch(candidates, ws, payload)
		if !ok {
			return ws, fmt.Errorf("lifecycle: worker %s: transient state %q has no transition for its declared chain event %q", ws.WorkerID, ws.Current, st.Chain)
		}
		if err := e.fire(ws, tr, payload); err != nil {
			return ws, err
		}
	}
}

func (e *Engine) emitEvent(ws *WorkerState, from, event, to string) {
	if e.sink == nil {
		return
	}
	e.sink.Emit("lifecycle."+event, map[string]any{
		"worker_id": ws.WorkerID,
		"from":      from,
		"event":     event,
		"to":        to,
	})
}

func (e *Engine) log(msg string, kvs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Debug(msg, kvs...)
}

// StartupReset issues the synthetic crash-recovery event for ws if its
// current state is a running state, per spec.md §4.C: "fixing"-like states
// reset via "startup.reset", "resolving"-like states reset via
// "resolve.startup_reset". The caller supplies resolveEvent to distinguish
// which synthetic event applies to a running state's name, since the
// reference state names are spec-data, not hardcoded here.
func (e *Engine) StartupReset(ws *WorkerState, resolveEvent func(stateName string) string) (*WorkerState, error) {
	st, ok := e.spec.States[ws.Current]
	if !ok || st.Type != StateRunning {
		return ws, nil
	}
	event := resolveEvent(ws.Current)
	if event == "" {
		return ws, fmt.Errorf("lifecycle: worker %s: no startup-reset event mapped for running state %q", ws.WorkerID, ws.Current)
	}
	return e.Emit(ws, event, Payload{"startup_reset": true})
}

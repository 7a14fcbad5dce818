// Package event carries notifications from the engine, the session manager
// and the conflict resolver to whoever renders them: the plain CLI
// printer, the TUI and tests.
//
// Event types are dotted names grouped by their first segment:
//
//	engine.*    state changes, batches, task outcomes, phases, checkpoints
//	session.*   agent session lifecycle and streamed progress chunks
//	context.*   shared knowledge updates
//	conflict.*  detected and resolved conflicts between agent outputs
//
// A [Bus] subscription names an exact type, a category ("session.*") or
// [Wildcard]. Handlers run synchronously on the publishing goroutine in the
// order they were registered; a panicking handler is logged and skipped.
//
//	bus := event.NewBus(logger)
//	bus.Subscribe("conflict.*", func(e event.Event) {
//	    c := e.(event.ConflictEvent)
//	    fmt.Println(c.EventType(), c.ConflictID)
//	})
package event

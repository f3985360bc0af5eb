// Package nether is an in-process message-dispatch runtime. Components talk to
// each other only through messages routed by a Mediator: commands and queries
// are fanned out to every component whose Capability accepts them, events are
// queued as results of the Context that produced them and fanned out to
// consumers as well.
//
// A Context isolates one unit of work. Every dispatch runs as its own task,
// failures and panics are logged and contained, and Close waits for the task
// set to drain before the context is unregistered. Producers and consumers can
// exchange values through the Context's shared Stream.
//
// # Components
//
// Server is a component that hosts an HTTP front end. It answers StartServer,
// StopServer, RegisterView, AddView and AddStatic commands with success or
// failure events. Routes added after the server started are served by the
// dynamic Router, where the most recently registered resource wins.
//
// TransactionScope defers opening a database transaction until a handler
// actually asks for one, and commits or rolls back exactly once.
//
// # Middleware
//
// Every task runs through a middleware chain. The default chain records an
// OpenTelemetry span, Prometheus metrics, trace-level task logs, and turns
// panics into PanicError values. TaskHooksMiddleware adds OnTaskStart,
// OnTaskDone, and OnTaskError callbacks.
//
// Application ties the pieces together: it starts the registered components,
// runs the caller's main function, and shuts everything down once no component
// is active or a signal arrives. See cmd/nether for a complete wiring.
package nether

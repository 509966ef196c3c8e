// Package bus implements the in-memory actor-style message bus that
// processors attach to.
//
// A processor registers itself, listens on one or more service names, and
// receives every delivery as an [Envelope] on its own queue. Clients address
// a service by name with [Bus.Call]; the bus picks one listening processor
// (round-robin across instances) and routes a [Request] to it. Each request
// carries a reply channel and must be answered exactly once, either with a
// payload or with a [ServiceError].
//
// Besides requests, processors receive control envelopes: service-table
// snapshots whenever bus membership changes, and a shutdown envelope when
// the embedding application broadcasts [Bus.Shutdown].
//
// The package has zero external dependencies beyond ID generation and
// performs no network I/O; it is the process-internal transport that the
// rest of the system is composed on.
package bus

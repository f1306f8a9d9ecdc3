// Package tracing wires OpenTelemetry into the dispatcher.
//
// Init installs the SDK provider at process start. The scheduler and dispatch
// batch open spans through StartSpan, and Middleware opens a server span for
// every request to the public endpoints, honouring incoming W3C trace context.
// Trace IDs are attached to log lines so one dispatch run can be followed across
// feed fetches, summarization and sends.
package tracing

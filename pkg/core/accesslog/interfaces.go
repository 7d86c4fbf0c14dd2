//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog provides interfaces and implementations for the audit
// trail of access decisions and access-state changes.
//
// The engine does not store audit events; it writes every consequential
// event to a [Stream] and the stream delivers it to the surrounding system's
// audit storage.
//
// # Built-in Implementations
//
//   - [NewStdoutFactory]: Writes JSON events to stdout (default for development)
//   - [NewIoWriterFactory]: Writes JSON events to any io.Writer
//   - [NewNullFactory]: Discards all events (useful for testing or benchmarks)
//   - amqp.NewFactory: Publishes events to a RabbitMQ exchange
//
// # Custom Implementations
//
//  1. Implement the [Factory] interface to create stream instances
//  2. Implement the [Stream] interface to handle event delivery
//  3. Use [options.WithAccessLog] when creating the engine
package accesslog

// Factory creates audit [Stream] instances.
//
// Early initialization (setting Viper defaults, validating configuration)
// should happen during factory construction.  Late initialization (opening
// connections) should happen in NewStream, which is only called once
// configuration is fully loaded.
type Factory interface {
	NewStream() (Stream, error)
}

// Stream is the append-only audit sink.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Stream interface {
	// Send delivers an event.  Send must not modify the event.  The engine
	// logs send errors but does not retry.
	Send(event *AuditEvent) error

	// Close flushes buffered events and releases resources.
	Close()
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

// NullFactory hands out a stream that drops every audit event.  It is
// selected with audit.sink=null, for load tests where the sink would
// dominate the measurement.
type NullFactory struct{}

// NullStream drops every event.
type NullStream struct{}

// NewNullFactory creates a Factory of NullStreams.
func NewNullFactory() Factory {
	return &NullFactory{}
}

// NewStream implements Factory.
func (f *NullFactory) NewStream() (Stream, error) {
	return &NullStream{}, nil
}

// Send implements Stream and never fails.
func (s *NullStream) Send(*AuditEvent) error {
	return nil
}

// Close implements Stream.
func (s *NullStream) Close() {}

//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog provides a channel-backed audit stream used by tests to
// observe exactly which events the engine emits.
package accesslog

import (
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
)

// ChannelFactory factory for ChannelStream
type ChannelFactory struct {
	ch chan *accesslog.AuditEvent
}

// ChannelStream implements the Stream interface by writing events to a channel.
type ChannelStream struct {
	ch chan *accesslog.AuditEvent
}

// NewChannelLogger creates a Factory whose streams write to ch.
func NewChannelLogger(ch chan *accesslog.AuditEvent) accesslog.Factory {
	return &ChannelFactory{ch: ch}
}

// NewChannelStream returns a stream writing to ch directly.
func NewChannelStream(ch chan *accesslog.AuditEvent) *ChannelStream {
	return &ChannelStream{ch: ch}
}

// NewStream creates a new Stream to satisfy the Factory interface.
func (f *ChannelFactory) NewStream() (accesslog.Stream, error) {
	return &ChannelStream{ch: f.ch}, nil
}

// Send writes the event to the channel.
func (s *ChannelStream) Send(e *accesslog.AuditEvent) error {
	s.ch <- e

	return nil
}

// Close closes the underlying channel.
func (s *ChannelStream) Close() {
	if s.ch != nil {
		close(s.ch)
	}
}

// Drain returns every event currently buffered in ch without blocking.
func Drain(ch chan *accesslog.AuditEvent) []*accesslog.AuditEvent {
	var out []*accesslog.AuditEvent
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

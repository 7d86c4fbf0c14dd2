//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// AccessLogOptions configures the behavior of audit output.
type AccessLogOptions struct {
	// PrettyPrint enables indented multi-line JSON output.
	PrettyPrint bool
}

// IoWriterFactory creates [Stream] instances that write to an [io.Writer].
type IoWriterFactory struct {
	writer  io.Writer
	options AccessLogOptions
}

// IoWriterStream writes events as JSON to an [io.Writer], one per line
// unless pretty printing is enabled.
//
// IoWriterStream is safe for concurrent use.
type IoWriterStream struct {
	mu      sync.Mutex
	writer  io.Writer
	options AccessLogOptions
}

// NewStdoutFactory creates a [Factory] that writes events to stdout.
//
// This is the default used when no audit stream is configured.
func NewStdoutFactory() Factory {
	return NewIoWriterFactory(os.Stdout)
}

// NewIoWriterFactory creates a [Factory] that writes events to w.
func NewIoWriterFactory(w io.Writer) Factory {
	return NewIoWriterFactoryWithOptions(w, AccessLogOptions{})
}

// NewIoWriterFactoryWithOptions creates a [Factory] that writes events to w
// with the given options:
//
//	factory := accesslog.NewIoWriterFactoryWithOptions(os.Stdout, accesslog.AccessLogOptions{
//	    PrettyPrint: true,
//	})
func NewIoWriterFactoryWithOptions(w io.Writer, opts AccessLogOptions) Factory {
	return &IoWriterFactory{
		writer:  w,
		options: opts,
	}
}

// NewStream creates a new [IoWriterStream] that writes to the configured writer.
func (f *IoWriterFactory) NewStream() (Stream, error) {
	return newStream(f.writer, f.options), nil
}

func newStream(w io.Writer, opts AccessLogOptions) Stream {
	return &IoWriterStream{writer: w, options: opts}
}

// Send encodes the event as JSON followed by a newline.
func (s *IoWriterStream) Send(event *AuditEvent) error {
	var (
		output []byte
		err    error
	)
	if s.options.PrettyPrint {
		output, err = json.MarshalIndent(event, "", "  ")
	} else {
		output, err = json.Marshal(event)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.writer.Write(append(output, '\n'))
	return err
}

// Close is a no-op for IoWriterStream.  The underlying writer is owned by the
// caller.
func (s *IoWriterStream) Close() {}

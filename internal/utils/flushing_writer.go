package utils

import (
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// FlushingWriter serializes writes from concurrently running unit output streams and flushes
// buffered destinations after every write so unit transcripts appear as they are produced.
type FlushingWriter struct {
	mutex       sync.Mutex
	destination io.Writer
	flusher     flusher
}

// NewFlushingWriter wraps writer. It returns nil for a nil writer and writer itself when it is
// already a FlushingWriter.
func NewFlushingWriter(writer io.Writer) io.Writer {
	switch typed := writer.(type) {
	case nil:
		return nil
	case *FlushingWriter:
		return typed
	}

	wrapped := &FlushingWriter{destination: writer}
	if destinationFlusher, canFlush := writer.(flusher); canFlush {
		wrapped.flusher = destinationFlusher
	}
	return wrapped
}

// Write forwards data and flushes the destination when it supports flushing.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.destination == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	written, writeError := flushingWriter.destination.Write(data)
	if writeError != nil || flushingWriter.flusher == nil {
		return written, writeError
	}
	return written, flushingWriter.flusher.Flush()
}

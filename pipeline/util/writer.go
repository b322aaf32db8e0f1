package util

import (
	"bytes"
	"sync"
)

// BufferWriterSync is a goroutine-safe buffer. The shell adapter hands one
// to the child process for stdout and one for stderr.
type BufferWriterSync struct {
	b bytes.Buffer
	l sync.RWMutex
}

func NewBufferWriterSync() *BufferWriterSync {
	return &BufferWriterSync{}
}

// Write appends p to the buffer.
func (bws *BufferWriterSync) Write(p []byte) (n int, err error) {
	bws.l.Lock()
	defer bws.l.Unlock()
	return bws.b.Write(p)
}

// String returns the buffered content.
func (bws *BufferWriterSync) String() string {
	bws.l.RLock()
	defer bws.l.RUnlock()
	return bws.b.String()
}

// Len returns the buffered length.
func (bws *BufferWriterSync) Len() int {
	bws.l.RLock()
	defer bws.l.RUnlock()
	return bws.b.Len()
}

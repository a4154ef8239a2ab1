package chunk

import (
	"fmt"
)

// Buffer is an in-memory image of one chunk. Storage managers hand out
// buffers and track whether they have unwritten changes.
type Buffer struct {
	data  []byte
	dirty bool
	epoch int32
}

func NewBuffer(initialSize int) *Buffer {
	return &Buffer{
		data: make([]byte, 0, initialSize),
	}
}

func NewBufferWith(data []byte) *Buffer {
	return &Buffer{
		data: data,
	}
}

func (b *Buffer) Size() int {
	return len(b.data)
}

// Data returns the buffer contents; the slice is only valid until the next
// mutation of the buffer.
func (b *Buffer) Data() []byte {
	return b.data
}

func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
	b.dirty = true
}

// SetData replaces the buffer contents with a copy of p.
func (b *Buffer) SetData(p []byte) {
	b.data = append(b.data[:0], p...)
	b.dirty = true
}

// Read copies numBytes from the start of the buffer into dst; numBytes of
// zero means the entire buffer.
func (b *Buffer) Read(dst []byte, numBytes int) error {
	if numBytes == 0 {
		numBytes = len(b.data)
	}
	if numBytes > len(b.data) {
		return fmt.Errorf("chunk: read of %d bytes from buffer of %d bytes", numBytes,
			len(b.data))
	}
	copy(dst, b.data[:numBytes])
	return nil
}

// CopyTo materializes numBytes of the buffer into dst; numBytes of zero
// means the entire buffer.
func (b *Buffer) CopyTo(dst *Buffer, numBytes int) error {
	if numBytes == 0 || numBytes > len(b.data) {
		numBytes = len(b.data)
	}
	dst.SetData(b.data[:numBytes])
	return nil
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.dirty = false
}

func (b *Buffer) Dirty() bool {
	return b.dirty
}

func (b *Buffer) SetDirty(dirty bool) {
	b.dirty = dirty
}

func (b *Buffer) Epoch() int32 {
	return b.epoch
}

func (b *Buffer) SetEpoch(epoch int32) {
	b.epoch = epoch
}

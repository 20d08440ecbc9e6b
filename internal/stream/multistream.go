// Package stream provides MultiStream, a composite sink that fans writes out
// to several underlying sinks behind one read/write/seek surface.
package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrEmpty           = errors.New("multistream has no sinks")
	ErrNotReadable     = errors.New("no readable sink")
	ErrNotSeekable     = errors.New("sink does not support seeking")
	ErrNotTruncatable  = errors.New("sink does not support setting its length")
	ErrIndexOutOfRange = errors.New("sink index out of range")
	ErrClosed          = errors.New("multistream is closed")
)

// Sink is any closable value. Its read, write, seek, truncate and flush
// capabilities are discovered from the interfaces it implements.
type Sink interface {
	Close() error
}

// Capabilities lets a sink report its capabilities dynamically. When
// implemented it takes precedence over interface discovery.
type Capabilities interface {
	CanRead() bool
	CanWrite() bool
	CanSeek() bool
}

type truncater interface {
	Truncate(size int64) error
}

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

// MultiStream multiplexes one byte stream onto an ordered list of sinks.
//
// Writes go to every sink that can currently write; reads come from the first
// readable sink; seeks, truncation and flushes apply to all of them. It is
// single-use: once closed, adding sinks and all I/O fail with ErrClosed. It is
// not safe for concurrent use.
type MultiStream struct {
	sinks  []Sink
	closed bool
}

// New creates a MultiStream over the given sinks
func New(sinks ...Sink) *MultiStream {
	return &MultiStream{sinks: append([]Sink(nil), sinks...)}
}

// Add appends a sink
func (m *MultiStream) Add(s Sink) error {
	if m.closed {
		return ErrClosed
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Insert places a sink at index i
func (m *MultiStream) Insert(i int, s Sink) error {
	if m.closed {
		return ErrClosed
	}
	if i < 0 || i > len(m.sinks) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	m.sinks = append(m.sinks, nil)
	copy(m.sinks[i+1:], m.sinks[i:])
	m.sinks[i] = s
	return nil
}

// Remove drops the first occurrence of s and reports whether it was present
func (m *MultiStream) Remove(s Sink) bool {
	i := m.IndexOf(s)
	if i < 0 {
		return false
	}
	m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
	return true
}

// RemoveAt drops the sink at index i
func (m *MultiStream) RemoveAt(i int) error {
	if i < 0 || i >= len(m.sinks) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
	return nil
}

// Clear removes every sink without closing them
func (m *MultiStream) Clear() {
	m.sinks = nil
}

// At returns the sink at index i
func (m *MultiStream) At(i int) (Sink, error) {
	if i < 0 || i >= len(m.sinks) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return m.sinks[i], nil
}

// IndexOf returns the position of s, or -1
func (m *MultiStream) IndexOf(s Sink) int {
	for i, x := range m.sinks {
		if x == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s is a member
func (m *MultiStream) Contains(s Sink) bool {
	return m.IndexOf(s) >= 0
}

// Count is the number of sinks
func (m *MultiStream) Count() int {
	return len(m.sinks)
}

// Sinks returns a copy of the member list
func (m *MultiStream) Sinks() []Sink {
	return append([]Sink(nil), m.sinks...)
}

// CanRead is true if any sink can read
func (m *MultiStream) CanRead() bool {
	for _, s := range m.sinks {
		if canRead(s) {
			return true
		}
	}
	return false
}

// CanWrite is true only if every sink can write. Write itself skips
// non-writable sinks, so a composite reporting false still accepts writes.
func (m *MultiStream) CanWrite() bool {
	for _, s := range m.sinks {
		if !canWrite(s) {
			return false
		}
	}
	return true
}

// CanSeek is true only if every sink can seek
func (m *MultiStream) CanSeek() bool {
	for _, s := range m.sinks {
		if !canSeek(s) {
			return false
		}
	}
	return true
}

// Read reads from the first readable sink
func (m *MultiStream) Read(p []byte) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	for _, s := range m.sinks {
		if canRead(s) {
			return s.(io.Reader).Read(p)
		}
	}
	return 0, ErrNotReadable
}

// Write writes p to every writable sink. A failing sink stops the fan-out;
// sinks after it are not visited.
func (m *MultiStream) Write(p []byte) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	for i, s := range m.sinks {
		if !canWrite(s) {
			continue
		}
		n, err := s.(io.Writer).Write(p)
		if err != nil {
			return n, fmt.Errorf("sink %d: %w", i, err)
		}
		if n != len(p) {
			return n, fmt.Errorf("sink %d: %w", i, io.ErrShortWrite)
		}
	}
	return len(p), nil
}

// Seek seeks every sink and returns the first sink's resulting position
func (m *MultiStream) Seek(offset int64, whence int) (int64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.sinks) == 0 {
		return 0, ErrEmpty
	}
	var first int64
	for i, s := range m.sinks {
		if !canSeek(s) {
			return 0, fmt.Errorf("sink %d: %w", i, ErrNotSeekable)
		}
		pos, err := s.(io.Seeker).Seek(offset, whence)
		if err != nil {
			return 0, fmt.Errorf("sink %d: %w", i, err)
		}
		if i == 0 {
			first = pos
		}
	}
	return first, nil
}

// Truncate sets the length of every sink
func (m *MultiStream) Truncate(size int64) error {
	if m.closed {
		return ErrClosed
	}
	for i, s := range m.sinks {
		t, ok := s.(truncater)
		if !ok {
			return fmt.Errorf("sink %d: %w", i, ErrNotTruncatable)
		}
		if err := t.Truncate(size); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Flush flushes every sink that buffers. Sinks without a flush are skipped.
func (m *MultiStream) Flush() error {
	if m.closed {
		return ErrClosed
	}
	for i, s := range m.sinks {
		var err error
		switch f := s.(type) {
		case flusher:
			err = f.Flush()
		case syncer:
			err = f.Sync()
		}
		if err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Length is the length of the first sink
func (m *MultiStream) Length() (int64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.sinks) == 0 {
		return 0, ErrEmpty
	}
	return Length(m.sinks[0])
}

// Position is the current offset of the first sink
func (m *MultiStream) Position() (int64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.sinks) == 0 {
		return 0, ErrEmpty
	}
	if !canSeek(m.sinks[0]) {
		return 0, ErrNotSeekable
	}
	return m.sinks[0].(io.Seeker).Seek(0, io.SeekCurrent)
}

// SetPosition moves every sink to the absolute offset pos
func (m *MultiStream) SetPosition(pos int64) error {
	_, err := m.Seek(pos, io.SeekStart)
	return err
}

// Close closes every sink. Subsequent calls are no-ops.
func (m *MultiStream) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for i, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Length reports the size of a single sink
func Length(s Sink) (int64, error) {
	switch v := s.(type) {
	case interface{ Stat() (os.FileInfo, error) }:
		fi, err := v.Stat()
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	case interface{ Size() int64 }:
		return v.Size(), nil
	case interface{ Len() int }:
		return int64(v.Len()), nil
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return end, nil
	default:
		return 0, fmt.Errorf("sink %T does not report its length", s)
	}
}

func canRead(s Sink) bool {
	if _, ok := s.(io.Reader); !ok {
		return false
	}
	if c, ok := s.(Capabilities); ok {
		return c.CanRead()
	}
	return true
}

func canWrite(s Sink) bool {
	if _, ok := s.(io.Writer); !ok {
		return false
	}
	if c, ok := s.(Capabilities); ok {
		return c.CanWrite()
	}
	return true
}

func canSeek(s Sink) bool {
	if _, ok := s.(io.Seeker); !ok {
		return false
	}
	if c, ok := s.(Capabilities); ok {
		return c.CanSeek()
	}
	return true
}

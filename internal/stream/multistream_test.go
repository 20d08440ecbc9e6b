package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink is an in-memory sink whose capabilities can be toggled
type fakeSink struct {
	data     []byte
	pos      int64
	readable bool
	writable bool
	seekable bool
	writeErr error
	closes   int
	writes   int
}

func newFake() *fakeSink {
	return &fakeSink{readable: true, writable: true, seekable: true}
}

func (f *fakeSink) CanRead() bool  { return f.readable }
func (f *fakeSink) CanWrite() bool { return f.writable }
func (f *fakeSink) CanSeek() bool  { return f.seekable }

func (f *fakeSink) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *fakeSink) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes++
	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *fakeSink) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(len(f.data)) + offset
	}
	return f.pos, nil
}

func (f *fakeSink) Truncate(size int64) error {
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.closes++
	return nil
}

// writeOnly has no reader or seeker methods at all
type writeOnly struct{ buf bytes.Buffer }

func (w *writeOnly) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *writeOnly) Close() error                { return nil }

func TestMultiStream_CanWriteRequiresEverySink(t *testing.T) {
	m := New()
	assert.True(t, m.CanWrite(), "empty composite is vacuously writable")

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Add(newFake()))
		assert.True(t, m.CanWrite())
	}

	ro := newFake()
	ro.writable = false
	require.NoError(t, m.Add(ro))
	assert.False(t, m.CanWrite(), "one non-writable sink flips the composite")

	require.True(t, m.Remove(ro))
	assert.True(t, m.CanWrite())
}

func TestMultiStream_CanReadAnyCanSeekAll(t *testing.T) {
	a, b := newFake(), newFake()
	a.readable = false
	b.seekable = false

	m := New(a)
	assert.False(t, m.CanRead())
	assert.True(t, m.CanSeek())

	require.NoError(t, m.Add(b))
	assert.True(t, m.CanRead())
	assert.False(t, m.CanSeek())

	assert.False(t, New().CanRead())
}

func TestMultiStream_WriteSkipsNonWritableSinks(t *testing.T) {
	w1, w2, ro := newFake(), newFake(), newFake()
	ro.writable = false

	m := New(w1, ro, w2, &writeOnly{})
	require.False(t, m.CanWrite())

	n, err := m.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []byte("hello"), w1.data)
	assert.Equal(t, []byte("hello"), w2.data)
	assert.Empty(t, ro.data)
	assert.Equal(t, 0, ro.writes)
	assert.Equal(t, "hello", m.sinks[3].(*writeOnly).buf.String())
}

func TestMultiStream_WriteFailureStopsFanOut(t *testing.T) {
	first, failing, last := newFake(), newFake(), newFake()
	boom := errors.New("disk full")
	failing.writeErr = boom

	m := New(first, failing, last)
	_, err := m.Write([]byte("x"))
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []byte("x"), first.data, "earlier sinks keep their bytes")
	assert.Empty(t, last.data, "later sinks are not visited")
}

func TestMultiStream_WriteWithNoSinksIsNoop(t *testing.T) {
	n, err := New().Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMultiStream_ReadUsesFirstReadableSink(t *testing.T) {
	a, b := newFake(), newFake()
	a.readable = false
	a.data = []byte("from-a")
	b.data = []byte("from-b")

	m := New(a, b)
	got, err := io.ReadAll(m)
	require.NoError(t, err)
	assert.Equal(t, "from-b", string(got))

	_, err = New(&writeOnly{}).Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrNotReadable)
}

func TestMultiStream_SeekAppliesToAllAndReturnsFirstPosition(t *testing.T) {
	a, b := newFake(), newFake()
	m := New(a, b)
	_, err := m.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := m.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)
	assert.EqualValues(t, 6, a.pos)
	assert.EqualValues(t, 6, b.pos)

	require.NoError(t, m.SetPosition(2))
	p, err := m.Position()
	require.NoError(t, err)
	assert.EqualValues(t, 2, p)
	assert.EqualValues(t, 2, b.pos)

	length, err := m.Length()
	require.NoError(t, err)
	assert.EqualValues(t, 10, length)
}

func TestMultiStream_SeekFailsOnNonSeekableMember(t *testing.T) {
	m := New(newFake(), &writeOnly{})
	_, err := m.Seek(0, io.SeekStart)
	require.ErrorIs(t, err, ErrNotSeekable)

	_, err = New().Seek(0, io.SeekStart)
	require.ErrorIs(t, err, ErrEmpty)
	_, err = New().Length()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMultiStream_TruncateAndFlush(t *testing.T) {
	a, b := newFake(), newFake()
	m := New(a, b)
	_, err := m.Write([]byte("abcdef"))
	require.NoError(t, err)

	require.NoError(t, m.Truncate(3))
	assert.Equal(t, "abc", string(a.data))
	assert.Equal(t, "abc", string(b.data))
	require.NoError(t, m.Flush())

	require.NoError(t, m.Add(&writeOnly{}))
	require.ErrorIs(t, m.Truncate(0), ErrNotTruncatable)
}

func TestMultiStream_ListMutation(t *testing.T) {
	a, b, c := newFake(), newFake(), newFake()
	m := New(a)
	require.NoError(t, m.Add(c))
	require.NoError(t, m.Insert(1, b))
	assert.Equal(t, []Sink{a, b, c}, m.Sinks())
	assert.Equal(t, 1, m.IndexOf(b))
	assert.True(t, m.Contains(c))

	got, err := m.At(2)
	require.NoError(t, err)
	assert.Same(t, c, got)

	require.NoError(t, m.RemoveAt(0))
	assert.Equal(t, 2, m.Count())
	require.ErrorIs(t, m.RemoveAt(5), ErrIndexOutOfRange)
	require.ErrorIs(t, m.Insert(9, a), ErrIndexOutOfRange)
	assert.False(t, m.Remove(a))

	m.Clear()
	assert.Zero(t, m.Count())
}

func TestMultiStream_CloseIsIdempotent(t *testing.T) {
	a, b := newFake(), newFake()
	m := New(a, b)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
}

func TestMultiStream_ClosedRejectsUse(t *testing.T) {
	a := newFake()
	m := New(a)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Add(newFake()), ErrClosed)
	assert.ErrorIs(t, m.Insert(0, newFake()), ErrClosed)
	assert.Equal(t, 1, m.Count())

	_, err := m.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, a.writes)

	_, err = m.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.SetPosition(0), ErrClosed)
	assert.ErrorIs(t, m.Truncate(0), ErrClosed)
	assert.ErrorIs(t, m.Flush(), ErrClosed)
	_, err = m.Length()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Position()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMultiStream_InMemoryFileSinks(t *testing.T) {
	f1 := mem.NewFileHandle(mem.CreateFile("one"))
	f2 := mem.NewFileHandle(mem.CreateFile("two"))
	m := New(f1, f2)
	require.True(t, m.CanWrite())
	require.True(t, m.CanSeek())

	_, err := m.Write([]byte("payload"))
	require.NoError(t, err)

	_, err = m.Seek(0, io.SeekStart)
	require.NoError(t, err)
	got, err := io.ReadAll(m)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	n, err := Length(f2)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, m.Close())
}

package capture

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRect() region.Rect {
	return region.Rect{Location: region.Point{X: 10, Y: 20}, Size: region.Size{Width: 8, Height: 6}}
}

func countingGrab(calls *int) grabFunc {
	return func(rect region.Rect) (*image.RGBA, error) {
		*calls++
		return image.NewRGBA(image.Rect(0, 0, rect.Size.Width, rect.Size.Height)), nil
	}
}

func TestFrameSlotProtocol(t *testing.T) {
	var calls int
	s := newFrameSlot(testRect(), countingGrab(&calls))

	_, err := s.lock()
	require.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, s.acquire())
	frame, err := s.lock()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), frame.Image.Bounds())
	assert.Zero(t, frame.Timestamp)

	_, err = s.lock()
	assert.ErrorIs(t, err, ErrFrameLocked)
	assert.ErrorIs(t, s.acquire(), ErrFrameLocked)
	assert.ErrorIs(t, s.release(), ErrFrameLocked)

	assert.ErrorIs(t, s.unlock(&Frame{}), ErrFrameNotLocked)
	require.NoError(t, s.unlock(frame))
	assert.ErrorIs(t, s.unlock(frame), ErrFrameNotLocked)
	require.NoError(t, s.release())

	_, err = s.lock()
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.Equal(t, 1, calls)
}

func TestFrameSlotTimestampsAreRelative(t *testing.T) {
	var calls int
	s := newFrameSlot(testRect(), countingGrab(&calls))

	require.NoError(t, s.acquire())
	require.NoError(t, s.release())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.acquire())

	frame, err := s.lock()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, frame.Timestamp, 5*time.Millisecond)
}

func TestFrameSlotGrabError(t *testing.T) {
	boom := errors.New("boom")
	s := newFrameSlot(testRect(), func(region.Rect) (*image.RGBA, error) { return nil, boom })

	assert.ErrorIs(t, s.acquire(), boom)
	_, err := s.lock()
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestFrameSlotClosed(t *testing.T) {
	var calls int
	s := newFrameSlot(testRect(), countingGrab(&calls))
	require.NoError(t, s.acquire())
	s.close()

	assert.ErrorIs(t, s.acquire(), ErrClosed)
	_, err := s.lock()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, calls)
}

func TestConvertImageData(t *testing.T) {
	// two BGRX pixels
	data := []byte{0x10, 0x20, 0x30, 0x00, 0x01, 0x02, 0x03, 0x00}
	img, err := convertImageData(data, 24, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x20, 0x10, 0xff, 0x03, 0x02, 0x01, 0xff}, img.Pix)

	_, err = convertImageData(data, 16, 2, 1)
	assert.Error(t, err)
	_, err = convertImageData(data, 32, 2, 2)
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	for _, name := range []string{"", "auto", " X11 ", "screenshot"} {
		f, err := NewFactory(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f, name)
	}

	_, err := NewFactory("pipewire")
	assert.ErrorContains(t, err, `unknown capture backend "pipewire"`)
}

func TestFrameSlotMove(t *testing.T) {
	var calls int
	var grabbed region.Rect
	s := newFrameSlot(testRect(), func(rect region.Rect) (*image.RGBA, error) {
		grabbed = rect
		return countingGrab(&calls)(rect)
	})

	require.NoError(t, s.move(region.Point{X: 300, Y: 400}))
	require.NoError(t, s.acquire())
	assert.Equal(t, region.Point{X: 300, Y: 400}, grabbed.Location)
	assert.Equal(t, testRect().Size, grabbed.Size)

	frame, err := s.lock()
	require.NoError(t, err)
	assert.ErrorIs(t, s.move(region.Point{}), ErrFrameLocked)
	require.NoError(t, s.unlock(frame))

	s.close()
	assert.ErrorIs(t, s.move(region.Point{}), ErrClosed)
}

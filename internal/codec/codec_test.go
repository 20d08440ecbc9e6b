package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testFrame(w, h int, ts time.Duration) *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return &capture.Frame{Image: img, Timestamp: ts}
}

func TestStillCodecs_EncodeDecodable(t *testing.T) {
	tests := []struct {
		name   string
		mime   string
		decode func(*bytes.Buffer) (image.Image, error)
	}{
		{"png", "image/png", func(b *bytes.Buffer) (image.Image, error) { return png.Decode(b) }},
		{"jpeg", "image/jpeg", func(b *bytes.Buffer) (image.Image, error) { return jpeg.Decode(b) }},
		{"bmp", "image/bmp", func(b *bytes.Buffer) (image.Image, error) { return bmp.Decode(b) }},
	}

	reg := StillCodecs()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := reg.Lookup(tt.name)
			require.NoError(t, err)

			var out bytes.Buffer
			c, err := factory(8, 6, &out, nil)
			require.NoError(t, err)

			mt, ok := MediaTypeOf(c)
			require.True(t, ok)
			assert.Equal(t, tt.mime, mt.Type)
			assert.False(t, IsMultiFrame(c))

			require.NoError(t, c.Start())
			require.NoError(t, c.Feed(testFrame(8, 6, 0)))
			require.NoError(t, c.Close())
			require.NoError(t, c.Close())

			img, err := tt.decode(&out)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		})
	}
}

func TestStillCodec_Lifecycle(t *testing.T) {
	var out bytes.Buffer
	c, err := NewPNG(4, 4, &out, nil)
	require.NoError(t, err)

	require.ErrorIs(t, c.Feed(testFrame(4, 4, 0)), ErrNotStarted)
	require.NoError(t, c.Start())
	require.ErrorIs(t, c.Start(), ErrAlreadyStarted)
	require.ErrorIs(t, c.Feed(nil), ErrNilFrame)
	require.ErrorIs(t, c.Feed(testFrame(5, 4, 0)), ErrInvalidSize)
	require.NoError(t, c.Feed(testFrame(4, 4, 0)))
	require.ErrorIs(t, c.Feed(testFrame(4, 4, 0)), ErrSingleFrame)
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Feed(testFrame(4, 4, 0)), ErrClosed)

	_, err = NewPNG(0, 4, &out, nil)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestJPEG_InvalidQualityOption(t *testing.T) {
	_, err := NewJPEG(4, 4, &bytes.Buffer{}, extension.Options{"quality": "best"})
	require.Error(t, err)
}

func TestGIF_EncodesAllFramesWithTimestampDelays(t *testing.T) {
	var out bytes.Buffer
	c, err := NewGIF(4, 4, &out, nil)
	require.NoError(t, err)
	require.True(t, IsMultiFrame(c))

	require.NoError(t, c.Start())
	require.NoError(t, c.Feed(testFrame(4, 4, 0)))
	require.NoError(t, c.Feed(testFrame(4, 4, 200*time.Millisecond)))
	require.NoError(t, c.Feed(testFrame(4, 4, 250*time.Millisecond)))
	assert.Zero(t, out.Len(), "animation is written on close")
	require.NoError(t, c.Close())

	anim, err := gif.DecodeAll(&out)
	require.NoError(t, err)
	require.Len(t, anim.Image, 3)
	assert.Equal(t, []int{20, 5, 10}, anim.Delay)
}

func TestGIF_FixedDelayOption(t *testing.T) {
	var out bytes.Buffer
	c, err := NewGIF(4, 4, &out, extension.Options{"frame_delay_ms": 100, "dither": false})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	require.NoError(t, c.Feed(testFrame(4, 4, 0)))
	require.NoError(t, c.Feed(testFrame(4, 4, time.Second)))
	require.NoError(t, c.Close())

	anim, err := gif.DecodeAll(&out)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10}, anim.Delay)
}

func TestGIF_NoFramesWritesNothing(t *testing.T) {
	var out bytes.Buffer
	c, err := NewGIF(4, 4, &out, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.NoError(t, c.Close())
	assert.Zero(t, out.Len())
}

func TestMJPEG_WritesOnePartPerFrame(t *testing.T) {
	var out bytes.Buffer
	c, err := NewMJPEG(4, 4, &out, extension.Options{"boundary": "cap"})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Feed(testFrame(4, 4, time.Duration(i)*time.Second)))
	}
	require.NoError(t, c.Close())

	body := out.String()
	assert.Equal(t, 4, strings.Count(body, "--cap"))
	assert.Equal(t, 3, strings.Count(body, "Content-Type: image/jpeg"))
	assert.Contains(t, body, "X-Timestamp: 2000")
	assert.True(t, strings.HasSuffix(body, "--cap--\r\n"))
	assert.EqualValues(t, 3, c.(*MJPEGCodec).Frames())
}

func TestRegistries_Enumerate(t *testing.T) {
	names := func(r *Registry) []string {
		var out []string
		for _, d := range r.Enumerate() {
			out = append(out, d.Name)
		}
		return out
	}
	assert.Equal(t, []string{"png", "jpeg", "bmp"}, names(StillCodecs()))
	assert.Equal(t, []string{"gif", "mjpeg"}, names(VideoCodecs()))

	_, err := VideoCodecs().Lookup("hevc")
	require.ErrorIs(t, err, extension.ErrNotRegistered)
}

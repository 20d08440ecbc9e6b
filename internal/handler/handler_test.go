package handler

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/stream"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC) }

func testParams(t *testing.T, fs afero.Fs, kind config.WorkflowType, c codec.Codec, opts extension.Options) Params {
	t.Helper()
	return Params{
		Workflow: config.Workflow{Name: "test", Type: kind},
		Codec:    c,
		Stream:   stream.New(),
		Options:  opts,
		Fs:       fs,
		Logger:   logger.Nop(),
		Now:      fixedNow,
	}
}

func solidFrame(w, h int) *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 10, 10, 255
	}
	return &capture.Frame{Image: img}
}

func encodeInto(t *testing.T, factory codec.Factory, ms *stream.MultiStream) codec.Codec {
	t.Helper()
	c, err := factory(6, 6, ms, nil)
	require.NoError(t, err)
	return c
}

func TestResolvePath(t *testing.T) {
	png, err := codec.NewPNG(6, 6, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	p := testParams(t, nil, config.Still, png, nil)

	assert.Equal(t, "/shots/Screenshot 2024-03-05 07.08.09.png",
		ResolvePath("/shots/(Type) (Year)-(Month)-(Day) (Hour).(Minute).(Second).(Extension)", p))

	t.Setenv("CAPTAIN_TEST_DIR", "/env")
	assert.Equal(t, "/env/24/Screenshot.png", ResolvePath("$CAPTAIN_TEST_DIR/{1}/{7}.{8}", p))

	mj, err := codec.NewMJPEG(6, 6, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	p = testParams(t, nil, config.Motion, mj, nil)
	assert.Equal(t, "/r/Recording.mjpeg", ResolvePath("/r/{7}.{8}", p))
}

func TestFile_WritesThroughStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	ms := stream.New()
	c := encodeInto(t, codec.NewPNG, ms)

	p := testParams(t, fs, config.Still, c, extension.Options{"path_template": "/out/{7}.{8}"})
	h, err := NewFile(p)
	require.NoError(t, err)

	f := h.(*File)
	assert.Equal(t, "/out/Screenshot.png", f.Path())
	assert.Equal(t, "file", f.URI().Scheme)
	assert.Equal(t, "/out/Screenshot.png", f.URI().Path)

	require.NoError(t, ms.Add(f.OutputStream()))
	require.NoError(t, c.Start())
	require.NoError(t, c.Feed(solidFrame(6, 6)))
	require.NoError(t, c.Close())

	require.NoError(t, h.Handle())
	require.NoError(t, h.Close())

	data, err := afero.ReadFile(fs, "/out/Screenshot.png")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
}

func TestFile_DeletesEmptyOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := encodeInto(t, codec.NewGIF, stream.New())

	h, err := NewFile(testParams(t, fs, config.Motion, c, extension.Options{"path_template": "/out/{7}.{8}"}))
	require.NoError(t, err)

	require.NoError(t, h.Handle())

	exists, err := afero.Exists(fs, "/out/Recording.gif")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, h.(URIProvider).URI())
}

func TestFile_RefusesToOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/Screenshot.png", []byte("keep"), 0644))

	c := encodeInto(t, codec.NewPNG, stream.New())
	_, err := NewFile(testParams(t, fs, config.Still, c, extension.Options{"path_template": "/out/{7}.{8}"}))
	assert.ErrorIs(t, err, ErrFileExists)

	data, err := afero.ReadFile(fs, "/out/Screenshot.png")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

type fakeClipboard struct {
	data [][]byte
	err  error
}

func (f *fakeClipboard) WriteImage(data []byte) error {
	f.data = append(f.data, data)
	return f.err
}

func TestClipboard_RejectsUnsupportedMediaType(t *testing.T) {
	c := encodeInto(t, codec.NewMJPEG, stream.New())
	_, err := NewClipboardWith(&fakeClipboard{})(testParams(t, nil, config.Motion, c, nil))
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestClipboard_PublishesPNG(t *testing.T) {
	tests := []struct {
		name    string
		factory codec.Factory
	}{
		{"png", codec.NewPNG},
		{"jpeg", codec.NewJPEG},
		{"bmp", codec.NewBMP},
		{"gif", codec.NewGIF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := stream.New()
			c := encodeInto(t, tt.factory, ms)
			cb := &fakeClipboard{}

			h, err := NewClipboardWith(cb)(testParams(t, nil, config.Still, c, nil))
			require.NoError(t, err)
			require.NoError(t, ms.Add(h.(StreamContributor).OutputStream()))

			require.NoError(t, c.Start())
			require.NoError(t, c.Feed(solidFrame(6, 6)))
			require.NoError(t, c.Close())
			require.NoError(t, h.Handle())
			require.NoError(t, h.Close())

			require.Len(t, cb.data, 1)
			img, err := png.Decode(bytes.NewReader(cb.data[0]))
			require.NoError(t, err)
			r, _, _, _ := img.At(2, 2).RGBA()
			assert.Greater(t, r, uint32(0x8000))
		})
	}
}

func TestClipboard_EmptyOutputSkipsWrite(t *testing.T) {
	c := encodeInto(t, codec.NewPNG, stream.New())
	cb := &fakeClipboard{}
	h, err := NewClipboardWith(cb)(testParams(t, nil, config.Still, c, nil))
	require.NoError(t, err)

	require.NoError(t, h.Handle())
	assert.Empty(t, cb.data)
}

func TestDefaults(t *testing.T) {
	reg := Defaults()
	assert.Equal(t, "handler", reg.Capability())

	names := []string{}
	for _, d := range reg.Enumerate() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"file", "clipboard"}, names)
}

func TestFile_Discard(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := encodeInto(t, codec.NewPNG, stream.New())

	h, err := NewFile(testParams(t, fs, config.Still, c, extension.Options{"path_template": "/out/{7}.{8}"}))
	require.NoError(t, err)
	require.NoError(t, h.(Discarder).Discard())

	exists, err := afero.Exists(fs, "/out/Screenshot.png")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, h.Close())
}

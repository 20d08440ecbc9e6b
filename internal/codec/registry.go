package codec

import "github.com/bryanchriswhite/captain/internal/extension"

// StillCodecs returns the table of built-in still image codecs
func StillCodecs() *Registry {
	r := extension.NewRegistry[Factory]("still image codec")
	r.MustRegister("png", "PNG", NewPNG)
	r.MustRegister("jpeg", "JPEG", NewJPEG)
	r.MustRegister("bmp", "Bitmap", NewBMP)
	return r
}

// VideoCodecs returns the table of built-in motion codecs
func VideoCodecs() *Registry {
	r := extension.NewRegistry[Factory]("video codec")
	r.MustRegister("gif", "Animated GIF", NewGIF)
	r.MustRegister("mjpeg", "Motion JPEG", NewMJPEG)
	return r
}

package imaging

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"

	"gocv.io/x/gocv"
)

const (
	// DefaultMaxEdge bounds the longest side of a stored image in pixels.
	DefaultMaxEdge = 1920
	// DefaultQuality is the JPEG quality used when re-encoding.
	DefaultQuality = 85

	stampLayout = "2006-01-02 15:04:05"
)

// Compressor downsizes and re-encodes captures before they are stored inline.
type Compressor struct {
	maxEdge int
	quality int
	logger  *logger.Logger
}

// NewCompressor reads the size and quality limits from the configuration.
func NewCompressor(config *config.Config, logger *logger.Logger) *Compressor {
	c := &Compressor{
		maxEdge: config.MaxImageEdge,
		quality: config.JPEGQuality,
		logger:  logger,
	}
	if c.maxEdge <= 0 {
		c.maxEdge = DefaultMaxEdge
	}
	if c.quality <= 0 || c.quality > 100 {
		c.quality = DefaultQuality
	}
	return c
}

// Compress scales the image so its long edge fits maxEdge and encodes it as JPEG.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	width, height := mat.Cols(), mat.Rows()
	if size, ok := fitLongEdge(width, height, c.maxEdge); ok {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(size.X, size.Y), 0, 0, gocv.InterpolationArea)
		if resized.Empty() {
			return nil, fmt.Errorf("failed to resize image")
		}
		c.logger.Info("Resized capture from %dx%d to %dx%d", width, height, size.X, size.Y)
		return c.encode(resized)
	}
	return c.encode(mat)
}

func (c *Compressor) encode(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(".jpg", mat, []int{int(gocv.IMWriteJpegQuality), c.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// fitLongEdge returns the scaled size when the long edge exceeds maxEdge, preserving aspect ratio.
func fitLongEdge(width, height, maxEdge int) (image.Point, bool) {
	long := width
	if height > long {
		long = height
	}
	if maxEdge <= 0 || long <= maxEdge {
		return image.Point{}, false
	}
	scale := float64(maxEdge) / float64(long)
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h), true
}

// Stamper draws a capture timestamp onto images uploaded without one.
type Stamper struct {
	logger *logger.Logger
}

func NewStamper(logger *logger.Logger) *Stamper {
	return &Stamper{logger: logger}
}

// Stamp writes the timestamp into the bottom-left corner and returns a re-encoded JPEG.
func (s *Stamper) Stamp(img []byte, at time.Time) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	label := at.Local().Format(stampLayout)
	scale := float64(mat.Cols()) / 1280
	if scale < 0.5 {
		scale = 0.5
	}
	thickness := int(2 * scale)
	if thickness < 1 {
		thickness = 1
	}
	pt := image.Pt(int(20*scale), mat.Rows()-int(20*scale))

	shadow := color.RGBA{0, 0, 0, 0}
	white := color.RGBA{255, 255, 255, 0}
	if err := gocv.PutText(&mat, label, pt.Add(image.Pt(2, 2)), gocv.FontHersheySimplex, scale, shadow, thickness+1); err != nil {
		return nil, fmt.Errorf("failed to draw text shadow: %v", err)
	}
	if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, scale, white, thickness); err != nil {
		return nil, fmt.Errorf("failed to draw text: %v", err)
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

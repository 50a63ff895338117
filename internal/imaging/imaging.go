// Package imaging loads, validates and thumbnails uploaded images.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	UserAgent = "Vizion/1.0"

	// MaxBytes caps downloaded and decoded uploads.
	MaxBytes = 10 << 20

	// MaxPixels caps declared dimensions before any full decode.
	MaxPixels = 268_402_689

	ThumbWidth   = 400
	ThumbHeight  = 400
	ThumbQuality = 80
)

var ErrInvalidImage = errors.New("invalid image data")

// DownloadError is returned when the remote server answers with a non-2xx status.
type DownloadError struct {
	Status string
}

func (e *DownloadError) Error() string {
	return "Failed to download image from URL: " + e.Status
}

var allowed = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Image is validated upload data.
type Image struct {
	Data   []byte
	MIME   string
	Ext    string
	Width  int
	Height int
}

// Fetch downloads url with the service User-Agent.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &DownloadError{Status: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", MaxBytes, ErrInvalidImage)
	}
	return data, nil
}

// DecodeBase64 accepts raw base64 or a data URL.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	if base64.StdEncoding.DecodedLen(len(s)) > MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", MaxBytes, ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", ErrInvalidImage)
	}
	return data, nil
}

// Inspect sniffs the content type and reads the dimensions.
func Inspect(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	mt := mimetype.Detect(data)
	ext, ok := allowed[mt.String()]
	if !ok {
		return nil, fmt.Errorf("unsupported type %s: %w", mt.String(), ErrInvalidImage)
	}
	cfg, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}
	return &Image{Data: data, MIME: mt.String(), Ext: ext, Width: cfg.Width, Height: cfg.Height}, nil
}

// decodeConfig reads the header and rejects images whose pixel count would
// make a full decode exhaust memory.
func decodeConfig(data []byte) (image.Config, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, fmt.Errorf("decode header: %w", ErrInvalidImage)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return cfg, fmt.Errorf("%s is %dx%d, over %d pixels: %w", format, cfg.Width, cfg.Height, MaxPixels, ErrInvalidImage)
	}
	return cfg, nil
}

// FitInside scales w x h to fit inside maxW x maxH keeping the aspect
// ratio. Images already inside the box are returned unchanged.
func FitInside(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		nh := h * maxW / w
		return maxW, max(1, nh)
	}
	nw := w * maxH / h
	return max(1, nw), maxH
}

// Thumbnail renders a JPEG no larger than ThumbWidth x ThumbHeight.
func Thumbnail(data []byte) ([]byte, error) {
	if _, err := decodeConfig(data); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", ErrInvalidImage)
	}
	b := src.Bounds()
	w, h := FitInside(b.Dx(), b.Dy(), ThumbWidth, ThumbHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

package pixelprompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"time"

	"golang.org/x/image/draw"

	"github.com/eringen/pixelprompt/blob"
)

const (
	maxImageWidth = 1600
	jpegQuality   = 85
	maxUploadSize = 10 << 20 // 10MB
)

// errInvalidImage marks uploads that are not a decodable image.
var errInvalidImage = errors.New("invalid image")

// uploadedImage is an image stored in the blob store.
type uploadedImage struct {
	Ref    string
	URL    string
	Width  int
	Height int
	Size   int
}

// processImage decodes an image from src, resizes it to maxImageWidth if it
// is wider, and encodes it as JPEG.
func processImage(src io.Reader) ([]byte, int, int, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", errInvalidImage, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Resize if wider than max
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w = maxImageWidth
		h = newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

// storeImage processes src and writes it to bs under a fresh reference.
func storeImage(ctx context.Context, bs blob.Store, src io.Reader) (uploadedImage, error) {
	data, w, h, err := processImage(src)
	if err != nil {
		return uploadedImage{}, err
	}
	ref, err := blob.NewRef(time.Now())
	if err != nil {
		return uploadedImage{}, err
	}
	if err := bs.Put(ctx, ref, data); err != nil {
		return uploadedImage{}, err
	}
	return uploadedImage{Ref: ref, URL: bs.URL(ref), Width: w, Height: h, Size: len(data)}, nil
}

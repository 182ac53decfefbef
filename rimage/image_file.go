package rimage

import (
	"bufio"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ReadImageFromFile decodes any registered image format (png, jpeg, qoi, ppm).
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", path)
	}
	return img, nil
}

// ReadBufferFromFile reads an image file into a PixelBuffer. When raw is set the image is read as a
// single channel Bayer mosaic.
func ReadBufferFromFile(path string, raw bool) (*PixelBuffer, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img, raw), nil
}

// WriteImageToFile writes the image to the given path, picking the encoder from the extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return png.Encode(f, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case ".qoi":
		return qoi.Encode(f, img)
	case ".ppm":
		return ppm.Encode(f, toRGBA(img))
	default:
		return errors.Errorf("rimage.WriteImageToFile unsupported format: %s", ext)
	}
}

// WriteBufferToFile writes the buffer to the given path, picking the encoder from the extension.
func WriteBufferToFile(path string, b *PixelBuffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return WriteImageToFile(path, b.ToImage())
}

// toRGBA returns img as an *image.RGBA, the only model the ppm encoder writes.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

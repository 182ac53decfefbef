package rimage

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func gradientRGB(w, h int) *PixelBuffer {
	b := NewPixelBuffer(w, h, RGB8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.SetRGB(x, y, uint8(x*7), uint8(y*11), uint8((x+y)*3))
		}
	}
	return b
}

func TestValidate(t *testing.T) {
	test.That(t, NewPixelBuffer(4, 3, RGB8).Validate(), test.ShouldBeNil)
	test.That(t, NewPixelBuffer(0, 0, Raw8).Validate(), test.ShouldBeNil)

	bad := &PixelBuffer{Width: 4, Height: 3, Format: RGB8, Pix: make([]byte, 11)}
	err := bad.Validate()
	test.That(t, errors.Is(err, ErrInputInvalid), test.ShouldBeTrue)

	err = (&PixelBuffer{Width: 1, Height: 1, Format: Format(9), Pix: []byte{0}}).Validate()
	test.That(t, errors.Is(err, ErrInputInvalid), test.ShouldBeTrue)

	var nilBuf *PixelBuffer
	test.That(t, nilBuf.Empty(), test.ShouldBeTrue)
	test.That(t, errors.Is(nilBuf.Validate(), ErrInputInvalid), test.ShouldBeTrue)
}

func TestCloneIsDeep(t *testing.T) {
	b := gradientRGB(5, 4)
	c := b.Clone()
	c.Pix[0] = 99
	test.That(t, b.Pix[0], test.ShouldEqual, uint8(0))
	test.That(t, c.Width, test.ShouldEqual, b.Width)
}

func TestImageRoundTrip(t *testing.T) {
	b := gradientRGB(9, 6)
	back := FromImage(b.ToImage(), false)
	test.That(t, back, test.ShouldResemble, b)

	gray := ToGray(b)
	test.That(t, gray.Format, test.ShouldEqual, Gray8)
	raw := FromImage(gray.ToImage(), true)
	test.That(t, raw.Format, test.ShouldEqual, Raw8)
	test.That(t, raw.Pix, test.ShouldResemble, gray.Pix)

	rgb := ToRGB(gray)
	r, g, bl := rgb.RGBAt(3, 2)
	test.That(t, r, test.ShouldEqual, gray.At(3, 2, 0))
	test.That(t, g, test.ShouldEqual, r)
	test.That(t, bl, test.ShouldEqual, r)
}

func TestLuminance(t *testing.T) {
	b := NewPixelBuffer(2, 1, RGB8)
	b.SetRGB(0, 0, 255, 255, 255)
	lum := Luminance(b)
	test.That(t, lum.At(0, 0), test.ShouldAlmostEqual, 255.0, 1e-9)
	test.That(t, lum.At(0, 1), test.ShouldEqual, 0.0)
}

func TestConvolveAndBoxMean(t *testing.T) {
	m := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	identity, err := NewKernel([][]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(ConvolveFloat64(m, &identity), m), test.ShouldBeTrue)

	_, err = NewKernel([][]float64{{1, 2}, {3}}, 1)
	test.That(t, err, test.ShouldNotBeNil)

	// reflect 101 on a horizontal ramp keeps the sobel response symmetric at the border
	gx, _ := Gradients(m)
	test.That(t, gx.At(1, 0), test.ShouldEqual, 0.0)
	test.That(t, gx.At(1, 1), test.ShouldEqual, 8.0)

	mean := BoxMean(m, 3)
	test.That(t, mean.At(1, 1), test.ShouldAlmostEqual, 6.0, 1e-12)
	test.That(t, mean.At(0, 0), test.ShouldAlmostEqual, (1+2+5+6)/4.0, 1e-12)

	blurred := GaussianBlur(mat.NewDense(5, 5, []float64{
		7, 7, 7, 7, 7,
		7, 7, 7, 7, 7,
		7, 7, 7, 7, 7,
		7, 7, 7, 7, 7,
		7, 7, 7, 7, 7,
	}), 1.5)
	test.That(t, blurred.At(2, 2), test.ShouldAlmostEqual, 7.0, 1e-9)
	test.That(t, blurred.At(0, 4), test.ShouldAlmostEqual, 7.0, 1e-9)
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	b := gradientRGB(8, 5)
	for _, ext := range []string{".png", ".qoi", ".ppm"} {
		path := filepath.Join(dir, "frame"+ext)
		test.That(t, WriteBufferToFile(path, b), test.ShouldBeNil)
		back, err := ReadBufferFromFile(path, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Pix, test.ShouldResemble, b.Pix)
	}

	_, isRGBA := b.ToImage().(*image.RGBA)
	test.That(t, isRGBA, test.ShouldBeTrue)

	gray := NewPixelBuffer(3, 2, Gray8)
	copy(gray.Pix, []uint8{0, 40, 80, 120, 160, 200})
	grayPath := filepath.Join(dir, "gray.ppm")
	test.That(t, WriteBufferToFile(grayPath, gray), test.ShouldBeNil)
	grayBack, err := ReadBufferFromFile(grayPath, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grayBack.Format, test.ShouldEqual, RGB8)
	r, g, bl := grayBack.RGBAt(2, 1)
	test.That(t, []uint8{r, g, bl}, test.ShouldResemble, []uint8{200, 200, 200})

	err = WriteBufferToFile(filepath.Join(dir, "frame.bmp"), b)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadBufferFromFile(filepath.Join(dir, "missing.png"), false)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFormatNames(t *testing.T) {
	for _, f := range []Format{Gray8, Raw8, RGB8} {
		parsed, err := FormatFromString(f.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, f)
	}
	_, err := FormatFromString("yuv")
	test.That(t, err, test.ShouldNotBeNil)
}

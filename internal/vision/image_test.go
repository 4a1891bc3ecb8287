package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/geom"
)

func TestCropRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := cropRegion(img, geom.Rect{X: 0.25, Y: 0.25, W: 0.5, H: 0.5})
	require.NotNil(t, crop)
	assert.Equal(t, 50, crop.Bounds().Dx())
	assert.Equal(t, 50, crop.Bounds().Dy())
}

func TestCropRegionClampsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := cropRegion(img, geom.Rect{X: 0.9, Y: 0.9, W: 0.5, H: 0.5})
	require.NotNil(t, crop)
	assert.Equal(t, 10, crop.Bounds().Dx())
	assert.Equal(t, 10, crop.Bounds().Dy())
}

func TestCropRegionEmpty(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	assert.Nil(t, cropRegion(img, geom.Rect{X: 1.5, Y: 1.5, W: 0.2, H: 0.2}))
	assert.Nil(t, cropRegion(img, geom.Rect{X: 0.5, Y: 0.5, W: 0, H: 0}))
	assert.Nil(t, cropRegion(nil, geom.Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}))
}

func TestImageToFloat32CHWShapeAndScale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}

	data := imageToFloat32CHW(img, 4, 4, [3]float32{0, 0, 0}, [3]float32{255, 255, 255})

	require.Len(t, data, 3*4*4)
	for _, v := range data {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestResizeImageDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 123, 57))
	out := resizeImage(img, 64, 64)
	assert.Equal(t, 64, out.Bounds().Dx())
	assert.Equal(t, 64, out.Bounds().Dy())
}

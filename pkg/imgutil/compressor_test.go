package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeSolid(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

// createDummyImageData は 10x10 の赤い正方形を指定フォーマットで返します。
func createDummyImageData(t *testing.T, format string) []byte {
	t.Helper()
	data := encodeSolid(t, 10, 10, color.RGBA{R: 255, A: 255})
	if format == "png" {
		return data
	}
	img, _, err := Decode(data)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, img, nil))
	return buf.Bytes()
}

func TestToJPEG(t *testing.T) {
	t.Run("PNG を JPEG に変換できるのだ", func(t *testing.T) {
		got, err := ToJPEG(createDummyImageData(t, "png"), JPEGOptions{Quality: 80})
		require.NoError(t, err)
		_, format, err := Decode(got)
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("長辺が上限を超えると縮小されるのだ", func(t *testing.T) {
		got, err := ToJPEG(encodeSolid(t, 400, 100, color.White), JPEGOptions{Quality: 80, MaxSide: 200})
		require.NoError(t, err)
		img, _, err := Decode(got)
		require.NoError(t, err)
		assert.Equal(t, 200, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("上限以下ならサイズは変わらないのだ", func(t *testing.T) {
		got, err := ToJPEG(encodeSolid(t, 30, 20, color.White), JPEGOptions{MaxSide: 200})
		require.NoError(t, err)
		img, _, err := Decode(got)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())
	})

	t.Run("透過部分は白になるのだ", func(t *testing.T) {
		got, err := ToJPEG(encodeSolid(t, 8, 8, color.NRGBA{}), JPEGOptions{Quality: 100})
		require.NoError(t, err)
		img, _, err := Decode(got)
		require.NoError(t, err)
		r, g, b, _ := img.At(4, 4).RGBA()
		assert.Greater(t, r>>8, uint32(240))
		assert.Greater(t, g>>8, uint32(240))
		assert.Greater(t, b>>8, uint32(240))
	})

	t.Run("画像でないデータはエラーなのだ", func(t *testing.T) {
		_, err := ToJPEG([]byte("not an image"), JPEGOptions{})
		assert.Error(t, err)
	})

	t.Run("品質が低いほど小さくなるのだ", func(t *testing.T) {
		src := image.NewRGBA(image.Rect(0, 0, 64, 64))
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				src.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x ^ y), A: 255})
			}
		}
		buf := new(bytes.Buffer)
		require.NoError(t, png.Encode(buf, src))

		high, err := ToJPEG(buf.Bytes(), JPEGOptions{Quality: 100})
		require.NoError(t, err)
		low, err := ToJPEG(buf.Bytes(), JPEGOptions{Quality: 10})
		require.NoError(t, err)
		assert.Less(t, len(low), len(high))
	})
}

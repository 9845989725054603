package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// JPEGOptions は参照画像を JPEG に再エンコードする際の設定です。
type JPEGOptions struct {
	Quality int
	// MaxSide が正の場合、長辺がこれを超える画像は縦横比を保って縮小します。
	MaxSide int
}

// ToJPEG は PNG, GIF, WebP, JPEG の画像データを JPEG に変換します。
func ToJPEG(data []byte, opt JPEGOptions) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if opt.MaxSide > 0 {
		b := img.Bounds()
		if b.Dx() > opt.MaxSide || b.Dy() > opt.MaxSide {
			img = Fit(img, opt.MaxSide, opt.MaxSide)
		}
	}

	q := opt.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, flatten(img), &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("JPEG へのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten は透過部分を白で塗りつぶします。JPEG はアルファを持たないためです。
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

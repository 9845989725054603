package export

import (
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"

	"github.com/fogleman/gg"

	"github.com/shouni/gemini-canvas-kit/pkg/canvas"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/imgutil"
)

// BoardOptions はボード全体を1枚の PNG に描画するときの設定です。
type BoardOptions struct {
	// Scale はキャンバス単位1あたりのピクセル数です。
	Scale float64
	// Padding は画像の外周の余白 (ピクセル) です。
	Padding int
	// MaxSide は出力画像の長辺の上限です。超える場合は Scale を下げます。
	MaxSide    int
	Background color.Color
}

// DefaultBoardOptions は等倍・余白 40px・長辺 8192px までの設定を返します。
func DefaultBoardOptions() BoardOptions {
	return BoardOptions{
		Scale:      1,
		Padding:    40,
		MaxSide:    8192,
		Background: color.RGBA{R: 0x11, G: 0x11, B: 0x14, A: 0xff},
	}
}

// titleBarHeight はカード下のタイトル欄の高さ (ピクセル) です。
const titleBarHeight = 22.0

// WriteBoard はエンティティをキャンバス上の配置どおりに描画し、PNG として書き出します。
// loading のカードは枠とタイトルだけを描きます。
func WriteBoard(w io.Writer, entities []domain.ImageEntity, opt BoardOptions) error {
	if len(entities) == 0 {
		return ErrNothingToExport
	}
	def := DefaultBoardOptions()
	if opt.Scale <= 0 {
		opt.Scale = def.Scale
	}
	if opt.MaxSide <= 0 {
		opt.MaxSide = def.MaxSide
	}
	if opt.Background == nil {
		opt.Background = def.Background
	}

	minX, minY, maxX, maxY := bounds(entities)
	pad := float64(max(opt.Padding, 0))
	size := func() (float64, float64) {
		return (maxX-minX)*opt.Scale + 2*pad, (maxY-minY)*opt.Scale + 2*pad + titleBarHeight
	}
	width, height := size()
	if longest := math.Max(width, height); longest > float64(opt.MaxSide) {
		opt.Scale *= float64(opt.MaxSide) / longest
		width, height = size()
	}

	dc := gg.NewContext(int(math.Ceil(width)), int(math.Ceil(height)))
	dc.SetColor(opt.Background)
	dc.Clear()

	toPx := func(p domain.Point) (float64, float64) {
		return (p.X-minX)*opt.Scale + pad, (p.Y-minY)*opt.Scale + pad
	}

	for _, e := range entities {
		x, y := toPx(e.Position)
		cw, ch := canvas.CardSize(e.AspectRatio)
		cw, ch = cw*opt.Scale, ch*opt.Scale

		dc.SetColor(color.RGBA{R: 0x22, G: 0x22, B: 0x28, A: 0xff})
		dc.DrawRectangle(x, y, cw, ch+titleBarHeight)
		dc.Fill()

		if img, ok := e.Image(); ok {
			if err := drawCardImage(dc, img, x, y, cw, ch); err != nil {
				slog.Warn("画像を描画できませんでした", "id", e.ID, "error", err)
			}
		} else {
			dc.SetColor(color.RGBA{R: 0x55, G: 0x55, B: 0x66, A: 0xff})
			dc.SetDash(6, 4)
			dc.DrawRectangle(x+4, y+4, cw-8, ch-8)
			dc.Stroke()
			dc.SetDash()
		}

		dc.SetColor(color.White)
		dc.DrawStringAnchored(truncate(dc, e.Title, cw-12), x+6, y+ch+titleBarHeight/2, 0, 0.35)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	return nil
}

func drawCardImage(dc *gg.Context, img domain.ImageData, x, y, w, h float64) error {
	decoded, _, err := imgutil.Decode(img.Bytes)
	if err != nil {
		return err
	}
	fitted := imgutil.Fit(decoded, int(w), int(h))
	b := fitted.Bounds()
	dc.DrawImage(fitted, int(x+(w-float64(b.Dx()))/2), int(y+(h-float64(b.Dy()))/2))
	return nil
}

// bounds はすべてのカードを囲む矩形をキャンバス座標で返します。
func bounds(entities []domain.ImageEntity) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, e := range entities {
		w, h := canvas.CardSize(e.AspectRatio)
		minX = math.Min(minX, e.Position.X)
		minY = math.Min(minY, e.Position.Y)
		maxX = math.Max(maxX, e.Position.X+w)
		maxY = math.Max(maxY, e.Position.Y+h)
	}
	return minX, minY, maxX, maxY
}

// truncate は幅 maxW に収まるよう末尾を省略した文字列を返します。
func truncate(dc *gg.Context, s string, maxW float64) string {
	if w, _ := dc.MeasureString(s); w <= maxW {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		cand := string(r) + "..."
		if w, _ := dc.MeasureString(cand); w <= maxW {
			return cand
		}
	}
	return ""
}

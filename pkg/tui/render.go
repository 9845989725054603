package tui

import (
	"math"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/shouni/gemini-canvas-kit/pkg/canvas"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

// 1セルあたりのスクリーン座標です。端末の文字は縦長なので高さを2倍にしています。
const (
	cellW = 10.0
	cellH = 20.0
)

// grid は描画用の文字の二次元配列です。範囲外への書き込みは無視します。
type grid [][]rune

func newGrid(w, h int) grid {
	g := make(grid, h)
	for y := range g {
		g[y] = []rune(strings.Repeat(" ", w))
	}
	return g
}

func (g grid) set(x, y int, r rune) {
	if y < 0 || y >= len(g) || x < 0 || x >= len(g[y]) {
		return
	}
	g[y][x] = r
}

func (g grid) text(x, y, width int, s string) {
	i := 0
	for _, r := range s {
		if i >= width {
			return
		}
		g.set(x+i, y, r)
		i++
	}
}

func (g grid) lines() []string {
	out := make([]string, len(g))
	for i, row := range g {
		out[i] = string(row)
	}
	return out
}

// cellRect はカードが占めるセルの範囲です。
type cellRect struct{ x, y, w, h int }

func cardCells(vp *canvas.Viewport, e domain.ImageEntity) cellRect {
	s := vp.CanvasToScreen(e.Position)
	cw, ch := canvas.CardSize(e.AspectRatio)
	return cellRect{
		x: int(math.Floor(s.X / cellW)),
		y: int(math.Floor(s.Y / cellH)),
		w: max(4, int(math.Round(cw*vp.Scale/cellW))),
		h: max(3, int(math.Round(ch*vp.Scale/cellH))),
	}
}

var (
	plainBorder    = [6]rune{'┌', '┐', '└', '┘', '─', '│'}
	selectedBorder = [6]rune{'╔', '╗', '╚', '╝', '═', '║'}
)

// drawBackground はキャンバス座標 100 単位ごとに点を打ち、パンとズームが見えるようにします。
func drawBackground(g grid, vp *canvas.Viewport) {
	const spacing = 100.0
	if len(g) == 0 {
		return
	}
	w, h := len(g[0]), len(g)
	topLeft := vp.ScreenToCanvas(domain.Point{})
	bottomRight := vp.ScreenToCanvas(domain.Point{X: float64(w) * cellW, Y: float64(h) * cellH})
	for cx := math.Floor(topLeft.X/spacing) * spacing; cx <= bottomRight.X; cx += spacing {
		for cy := math.Floor(topLeft.Y/spacing) * spacing; cy <= bottomRight.Y; cy += spacing {
			s := vp.CanvasToScreen(domain.Point{X: cx, Y: cy})
			g.set(int(s.X/cellW), int(s.Y/cellH), '·')
		}
	}
}

func drawCard(g grid, vp *canvas.Viewport, e domain.ImageEntity, selected bool) {
	r := cardCells(vp, e)
	b := plainBorder
	if selected {
		b = selectedBorder
	}
	for x := r.x + 1; x < r.x+r.w-1; x++ {
		g.set(x, r.y, b[4])
		g.set(x, r.y+r.h-1, b[4])
	}
	for y := r.y + 1; y < r.y+r.h-1; y++ {
		g.set(r.x, y, b[5])
		g.set(r.x+r.w-1, y, b[5])
		for x := r.x + 1; x < r.x+r.w-1; x++ {
			g.set(x, y, ' ')
		}
	}
	g.set(r.x, r.y, b[0])
	g.set(r.x+r.w-1, r.y, b[1])
	g.set(r.x, r.y+r.h-1, b[2])
	g.set(r.x+r.w-1, r.y+r.h-1, b[3])

	inner := r.w - 4
	if inner <= 0 || r.h < 3 {
		return
	}
	g.text(r.x+2, r.y+1, inner, e.Title)

	if e.IsLoading() {
		for y := r.y + 2; y < r.y+r.h-1; y++ {
			for x := r.x + 1; x < r.x+r.w-1; x++ {
				g.set(x, y, '░')
			}
		}
		return
	}
	wrapped := strings.Split(wordwrap.String(e.Prompt, inner), "\n")
	for i, line := range wrapped {
		y := r.y + 3 + i
		if y >= r.y+r.h-1 {
			break
		}
		g.text(r.x+2, y, inner, line)
	}
}

// renderCanvas は w×h セルのキャンバスを描画します。後から追加されたカードほど手前に描きます。
func renderCanvas(board *canvas.Board, w, h int, selected string) []string {
	if w <= 0 || h <= 0 {
		return nil
	}
	g := newGrid(w, h)
	drawBackground(g, board.Viewport)
	for _, e := range board.Store.Snapshot() {
		drawCard(g, board.Viewport, e, e.ID == selected)
	}
	return g.lines()
}

package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/imgutil"
)

// PDFOptions は PDF 出力の設定です。単位は mm です。
type PDFOptions struct {
	Title       string
	PageSize    string // gofpdf のサイズ名 (A4, Letter など)
	Margin      float64
	WithPrompts bool
}

// DefaultPDFOptions は A4 縦・余白 15mm の設定を返します。
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{Title: "Gemini Canvas", PageSize: "A4", Margin: 15, WithPrompts: true}
}

// WritePDF は complete の画像を1ページに1枚ずつ並べた PDF を書き出します。
func WritePDF(w io.Writer, entities []domain.ImageEntity, opt PDFOptions) error {
	if opt.PageSize == "" {
		opt.PageSize = "A4"
	}
	if opt.Margin <= 0 {
		opt.Margin = 15
	}

	pdf := gofpdf.New("P", "mm", opt.PageSize, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(opt.Title, true)
	pdf.SetCreator("gemini-canvas", false)
	pdf.SetMargins(opt.Margin, opt.Margin, opt.Margin)
	pdf.SetAutoPageBreak(false, opt.Margin)

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*opt.Margin

	pages := 0
	for _, e := range entities {
		img, ok := e.Image()
		if !ok {
			continue
		}
		name, imgOpt, data, err := pdfImage(e.ID, img)
		if err != nil {
			return err
		}
		info := pdf.RegisterImageOptionsReader(name, imgOpt, bytes.NewReader(data))
		if pdf.Err() {
			return fmt.Errorf("register image %s: %w", e.ID, pdf.Error())
		}

		pdf.AddPage()
		pages++

		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(contentW, 8, tr(e.Title), "", 1, "L", false, 0, "")

		// 画像はタイトルの下、プロンプト欄の上に収まる大きさに縮小します。
		top := pdf.GetY() + 2
		footer := 0.0
		if opt.WithPrompts {
			footer = 30
		}
		maxH := pageH - opt.Margin - footer - top
		iw, ih := info.Extent()
		scale := min(contentW/iw, maxH/ih)
		dw, dh := iw*scale, ih*scale
		x := opt.Margin + (contentW-dw)/2
		pdf.ImageOptions(name, x, top, dw, dh, false, imgOpt, 0, "")

		if opt.WithPrompts {
			pdf.SetXY(opt.Margin, top+dh+4)
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(contentW, 4.5, tr(e.Prompt), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		}
	}
	if pages == 0 {
		return ErrNothingToExport
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// pdfImage は gofpdf が扱える形式 (JPEG / PNG) の画像を返します。それ以外は PNG に変換します。
func pdfImage(id string, img domain.ImageData) (string, gofpdf.ImageOptions, []byte, error) {
	switch img.MimeType {
	case "image/jpeg":
		return "img-" + id, gofpdf.ImageOptions{ImageType: "JPG"}, img.Bytes, nil
	case "image/png":
		return "img-" + id, gofpdf.ImageOptions{ImageType: "PNG"}, img.Bytes, nil
	}
	decoded, _, err := imgutil.Decode(img.Bytes)
	if err != nil {
		return "", gofpdf.ImageOptions{}, nil, fmt.Errorf("entity %s: %w", id, err)
	}
	data, err := imgutil.EncodePNG(decoded)
	if err != nil {
		return "", gofpdf.ImageOptions{}, nil, fmt.Errorf("entity %s: %w", id, err)
	}
	return "img-" + id, gofpdf.ImageOptions{ImageType: "PNG"}, data, nil
}

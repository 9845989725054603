package session

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

// DocumentVersion はエクスポート形式のバージョンです。
const DocumentVersion = 1

//go:embed schema/session.schema.json
var sessionSchema []byte

// ErrInvalidDocument はスキーマに合わない JSON を読み込もうとしたときのエラーです。
var ErrInvalidDocument = errors.New("invalid session document")

type document struct {
	Version   int             `json:"version"`
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Viewport  viewportDoc     `json:"viewport"`
	Images    []imageDocument `json:"images"`
}

type viewportDoc struct {
	Scale  float64      `json:"scale"`
	Origin domain.Point `json:"origin"`
}

type imageDocument struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Prompt      string             `json:"prompt"`
	AspectRatio domain.AspectRatio `json:"aspect_ratio"`
	Position    domain.Point       `json:"position"`
	MimeType    string             `json:"mime_type"`
	Data        []byte             `json:"data"` // base64
}

// Export はセッションを JSON で書き出します。loading の画像は含めません。
func Export(w io.Writer, sess domain.Session) error {
	doc := document{
		Version:   DocumentVersion,
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt.UTC(),
		UpdatedAt: sess.UpdatedAt.UTC(),
		Viewport:  viewportDoc{Scale: sess.Scale, Origin: sess.Origin},
		Images:    []imageDocument{},
	}
	for _, e := range sess.Images {
		img, ok := e.Image()
		if !ok {
			continue
		}
		doc.Images = append(doc.Images, imageDocument{
			ID:          e.ID,
			Title:       e.Title,
			Prompt:      e.Prompt,
			AspectRatio: e.AspectRatio,
			Position:    e.Position,
			MimeType:    img.MimeType,
			Data:        img.Bytes,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return nil
}

// Import は Export が書き出した JSON を検証して読み込みます。
func Import(r io.Reader) (domain.Session, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	if err := validate(raw); err != nil {
		return domain.Session{}, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	sess := domain.Session{
		ID:        doc.ID,
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Scale:     doc.Viewport.Scale,
		Origin:    doc.Viewport.Origin,
	}
	for _, d := range doc.Images {
		e, err := domain.NewCompleteEntity(d.ID, d.Title, d.Prompt, d.AspectRatio, d.Position,
			domain.ImageData{Bytes: d.Data, MimeType: d.MimeType})
		if err != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		sess.Images = append(sess.Images, e)
	}
	return sess, nil
}

func validate(raw []byte) error {
	res, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(sessionSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

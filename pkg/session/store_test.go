package session

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "sessions.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func completeEntity(t *testing.T, id string, pos domain.Point) domain.ImageEntity {
	t.Helper()
	e, err := domain.NewCompleteEntity(id, "Title "+id, "prompt "+id, domain.AspectWide, pos,
		domain.ImageData{Bytes: []byte("png-" + id), MimeType: "image/png"})
	require.NoError(t, err)
	return e
}

func sampleSession(t *testing.T) domain.Session {
	return domain.Session{
		ID:     "s1",
		Title:  "Neon city",
		Scale:  1.5,
		Origin: domain.Point{X: 12, Y: -8},
		Images: []domain.ImageEntity{
			completeEntity(t, "a", domain.Point{X: 10, Y: 20}),
			domain.NewPlaceholder("loading", "Generating...", "p", domain.AspectSquare, domain.Point{}),
			completeEntity(t, "b", domain.Point{X: 50, Y: 60}),
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, sampleSession(t)))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Neon city", got.Title)
	assert.Equal(t, 1.5, got.Scale)
	assert.Equal(t, domain.Point{X: 12, Y: -8}, got.Origin)
	assert.False(t, got.CreatedAt.IsZero())

	t.Run("loading の画像は保存されないのだ", func(t *testing.T) {
		require.Len(t, got.Images, 2)
		assert.Equal(t, "a", got.Images[0].ID)
		assert.Equal(t, "b", got.Images[1].ID)
	})

	t.Run("画像の中身と位置が復元されるのだ", func(t *testing.T) {
		img, ok := got.Images[1].Image()
		require.True(t, ok)
		assert.Equal(t, []byte("png-b"), img.Bytes)
		assert.Equal(t, "image/png", img.MimeType)
		assert.Equal(t, domain.Point{X: 50, Y: 60}, got.Images[1].Position)
		assert.Equal(t, domain.AspectWide, got.Images[1].AspectRatio)
		assert.Equal(t, "prompt b", got.Images[1].Prompt)
	})
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess := sampleSession(t)
	require.NoError(t, s.Save(ctx, sess))
	first, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	sess.Title = "Renamed"
	sess.Images = []domain.ImageEntity{completeEntity(t, "c", domain.Point{})}
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "c", got.Images[0].ID)
	assert.Equal(t, first.CreatedAt, got.CreatedAt, "作成日時は上書きされない")
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	older := sampleSession(t)
	require.NoError(t, s.Save(ctx, older))
	newer := domain.Session{ID: "s2", Title: "Empty", Scale: 1}
	require.NoError(t, s.Save(ctx, newer))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, 0, list[0].ImageCount)
	assert.Equal(t, "s1", list[1].ID)
	assert.Equal(t, 2, list[1].ImageCount)
	assert.Equal(t, base.Add(time.Second), list[1].UpdatedAt)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Save(ctx, sampleSession(t)))

	require.NoError(t, s.Delete(ctx, "s1"))

	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "s1"), domain.ErrSessionNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	s, err := Open(ctx, Options{Driver: DriverSQLite, Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleSession(t)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: DriverSQLite, Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Images, 2)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Options{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported storage driver")

	_, err = Open(ctx, Options{Driver: DriverSQLite})
	assert.ErrorContains(t, err, "sqlite path is required")

	_, err = Open(ctx, Options{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "postgres dsn is required")
}

func TestStore_Rebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	lite := &Store{driver: DriverSQLite}
	q := "SELECT * FROM t WHERE a = ? AND b = ?"

	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestExportImport(t *testing.T) {
	sess := sampleSession(t)
	sess.CreatedAt = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	sess.UpdatedAt = sess.CreatedAt

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sess))
	assert.NotContains(t, buf.String(), `"loading"`)

	got, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Scale, got.Scale)
	assert.Equal(t, sess.Origin, got.Origin)
	assert.True(t, sess.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Images, 2)
	img, ok := got.Images[0].Image()
	require.True(t, ok)
	assert.Equal(t, []byte("png-a"), img.Bytes)
}

func TestImport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"JSONではない", `not json`},
		{"必須項目がない", `{"version":1,"id":"x"}`},
		{"バージョン違い", `{"version":2,"id":"x","title":"","viewport":{"scale":1,"origin":{"x":0,"y":0}},"images":[]}`},
		{"縦横比が不正", `{"version":1,"id":"x","title":"","viewport":{"scale":1,"origin":{"x":0,"y":0}},
			"images":[{"id":"a","title":"","prompt":"","aspect_ratio":"2:1","position":{"x":0,"y":0},"mime_type":"image/png","data":"AA=="}]}`},
		{"倍率が範囲外", `{"version":1,"id":"x","title":"","viewport":{"scale":9,"origin":{"x":0,"y":0}},"images":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(bytes.NewBufferString(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

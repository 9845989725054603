// Package export はキャンバス上の画像をファイル・PDF・ボード全体の PNG として書き出します。
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/imgutil"
	"github.com/shouni/gemini-canvas-kit/pkg/utils"
)

// ErrNothingToExport は complete の画像が1枚もない場合のエラーです。
var ErrNothingToExport = errors.New("no completed images to export")

// SaveImage は complete のエンティティを dir に「タイトル.拡張子」で保存し、パスを返します。
// 同名のファイルがある場合は上書きします。
func SaveImage(dir string, e domain.ImageEntity) (string, error) {
	img, ok := e.Image()
	if !ok {
		return "", fmt.Errorf("entity %s is still loading", e.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	path := filepath.Join(dir, utils.DownloadName(e.Title)+imgutil.Extension(img.MimeType))
	if err := os.WriteFile(path, img.Bytes, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// SaveAll は complete の画像をすべて dir に保存します。
// タイトルが重複した場合は -2, -3 ... を付けて区別します。
func SaveAll(ctx context.Context, dir string, entities []domain.ImageEntity) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	used := make(map[string]bool)
	var paths []string
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		img, ok := e.Image()
		if !ok {
			continue
		}
		ext := imgutil.Extension(img.MimeType)
		name := utils.UniqueName(utils.DownloadName(e.Title), used)
		path := filepath.Join(dir, name+ext)
		if err := os.WriteFile(path, img.Bytes, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, ErrNothingToExport
	}
	slog.InfoContext(ctx, "画像を書き出しました", "dir", dir, "count", len(paths))
	return paths, nil
}

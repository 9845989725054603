// Package session はキャンバスのセッション (complete の画像と表示状態) を保存します。
// 既定ではローカルの SQLite を使い、設定で Postgres に切り替えられます。
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// schemaVersion はスキーマを変更したら上げ、migrations に手順を追加します。
	schemaVersion = 2
)

// Options は保存先の設定です。
type Options struct {
	Driver string
	Path   string // sqlite
	DSN    string // postgres
}

// Store はセッションの保存先です。
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open は保存先を開き、スキーマを最新にします。
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		db, err = openSQLite(ctx, opts.Path)
	case DriverPostgres:
		db, err = openPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, driver: opts.Driver, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "セッションストアを開きました", "driver", opts.Driver)
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		slog.WarnContext(ctx, "foreign_keys を有効にできませんでした", "error", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close は接続を閉じます。
func (s *Store) Close() error { return s.db.Close() }

// Save はセッションを保存します。同じIDがあれば上書きし、loading の画像は保存しません。
func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(upsertSessionSQL),
		sess.ID, sess.Title, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
		sess.Scale, sess.Origin.X, sess.Origin.Y); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(deleteImagesSQL), sess.ID); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}

	saved := 0
	for _, e := range sess.Images {
		img, ok := e.Image()
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.rebind(insertImageSQL),
			sess.ID, e.ID, saved, e.Title, e.Prompt, string(e.AspectRatio),
			e.Position.X, e.Position.Y, img.MimeType, img.Bytes); err != nil {
			return fmt.Errorf("insert image %s: %w", e.ID, err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "セッションを保存しました", "id", sess.ID, "images", saved)
	return nil
}

// Get はセッションを画像つきで読み込みます。
func (s *Store) Get(ctx context.Context, id string) (domain.Session, error) {
	var (
		sess             domain.Session
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(selectSessionSQL), id).Scan(
		&sess.ID, &sess.Title, &created, &updated, &sess.Scale, &sess.Origin.X, &sess.Origin.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx, s.rebind(selectImagesSQL), id)
	if err != nil {
		return domain.Session{}, fmt.Errorf("select images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			imgID, title, prompt, aspect, mime string
			x, y                               float64
			data                               []byte
		)
		if err := rows.Scan(&imgID, &title, &prompt, &aspect, &x, &y, &mime, &data); err != nil {
			return domain.Session{}, fmt.Errorf("scan image: %w", err)
		}
		e, err := domain.NewCompleteEntity(imgID, title, prompt, domain.AspectRatio(aspect),
			domain.Point{X: x, Y: y}, domain.ImageData{Bytes: data, MimeType: mime})
		if err != nil {
			slog.WarnContext(ctx, "壊れた画像をスキップしました", "session", id, "image", imgID, "error", err)
			continue
		}
		sess.Images = append(sess.Images, e)
	}
	return sess, rows.Err()
}

// List はセッションの一覧を更新日時の新しい順に返します。
func (s *Store) List(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, listSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum              domain.SessionSummary
			created, updated string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &created, &updated, &sum.ImageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete はセッションを削除します。
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(deleteImagesSQL), id); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(deleteSessionSQL), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return tx.Commit()
}

// rebind は ? のプレースホルダーを Postgres の $1, $2 ... に置き換えます。
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout は文字列のまま並べ替えられるよう桁数を固定しています。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

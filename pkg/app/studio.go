// Package app はキャンバス・生成・通知・セッション保存をひとつの操作単位にまとめます。
// UI (TUI や CLI) はこのパッケージの Studio だけを通してキャンバスを操作します。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/gemini-canvas-kit/pkg/canvas"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/export"
	"github.com/shouni/gemini-canvas-kit/pkg/notify"
	"github.com/shouni/gemini-canvas-kit/pkg/orchestrator"
)

// SessionStore はセッションの保存先です。session.Store が実装します。
type SessionStore interface {
	Save(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	List(ctx context.Context) ([]domain.SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

// ErrNoSessionStore はセッション保存先が設定されていない場合のエラーです。
var ErrNoSessionStore = errors.New("session storage is not configured")

// DefaultSessionTitle は名前を付けずに保存したセッションのタイトルです。
const DefaultSessionTitle = "Untitled Canvas"

// Deps は Studio の依存関係です。
type Deps struct {
	Images      orchestrator.ImageService
	Titles      orchestrator.TitleService
	Credentials orchestrator.CredentialProvider
	Sessions    SessionStore
	Config      orchestrator.Config
	NotifyTTL   time.Duration
	Settings    domain.Settings
}

// Studio は1枚のキャンバスと、それに対するすべての操作を所有します。
// Board の表示変換とドラッグは UI のイベントループから操作し、
// エンティティの追加・更新は生成のゴルーチンからも行われます。
type Studio struct {
	Board *canvas.Board

	orch     *orchestrator.Orchestrator
	notifier *notify.Channel
	sessions SessionStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	settings     domain.Settings
	state        domain.GenerationState
	sessionID    string
	sessionTitle string
	createdAt    time.Time
}

// New は Studio を作成します。Sessions が nil の場合はセッション操作が ErrNoSessionStore を返します。
func New(deps Deps) (*Studio, error) {
	board := canvas.NewBoard()
	notifier := notify.NewChannel(deps.NotifyTTL)
	orch, err := orchestrator.New(board.Store, deps.Images, deps.Titles, deps.Credentials, notifier, deps.Config)
	if err != nil {
		notifier.Close()
		return nil, err
	}
	settings := deps.Settings
	if settings == (domain.Settings{}) {
		settings = domain.DefaultSettings()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Studio{
		Board:     board,
		orch:      orch,
		notifier:  notifier,
		sessions:  deps.Sessions,
		ctx:       ctx,
		cancel:    cancel,
		settings:  settings.Normalize(),
		state:     domain.StateIdle,
		sessionID: uuid.NewString(),
	}, nil
}

// Notifications は通知チャネルを返します。
func (s *Studio) Notifications() *notify.Channel { return s.notifier }

// MaxCount は1回に生成できる最大枚数です。
func (s *Studio) MaxCount() int { return s.orch.Config().MaxCount }

// Settings は現在の生成設定を返します。
func (s *Studio) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings は生成設定を更新します。枚数は MaxCount を超えないように丸めます。
func (s *Studio) SetSettings(settings domain.Settings) {
	settings = settings.Normalize()
	if limit := s.MaxCount(); settings.NumImages > limit {
		settings.NumImages = limit
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// State は生成状態を返します。
func (s *Studio) State() domain.GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID は現在のセッションIDを返します。
func (s *Studio) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Generate は現在の設定でプロンプトから画像を生成します。
// viewW, viewH は表示領域の大きさ (スクリーン座標) で、プレースホルダーはその中心付近に置かれます。
func (s *Studio) Generate(prompt string, viewW, viewH float64) (*orchestrator.Batch, error) {
	settings := s.Settings()
	return s.submit(orchestrator.Request{
		Prompt:   prompt,
		Count:    settings.NumImages,
		Settings: settings,
		Spawn:    s.Board.SpawnPoint(viewW, viewH),
	})
}

// GenerateFromReference は参照画像 (http(s):// または gs://) つきで生成します。
func (s *Studio) GenerateFromReference(prompt, referenceURL string, viewW, viewH float64) (*orchestrator.Batch, error) {
	settings := s.Settings()
	return s.submit(orchestrator.Request{
		Prompt:       prompt,
		Count:        settings.NumImages,
		Settings:     settings,
		Spawn:        s.Board.SpawnPoint(viewW, viewH),
		ReferenceURL: referenceURL,
	})
}

// Variate は complete のカードの画像とプロンプトを参照に、その右隣へ新しい画像を生成します。
func (s *Studio) Variate(id string) (*orchestrator.Batch, error) {
	e, ok := s.Board.Store.Get(id)
	if !ok {
		return nil, fmt.Errorf("entity %s not found", id)
	}
	img, ok := e.Image()
	if !ok {
		return nil, fmt.Errorf("entity %s is still loading", id)
	}
	settings := s.Settings()
	settings.AspectRatio = e.AspectRatio
	w, _ := canvas.CardSize(e.AspectRatio)
	return s.submit(orchestrator.Request{
		Prompt:         e.Prompt,
		Count:          settings.NumImages,
		Settings:       settings,
		Spawn:          e.Position.Add(domain.Point{X: w + s.orch.Config().CascadeOffset}),
		ReferenceImage: img.Bytes,
	})
}

func (s *Studio) submit(req orchestrator.Request) (*orchestrator.Batch, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("studio is closed: %w", err)
	}
	b, err := s.orch.Submit(s.ctx, req)
	if err != nil {
		return nil, err
	}
	s.setState(domain.StateGenerating)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-b.Done()
		_, err := b.Wait(context.Background())
		if s.orch.InFlight() > 0 {
			return
		}
		if err != nil {
			s.setState(domain.StateError)
			return
		}
		s.setState(domain.StateComplete)
	}()
	return b, nil
}

func (s *Studio) setState(st domain.GenerationState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Wait は進行中のすべてのバッチが確定するまで待ちます。
func (s *Studio) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearCanvas はすべてのカードを取り除きます。生成中の結果は届いても無視されます。
func (s *Studio) ClearCanvas(ctx context.Context) {
	s.Board.PointerUp()
	removed := s.Board.Store.Clear()
	slog.InfoContext(ctx, "キャンバスをクリアしました", "removed", len(removed))
	s.notifier.Success(ctx, "Canvas cleared")
}

// Download は complete のカードの画像を dir に保存します。
func (s *Studio) Download(ctx context.Context, id, dir string) (string, error) {
	e, ok := s.Board.Store.Get(id)
	if !ok {
		return "", fmt.Errorf("entity %s not found", id)
	}
	path, err := export.SaveImage(dir, e)
	if err != nil {
		s.notifier.Error(ctx, "Could not save the image.")
		return "", err
	}
	s.notifier.Success(ctx, "Saved "+filepath.Base(path))
	return path, nil
}

// DownloadAll は complete の画像をすべて dir に保存します。
func (s *Studio) DownloadAll(ctx context.Context, dir string) ([]string, error) {
	paths, err := export.SaveAll(ctx, dir, s.Board.Store.Snapshot())
	if err != nil {
		s.notifier.Error(ctx, "Nothing to save yet.")
		return nil, err
	}
	s.notifier.Success(ctx, fmt.Sprintf("Saved %d image(s) to %s", len(paths), dir))
	return paths, nil
}

// ExportPDF は complete の画像を1枚ずつ並べた PDF を path に書き出します。
func (s *Studio) ExportPDF(ctx context.Context, path string) error {
	opt := export.DefaultPDFOptions()
	if title := s.currentTitle(); title != "" {
		opt.Title = title
	}
	return s.writeFile(ctx, path, func(f *os.File) error {
		return export.WritePDF(f, s.Board.Store.Snapshot(), opt)
	})
}

// ExportBoard はキャンバス全体を配置どおりに描いた PNG を path に書き出します。
func (s *Studio) ExportBoard(ctx context.Context, path string) error {
	return s.writeFile(ctx, path, func(f *os.File) error {
		return export.WriteBoard(f, s.Board.Store.Snapshot(), export.DefaultBoardOptions())
	})
}

func (s *Studio) writeFile(ctx context.Context, path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	werr := write(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		s.notifier.Error(ctx, "Export failed.")
		return err
	}
	s.notifier.Success(ctx, "Exported "+filepath.Base(path))
	return nil
}

// Snapshot は現在のキャンバスをセッションとして返します。loading のカードは含めません。
func (s *Studio) Snapshot() domain.Session {
	s.mu.Lock()
	sess := domain.Session{
		ID:        s.sessionID,
		Title:     s.sessionTitle,
		CreatedAt: s.createdAt,
	}
	s.mu.Unlock()

	sess.Scale = s.Board.Viewport.Scale
	sess.Origin = s.Board.Viewport.Origin
	for _, e := range s.Board.Store.Snapshot() {
		if !e.IsLoading() {
			sess.Images = append(sess.Images, e)
		}
	}
	return sess
}

// SaveSession は現在のキャンバスを保存します。title が空の場合は前回の名前を引き継ぎます。
func (s *Studio) SaveSession(ctx context.Context, title string) (domain.Session, error) {
	if s.sessions == nil {
		return domain.Session{}, ErrNoSessionStore
	}
	if title = strings.TrimSpace(title); title != "" {
		s.mu.Lock()
		s.sessionTitle = title
		s.mu.Unlock()
	}
	sess := s.Snapshot()
	if sess.Title == "" {
		sess.Title = DefaultSessionTitle
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.notifier.Error(ctx, "Could not save the canvas.")
		return domain.Session{}, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}
	s.mu.Lock()
	s.sessionTitle = sess.Title
	if s.createdAt.IsZero() {
		s.createdAt = time.Now().UTC()
	}
	s.mu.Unlock()
	s.notifier.Success(ctx, fmt.Sprintf("Saved %q (%d images)", sess.Title, len(sess.Images)))
	return sess, nil
}

// LoadSession は保存済みのセッションでキャンバスを置き換えます。
func (s *Studio) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	if s.sessions == nil {
		return domain.Session{}, ErrNoSessionStore
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		s.notifier.Error(ctx, "Could not open the canvas.")
		return domain.Session{}, err
	}
	if err := s.Restore(sess); err != nil {
		return domain.Session{}, err
	}
	s.notifier.Success(ctx, fmt.Sprintf("Opened %q", sess.Title))
	return sess, nil
}

// Restore はセッションの内容でキャンバスと表示状態を置き換えます。
func (s *Studio) Restore(sess domain.Session) error {
	s.Board.PointerUp()
	if err := s.Board.Store.Replace(sess.Images); err != nil {
		return fmt.Errorf("セッションの復元に失敗しました: %w", err)
	}
	s.Board.Viewport.Reset()
	if sess.Scale > 0 {
		s.Board.Viewport.Scale = sess.Scale
		s.Board.Viewport.Origin = sess.Origin
	}
	s.mu.Lock()
	s.sessionID = sess.ID
	s.sessionTitle = sess.Title
	s.createdAt = sess.CreatedAt
	s.mu.Unlock()
	return nil
}

// NewSession はキャンバスを空にして新しいセッションを始めます。
func (s *Studio) NewSession(ctx context.Context) {
	s.Board.PointerUp()
	s.Board.Store.Clear()
	s.Board.Viewport.Reset()
	s.mu.Lock()
	s.sessionID = uuid.NewString()
	s.sessionTitle = ""
	s.createdAt = time.Time{}
	s.mu.Unlock()
	slog.InfoContext(ctx, "新しいセッションを開始しました")
}

// Sessions は保存済みのセッション一覧を返します。
func (s *Studio) Sessions(ctx context.Context) ([]domain.SessionSummary, error) {
	if s.sessions == nil {
		return nil, ErrNoSessionStore
	}
	return s.sessions.List(ctx)
}

// DeleteSession は保存済みのセッションを削除します。
func (s *Studio) DeleteSession(ctx context.Context, id string) error {
	if s.sessions == nil {
		return ErrNoSessionStore
	}
	return s.sessions.Delete(ctx, id)
}

func (s *Studio) currentTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionTitle
}

// Close は進行中の生成を打ち切り、各バッチの巻き戻しが終わるのを待ってから通知チャネルを閉じます。
func (s *Studio) Close() {
	s.cancel()
	s.wg.Wait()
	s.notifier.Close()
}

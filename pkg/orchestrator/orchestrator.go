// Package orchestrator は画像生成のバッチを管理します。
// 送信と同時にプレースホルダーを配置し、生成結果に応じてキャンバスを更新・巻き戻します。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shouni/gemini-canvas-kit/pkg/canvas"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/notify"
)

// Orchestrator は生成要求を受け付け、キャンバス上のプレースホルダーの生成から解決までを担います。
type Orchestrator struct {
	store    *canvas.Store
	images   ImageService
	titles   TitleService
	creds    CredentialProvider
	notifier notify.Notifier
	cfg      Config
	limiter  *rate.Limiter
	inflight atomic.Int64
	// throttled はレート制限を一度でも受けたかどうかです。以後のバッチは逐次実行になります。
	throttled atomic.Bool
	newID     func() string
}

// New は Orchestrator を作成します。creds が nil の場合は認証情報の確認を行いません。
func New(store *canvas.Store, images ImageService, titles TitleService, creds CredentialProvider, notifier notify.Notifier, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if images == nil {
		return nil, fmt.Errorf("image service is required")
	}
	if titles == nil {
		return nil, fmt.Errorf("title service is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Orchestrator{
		store:    store,
		images:   images,
		titles:   titles,
		creds:    creds,
		notifier: notifier,
		cfg:      cfg,
		limiter:  limiter,
		newID:    uuid.NewString,
	}, nil
}

// Config は適用中の設定を返します。
func (o *Orchestrator) Config() Config { return o.cfg }

// InFlight は未完了のバッチ数を返します。
func (o *Orchestrator) InFlight() int { return int(o.inflight.Load()) }

// Batch は1回の送信で作られたプレースホルダーと、その生成処理です。
type Batch struct {
	ID  string
	IDs []string

	done   chan struct{}
	result Result
	err    error
}

// Done はバッチが確定すると閉じられるチャネルを返します。
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait はバッチの確定を待ちます。ctx が先に終わった場合はバッチを待たずに戻ります。
func (b *Batch) Wait(ctx context.Context) (Result, error) {
	select {
	case <-b.done:
		return b.result, b.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Generate は Submit してからバッチの確定まで待ちます。
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	b, err := o.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return b.Wait(ctx)
}

// Submit は入力を検証し、プレースホルダーをストアに追加してから生成をバックグラウンドで開始します。
// 戻った時点で count 件の loading エンティティが追加済みです。
// 検証に失敗した場合はストアを変更せず、エラー通知を1件出してエラーを返します。
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Batch, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		o.notifier.Error(ctx, "Describe your vision to begin.")
		return nil, domain.ErrEmptyPrompt
	}
	if req.Count < 1 || req.Count > o.cfg.MaxCount {
		o.notifier.Error(ctx, fmt.Sprintf("Choose between 1 and %d images.", o.cfg.MaxCount))
		return nil, fmt.Errorf("%w: %d (max %d)", domain.ErrInvalidCount, req.Count, o.cfg.MaxCount)
	}
	if err := o.ensureCredential(ctx); err != nil {
		o.notifier.Error(ctx, userMessage(err))
		return nil, err
	}

	settings := req.Settings.Normalize()
	genReq := domain.ImageGenerationRequest{
		Prompt:         prompt,
		NegativePrompt: settings.NegativePrompt,
		Style:          settings.Style,
		AspectRatio:    settings.AspectRatio,
		Quality:        settings.Quality,
		Creativity:     settings.Creativity,
		ReferenceURL:   req.ReferenceURL,
		ReferenceImage: req.ReferenceImage,
	}

	b := &Batch{ID: o.newID(), IDs: make([]string, req.Count), done: make(chan struct{})}
	placeholders := make([]domain.ImageEntity, req.Count)
	for i := range placeholders {
		b.IDs[i] = o.newID()
		offset := o.cfg.CascadeOffset * float64(i)
		pos := req.Spawn.Add(domain.Point{X: offset, Y: offset})
		placeholders[i] = domain.NewPlaceholder(b.IDs[i], o.cfg.PlaceholderTitle, prompt, settings.AspectRatio, pos)
	}
	if err := o.store.Append(placeholders...); err != nil {
		o.notifier.Error(ctx, userMessage(err))
		return nil, fmt.Errorf("プレースホルダーの追加に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "画像生成バッチを開始します",
		"batch", b.ID, "count", req.Count, "aspect", settings.AspectRatio, "quality", settings.Quality)

	o.inflight.Add(1)
	go o.run(ctx, b, genReq)
	return b, nil
}

func (o *Orchestrator) ensureCredential(ctx context.Context) error {
	if o.creds == nil || o.creds.HasCredential(ctx) {
		return nil
	}
	if err := o.creds.RequestCredential(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMissingCredential, err)
	}
	if !o.creds.HasCredential(ctx) {
		return domain.ErrMissingCredential
	}
	return nil
}

// slots は1バッチ内の各枠の結果です。各ゴルーチンは自分の添字にしか書き込みません。
type slots struct {
	produced []bool
	placed   []bool
	errs     []error
}

func (o *Orchestrator) run(ctx context.Context, b *Batch, req domain.ImageGenerationRequest) {
	defer close(b.done)
	defer o.inflight.Add(-1)

	start := time.Now()
	n := len(b.IDs)
	s := slots{produced: make([]bool, n), placed: make([]bool, n), errs: make([]error, n)}
	title := sync.OnceValue(func() string { return o.resolveTitle(ctx, req.Prompt) })

	var fatal error
	if o.sequential() {
		fatal = o.runSequential(ctx, b, req, &s, title)
	} else {
		fatal = o.runConcurrent(ctx, b, req, &s, title)
	}

	produced := 0
	var completed, failed []string
	for i, id := range b.IDs {
		if s.produced[i] {
			produced++
		}
		if s.placed[i] {
			completed = append(completed, id)
		} else {
			failed = append(failed, id)
		}
	}

	var err error
	switch {
	case fatal != nil:
		err = fatal
	case produced == 0:
		err = aggregate(s.errs)
	}

	if err != nil {
		removed := o.store.RemoveByIDs(b.IDs...)
		if errors.Is(err, domain.ErrAuthentication) && o.creds != nil {
			if rerr := o.creds.Reset(ctx); rerr != nil {
				slog.WarnContext(ctx, "認証情報のリセットに失敗しました", "error", rerr)
			}
		}
		slog.WarnContext(ctx, "画像生成バッチが失敗しました",
			"batch", b.ID, "kind", domain.Classify(err), "removed", removed, "error", err)
		o.notifier.Error(ctx, userMessage(firstCause(err, s.errs)))
		b.err = err
		b.result = Result{IDs: b.IDs, Elapsed: time.Since(start)}
		return
	}

	o.store.RemoveByIDs(failed...)
	b.result = Result{IDs: b.IDs, Completed: completed, Title: title(), Elapsed: time.Since(start)}
	slog.InfoContext(ctx, "画像生成バッチが完了しました",
		"batch", b.ID, "produced", produced, "placed", len(completed), "requested", n, "elapsed", b.result.Elapsed)
	if placed := len(completed); placed == n {
		o.notifier.Success(ctx, fmt.Sprintf("Generated %d image(s): %s", placed, b.result.Title))
	} else {
		o.notifier.Success(ctx, fmt.Sprintf("Generated %d of %d images: %s", placed, n, b.result.Title))
	}
}

// Throttled はレート制限を受けて逐次実行に切り替わっているかを返します。
func (o *Orchestrator) Throttled() bool { return o.throttled.Load() }

func (o *Orchestrator) sequential() bool {
	if o.cfg.Mode == ModeSequential || o.throttled.Load() {
		return true
	}
	rl, ok := o.images.(RateLimited)
	return ok && rl.RateLimited()
}

func (o *Orchestrator) runSequential(ctx context.Context, b *Batch, req domain.ImageGenerationRequest, s *slots, title func() string) error {
	for i := range b.IDs {
		if err := o.resolveSlot(ctx, b, i, req, s, title); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runConcurrent(ctx context.Context, b *Batch, req domain.ImageGenerationRequest, s *slots, title func() string) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range b.IDs {
		g.Go(func() error {
			return o.resolveSlot(gctx, b, i, req, s, title)
		})
	}
	return g.Wait()
}

// resolveSlot は i 番目の枠を生成して対応するプレースホルダーを complete にします。
// バッチ全体を中止すべきエラーの場合だけ error を返します。
func (o *Orchestrator) resolveSlot(ctx context.Context, b *Batch, i int, req domain.ImageGenerationRequest, s *slots, title func() string) error {
	resp, err := o.generateOne(ctx, req)
	if err == nil {
		var patch domain.Patch
		patch, err = domain.Resolve(imageData(resp), title())
		if err == nil {
			s.produced[i] = true
			s.placed[i] = o.store.PatchByID(b.IDs[i], patch)
			return nil
		}
		err = fmt.Errorf("%w: %w", domain.ErrNoImagesProduced, err)
	}

	err = normalize(err)
	if errors.Is(err, domain.ErrRateLimited) && o.throttled.CompareAndSwap(false, true) {
		slog.WarnContext(ctx, "レート制限を受けたため以後の生成を逐次実行に切り替えます", "batch", b.ID)
	}
	s.errs[i] = err
	slog.WarnContext(ctx, "画像の生成に失敗しました", "batch", b.ID, "slot", i, "error", err)
	if o.aborts(err) {
		return fmt.Errorf("slot %d: %w", i, err)
	}
	return nil
}

func (o *Orchestrator) generateOne(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return o.images.Generate(ctx, req)
}

// aborts はバッチ全体を中止すべきエラーかどうかを返します。
func (o *Orchestrator) aborts(err error) bool {
	if o.cfg.Policy == PolicyAllOrNothing {
		return true
	}
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrAuthentication)
}

// resolveTitle はタイトルを生成します。失敗しても画像の完了は妨げず、既定のタイトルになります。
func (o *Orchestrator) resolveTitle(ctx context.Context, prompt string) string {
	title, err := o.titles.GenerateTitle(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "タイトル生成に失敗したため既定のタイトルを使用します", "error", err)
		return o.cfg.DefaultTitle
	}
	if title = strings.TrimSpace(title); title == "" {
		return o.cfg.DefaultTitle
	}
	return title
}

func imageData(resp *domain.ImageResponse) domain.ImageData {
	if resp == nil {
		return domain.ImageData{}
	}
	return domain.ImageData{Bytes: resp.Data, MimeType: resp.MimeType}
}

// normalize は分類できないエラーを ErrGenerationFailed でくるみます。
func normalize(err error) error {
	for _, known := range []error{
		domain.ErrRateLimited,
		domain.ErrAuthentication,
		domain.ErrMissingCredential,
		domain.ErrGenerationFailed,
		domain.ErrNoImagesProduced,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
}

func aggregate(errs []error) error {
	var causes []error
	for _, err := range errs {
		if err != nil {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return domain.ErrNoImagesProduced
	}
	return fmt.Errorf("%w: %w", domain.ErrNoImagesProduced, errors.Join(causes...))
}

// firstCause は通知に使うエラーを選びます。集約エラーの場合は最初の枠のエラーを使います。
func firstCause(err error, errs []error) error {
	if domain.Classify(err) != domain.KindUnknown {
		return err
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return err
}

func userMessage(err error) string {
	switch domain.Classify(err) {
	case domain.KindPrecondition:
		return "Describe your vision to begin."
	case domain.KindAuth:
		return "API key is missing or invalid. Set it again to continue."
	case domain.KindRateLimit:
		return "Rate limit reached. Wait a moment and try again."
	case domain.KindEmptyResult:
		return "The engine returned no images."
	default:
		return "Generation failed: " + err.Error()
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-canvas-kit/pkg/canvas"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/notify"
)

type fixture struct {
	store    *canvas.Store
	images   *mockImageService
	titles   *mockTitleService
	creds    *mockCredentials
	notifier *recordingNotifier
	orch     *Orchestrator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:    canvas.NewStore(),
		images:   &mockImageService{},
		titles:   &mockTitleService{},
		creds:    &mockCredentials{},
		notifier: &recordingNotifier{},
	}
	f.creds.has.Store(true)
	orch, err := New(f.store, f.images, f.titles, f.creds, f.notifier, cfg)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func request(prompt string, count int) Request {
	return Request{Prompt: prompt, Count: count, Settings: domain.DefaultSettings()}
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew(t *testing.T) {
	_, err := New(nil, &mockImageService{}, &mockTitleService{}, nil, &recordingNotifier{}, Config{})
	assert.EqualError(t, err, "store is required")
	_, err = New(canvas.NewStore(), nil, &mockTitleService{}, nil, &recordingNotifier{}, Config{})
	assert.EqualError(t, err, "image service is required")

	o, err := New(canvas.NewStore(), &mockImageService{}, &mockTitleService{}, nil, &recordingNotifier{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), o.Config())
}

func TestGenerate_AllSucceed(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})

	res, err := f.orch.Generate(ctx, request("a red cube", 2))

	require.NoError(t, err)
	assert.Len(t, res.Completed, 2)
	assert.Equal(t, "Crimson Cube", res.Title)
	snap := f.store.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, domain.StatusComplete, e.Status())
		img, ok := e.Image()
		require.True(t, ok)
		assert.NotEmpty(t, img.Bytes)
		assert.Equal(t, "a red cube", e.Prompt)
		assert.Equal(t, "Crimson Cube", e.Title)
	}
	assert.Equal(t, int32(1), f.titles.calls.Load(), "タイトルはバッチにつき1回だけ生成されるのだ")
	require.Len(t, f.notifier.all(), 1)
	assert.Equal(t, notify.LevelSuccess, f.notifier.all()[0].level)
	assert.Zero(t, f.orch.InFlight())
}

func TestSubmit_Preconditions(t *testing.T) {
	ctx := withTimeout(t)

	for _, prompt := range []string{"", "   \t\n"} {
		t.Run(fmt.Sprintf("空のプロンプト %q は通信もストア変更もしない", prompt), func(t *testing.T) {
			f := newFixture(t, Config{})
			b, err := f.orch.Submit(ctx, request(prompt, 2))

			assert.Nil(t, b)
			assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
			assert.Equal(t, domain.KindPrecondition, domain.Classify(err))
			assert.Zero(t, f.store.Len())
			assert.Zero(t, f.images.calls.Load())
			sent := f.notifier.all()
			require.Len(t, sent, 1)
			assert.Equal(t, notify.LevelError, sent[0].level)
		})
	}

	t.Run("枚数が範囲外なら拒否する", func(t *testing.T) {
		f := newFixture(t, Config{MaxCount: 4})
		for _, n := range []int{0, 5} {
			_, err := f.orch.Submit(ctx, request("x", n))
			assert.ErrorIs(t, err, domain.ErrInvalidCount)
		}
		assert.Zero(t, f.store.Len())
		assert.Len(t, f.notifier.all(), 2)
	})

	t.Run("認証情報がない場合は入力を求め、得られなければ中止する", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.creds.has.Store(false)

		_, err := f.orch.Submit(ctx, request("x", 1))

		assert.ErrorIs(t, err, domain.ErrMissingCredential)
		assert.Equal(t, int32(1), f.creds.requestCalls.Load())
		assert.Zero(t, f.store.Len())
		assert.Zero(t, f.images.calls.Load())
		assert.Len(t, f.notifier.all(), 1)
	})

	t.Run("入力で認証情報が設定されれば続行する", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.creds.has.Store(false)
		f.creds.RequestFunc = func(context.Context) error {
			f.creds.has.Store(true)
			return nil
		}
		_, err := f.orch.Generate(ctx, request("x", 1))
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.Len())
	})
}

func TestSubmit_PlaceholdersAreSynchronous(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	release := make(chan struct{})
	f.images.GenerateFunc = func(ctx context.Context, _ domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}

	req := request("x", 3)
	req.Spawn = domain.Point{X: 10, Y: 20}
	b, err := f.orch.Submit(ctx, req)
	require.NoError(t, err)

	snap := f.store.Snapshot()
	require.Len(t, snap, 3)
	for i, e := range snap {
		assert.True(t, e.IsLoading())
		assert.Equal(t, b.IDs[i], e.ID)
		assert.Equal(t, "Generating...", e.Title)
		assert.Equal(t, domain.Point{X: 10 + 40*float64(i), Y: 20 + 40*float64(i)}, e.Position)
	}
	assert.Equal(t, 1, f.orch.InFlight())

	close(release)
	_, err = b.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.store.CountLoading())
}

func TestGenerate_AllFail(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	existing, err := domain.NewCompleteEntity("keep", "t", "p", domain.AspectSquare, domain.Point{}, domain.ImageData{Bytes: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, f.store.Append(existing))
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return nil, errors.New("backend exploded")
	}

	_, err = f.orch.Generate(ctx, request("x", 3))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoImagesProduced)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Equal(t, 1, f.store.Len(), "既存のエンティティだけが残るのだ")
	assert.Zero(t, f.store.CountLoading())
	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.LevelError, sent[0].level)
	assert.Contains(t, sent[0].message, "backend exploded")
}

func TestGenerate_EmptyImageIsEmptyResult(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return &domain.ImageResponse{}, nil
	}

	_, err := f.orch.Generate(ctx, request("x", 2))

	assert.Equal(t, domain.KindEmptyResult, domain.Classify(err))
	assert.Zero(t, f.store.Len())
}

func failEveryOther() func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	var n atomic.Int32
	return func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		if n.Add(1)%2 == 0 {
			return nil, errors.New("flaky")
		}
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}
}

func TestGenerate_PartialFailure(t *testing.T) {
	ctx := withTimeout(t)

	t.Run("best_effort では失敗した枠だけ取り除く", func(t *testing.T) {
		f := newFixture(t, Config{Mode: ModeSequential})
		f.images.GenerateFunc = failEveryOther()

		res, err := f.orch.Generate(ctx, request("x", 3))

		require.NoError(t, err)
		assert.Equal(t, []string{res.IDs[0], res.IDs[2]}, res.Completed)
		assert.Equal(t, 2, f.store.Len())
		assert.Zero(t, f.store.CountLoading())
		require.Len(t, f.notifier.all(), 1)
		assert.Equal(t, notify.LevelSuccess, f.notifier.all()[0].level)
	})

	t.Run("all_or_nothing では1枠でも失敗したらバッチ全体を取り除く", func(t *testing.T) {
		f := newFixture(t, Config{Mode: ModeSequential, Policy: PolicyAllOrNothing})
		f.images.GenerateFunc = failEveryOther()

		_, err := f.orch.Generate(ctx, request("x", 3))

		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
		assert.Zero(t, f.store.Len())
		assert.Equal(t, int32(2), f.images.calls.Load(), "最初の失敗で打ち切るのだ")
		assert.Len(t, f.notifier.all(), 1)
	})
}

func TestGenerate_SlotMapping(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{Mode: ModeSequential})
	var n atomic.Int32
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return &domain.ImageResponse{Data: []byte(fmt.Sprintf("img-%d", n.Add(1)-1))}, nil
	}

	res, err := f.orch.Generate(ctx, request("x", 3))
	require.NoError(t, err)

	for i, id := range res.IDs {
		e, ok := f.store.Get(id)
		require.True(t, ok)
		img, _ := e.Image()
		assert.Equal(t, fmt.Sprintf("img-%d", i), string(img.Bytes))
	}
}

func TestGenerate_RateLimit(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	f.images.limited = true
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return nil, fmt.Errorf("429: %w", domain.ErrRateLimited)
	}

	_, err := f.orch.Generate(ctx, request("x", 4))

	assert.Equal(t, domain.KindRateLimit, domain.Classify(err))
	assert.Equal(t, int32(1), f.images.calls.Load(), "レート制限のあるサービスは順番に呼ばれ、最初の失敗で中止するのだ")
	assert.Zero(t, f.store.Len())
	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].message, "Rate limit")
}

func TestGenerate_RateLimitSwitchesToSequential(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})

	var limited atomic.Bool
	limited.Store(true)
	var cur, peak atomic.Int32
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		n := cur.Add(1)
		defer cur.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if limited.Load() {
			return nil, domain.ErrRateLimited
		}
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}

	assert.False(t, f.orch.Throttled())
	_, err := f.orch.Generate(ctx, request("x", 4))
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, f.orch.Throttled(), "レート制限を受けたら以後は逐次実行なのだ")

	limited.Store(false)
	peak.Store(0)
	res, err := f.orch.Generate(ctx, request("y", 4))
	require.NoError(t, err)
	assert.Len(t, res.Completed, 4)
	assert.Equal(t, int32(1), peak.Load(), "同時に呼ばれるのは1件だけなのだ")
}

func TestGenerate_RateLimitAbortsPartialSuccess(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{Mode: ModeSequential})
	var n atomic.Int32
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		if n.Add(1) == 2 {
			return nil, domain.ErrRateLimited
		}
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}

	_, err := f.orch.Generate(ctx, request("x", 3))

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Zero(t, f.store.Len(), "完了済みの枠も含めて巻き戻すのだ")
}

func TestGenerate_AuthResetsCredential(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		return nil, domain.ErrAuthentication
	}

	_, err := f.orch.Generate(ctx, request("x", 2))

	assert.Equal(t, domain.KindAuth, domain.Classify(err))
	assert.Equal(t, int32(1), f.creds.resetCalls.Load())
	assert.False(t, f.creds.HasCredential(ctx))
	assert.Zero(t, f.store.Len())
	assert.Len(t, f.notifier.all(), 1)
}

func TestGenerate_TitleFailureFallsBack(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	f.titles.GenerateTitleFunc = func(context.Context, string) (string, error) {
		return "", errors.New("title model down")
	}

	res, err := f.orch.Generate(ctx, request("x", 2))

	require.NoError(t, err)
	assert.Equal(t, "Untitled Artwork", res.Title)
	for _, e := range f.store.Snapshot() {
		assert.Equal(t, domain.StatusComplete, e.Status())
		assert.Equal(t, "Untitled Artwork", e.Title)
	}
}

func TestGenerate_ClearDuringFlight(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	release := make(chan struct{})
	f.images.GenerateFunc = func(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		<-release
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}

	b, err := f.orch.Submit(ctx, request("x", 2))
	require.NoError(t, err)
	f.store.Clear()
	close(release)

	res, err := b.Wait(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Completed)
	assert.Zero(t, f.store.Len(), "遅れて届いた結果は無視されるのだ")
	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].message, "Generated 0 of 2", "キャンバスに置けた枚数を通知するのだ")
}

func TestGenerate_IndependentBatches(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	f.images.GenerateFunc = func(_ context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		if req.Prompt == "bad" {
			return nil, errors.New("nope")
		}
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}

	good, err := f.orch.Submit(ctx, request("good", 2))
	require.NoError(t, err)
	bad, err := f.orch.Submit(ctx, request("bad", 2))
	require.NoError(t, err)

	_, gerr := good.Wait(ctx)
	_, berr := bad.Wait(ctx)

	require.NoError(t, gerr)
	require.Error(t, berr)
	snap := f.store.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, "good", e.Prompt)
		assert.Equal(t, domain.StatusComplete, e.Status())
	}
	assert.Len(t, f.notifier.all(), 2)
}

func TestGenerate_RequestCarriesSettings(t *testing.T) {
	ctx := withTimeout(t)
	f := newFixture(t, Config{})
	var got domain.ImageGenerationRequest
	f.images.GenerateFunc = func(_ context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
		got = req
		return &domain.ImageResponse{Data: []byte("img")}, nil
	}
	req := request("  castle  ", 1)
	req.Settings.AspectRatio = domain.AspectWide
	req.Settings.Quality = domain.QualityHD
	req.Settings.NegativePrompt = " blur "
	req.Settings.Creativity = 30

	_, err := f.orch.Generate(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "castle", got.Prompt)
	assert.Equal(t, domain.AspectWide, got.AspectRatio)
	assert.Equal(t, domain.QualityHD, got.Quality)
	assert.Equal(t, "blur", got.NegativePrompt)
	assert.Equal(t, 30, got.Creativity)
	assert.InDelta(t, 0.3, got.Temperature(), 1e-6)
	assert.Equal(t, "Cinematic", got.Style)
	e := f.store.Snapshot()[0]
	assert.Equal(t, domain.AspectWide, e.AspectRatio)
}

func TestBatch_WaitHonorsContext(t *testing.T) {
	b := &Batch{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

package adapters

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/api/option"
)

// GCSReader は gs:// の参照画像を読む remoteio.InputReader です。
// クライアントは最初の利用時に作成するため、GCS を使わない環境では認証情報を要求しません。
// 作成に失敗した場合は次の呼び出しで作り直します。
type GCSReader struct {
	newFn func(ctx context.Context) (*storage.Client, error)

	mu     sync.Mutex
	client *storage.Client
	reader remoteio.InputReader
}

var _ remoteio.InputReader = (*GCSReader)(nil)

// NewGCSReader は GCSReader を作成します。opts はストレージクライアントの作成時に渡されます。
func NewGCSReader(opts ...option.ClientOption) *GCSReader {
	return &GCSReader{newFn: func(ctx context.Context) (*storage.Client, error) {
		return storage.NewClient(ctx, opts...)
	}}
}

func (r *GCSReader) delegate(ctx context.Context, uri string) (remoteio.InputReader, error) {
	if !remoteio.IsGCSURI(uri) {
		return nil, fmt.Errorf("gs:// のURIではありません: %s", uri)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader != nil {
		return r.reader, nil
	}
	client, err := r.newFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSクライアントの初期化に失敗しました: %w", err)
	}
	r.client = client
	r.reader = remoteio.NewUniversalInputReader(client, nil)
	return r.reader, nil
}

// Open はオブジェクトを読み込み用に開きます。
func (r *GCSReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	reader, err := r.delegate(ctx, uri)
	if err != nil {
		return nil, err
	}
	return reader.Open(ctx, uri)
}

// List はプレフィックスに一致するオブジェクトの gs:// URI を順に fn に渡します。
func (r *GCSReader) List(ctx context.Context, uri string, fn func(string) error) error {
	reader, err := r.delegate(ctx, uri)
	if err != nil {
		return err
	}
	return reader.List(ctx, uri, fn)
}

// Close はクライアントを閉じます。
func (r *GCSReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client, r.reader = nil, nil
	return err
}

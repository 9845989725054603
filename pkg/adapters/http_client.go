package adapters

import (
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// ReferenceFetchRetries は参照画像の取得を再試行する最大回数です。
const ReferenceFetchRetries = 2

// NewReferenceFetcher は参照画像のダウンロードに使う HTTP クライアントを作成します。
// SSRF と DNS Rebinding の対策は httpkit の既定のクライアントが接続時に行います。
func NewReferenceFetcher(timeout time.Duration, opts ...httpkit.ClientOption) *httpkit.Client {
	options := append([]httpkit.ClientOption{
		httpkit.WithMaxRetries(ReferenceFetchRetries),
		httpkit.WithInitialInterval(500 * time.Millisecond),
		httpkit.WithMaxInterval(5 * time.Second),
	}, opts...)
	return httpkit.New(timeout, options...)
}

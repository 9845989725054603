package domain

import "errors"

var (
	// ErrEmptyPrompt はプロンプトが空 (空白のみ) の場合に返ります。通信前に拒否されます。
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrInvalidCount は生成枚数が範囲外の場合に返ります。
	ErrInvalidCount = errors.New("image count out of range")
	// ErrNoImagesProduced はバッチが1枚も画像を返さなかった場合に返ります。
	ErrNoImagesProduced = errors.New("no images were produced")
	// ErrRateLimited は生成サービスがレート制限を返した場合に返ります。
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAuthentication は認証情報が無効な場合に返ります。
	ErrAuthentication = errors.New("authentication failed")
	// ErrMissingCredential は認証情報が未設定の場合に返ります。
	ErrMissingCredential = errors.New("credential is not configured")
	// ErrGenerationFailed はその他の生成失敗です。
	ErrGenerationFailed = errors.New("image generation failed")
	// ErrBlocked は安全フィルター等で生成が打ち切られた場合に返ります。
	ErrBlocked = errors.New("generation blocked")
	// ErrDuplicateID は同じIDのエンティティを二重に追加しようとした場合に返ります。
	ErrDuplicateID = errors.New("duplicate entity id")
	// ErrEmptyImage は空の画像データで complete にしようとした場合に返ります。
	ErrEmptyImage = errors.New("image data is empty")
	// ErrSessionNotFound はセッションが存在しない場合に返ります。
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorKind は UI に見せるエラーの分類です。
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindPrecondition
	KindAuth
	KindRateLimit
	KindEmptyResult
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPrecondition:
		return "precondition"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindEmptyResult:
		return "empty_result"
	default:
		return "unknown"
	}
}

// Classify はエラーを UI 向けの分類に振り分けます。
// 認証・レート制限は他の分類より優先されます。
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrInvalidCount):
		return KindPrecondition
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrMissingCredential):
		return KindAuth
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrGenerationFailed):
		return KindUnknown
	case errors.Is(err, ErrNoImagesProduced):
		return KindEmptyResult
	default:
		return KindUnknown
	}
}

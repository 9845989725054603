package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// ErrUnsafeURL は参照画像の URL が取得対象として許可されない場合に返されます。
var ErrUnsafeURL = errors.New("unsafe reference url")

// lookupHost は名前解決に使います。テストで差し替えます。
var lookupHost = net.DefaultResolver.LookupNetIP

// ValidateReferenceURL は参照画像の URL を SSRF 対策の観点で検証します。
// gs:// はストレージクライアント経由で読むためバケット名の有無のみを確認し、
// http(s) はすべての解決先がパブリックなアドレスであることを確認します。
func ValidateReferenceURL(ctx context.Context, rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}

	switch u.Scheme {
	case "gs":
		if u.Host == "" {
			return fmt.Errorf("%w: バケット名がありません: %s", ErrUnsafeURL, rawURL)
		}
		return nil
	case "http", "https":
	default:
		return fmt.Errorf("%w: 許可されていないスキームです: %s", ErrUnsafeURL, u.Scheme)
	}

	host := u.Hostname()
	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{addr}
	} else {
		addrs, err = lookupHost(ctx, "ip", host)
		if err != nil {
			return fmt.Errorf("%w: %s の名前解決に失敗しました: %v", ErrUnsafeURL, host, err)
		}
	}

	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() || addr.IsMulticast() {
			return fmt.Errorf("%w: 制限されたネットワークです: %s", ErrUnsafeURL, addr)
		}
	}
	return nil
}

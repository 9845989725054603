package utils

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultDownloadName はタイトルが使えない場合のファイル名です。
const DefaultDownloadName = "generated-image"

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// DownloadName は画像タイトルから保存用のファイル名 (拡張子なし) を作ります。
// 空白はアンダースコアに置き換え、ファイル名に使えない文字は取り除きます。
func DownloadName(title string) string {
	name := unsafeFileChars.ReplaceAllString(strings.TrimSpace(title), "")
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return DefaultDownloadName
	}
	return name
}

// UniqueName は used に含まれない名前を返します。重複する場合は -2, -3 ... を付けます。
func UniqueName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "-" + strconv.Itoa(i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

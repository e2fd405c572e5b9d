package scrape

import (
	"regexp"
	"strings"
)

var songIDPattern = regexp.MustCompile(`(?i)(Music|Stave|Number)-(\d+)\.html`)

// SheetKind は楽譜の種類です。
type SheetKind string

const (
	KindStave  SheetKind = "stave"
	KindNumber SheetKind = "number"
)

// SheetKinds は解析時に探す楽譜種別を優先順に並べたものです。
var SheetKinds = []SheetKind{KindStave, KindNumber}

// DisplayName はダウンロードファイル名にも使う表示名を返します。
func (k SheetKind) DisplayName() string {
	switch k {
	case KindStave:
		return "五线谱"
	case KindNumber:
		return "双手简谱"
	default:
		return string(k)
	}
}

func (k SheetKind) pagePrefix() string {
	switch k {
	case KindStave:
		return "Stave"
	case KindNumber:
		return "Number"
	default:
		return ""
	}
}

// ParseSheetKind は文字列を SheetKind に変換します。
func ParseSheetKind(s string) (SheetKind, bool) {
	switch SheetKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindStave:
		return KindStave, true
	case KindNumber:
		return KindNumber, true
	default:
		return "", false
	}
}

// ExtractSongID は Music-14118.html / Stave-14118.html / Number-14118.html のような
// リンクから曲番号を取り出します。
func ExtractSongID(rawURL string) (string, bool) {
	match := songIDPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return "", false
	}
	return match[2], true
}

// BuildMusicURL は曲番号から歌曲詳細ページの URL を組み立てます（常に Music- 形式）。
func BuildMusicURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/Music-" + id + ".html"
}

func sheetPageName(kind SheetKind, id string) string {
	return kind.pagePrefix() + "-" + id + ".html"
}

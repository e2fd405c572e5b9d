package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	sheetImageClass   = "DownMusicPNG"
	sheetAssetSegment = "/pianomusic/"
)

var (
	imageExtPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|gif)$`)
	blockedKeywords = []string{"logo", "icon", "avatar", "weixin", "weibo", "bilibili", "douyin"}
)

// ExtractSheetImages は楽譜ページの HTML から楽譜画像の URL を抽出します。
// DownMusicPNG クラスの img を優先し、見つからなければページ内の全 img を対象にします。
// 結果は重複を除き、ファイル名の数値順に並べ替えられます。
func ExtractSheetImages(html, pageURL, songID string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("楽譜ページの解析に失敗しました: %w", err)
	}

	urls := collectImages(doc.Find("img."+sheetImageClass), base, songID)
	if len(urls) == 0 {
		urls = collectImages(doc.Find("img"), base, songID)
	}
	return dedupeNatural(urls), nil
}

func collectImages(sel *goquery.Selection, base *url.URL, songID string) []string {
	var urls []string
	sel.Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		if abs, ok := FilterImageCandidate(base, src, songID); ok {
			urls = append(urls, abs)
		}
	})
	return urls
}

// FilterImageCandidate は画像候補を絶対 URL に解決し、楽譜画像として採用できるか判定します。
func FilterImageCandidate(base *url.URL, src, songID string) (string, bool) {
	if strings.TrimSpace(src) == "" {
		return "", false
	}
	ref, err := base.Parse(strings.TrimSpace(src))
	if err != nil {
		return "", false
	}
	abs := ref.String()

	if songID != "" && !strings.Contains(abs, songID) {
		return "", false
	}
	if !imageExtPattern.MatchString(abs) {
		return "", false
	}
	if !strings.Contains(abs, sheetAssetSegment) {
		return "", false
	}
	lower := strings.ToLower(abs)
	for _, k := range blockedKeywords {
		if strings.Contains(lower, k) {
			return "", false
		}
	}
	return abs, true
}

func dedupeNatural(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return naturalLess(unique[i], unique[j])
	})
	return unique
}

// naturalLess は数字の並びを数値として比較する文字列比較です（"p2" < "p10"）。
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			if c := compareDigits(a[si:i], b[sj:j]); c != 0 {
				return c < 0
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func compareDigits(x, y string) int {
	tx := strings.TrimLeft(x, "0")
	ty := strings.TrimLeft(y, "0")
	if len(tx) != len(ty) {
		if len(tx) < len(ty) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(tx, ty); c != 0 {
		return c
	}
	// 数値が同じなら桁数の短い方を先に
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrInvalidSongURL は URL から曲番号を取り出せない場合に返されます。
var ErrInvalidSongURL = errors.New("リンクから曲番号を解析できません。Music-XXXX.html の形式か確認してください。")

// ページ title は「【谱】富士山下-简单好听版-人人钢琴网」のような形式。
var (
	titleSuffixPattern = regexp.MustCompile(`-?\s*人人钢琴网.*$`)
	titleTagPattern    = regexp.MustCompile(`^【谱】`)
)

// SheetLink は歌曲詳細ページから見つかった楽譜プレビューページです。
type SheetLink struct {
	Kind    SheetKind
	Name    string
	PageURL string
}

// Analysis は歌曲詳細ページの解析結果です。
type Analysis struct {
	SongID string
	Title  string
	Sheets []SheetLink
}

// Analyzer は歌曲詳細ページを取得・解析します。
type Analyzer struct {
	client  *Client
	baseURL string
}

// NewAnalyzer は Analyzer を生成します。
func NewAnalyzer(client *Client, baseURL string) *Analyzer {
	return &Analyzer{client: client, baseURL: baseURL}
}

// Analyze は入力 URL の曲番号から Music-{id}.html を取得し、
// タイトルと Stave / Number の楽譜ページを返します。
func (a *Analyzer) Analyze(ctx context.Context, songURL string) (*Analysis, error) {
	id, ok := ExtractSongID(songURL)
	if !ok {
		return nil, ErrInvalidSongURL
	}

	musicURL := BuildMusicURL(a.baseURL, id)
	html, err := a.client.FetchText(ctx, musicURL)
	if err != nil {
		return nil, err
	}
	return parseSongPage(html, musicURL, id)
}

func parseSongPage(html, pageURL, id string) (*Analysis, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("歌曲詳細ページの解析に失敗しました: %w", err)
	}

	analysis := &Analysis{
		SongID: id,
		Title:  cleanTitle(doc.Find("title").First().Text()),
	}

	for _, kind := range SheetKinds {
		selector := fmt.Sprintf("a[href*='%s']", sheetPageName(kind, id))
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		ref, err := base.Parse(href)
		if err != nil {
			continue
		}
		analysis.Sheets = append(analysis.Sheets, SheetLink{
			Kind:    kind,
			Name:    kind.DisplayName(),
			PageURL: ref.String(),
		})
	}

	return analysis, nil
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if title == "" {
		return ""
	}
	title = titleSuffixPattern.ReplaceAllString(title, "")
	title = titleTagPattern.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

package scrape

import (
	"net/url"
	"reflect"
	"sort"
	"testing"
)

const testPage = "https://www.everyonepiano.cn/Stave-1234.html"

func TestExtractSheetImagesPrefersMarkerClass(t *testing.T) {
	html := `<html><body>
<img class="DownMusicPNG" src="/pianomusic/upload/1234/page-10.png">
<img class="DownMusicPNG" data-src="/pianomusic/upload/1234/page-2.png">
<img class="DownMusicPNG other" src="https://img.everyonepiano.cn/pianomusic/upload/1234/page-1.png">
<img class="DownMusicPNG" src="/pianomusic/upload/1234/page-2.png">
<img src="/pianomusic/upload/1234/unmarked-3.png">
</body></html>`

	got, err := ExtractSheetImages(html, testPage, "1234")
	if err != nil {
		t.Fatalf("ExtractSheetImages returned error: %v", err)
	}
	want := []string{
		"https://img.everyonepiano.cn/pianomusic/upload/1234/page-1.png",
		"https://www.everyonepiano.cn/pianomusic/upload/1234/page-2.png",
		"https://www.everyonepiano.cn/pianomusic/upload/1234/page-10.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected images:\n got %#v\nwant %#v", got, want)
	}
}

func TestExtractSheetImagesFallsBackToAllImages(t *testing.T) {
	html := `<html><body>
<img class="DownMusicPNG" src="/static/logo.png">
<img src="/pianomusic/1234/p3.jpg">
<img src="/pianomusic/1234/p1.jpeg">
<img data-src="/pianomusic/1234/p2.gif">
<img src="/pianomusic/1234/weixin-qr.png">
</body></html>`

	got, err := ExtractSheetImages(html, testPage, "1234")
	if err != nil {
		t.Fatalf("ExtractSheetImages returned error: %v", err)
	}
	want := []string{
		"https://www.everyonepiano.cn/pianomusic/1234/p1.jpeg",
		"https://www.everyonepiano.cn/pianomusic/1234/p2.gif",
		"https://www.everyonepiano.cn/pianomusic/1234/p3.jpg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected images:\n got %#v\nwant %#v", got, want)
	}
}

func TestExtractSheetImagesNone(t *testing.T) {
	got, err := ExtractSheetImages(`<html><body><p>nothing</p></body></html>`, testPage, "1234")
	if err != nil {
		t.Fatalf("ExtractSheetImages returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no images, got %#v", got)
	}
}

func TestFilterImageCandidate(t *testing.T) {
	base, _ := url.Parse(testPage)
	cases := []struct {
		name string
		src  string
		ok   bool
	}{
		{"accepted", "/pianomusic/1234/a.png", true},
		{"upper-case extension", "/pianomusic/1234/a.JPG", true},
		{"missing song id", "/pianomusic/9999/a.png", false},
		{"unsupported extension", "/pianomusic/1234/a.webp", false},
		{"query after extension", "/pianomusic/1234/a.png?v=1", false},
		{"missing asset segment", "/uploads/1234/a.png", false},
		{"logo keyword", "/pianomusic/1234/Logo.png", false},
		{"icon keyword", "/pianomusic/1234/icon-a.png", false},
		{"avatar keyword", "/pianomusic/1234/avatar.png", false},
		{"weibo keyword", "/pianomusic/1234/weibo.png", false},
		{"bilibili keyword", "/pianomusic/1234/bilibili.png", false},
		{"douyin keyword", "/pianomusic/1234/douyin.png", false},
		{"empty", "  ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := FilterImageCandidate(base, tc.src, "1234")
			if ok != tc.ok {
				t.Fatalf("FilterImageCandidate(%q) ok = %v, want %v", tc.src, ok, tc.ok)
			}
		})
	}
}

func TestNaturalLess(t *testing.T) {
	in := []string{"p10.png", "p2.png", "p1.png", "p02.png", "a.png", "p1a.png"}
	sort.SliceStable(in, func(i, j int) bool { return naturalLess(in[i], in[j]) })
	want := []string{"a.png", "p1.png", "p1a.png", "p2.png", "p02.png", "p10.png"}
	if !reflect.DeepEqual(in, want) {
		t.Fatalf("natural order = %#v, want %#v", in, want)
	}
}

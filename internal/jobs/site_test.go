package jobs

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/yourusername/score-forge/internal/scrape"
)

// fakeSite は人人钢琴网を模したテスト用サーバーです。
type fakeSite struct {
	srv    *httptest.Server
	mu     sync.Mutex
	pages  map[string]string
	images map[string][]byte
	hits   map[string]int
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{
		pages:  make(map[string]string),
		images: make(map[string][]byte),
		hits:   make(map[string]int),
	}
	site.srv = httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	page, isPage := s.pages[r.URL.Path]
	img, isImage := s.images[r.URL.Path]
	s.mu.Unlock()

	switch {
	case isPage:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	case isImage:
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeSite) setPage(path, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = html
}

func (s *fakeSite) setImage(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[path] = data
}

func (s *fakeSite) removeImage(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, path)
}

func (s *fakeSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *fakeSite) url(path string) string {
	return s.srv.URL + path
}

// sheetPage は指定パスの画像を DownMusicPNG として並べた楽譜ページを返します。
func sheetPage(paths ...string) string {
	var buf bytes.Buffer
	buf.WriteString(`<html><body><img src="/images/logo.png">`)
	for _, p := range paths {
		buf.WriteString(`<img class="DownMusicPNG" src="` + p + `">`)
	}
	buf.WriteString(`</body></html>`)
	return buf.String()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// seedSong は曲 4321 の五线谱（3ページ）と双手简谱（1ページ）を登録します。
func seedSong(t *testing.T, site *fakeSite) {
	t.Helper()
	site.setPage("/Music-4321.html", `<html><head><title>【谱】Test Song-人人钢琴网</title></head><body>
<a href="/Stave-4321.html">五线谱</a>
<a href="/Number-4321.html">简谱</a>
</body></html>`)
	site.setPage("/Stave-4321.html", sheetPage(
		"/pianomusic/4321/4321-10.png",
		"/pianomusic/4321/4321-1.png",
		"/pianomusic/4321/4321-2.png",
	))
	site.setPage("/Number-4321.html", sheetPage("/pianomusic/4321/n4321-1.png"))

	site.setImage("/pianomusic/4321/4321-1.png", testPNG(t, 40, 60))
	site.setImage("/pianomusic/4321/4321-2.png", testPNG(t, 40, 60))
	site.setImage("/pianomusic/4321/4321-10.png", testPNG(t, 50, 30))
	site.setImage("/pianomusic/4321/n4321-1.png", testPNG(t, 32, 32))
}

func newTestManager(t *testing.T, site *fakeSite) (*Manager, *Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	client := scrape.NewClient(scrape.Options{UserAgent: "score-test"})
	store := NewStore(DefaultTTL)
	manager, err := NewManager(
		store,
		scrape.NewAnalyzer(client, site.srv.URL),
		NewSheetProcessor(client, logger),
		logger,
	)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	t.Cleanup(func() {
		if d, ok := manager.Dispatcher().(*LocalDispatcher); ok {
			d.Wait()
		}
	})
	return manager, store
}

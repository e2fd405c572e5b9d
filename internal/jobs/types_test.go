package jobs

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/score-forge/internal/scrape"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name   string
		sheets []SheetStatus
		want   Status
	}{
		{"all completed", []SheetStatus{SheetCompleted, SheetCompleted}, StatusCompleted},
		{"partial success", []SheetStatus{SheetCompleted, SheetError}, StatusCompleted},
		{"all failed", []SheetStatus{SheetError, SheetError}, StatusError},
		{"still downloading", []SheetStatus{SheetError, SheetDownloading}, StatusProcessing},
		{"pending only", []SheetStatus{SheetPending}, StatusError},
		{"empty", nil, StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.sheets); got != tc.want {
				t.Fatalf("DeriveStatus(%v) = %s, want %s", tc.sheets, got, tc.want)
			}
		})
	}
}

func TestJobBeginOnlyOnce(t *testing.T) {
	job := newJob("j1", "https://example.com/Music-1.html", time.Now())
	if job.begin() {
		t.Fatal("begin should fail without sheets")
	}
	job.Populate("t", []*Sheet{NewSheet(scrape.KindStave, "五线谱", "https://example.com/Stave-1.html")})

	if !job.begin() {
		t.Fatal("first begin should succeed")
	}
	if job.begin() {
		t.Fatal("second begin should fail")
	}
	if job.Status() != StatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status())
	}
}

func TestJobPopulateKeepsFirstOfEachKind(t *testing.T) {
	job := newJob("j1", "u", time.Now())
	job.Populate("Title", []*Sheet{
		NewSheet(scrape.KindStave, "五线谱", "first"),
		NewSheet(scrape.KindStave, "五线谱", "second"),
		nil,
		NewSheet(scrape.KindNumber, "双手简谱", "number"),
	})

	sheets := job.Sheets()
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %d", len(sheets))
	}
	if sheets[0].PageURL != "first" || sheets[1].Kind != scrape.KindNumber {
		t.Fatalf("unexpected sheets: %#v, %#v", sheets[0], sheets[1])
	}
}

func TestJobSheetsReturnsCopies(t *testing.T) {
	job := newJob("j1", "u", time.Now())
	job.Populate("", []*Sheet{NewSheet(scrape.KindStave, "五线谱", "p")})

	sheets := job.Sheets()
	sheets[0].Status = SheetCompleted
	sheets[0].ImageURLs = append(sheets[0].ImageURLs, "x")

	got, _ := job.Sheet(scrape.KindStave)
	if got.Status != SheetPending || len(got.ImageURLs) != 0 {
		t.Fatalf("internal sheet was modified through a copy: %#v", got)
	}
}

func TestJobResetClearsProgress(t *testing.T) {
	job := newJob("j1", "u", time.Now())
	job.Populate("", []*Sheet{NewSheet(scrape.KindStave, "五线谱", "p")})
	total := 2
	job.updateSheet(scrape.KindStave, func(s *Sheet) {
		s.Status = SheetError
		s.TotalImages = &total
		s.DownloadedImages = 1
		s.ImageURLs = []string{"a", "b"}
		s.Error = &ErrorInfo{Code: CodeDownloadFailed, Message: "boom"}
	})
	job.Fail(&ErrorInfo{Code: CodeInternal, Message: "boom"})

	job.reset()

	if job.Status() != StatusPending || job.Failure() != nil {
		t.Fatalf("job not reset: status=%s err=%v", job.Status(), job.Failure())
	}
	if job.Attempt() != 1 {
		t.Fatalf("attempt = %d, want 1", job.Attempt())
	}
	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetPending || sheet.TotalImages != nil || sheet.DownloadedImages != 0 || sheet.Error != nil || sheet.ImageURLs != nil {
		t.Fatalf("sheet not reset: %#v", sheet)
	}
}

func TestPublicHidesImagesAndDocument(t *testing.T) {
	job := newJob("j1", "https://example.com/Music-1.html", time.Now())
	job.Populate("Song", []*Sheet{NewSheet(scrape.KindStave, "五线谱", "https://example.com/Stave-1.html")})
	total := 1
	job.updateSheet(scrape.KindStave, func(s *Sheet) {
		s.ImageURLs = []string{"https://example.com/pianomusic/1/1-1.png"}
		s.TotalImages = &total
		s.DownloadedImages = 1
		s.Document = []byte("%PDF-secret")
		s.Status = SheetCompleted
	})

	body, err := json.Marshal(job.Public())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(body)
	if strings.Contains(text, "pianomusic") || strings.Contains(text, "secret") {
		t.Fatalf("public view leaks internal fields: %s", text)
	}
	for _, want := range []string{`"id":"stave"`, `"totalImages":1`, `"downloadedImages":1`, `"songTitle":"Song"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("public view missing %s: %s", want, text)
		}
	}
}

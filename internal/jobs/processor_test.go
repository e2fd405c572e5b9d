package jobs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/yourusername/score-forge/internal/scrape"
)

func newProcessorJob(site *fakeSite, kinds ...scrape.SheetKind) *Job {
	job := newJob("job-1", site.url("/Music-4321.html"), time.Now())
	sheets := make([]*Sheet, 0, len(kinds))
	for _, k := range kinds {
		sheets = append(sheets, NewSheet(k, k.DisplayName(), site.url("/"+pageName(k)+"-4321.html")))
	}
	job.Populate("Test Song", sheets)
	return job
}

func pageName(k scrape.SheetKind) string {
	if k == scrape.KindNumber {
		return "Number"
	}
	return "Stave"
}

func newTestProcessor(t *testing.T) *SheetProcessor {
	t.Helper()
	return NewSheetProcessor(scrape.NewClient(scrape.Options{}), zaptest.NewLogger(t))
}

func TestProcessCompletesSheet(t *testing.T) {
	site := newFakeSite(t)
	seedSong(t, site)
	job := newProcessorJob(site, scrape.KindStave)

	if err := newTestProcessor(t).Process(context.Background(), job, scrape.KindStave, "4321"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetCompleted {
		t.Fatalf("status = %s, error = %v", sheet.Status, sheet.Error)
	}
	if sheet.TotalImages == nil || *sheet.TotalImages != 3 || sheet.DownloadedImages != 3 {
		t.Fatalf("unexpected progress: total=%v downloaded=%d", sheet.TotalImages, sheet.DownloadedImages)
	}
	want := []string{
		site.url("/pianomusic/4321/4321-1.png"),
		site.url("/pianomusic/4321/4321-2.png"),
		site.url("/pianomusic/4321/4321-10.png"),
	}
	for i, u := range want {
		if sheet.ImageURLs[i] != u {
			t.Fatalf("image %d = %s, want %s", i, sheet.ImageURLs[i], u)
		}
	}
	if len(sheet.Document) < 5 || string(sheet.Document[:5]) != "%PDF-" {
		t.Fatalf("document is not a pdf: %q", sheet.Document)
	}
}

func TestProcessNoImages(t *testing.T) {
	site := newFakeSite(t)
	seedSong(t, site)
	site.setPage("/Stave-4321.html", `<html><body><img src="/images/logo.png"></body></html>`)
	job := newProcessorJob(site, scrape.KindStave)

	if err := newTestProcessor(t).Process(context.Background(), job, scrape.KindStave, "4321"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetError || sheet.Error == nil || sheet.Error.Code != CodeNoImages {
		t.Fatalf("unexpected sheet: %#v", sheet)
	}
	if sheet.TotalImages == nil || *sheet.TotalImages != 0 {
		t.Fatalf("total images = %v, want 0", sheet.TotalImages)
	}
}

func TestProcessDownloadFailureDiscardsPartialWork(t *testing.T) {
	site := newFakeSite(t)
	seedSong(t, site)
	site.removeImage("/pianomusic/4321/4321-2.png")
	job := newProcessorJob(site, scrape.KindStave)

	if err := newTestProcessor(t).Process(context.Background(), job, scrape.KindStave, "4321"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetError || sheet.Error == nil || sheet.Error.Code != CodeDownloadFailed {
		t.Fatalf("unexpected sheet: %#v", sheet)
	}
	if sheet.DownloadedImages != 1 {
		t.Fatalf("downloaded = %d, want 1", sheet.DownloadedImages)
	}
	if sheet.Document != nil {
		t.Fatal("document should not be produced after a failed download")
	}
	if site.hitCount("/pianomusic/4321/4321-10.png") != 0 {
		t.Fatal("images after the failed one should not be requested")
	}
}

func TestProcessSheetPageFetchFailure(t *testing.T) {
	site := newFakeSite(t)
	seedSong(t, site)
	job := newProcessorJob(site, scrape.KindStave)
	job.updateSheet(scrape.KindStave, func(s *Sheet) {
		s.PageURL = site.url("/missing.html")
	})

	if err := newTestProcessor(t).Process(context.Background(), job, scrape.KindStave, "4321"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetError || sheet.Error.Code != CodeFetchFailed {
		t.Fatalf("unexpected sheet: %#v", sheet)
	}
}

func TestProcessReturnsContextCancellation(t *testing.T) {
	site := newFakeSite(t)
	seedSong(t, site)
	job := newProcessorJob(site, scrape.KindStave)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestProcessor(t).Process(ctx, job, scrape.KindStave, "4321")
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	sheet, _ := job.Sheet(scrape.KindStave)
	if sheet.Status != SheetError {
		t.Fatalf("status = %s, want error", sheet.Status)
	}
}

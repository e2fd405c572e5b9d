package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/logging"
	"github.com/yourusername/score-forge/internal/pdf"
	"github.com/yourusername/score-forge/internal/scrape"
)

// Fetcher は楽譜ページと画像の取得を抽象化します。
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string) (*scrape.Payload, error)
}

// SheetProcessor は1種類の楽譜について、画像抽出 → ダウンロード → PDF生成を行います。
type SheetProcessor struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewSheetProcessor は SheetProcessor を生成します。
func NewSheetProcessor(fetcher Fetcher, logger *zap.Logger) *SheetProcessor {
	return &SheetProcessor{
		fetcher: fetcher,
		logger:  logging.Component(logger, "sheet-processor"),
	}
}

// Process は job 内の kind の楽譜を処理します。
// 失敗はその楽譜の error として記録され、他の楽譜には影響しません。
// context のキャンセルだけは呼び出し元へ返します。
func (p *SheetProcessor) Process(ctx context.Context, job *Job, kind scrape.SheetKind, songID string) error {
	sheet, ok := job.Sheet(kind)
	if !ok {
		return nil
	}
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("sheet", string(kind)))

	job.updateSheet(kind, func(s *Sheet) {
		s.Status = SheetAnalyzing
	})

	html, err := p.fetcher.FetchText(ctx, sheet.PageURL)
	if err != nil {
		log.Warn("failed to fetch sheet page", zap.String("url", sheet.PageURL), zap.Error(err))
		p.fail(job, kind, CodeFetchFailed, err)
		return ctxErr(ctx)
	}

	urls, err := scrape.ExtractSheetImages(html, sheet.PageURL, songID)
	if err != nil {
		p.fail(job, kind, CodeFetchFailed, err)
		return nil
	}
	if len(urls) == 0 {
		log.Warn("no sheet images found", zap.String("url", sheet.PageURL))
		job.updateSheet(kind, func(s *Sheet) {
			zero := 0
			s.TotalImages = &zero
			s.Status = SheetError
			s.Error = &ErrorInfo{Code: CodeNoImages, Message: "楽譜画像が見つかりませんでした。"}
		})
		return nil
	}

	total := len(urls)
	job.updateSheet(kind, func(s *Sheet) {
		s.ImageURLs = append([]string(nil), urls...)
		s.TotalImages = &total
		s.DownloadedImages = 0
		s.Status = SheetDownloading
	})

	images := make([]pdf.Image, 0, total)
	for _, u := range urls {
		payload, err := p.fetcher.FetchBytes(ctx, u)
		if err != nil {
			log.Warn("failed to download sheet image", zap.String("url", u), zap.Error(err))
			p.fail(job, kind, CodeDownloadFailed, err)
			return ctxErr(ctx)
		}
		images = append(images, pdf.Image{Data: payload.Data, ContentType: payload.ContentType})
		job.updateSheet(kind, func(s *Sheet) {
			if s.DownloadedImages < total {
				s.DownloadedImages++
			}
		})
	}

	job.updateSheet(kind, func(s *Sheet) {
		s.Status = SheetGenerating
	})

	doc, err := pdf.Assemble(images)
	if err != nil {
		log.Warn("failed to assemble document", zap.Error(err))
		p.fail(job, kind, CodeRenderFailed, err)
		return nil
	}

	job.updateSheet(kind, func(s *Sheet) {
		s.Document = doc.Data
		s.Status = SheetCompleted
	})
	log.Info("sheet completed", zap.Int("images", total), zap.Int("bytes", len(doc.Data)))
	return nil
}

func (p *SheetProcessor) fail(job *Job, kind scrape.SheetKind, code string, err error) {
	job.updateSheet(kind, func(s *Sheet) {
		s.Status = SheetError
		s.Error = &ErrorInfo{Code: code, Message: err.Error()}
	})
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

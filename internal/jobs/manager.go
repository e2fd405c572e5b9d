// Package jobs は楽譜取得ジョブの状態管理と処理の実行を担います。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/logging"
	"github.com/yourusername/score-forge/internal/scrape"
)

var (
	// ErrMissingSongURL は歌曲リンクが空の場合に返されます。
	ErrMissingSongURL = errors.New("歌曲リンクを指定してください。")
	// ErrJobNotFound はジョブが存在しない（または期限切れの）場合に返されます。
	ErrJobNotFound = errors.New("ジョブが存在しないか、有効期限が切れています。")
	// ErrSheetNotFound は指定された種類の楽譜がジョブにない場合に返されます。
	ErrSheetNotFound = errors.New("指定された種類の楽譜はありません。")
	// ErrDocumentNotReady は PDF がまだ生成されていない場合に返されます。
	ErrDocumentNotReady = errors.New("PDFはまだ生成されていません。")
	// ErrNotRetryable は error 以外のジョブを再実行しようとした場合に返されます。
	ErrNotRetryable = errors.New("失敗したジョブのみ再実行できます。")
	// ErrNoSheets は歌曲詳細ページに楽譜ページへのリンクがない場合に返されます。
	ErrNoSheets = errors.New("楽譜ページへのリンクが見つかりませんでした。")
)

// SongAnalyzer は歌曲詳細ページの解析を抽象化します。
type SongAnalyzer interface {
	Analyze(ctx context.Context, songURL string) (*scrape.Analysis, error)
}

// Manager はジョブの作成・解析・処理・再実行をまとめます。
type Manager struct {
	store      *Store
	analyzer   SongAnalyzer
	processor  *SheetProcessor
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewManager は Manager を初期化します。ディスパッチャはプロセス内実行が既定です。
func NewManager(store *Store, analyzer SongAnalyzer, processor *SheetProcessor, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is nil")
	}
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	m := &Manager{
		store:     store,
		analyzer:  analyzer,
		processor: processor,
		logger:    logging.Component(logger, "job-manager"),
	}
	m.dispatcher = NewLocalDispatcher(m.run, logger)
	return m, nil
}

// UseDispatcher はジョブ処理の実行方法を差し替えます。
func (m *Manager) UseDispatcher(d Dispatcher) {
	if d != nil {
		m.dispatcher = d
	}
}

// Dispatcher は現在のディスパッチャを返します。
func (m *Manager) Dispatcher() Dispatcher {
	return m.dispatcher
}

// Shutdown は実行中の処理を止めます。
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.dispatcher.Shutdown(ctx)
}

// Submit は歌曲リンクからジョブを作成して解析まで行います。
// 同じ曲の再利用可能なジョブがあればそれを返します。
// 解析に失敗した場合もジョブは error として保存され、エラーと一緒に返されます。
func (m *Manager) Submit(ctx context.Context, songURL string) (*Job, error) {
	songURL = strings.TrimSpace(songURL)
	if songURL == "" {
		return nil, ErrMissingSongURL
	}
	if _, ok := scrape.ExtractSongID(songURL); !ok {
		return nil, scrape.ErrInvalidSongURL
	}

	if job, ok := m.store.FindReusable(songURL); ok {
		m.logger.Debug("reusing job", zap.String("job_id", job.ID), zap.String("status", string(job.Status())))
		return job, nil
	}

	job := m.store.Create(songURL)
	if err := m.analyze(ctx, job); err != nil {
		job.Fail(errorInfoFrom(err))
		m.store.Save(job)
		m.logger.Warn("song analysis failed", zap.String("job_id", job.ID), zap.String("url", songURL), zap.Error(err))
		return job, err
	}
	m.store.Save(job)
	m.logger.Info("job created", zap.String("job_id", job.ID), zap.Int("sheets", len(job.Sheets())))
	return job, nil
}

func (m *Manager) analyze(ctx context.Context, job *Job) error {
	analysis, err := m.analyzer.Analyze(ctx, job.SongURL)
	if err != nil {
		return err
	}
	sheets := make([]*Sheet, 0, len(analysis.Sheets))
	for _, link := range analysis.Sheets {
		sheets = append(sheets, NewSheet(link.Kind, link.Name, link.PageURL))
	}
	job.Populate(analysis.Title, sheets)
	if !job.HasSheets() {
		return ErrNoSheets
	}
	return nil
}

// ProcessJob は楽譜を1つずつ順番に処理し、最後にジョブ全体の状態を決めます。
// 楽譜がない、または pending でない場合は何もしません。
// 楽譜単位で処理しきれなかったエラーは呼び出し元へ返します。
func (m *Manager) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil || !job.HasSheets() {
		return nil
	}
	if !job.begin() {
		return nil
	}

	songID, _ := scrape.ExtractSongID(job.SongURL)
	// 外部サイトへの同時アクセスを抑えるため並列化しない
	for _, sheet := range job.Sheets() {
		if err := m.processor.Process(ctx, job, sheet.Kind, songID); err != nil {
			return err
		}
	}

	status := job.finalize()
	m.logger.Info("job finished", zap.String("job_id", job.ID), zap.String("status", string(status)))
	return nil
}

// Run は ID でジョブを引き当てて処理します（キュー経由の実行用）。
func (m *Manager) Run(ctx context.Context, jobID string) error {
	job, ok := m.store.Get(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return m.run(ctx, job)
}

// run は ProcessJob の外へ出たエラーと panic をジョブのエラーとして記録します。
func (m *Manager) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
		if err != nil {
			job.Fail(errorInfoFrom(err))
			m.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return m.ProcessJob(ctx, job)
}

// Trigger は pending のジョブを処理に回します。それ以外の状態では何もしません。
func (m *Manager) Trigger(ctx context.Context, job *Job) error {
	if job == nil || job.Status() != StatusPending || !job.HasSheets() {
		return nil
	}
	return m.dispatcher.Dispatch(ctx, job)
}

// Retry は error のジョブを同じ ID のままリセットして再処理します。
// 解析段階で失敗していたジョブは解析からやり直します。
func (m *Manager) Retry(ctx context.Context, id string) (*Job, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status() != StatusError {
		return job, ErrNotRetryable
	}

	m.store.Reset(job)
	if !job.HasSheets() {
		if err := m.analyze(ctx, job); err != nil {
			job.Fail(errorInfoFrom(err))
			return job, err
		}
	}
	m.logger.Info("job reset", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt()))
	if err := m.Trigger(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// Get はジョブを返します。
func (m *Manager) Get(id string) (*Job, bool) {
	return m.store.Get(id)
}

// List は保持中のジョブを返します。
func (m *Manager) List() []*Job {
	return m.store.List()
}

// Download は生成済み PDF と推奨ファイル名です。
type Download struct {
	Filename string
	Data     []byte
}

// Document は指定ジョブ・種類の PDF を返します。
func (m *Manager) Document(id string, kind scrape.SheetKind) (*Download, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	sheet, ok := job.Sheet(kind)
	if !ok {
		return nil, ErrSheetNotFound
	}
	if sheet.Document == nil {
		return nil, ErrDocumentNotReady
	}
	title := job.SongTitle()
	if title == "" {
		title = "score"
	}
	return &Download{
		Filename: fmt.Sprintf("%s-%s.pdf", title, sheet.Name),
		Data:     sheet.Document,
	}, nil
}

// errorInfoFrom はエラーをジョブ用の ErrorInfo に変換します。
func errorInfoFrom(err error) *ErrorInfo {
	var fetchErr *scrape.FetchError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scrape.ErrInvalidSongURL):
		return &ErrorInfo{Code: CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, ErrNoSheets):
		return &ErrorInfo{Code: CodeNoSheets, Message: err.Error()}
	case errors.As(err, &fetchErr):
		return &ErrorInfo{Code: CodeFetchFailed, Message: err.Error()}
	default:
		return &ErrorInfo{Code: CodeInternal, Message: err.Error()}
	}
}

package jobs

import (
	"sync"
	"time"

	"github.com/yourusername/score-forge/internal/scrape"
)

// Status はジョブ全体の状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// SheetStatus は楽譜1種類ごとの処理状態を表します。
type SheetStatus string

const (
	SheetPending     SheetStatus = "pending"
	SheetAnalyzing   SheetStatus = "analyzing"
	SheetDownloading SheetStatus = "downloading"
	SheetGenerating  SheetStatus = "generating"
	SheetCompleted   SheetStatus = "completed"
	SheetError       SheetStatus = "error"
)

// Active は処理途中の状態かどうかを返します。
func (s SheetStatus) Active() bool {
	return s == SheetAnalyzing || s == SheetDownloading || s == SheetGenerating
}

// エラーコード
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeFetchFailed    = "FETCH_FAILED"
	CodeNoSheets       = "NO_SHEETS"
	CodeNoImages       = "NO_IMAGES"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeRenderFailed   = "RENDER_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorInfo はジョブ・楽譜の失敗情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Sheet は1種類の楽譜（五线谱 / 双手简谱）の処理状況です。
// 親ジョブのロック下でのみ変更されます。
type Sheet struct {
	Kind             scrape.SheetKind
	Name             string
	PageURL          string
	Status           SheetStatus
	ImageURLs        []string
	TotalImages      *int
	DownloadedImages int
	Document         []byte
	Error            *ErrorInfo
}

// NewSheet は pending 状態の Sheet を作成します。
func NewSheet(kind scrape.SheetKind, name, pageURL string) *Sheet {
	return &Sheet{
		Kind:    kind,
		Name:    name,
		PageURL: pageURL,
		Status:  SheetPending,
	}
}

func (s *Sheet) clone() *Sheet {
	c := *s
	c.ImageURLs = append([]string(nil), s.ImageURLs...)
	if s.TotalImages != nil {
		total := *s.TotalImages
		c.TotalImages = &total
	}
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	// Document は completed 後に書き換えないため共有する
	return &c
}

func (s *Sheet) reset() {
	s.Status = SheetPending
	s.ImageURLs = nil
	s.TotalImages = nil
	s.DownloadedImages = 0
	s.Document = nil
	s.Error = nil
}

// Job は1曲分の解析・PDF生成リクエストです。
// ID / SongURL / CreatedAt は作成後に変わりません。それ以外はメソッド経由で参照・更新します。
type Job struct {
	ID        string
	SongURL   string
	CreatedAt time.Time

	mu        sync.RWMutex
	songTitle string
	status    Status
	sheets    []*Sheet
	err       *ErrorInfo
	attempt   int
}

func newJob(id, songURL string, now time.Time) *Job {
	return &Job{
		ID:        id,
		SongURL:   songURL,
		CreatedAt: now,
		status:    StatusPending,
	}
}

// Status は現在の状態を返します。
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// SongTitle は曲名を返します（未取得なら空文字）。
func (j *Job) SongTitle() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.songTitle
}

// Failure はジョブ単位のエラーを返します。
func (j *Job) Failure() *ErrorInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.err == nil {
		return nil
	}
	e := *j.err
	return &e
}

// Sheets は楽譜一覧のコピーを返します。
func (j *Job) Sheets() []*Sheet {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Sheet, len(j.sheets))
	for i, s := range j.sheets {
		out[i] = s.clone()
	}
	return out
}

// Sheet は指定種別の楽譜のコピーを返します。
func (j *Job) Sheet(kind scrape.SheetKind) (*Sheet, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, s := range j.sheets {
		if s.Kind == kind {
			return s.clone(), true
		}
	}
	return nil, false
}

// Attempt はリセットされた回数を返します。
func (j *Job) Attempt() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.attempt
}

// HasSheets は楽譜が1つ以上登録されているかを返します。
func (j *Job) HasSheets() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.sheets) > 0
}

// Populate は解析結果を反映します。同じ種別の楽譜は最初の1件だけを採用します。
func (j *Job) Populate(title string, sheets []*Sheet) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.songTitle = title
	j.sheets = make([]*Sheet, 0, len(sheets))
	seen := make(map[scrape.SheetKind]struct{}, len(sheets))
	for _, s := range sheets {
		if s == nil {
			continue
		}
		if _, dup := seen[s.Kind]; dup {
			continue
		}
		seen[s.Kind] = struct{}{}
		j.sheets = append(j.sheets, s)
	}
}

// Fail はジョブを error にしてエラー情報を記録します。
func (j *Job) Fail(info *ErrorInfo) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusError
	j.err = info
}

// begin は pending → processing へ遷移させます。
// すでに他の処理が開始している、または楽譜がない場合は false を返します。
func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending || len(j.sheets) == 0 {
		return false
	}
	j.status = StatusProcessing
	return true
}

// updateSheet は指定種別の楽譜をロック下で更新します。
func (j *Job) updateSheet(kind scrape.SheetKind, mutate func(*Sheet)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, s := range j.sheets {
		if s.Kind == kind {
			mutate(s)
			return
		}
	}
}

// finalize は楽譜の状態からジョブ全体の状態を決定します。
func (j *Job) finalize() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	statuses := make([]SheetStatus, len(j.sheets))
	for i, s := range j.sheets {
		statuses[i] = s.Status
	}
	j.status = DeriveStatus(statuses)
	return j.status
}

// reset は失敗したジョブを同じ ID のまま pending に戻します。
func (j *Job) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusPending
	j.err = nil
	j.attempt++
	for _, s := range j.sheets {
		s.reset()
	}
}

// DeriveStatus は楽譜の状態一覧からジョブの状態を導出します。
// 1つでも completed なら completed、処理中のものがなければ error、それ以外は processing です。
func DeriveStatus(sheets []SheetStatus) Status {
	active := false
	for _, s := range sheets {
		if s == SheetCompleted {
			return StatusCompleted
		}
		if s.Active() {
			active = true
		}
	}
	if active {
		return StatusProcessing
	}
	return StatusError
}

// PublicSheet は外部公開用の楽譜情報です（画像URLとPDF本体は含めません）。
type PublicSheet struct {
	ID               scrape.SheetKind `json:"id"`
	Name             string           `json:"name"`
	PageURL          string           `json:"pageUrl"`
	Status           SheetStatus      `json:"status"`
	TotalImages      *int             `json:"totalImages"`
	DownloadedImages int              `json:"downloadedImages"`
	Error            *ErrorInfo       `json:"error,omitempty"`
}

// PublicJob は外部公開用のジョブ情報です。
type PublicJob struct {
	ID        string        `json:"id"`
	SongURL   string        `json:"songUrl"`
	SongTitle string        `json:"songTitle,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    Status        `json:"status"`
	Sheets    []PublicSheet `json:"sheets"`
	Error     *ErrorInfo    `json:"error,omitempty"`
}

// Public は内部フィールドを除いた公開ビューを返します。
func (j *Job) Public() PublicJob {
	j.mu.RLock()
	defer j.mu.RUnlock()

	view := PublicJob{
		ID:        j.ID,
		SongURL:   j.SongURL,
		SongTitle: j.songTitle,
		CreatedAt: j.CreatedAt,
		Status:    j.status,
		Sheets:    make([]PublicSheet, 0, len(j.sheets)),
	}
	if j.err != nil {
		e := *j.err
		view.Error = &e
	}
	for _, s := range j.sheets {
		c := s.clone()
		view.Sheets = append(view.Sheets, PublicSheet{
			ID:               c.Kind,
			Name:             c.Name,
			PageURL:          c.PageURL,
			Status:           c.Status,
			TotalImages:      c.TotalImages,
			DownloadedImages: c.DownloadedImages,
			Error:            c.Error,
		})
	}
	return view
}

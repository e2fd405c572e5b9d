package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/score-forge/internal/scrape"
)

// DefaultTTL はジョブの既定保持期間です。
const DefaultTTL = time.Hour

// Store はジョブをメモリ上に保持します。
// 保持期間を過ぎたジョブは読み出しのたびに削除されます（バックグラウンドのタイマーは使いません）。
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewStore は Store を作成します。ttl が 0 以下の場合は DefaultTTL を使います。
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create は新しい pending ジョブを返します（保存はしません）。
func (s *Store) Create(songURL string) *Job {
	return newJob(uuid.NewString(), songURL, s.now())
}

// Save はジョブを ID で保存します（存在すれば上書き）。
func (s *Store) Save(job *Job) {
	if job == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Get はジョブを取得します。
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	job, ok := s.jobs[id]
	return job, ok
}

// List は保持中のジョブを作成日時の古い順に返します。
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindReusable は同じ曲番号を持つ、error 以外の最新ジョブを返します。
func (s *Store) FindReusable(songURL string) (*Job, bool) {
	targetID, ok := scrape.ExtractSongID(songURL)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	var latest *Job
	for _, job := range s.jobs {
		if job.Status() == StatusError {
			continue
		}
		id, ok := scrape.ExtractSongID(job.SongURL)
		if !ok || id != targetID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	return latest, latest != nil
}

// Reset は失敗したジョブを同じ ID のまま pending に戻し、楽譜の進捗をすべて消去します。
func (s *Store) Reset(job *Job) {
	if job == nil {
		return
	}
	job.reset()
}

func (s *Store) purgeLocked(now time.Time) {
	for id, job := range s.jobs {
		if s.expired(job, now) {
			delete(s.jobs, id)
		}
	}
}

func (s *Store) expired(job *Job, now time.Time) bool {
	return now.Sub(job.CreatedAt) > s.ttl
}

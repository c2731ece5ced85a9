// Package memory is an in-process implementation of the storage port. It
// enforces the same uniqueness rules as the Postgres schema so the job
// deduplication path behaves identically in both.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

// Store keeps every entity in maps guarded by one mutex. Values are copied
// on the way in and out so callers never share slices with the store.
type Store struct {
	mu        sync.RWMutex
	sites     map[uuid.UUID]domain.Site
	jobs      map[uuid.UUID]domain.ArticleJob
	schedules map[uuid.UUID]domain.Schedule // keyed by site id
	keywords  map[uuid.UUID]domain.Keyword
	articles  map[uuid.UUID]domain.Article
	users     map[uuid.UUID]domain.PlatformUser
}

func New() *Store {
	return &Store{
		sites:     make(map[uuid.UUID]domain.Site),
		jobs:      make(map[uuid.UUID]domain.ArticleJob),
		schedules: make(map[uuid.UUID]domain.Schedule),
		keywords:  make(map[uuid.UUID]domain.Keyword),
		articles:  make(map[uuid.UUID]domain.Article),
		users:     make(map[uuid.UUID]domain.PlatformUser),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- sites ---

func (s *Store) GetSite(_ context.Context, id uuid.UUID) (domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return domain.Site{}, store.ErrNotFound
	}
	return site, nil
}

func (s *Store) ListSites(_ context.Context) ([]domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InsertSite(_ context.Context, site domain.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[site.ID]; ok || s.slugTakenLocked(site.Slug, site.ID) {
		return store.ErrUniqueViolation
	}
	s.sites[site.ID] = site
	return nil
}

func (s *Store) UpdateSite(_ context.Context, site domain.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[site.ID]; !ok {
		return store.ErrNotFound
	}
	if s.slugTakenLocked(site.Slug, site.ID) {
		return store.ErrUniqueViolation
	}
	s.sites[site.ID] = site
	return nil
}

// DeleteSite removes the site and everything that belongs to it, matching
// the ON DELETE CASCADE foreign keys of the SQL schema.
func (s *Store) DeleteSite(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sites, id)
	delete(s.schedules, id)
	for k, j := range s.jobs {
		if j.SiteID == id {
			delete(s.jobs, k)
		}
	}
	for k, kw := range s.keywords {
		if kw.SiteID == id {
			delete(s.keywords, k)
		}
	}
	for k, a := range s.articles {
		if a.SiteID == id {
			delete(s.articles, k)
		}
	}
	return nil
}

func (s *Store) SlugTaken(_ context.Context, slug string, exclude uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slugTakenLocked(slug, exclude), nil
}

func (s *Store) slugTakenLocked(slug string, exclude uuid.UUID) bool {
	for id, site := range s.sites {
		if id != exclude && site.Slug == slug {
			return true
		}
	}
	return false
}

// --- jobs ---

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (domain.ArticleJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ArticleJob{}, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (s *Store) FindJobByIdempotencyKey(_ context.Context, key string) (domain.ArticleJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if key != "" && j.IdempotencyKey == key {
			return copyJob(j), nil
		}
	}
	return domain.ArticleJob{}, store.ErrNotFound
}

func (s *Store) FindActiveJob(_ context.Context, siteID uuid.UUID, wpPostID int64) (domain.ArticleJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.activeJobLocked(siteID, wpPostID, uuid.Nil); ok {
		return copyJob(j), nil
	}
	return domain.ArticleJob{}, store.ErrNotFound
}

func (s *Store) activeJobLocked(siteID uuid.UUID, wpPostID int64, exclude uuid.UUID) (domain.ArticleJob, bool) {
	for id, j := range s.jobs {
		if id == exclude || j.SiteID != siteID || j.WPPostID == nil || *j.WPPostID != wpPostID {
			continue
		}
		if j.Status.IsActive() {
			return j, true
		}
	}
	return domain.ArticleJob{}, false
}

func (s *Store) ListJobs(_ context.Context, f store.JobFilter) ([]domain.ArticleJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ArticleJob
	for _, j := range s.jobs {
		if f.SiteID != uuid.Nil && j.SiteID != f.SiteID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, f.Limit), nil
}

func (s *Store) ListStaleJobs(_ context.Context, olderThan time.Time, max int) ([]domain.ArticleJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ArticleJob
	for _, j := range s.jobs {
		if j.Status != domain.JobStatusProcessing {
			continue
		}
		started := j.UpdatedAt
		if j.StartedAt != nil {
			started = *j.StartedAt
		}
		if started.Before(olderThan) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return limit(out, max), nil
}

func (s *Store) InsertJob(_ context.Context, job domain.ArticleJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrUniqueViolation
	}
	if err := s.checkJobUniqueLocked(job); err != nil {
		return err
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) UpdateJob(_ context.Context, job domain.ArticleJob, from domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != from {
		return errors.Wrapf(store.ErrStatusChanged, "job is now %s", current.Status)
	}
	if err := s.checkJobUniqueLocked(job); err != nil {
		return err
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) checkJobUniqueLocked(job domain.ArticleJob) error {
	if job.IdempotencyKey != "" {
		for id, other := range s.jobs {
			if id != job.ID && other.IdempotencyKey == job.IdempotencyKey {
				return store.ErrUniqueViolation
			}
		}
	}
	if job.WPPostID != nil && job.Status.IsActive() {
		if _, ok := s.activeJobLocked(job.SiteID, *job.WPPostID, job.ID); ok {
			return store.ErrUniqueViolation
		}
	}
	return nil
}

func (s *Store) DeleteJob(_ context.Context, id uuid.UUID, from domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != from {
		return errors.Wrapf(store.ErrStatusChanged, "job is now %s", current.Status)
	}
	delete(s.jobs, id)
	return nil
}

// --- schedules ---

func (s *Store) GetSchedule(_ context.Context, siteID uuid.UUID) (domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[siteID]
	if !ok {
		return domain.Schedule{}, store.ErrNotFound
	}
	return copySchedule(sc), nil
}

func (s *Store) InsertSchedule(_ context.Context, sc domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sc.SiteID]; ok {
		return store.ErrUniqueViolation
	}
	s.schedules[sc.SiteID] = copySchedule(sc)
	return nil
}

func (s *Store) UpdateSchedule(_ context.Context, sc domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sc.SiteID]; !ok {
		return store.ErrNotFound
	}
	s.schedules[sc.SiteID] = copySchedule(sc)
	return nil
}

func (s *Store) ListDueSchedules(_ context.Context, now time.Time) ([]store.DueSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.DueSchedule
	for siteID, sc := range s.schedules {
		if !sc.Enabled || sc.NextRunAt == nil || sc.NextRunAt.After(now) {
			continue
		}
		site, ok := s.sites[siteID]
		if !ok || !site.Active {
			continue
		}
		out = append(out, store.DueSchedule{Schedule: copySchedule(sc), Site: site})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Schedule.NextRunAt.Before(*out[j].Schedule.NextRunAt)
	})
	return out, nil
}

// --- keywords ---

func (s *Store) ListKeywords(_ context.Context, siteID uuid.UUID, f store.KeywordFilter) ([]domain.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Keyword
	for _, k := range s.keywords {
		if k.SiteID != siteID || (f.ActiveOnly && !k.Active) {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return limit(out, f.Limit), nil
}

func (s *Store) GetKeyword(_ context.Context, siteID, id uuid.UUID) (domain.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keywords[id]
	if !ok || k.SiteID != siteID {
		return domain.Keyword{}, store.ErrNotFound
	}
	return k, nil
}

func (s *Store) ReplaceKeywords(_ context.Context, siteID uuid.UUID, kws []domain.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.keywords {
		if k.SiteID == siteID {
			delete(s.keywords, id)
		}
	}
	for _, k := range kws {
		k.SiteID = siteID
		s.keywords[k.ID] = k
	}
	return nil
}

func (s *Store) InsertKeyword(_ context.Context, k domain.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[k.ID]; ok {
		return store.ErrUniqueViolation
	}
	s.keywords[k.ID] = k
	return nil
}

func (s *Store) UpdateKeyword(_ context.Context, k domain.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[k.ID]; !ok {
		return store.ErrNotFound
	}
	s.keywords[k.ID] = k
	return nil
}

func (s *Store) MaxKeywordPriority(_ context.Context, siteID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, k := range s.keywords {
		if k.SiteID == siteID && k.Priority > max {
			max = k.Priority
		}
	}
	return max, nil
}

// --- articles ---

func (s *Store) GetArticle(_ context.Context, id uuid.UUID) (domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return domain.Article{}, store.ErrNotFound
	}
	return copyArticle(a), nil
}

func (s *Store) ListArticles(_ context.Context, siteID uuid.UUID, max int) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Article
	for _, a := range s.articles {
		if a.SiteID == siteID {
			out = append(out, copyArticle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, max), nil
}

func (s *Store) InsertArticle(_ context.Context, a domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; ok {
		return store.ErrUniqueViolation
	}
	s.articles[a.ID] = copyArticle(a)
	return nil
}

func (s *Store) UpdateArticle(_ context.Context, a domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; !ok {
		return store.ErrNotFound
	}
	s.articles[a.ID] = copyArticle(a)
	return nil
}

// --- users ---

func (s *Store) ListUsers(_ context.Context) ([]domain.PlatformUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PlatformUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (domain.PlatformUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.PlatformUser{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpsertUser(_ context.Context, u domain.PlatformUser) (domain.PlatformUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if existing.FirebaseUID == u.FirebaseUID {
			existing.Email = u.Email
			existing.DisplayName = u.DisplayName
			existing.UpdatedAt = u.UpdatedAt
			s.users[id] = existing
			return existing, nil
		}
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u domain.PlatformUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// --- helpers ---

func limit[T any](in []T, n int) []T {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func copyJob(j domain.ArticleJob) domain.ArticleJob {
	if j.ResultData != nil {
		j.ResultData = append(json.RawMessage(nil), j.ResultData...)
	}
	return j
}

func copySchedule(sc domain.Schedule) domain.Schedule {
	sc.DaysOfWeek = append([]int(nil), sc.DaysOfWeek...)
	return sc
}

func copyArticle(a domain.Article) domain.Article {
	a.FeedbackHistory = append([]domain.FeedbackItem(nil), a.FeedbackHistory...)
	if a.SourceData != nil {
		a.SourceData = append(json.RawMessage(nil), a.SourceData...)
	}
	return a
}

var _ store.Store = (*Store)(nil)

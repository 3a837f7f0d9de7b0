package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/workflow"
)

// memoryStore is a process-local Store used by tests and by the "memory"
// database driver for local development. Counter updates take a per-key
// lock so the check-and-increment is atomic like the Postgres upsert.
type memoryStore struct {
	mu       sync.RWMutex
	counterM sync.Map // core.UsageKey -> *sync.Mutex

	users    map[string]core.User
	tokens   map[string]string
	repos    map[int64]core.Repository
	reviews  []core.ReviewRecord
	counters map[core.UsageKey]*core.UsageCounter
	indexes  map[string]core.RepositoryIndex
	runs     map[string]workflow.Run
	steps    map[string]map[string]workflow.StepResult

	nextRepoID   int64
	nextReviewID int64
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		users:    make(map[string]core.User),
		tokens:   make(map[string]string),
		repos:    make(map[int64]core.Repository),
		counters: make(map[core.UsageKey]*core.UsageCounter),
		indexes:  make(map[string]core.RepositoryIndex),
		runs:     make(map[string]workflow.Run),
		steps:    make(map[string]map[string]workflow.StepResult),
	}
}

func (m *memoryStore) GetUser(_ context.Context, id string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (m *memoryStore) UpsertUser(_ context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	if u.Tier == "" {
		u.Tier = core.TierFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return nil
}

func tokenKey(userID, provider string) string { return userID + "\x00" + provider }

func (m *memoryStore) GetAccessToken(_ context.Context, userID, provider string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token := m.tokens[tokenKey(userID, provider)]
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

func (m *memoryStore) SaveAccessToken(_ context.Context, userID, provider, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenKey(userID, provider)] = token
	return nil
}

func (m *memoryStore) CreateRepository(_ context.Context, repo *core.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.Owner == repo.Owner && r.Name == repo.Name {
			return fmt.Errorf("%s: %w", repo.FullName, ErrRepositoryExists)
		}
	}
	m.nextRepoID++
	repo.ID = m.nextRepoID
	repo.CreatedAt = time.Now().UTC()
	m.repos[repo.ID] = *repo
	return nil
}

func (m *memoryStore) GetRepositoryByOwnerName(_ context.Context, owner, name string) (*core.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.repos {
		if r.Owner == owner && r.Name == name {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
}

func (m *memoryStore) ListRepositoriesByUser(_ context.Context, userID string) ([]core.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Repository
	for _, r := range m.repos {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryStore) SaveReview(_ context.Context, review *core.ReviewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReviewID++
	review.ID = m.nextReviewID
	review.CreatedAt = time.Now().UTC()
	m.reviews = append(m.reviews, *review)
	return nil
}

func (m *memoryStore) ListReviews(_ context.Context, repositoryID int64, limit int) ([]core.ReviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []core.ReviewRecord
	for i := len(m.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		if m.reviews[i].RepositoryID == repositoryID {
			out = append(out, m.reviews[i])
		}
	}
	return out, nil
}

func (m *memoryStore) lockCounter(key core.UsageKey) func() {
	mu, _ := m.counterM.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

func (m *memoryStore) GetUsage(_ context.Context, key core.UsageKey) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[key]; ok {
		return c.Count, nil
	}
	return 0, nil
}

func (m *memoryStore) IncrementUsage(_ context.Context, key core.UsageKey, limit *int) (int, error) {
	unlock := m.lockCounter(key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key]
	if !ok {
		c = &core.UsageCounter{UserID: key.UserID, RepositoryID: key.RepositoryID, Kind: key.Kind}
		m.counters[key] = c
	}
	if limit != nil && c.Count >= *limit {
		return c.Count, core.ErrQuotaExceeded
	}
	c.Count++
	c.UpdatedAt = time.Now().UTC()
	return c.Count, nil
}

func (m *memoryStore) DecrementUsage(_ context.Context, key core.UsageKey) error {
	unlock := m.lockCounter(key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[key]; ok && c.Count > 0 {
		c.Count--
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *memoryStore) ListUsage(_ context.Context, userID string) ([]core.UsageCounter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.UsageCounter
	for _, c := range m.counters {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].RepositoryID < out[j].RepositoryID
	})
	return out, nil
}

func (m *memoryStore) GetRepositoryIndex(_ context.Context, repositoryKey string) (*core.RepositoryIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[repositoryKey]
	if !ok {
		return nil, ErrNotFound
	}
	return &idx, nil
}

func (m *memoryStore) SwapRepositoryIndex(_ context.Context, idx *core.RepositoryIndex) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.indexes[idx.RepositoryKey].CollectionName
	next := *idx
	next.IndexedAt = time.Now().UTC()
	m.indexes[idx.RepositoryKey] = next
	return previous, nil
}

func (m *memoryStore) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.RequestID == run.RequestID {
			return fmt.Errorf("request %s: %w", run.RequestID, workflow.ErrDuplicateRun)
		}
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryStore) GetRun(_ context.Context, id string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, workflow.ErrRunNotFound
	}
	return &r, nil
}

func (m *memoryStore) GetRunByRequestID(_ context.Context, requestID string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.RequestID == requestID {
			return &r, nil
		}
	}
	return nil, workflow.ErrRunNotFound
}

func (m *memoryStore) UpdateRunStatus(_ context.Context, id string, status workflow.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return workflow.ErrRunNotFound
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s: %w: %s -> %s", id, workflow.ErrInvalidTransition, r.Status, status)
	}
	r.Status = status
	r.Error = errMsg
	r.UpdatedAt = time.Now().UTC()
	m.runs[id] = r
	return nil
}

func (m *memoryStore) ListRunsByStatus(_ context.Context, statuses ...workflow.Status) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*workflow.Run
	for _, r := range m.runs {
		if slices.Contains(statuses, r.Status) {
			run := r
			out = append(out, &run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) SaveStepResult(_ context.Context, result *workflow.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[result.RunID] == nil {
		m.steps[result.RunID] = make(map[string]workflow.StepResult)
	}
	m.steps[result.RunID][result.Name] = *result
	return nil
}

func (m *memoryStore) ListStepResults(_ context.Context, runID string) ([]workflow.StepResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflow.StepResult, 0, len(m.steps[runID]))
	for _, s := range m.steps[runID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

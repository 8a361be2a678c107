package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tax-engagement-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-memory Store for tests and local development. All methods
// copy on the way in and out so callers never share row memory.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]models.TaxUser // keyed by ExternalUserID
	definitions map[string]models.AchievementDefinition
	progress    map[progressKey]models.UserAchievementProgress
	stats       map[string]models.UserStats
	filings     []models.TaxReturn
	commissions []models.Commission
	referrals   map[string]models.Referral // keyed by ReferredID
}

type progressKey struct {
	UserID        string
	AchievementID string
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]models.TaxUser),
		definitions: make(map[string]models.AchievementDefinition),
		progress:    make(map[progressKey]models.UserAchievementProgress),
		stats:       make(map[string]models.UserStats),
		referrals:   make(map[string]models.Referral),
	}
}

var _ Store = (*Memory)(nil)

// PutUser seeds a user snapshot (test helper; production snapshots arrive via
// the sync worker writing through GORM).
func (m *Memory) PutUser(u models.TaxUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ExternalUserID] = u
}

func (m *Memory) GetUser(_ context.Context, externalUserID string) (*models.TaxUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[externalUserID]
	if !ok {
		return nil, ErrNotFound
	}
	out := u
	return &out, nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListActiveDefinitions(_ context.Context) ([]models.AchievementDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var defs []models.AchievementDefinition
	for _, d := range m.definitions {
		if d.IsActive {
			defs = append(defs, d)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Slug < defs[j].Slug })
	return defs, nil
}

func (m *Memory) GetDefinition(_ context.Context, id string) (*models.AchievementDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.definitions {
		if d.ID == id {
			out := d
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SaveDefinition(_ context.Context, def *models.AchievementDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.definitions[def.Slug]; ok {
		def.ID = existing.ID
	} else if def.ID == "" {
		def.ID = uuid.NewString()
	}
	m.definitions[def.Slug] = *def
	return nil
}

func (m *Memory) GetProgress(_ context.Context, userID, achievementID string) (*models.UserAchievementProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[progressKey{userID, achievementID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

func (m *Memory) CreateProgress(_ context.Context, p *models.UserAchievementProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := progressKey{p.UserID, p.AchievementID}
	if _, ok := m.progress[k]; ok {
		// Same semantics as the Postgres ON CONFLICT DO NOTHING path.
		return nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.progress[k] = *p
	return nil
}

func (m *Memory) SaveProgress(_ context.Context, p *models.UserAchievementProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[progressKey{p.UserID, p.AchievementID}] = *p
	return nil
}

func (m *Memory) ListProgress(_ context.Context, userID string) ([]models.UserAchievementProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []models.UserAchievementProgress
	for k, p := range m.progress {
		if k.UserID == userID {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AchievementID < rows[j].AchievementID })
	return rows, nil
}

func (m *Memory) MarkUnlocked(_ context.Context, userID, achievementID string, at time.Time, progress int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := progressKey{userID, achievementID}
	p, ok := m.progress[k]
	if !ok || p.IsUnlocked {
		return false, nil
	}
	p.IsUnlocked = true
	p.UnlockedAt = &at
	p.Progress = progress
	m.progress[k] = p
	return true, nil
}

func (m *Memory) GetStats(_ context.Context, userID string) (*models.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := s
	return &out, nil
}

// UpdateStats holds the store lock across read, mutation and write; two
// concurrent mutations serialize the same way the Postgres row lock does.
func (m *Memory) UpdateStats(_ context.Context, userID string, mutate func(*models.UserStats) error) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[userID]
	if !ok {
		s = *models.NewUserStats(userID)
		s.ID = uuid.NewString()
		m.stats[userID] = s
	}
	if err := mutate(&s); err != nil {
		if errors.Is(err, ErrNoChange) {
			out := s
			return &out, nil
		}
		return nil, err
	}
	m.stats[userID] = s
	out := s
	return &out, nil
}

func (m *Memory) CreateFiling(_ context.Context, f *models.TaxReturn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.filings = append(m.filings, *f)
	return nil
}

func (m *Memory) CreateCommission(_ context.Context, c *models.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.commissions = append(m.commissions, *c)
	return nil
}

func (m *Memory) CreateReferral(_ context.Context, r *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.referrals[r.ReferredID] = *r
	return nil
}

func (m *Memory) MarkReferralConverted(_ context.Context, referredID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrals[referredID]
	if !ok || r.Converted {
		return nil
	}
	r.Converted = true
	r.ConvertedAt = &at
	m.referrals[referredID] = r
	return nil
}

func (m *Memory) CountClients(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make(map[string]struct{})
	for _, f := range m.filings {
		if f.UserID == userID {
			clients[f.ClientID] = struct{}{}
		}
	}
	return int64(len(clients)), nil
}

func (m *Memory) CountActiveClients(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make(map[string]struct{})
	for _, f := range m.filings {
		if f.UserID == userID && !f.FiledAt.Before(since) {
			clients[f.ClientID] = struct{}{}
		}
	}
	return int64(len(clients)), nil
}

func (m *Memory) CountFilings(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, f := range m.filings {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountFilingsSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, f := range m.filings {
		if f.UserID == userID && !f.FiledAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) FilingDays(_ context.Context, userID string, limit int) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[time.Time]struct{})
	for _, f := range m.filings {
		if f.UserID != userID {
			continue
		}
		d := time.Date(f.FiledAt.Year(), f.FiledAt.Month(), f.FiledAt.Day(), 0, 0, 0, 0, f.FiledAt.Location())
		seen[d] = struct{}{}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	if len(days) > limit {
		days = days[:limit]
	}
	return days, nil
}

func (m *Memory) CountReferrals(_ context.Context, referrerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountConvertedReferrals(_ context.Context, referrerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID && r.Converted {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SumCommissions(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, c := range m.commissions {
		if c.UserID == userID {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

// Package memory keeps the mirror in process memory. It backs the memory
// storage driver and the reconciler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"guide_sync/internal/domain"
)

// Store holds categories, guides and sync runs. It enforces the same key
// and reference rules as the postgres schema.
type Store struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
	guides     map[int64]domain.Guide
	links      map[int64][]int64
	runs       []domain.SyncRun
	nextID     int64
	writes     int
}

func New() *Store {
	return &Store{
		categories: make(map[int64]domain.Category),
		guides:     make(map[int64]domain.Guide),
		links:      make(map[int64][]int64),
	}
}

func (s *Store) Categories() *CategoryStore { return &CategoryStore{s: s} }
func (s *Store) Guides() *GuideStore { return &GuideStore{s: s} }
func (s *Store) Runs() *SyncRunStore { return &SyncRunStore{s: s} }

// Writes returns the number of mutations applied so far.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

type snapshot struct {
	categories map[int64]domain.Category
	guides     map[int64]domain.Guide
	links      map[int64][]int64
	runs       []domain.SyncRun
	nextID     int64
	writes     int
}

// WithTransaction restores the prior state when fn fails. Readers may see
// uncommitted writes.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		categories: make(map[int64]domain.Category, len(s.categories)),
		guides:     make(map[int64]domain.Guide, len(s.guides)),
		links:      make(map[int64][]int64, len(s.links)),
		runs:       append([]domain.SyncRun(nil), s.runs...),
		nextID:     s.nextID,
		writes:     s.writes,
	}
	for id, c := range s.categories {
		snap.categories[id] = c
	}
	for id, g := range s.guides {
		snap.guides[id] = g
	}
	for id, l := range s.links {
		snap.links[id] = append([]int64(nil), l...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = snap.categories
	s.guides = snap.guides
	s.links = snap.links
	s.runs = snap.runs
	s.nextID = snap.nextID
	s.writes = snap.writes
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

type CategoryStore struct {
	s *Store
}

func (c *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	out := make([]domain.Category, 0, len(c.s.categories))
	for _, cat := range c.s.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *CategoryStore) Get(ctx context.Context, id int64) (*domain.Category, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	cat, ok := c.s.categories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cat, nil
}

func (c *CategoryStore) GetByRemoteID(ctx context.Context, remoteID int64) (*domain.Category, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	for _, cat := range c.s.categories {
		if cat.RemoteID != nil && *cat.RemoteID == remoteID {
			return &cat, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *CategoryStore) Insert(ctx context.Context, category *domain.Category) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if err := c.check(0, category); err != nil {
		return 0, err
	}
	cat := *category
	cat.ID = c.s.newID()
	c.s.categories[cat.ID] = cat
	c.s.writes++
	return cat.ID, nil
}

func (c *CategoryStore) Update(ctx context.Context, category *domain.Category) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if _, ok := c.s.categories[category.ID]; !ok {
		return domain.ErrNotFound
	}
	if err := c.check(category.ID, category); err != nil {
		return err
	}
	c.s.categories[category.ID] = *category
	c.s.writes++
	return nil
}

// Delete removes a category, turns its children into roots and drops its
// guide links.
func (c *CategoryStore) Delete(ctx context.Context, id int64) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if _, ok := c.s.categories[id]; !ok {
		return domain.ErrNotFound
	}
	delete(c.s.categories, id)
	for childID, child := range c.s.categories {
		if child.ParentID != nil && *child.ParentID == id {
			child.ParentID = nil
			c.s.categories[childID] = child
		}
	}
	for guideID, ids := range c.s.links {
		c.s.links[guideID] = without(ids, id)
	}
	c.s.writes++
	return nil
}

func (c *CategoryStore) check(self int64, category *domain.Category) error {
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	if category.ParentID != nil {
		if *category.ParentID == self {
			return fmt.Errorf("category %d cannot be its own parent", self)
		}
		if _, ok := c.s.categories[*category.ParentID]; !ok {
			return fmt.Errorf("parent category %d does not exist", *category.ParentID)
		}
	}
	if category.RemoteID != nil {
		for id, other := range c.s.categories {
			if id != self && other.RemoteID != nil && *other.RemoteID == *category.RemoteID {
				return fmt.Errorf("remote id %d already belongs to category %d", *category.RemoteID, id)
			}
		}
	}
	return nil
}

type GuideStore struct {
	s *Store
}

func (g *GuideStore) List(ctx context.Context) ([]domain.Guide, error) {
	return g.list(func(domain.Guide) bool { return true }), nil
}

func (g *GuideStore) ListPublished(ctx context.Context) ([]domain.Guide, error) {
	out := g.list(func(guide domain.Guide) bool { return guide.IsPublished() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (g *GuideStore) list(keep func(domain.Guide) bool) []domain.Guide {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	out := make([]domain.Guide, 0, len(g.s.guides))
	for _, guide := range g.s.guides {
		if !keep(guide) {
			continue
		}
		guide.CategoryIDs = g.categoryIDs(guide.ID)
		out = append(out, guide)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *GuideStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.Guide, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	for _, guide := range g.s.guides {
		if guide.ExternalID == externalID {
			guide.CategoryIDs = g.categoryIDs(guide.ID)
			return &guide, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *GuideStore) CategoryIDs(ctx context.Context, guideID int64) ([]int64, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	return g.categoryIDs(guideID), nil
}

func (g *GuideStore) categoryIDs(guideID int64) []int64 {
	ids := append([]int64(nil), g.s.links[guideID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *GuideStore) Insert(ctx context.Context, guide *domain.Guide) (int64, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	for _, other := range g.s.guides {
		if other.ExternalID == guide.ExternalID {
			return 0, fmt.Errorf("external id %d already belongs to guide %d", guide.ExternalID, other.ID)
		}
	}
	stored := *guide
	stored.ID = g.s.newID()
	stored.CategoryIDs = nil
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	g.s.guides[stored.ID] = stored
	g.s.writes++
	return stored.ID, nil
}

// Update keeps the stored external id.
func (g *GuideStore) Update(ctx context.Context, guide *domain.Guide) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	current, ok := g.s.guides[guide.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored := *guide
	stored.ExternalID = current.ExternalID
	stored.CategoryIDs = nil
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now()
	g.s.guides[guide.ID] = stored
	g.s.writes++
	return nil
}

func (g *GuideStore) Delete(ctx context.Context, id int64) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	if _, ok := g.s.guides[id]; !ok {
		return domain.ErrNotFound
	}
	delete(g.s.guides, id)
	delete(g.s.links, id)
	g.s.writes++
	return nil
}

func (g *GuideStore) SetCategories(ctx context.Context, guideID int64, categoryIDs []int64) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	if _, ok := g.s.guides[guideID]; !ok {
		return domain.ErrNotFound
	}
	seen := make(map[int64]struct{}, len(categoryIDs))
	ids := make([]int64, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		if _, ok := g.s.categories[id]; !ok {
			return fmt.Errorf("category %d does not exist", id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	g.s.links[guideID] = ids
	g.s.writes++
	return nil
}

type SyncRunStore struct {
	s *Store
}

func (r *SyncRunStore) Record(ctx context.Context, run *domain.SyncRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs = append(r.s.runs, *run)
	return nil
}

func (r *SyncRunStore) Last(ctx context.Context) (*domain.SyncRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if len(r.s.runs) == 0 {
		return nil, domain.ErrNotFound
	}
	run := r.s.runs[len(r.s.runs)-1]
	return &run, nil
}

// Locker is a process-local run lock.
type Locker struct {
	mu sync.Mutex
}

func (l *Locker) TryLock(ctx context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

func without(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

package service

import (
	"context"
	"log/slog"

	"guide_sync/internal/domain"
)

// categoryNode is the desired state of one local category for this run.
type categoryNode struct {
	local      *domain.Category
	desired    domain.Category
	parent     *categoryNode
	fromRemote bool
	touched    bool
	applied    bool
	failed     bool
}

// categoryPlan resolves the remote snapshot onto local categories before
// anything is written, so duplicate names collapse into a single write.
type categoryPlan struct {
	existing []*categoryNode
	touched  []*categoryNode
	byRemote map[int64]*categoryNode
	byName   map[string]*categoryNode
	remote   map[int64]domain.RemoteCategory
	resolved map[int64]*categoryNode
	visiting map[int64]bool
	logger   *slog.Logger
}

func newCategoryPlan(local []domain.Category, logger *slog.Logger) *categoryPlan {
	p := &categoryPlan{
		byRemote: make(map[int64]*categoryNode, len(local)),
		byName:   make(map[string]*categoryNode, len(local)),
		remote:   make(map[int64]domain.RemoteCategory),
		resolved: make(map[int64]*categoryNode),
		visiting: make(map[int64]bool),
		logger:   logger,
	}
	for i := range local {
		n := &categoryNode{local: &local[i], desired: local[i]}
		p.existing = append(p.existing, n)
		if n.desired.RemoteID != nil {
			p.byRemote[*n.desired.RemoteID] = n
		}
		if key := domain.NameKey(n.desired.Name); key != "" {
			if _, taken := p.byName[key]; !taken {
				p.byName[key] = n
			}
		}
	}
	return p
}

func (s *SyncService) syncCategories(ctx context.Context, logger *slog.Logger) domain.PhaseReport {
	report := domain.PhaseReport{Name: domain.PhaseCategories}
	logger = logger.With("phase", domain.PhaseCategories)

	items, err := s.source.ListCategories(ctx)
	if err != nil {
		logger.Error("failed to list categories", "error", err)
		report.Error = err.Error()
		return report
	}
	report.Fetched = len(items)

	local, err := s.categories.List(ctx)
	if err != nil {
		logger.Error("failed to load local categories", "error", err)
		report.Error = err.Error()
		return report
	}

	plan := newCategoryPlan(local, logger)
	var order []int64
	for _, item := range items {
		if domain.NameKey(item.Name) == "" {
			logger.Warn("skipping category without name", "remote_id", item.ID)
			report.Skipped++
			continue
		}
		if _, dup := plan.remote[item.ID]; dup {
			logger.Warn("skipping duplicate category id", "remote_id", item.ID)
			report.Skipped++
			continue
		}
		plan.remote[item.ID] = item
		order = append(order, item.ID)
	}

	plan.claim(order)
	for _, id := range order {
		plan.resolve(id)
	}

	for _, n := range plan.touched {
		if err := ctx.Err(); err != nil {
			logger.Error("category sync interrupted", "error", err)
			report.Error = err.Error()
			return report
		}
		s.applyCategory(ctx, n, &report, logger)
	}

	var stale []*categoryNode
	for _, n := range plan.existing {
		if !n.touched {
			stale = append(stale, n)
		}
	}
	if len(stale) > 0 {
		linked, err := s.linkedCategories(ctx)
		if err != nil {
			logger.Error("failed to load guide links, skipping category deletion", "error", err)
			report.Error = err.Error()
			return report
		}
		for _, n := range stale {
			// Categories created for an article reference outside the
			// snapshot live as long as a stored guide links them.
			if linked[n.local.ID] {
				logger.Debug("keeping category linked by guides", "id", n.local.ID, "name", n.local.Name)
				report.Retained++
				continue
			}
			if err := s.categories.Delete(ctx, n.local.ID); err != nil {
				logger.Error("failed to delete category", "id", n.local.ID, "name", n.local.Name, "error", err)
				report.Failed++
				continue
			}
			logger.Debug("deleted category", "id", n.local.ID, "name", n.local.Name)
			report.Deleted++
		}
	}

	report.OK = true
	logger.Info("categories synced",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"retained", report.Retained,
	)
	return report
}

func (s *SyncService) linkedCategories(ctx context.Context) (map[int64]bool, error) {
	guides, err := s.guides.List(ctx)
	if err != nil {
		return nil, err
	}
	linked := make(map[int64]bool)
	for _, g := range guides {
		for _, id := range g.CategoryIDs {
			linked[id] = true
		}
	}
	return linked, nil
}

// resolve places the remote item with the given id, parents first. It
// reports false when id is already on the current resolution chain.
func (p *categoryPlan) resolve(id int64) (*categoryNode, bool) {
	if n, ok := p.resolved[id]; ok {
		return n, true
	}
	if p.visiting[id] {
		return nil, false
	}
	item := p.remote[id]
	p.visiting[id] = true
	defer delete(p.visiting, id)

	var parent *categoryNode
	switch {
	case item.GroupID != 0:
		if _, ok := p.remote[item.GroupID]; !ok {
			p.logger.Warn("parent category not in remote list, using root",
				"remote_id", id, "group_id", item.GroupID)
			break
		}
		pn, ok := p.resolve(item.GroupID)
		if !ok {
			p.logger.Warn("category parent cycle, using root",
				"remote_id", id, "group_id", item.GroupID)
			break
		}
		parent = pn
	case item.GroupName != "":
		parent = p.group(item.GroupName)
	}

	n := p.match(item)
	n.fromRemote = true
	n.desired.Sequence = item.Sequence
	n.desired.GroupID = nil
	if item.GroupID != 0 {
		n.desired.GroupID = &item.GroupID
	}
	n.desired.GroupName = nil
	if item.GroupName != "" {
		n.desired.GroupName = &item.GroupName
	}

	if parent != nil && p.isAncestor(n, parent) {
		p.logger.Warn("linking parent would create a cycle, using root",
			"remote_id", id, "name", item.Name)
		parent = nil
	}
	n.parent = parent

	p.touch(n)
	p.resolved[id] = n
	return n, true
}

// claim renames every local category whose remote id is in the snapshot
// and rebuilds the name index from the claimed names, so a name freed by a
// rename can be taken by another item regardless of listing order.
func (p *categoryPlan) claim(order []int64) {
	claimed := make(map[*categoryNode]bool)
	byName := make(map[string]*categoryNode, len(p.existing))
	for _, id := range order {
		n, ok := p.byRemote[id]
		if !ok {
			continue
		}
		n.desired.Name = p.remote[id].Name
		claimed[n] = true
		if key := domain.NameKey(n.desired.Name); key != "" && byName[key] == nil {
			byName[key] = n
		}
	}
	for _, n := range p.existing {
		if claimed[n] {
			continue
		}
		if key := domain.NameKey(n.desired.Name); key != "" && byName[key] == nil {
			byName[key] = n
		}
	}
	p.byName = byName
}

// match finds the local category for a remote item by remote id, then by
// name. A name match adopts the remote id unless its current remote id is
// still part of the snapshot.
func (p *categoryPlan) match(item domain.RemoteCategory) *categoryNode {
	if n, ok := p.byRemote[item.ID]; ok {
		p.rename(n, item.Name)
		return n
	}

	if n, ok := p.byName[domain.NameKey(item.Name)]; ok {
		owner := n.desired.RemoteID
		if owner != nil {
			if _, present := p.remote[*owner]; present {
				p.logger.Info("merging category with duplicate name",
					"remote_id", item.ID, "merged_into", *owner, "name", item.Name)
				p.rename(n, item.Name)
				return n
			}
			delete(p.byRemote, *owner)
		}
		remoteID := item.ID
		n.desired.RemoteID = &remoteID
		p.byRemote[item.ID] = n
		p.rename(n, item.Name)
		return n
	}

	remoteID := item.ID
	n := &categoryNode{desired: domain.Category{RemoteID: &remoteID}}
	p.byRemote[item.ID] = n
	p.rename(n, item.Name)
	return n
}

// group finds or creates the category named by a group_name reference.
func (p *categoryPlan) group(name string) *categoryNode {
	key := domain.NameKey(name)
	n, ok := p.byName[key]
	if !ok {
		n = &categoryNode{desired: domain.Category{Name: name}}
		p.byName[key] = n
	}
	if !n.fromRemote {
		n.parent = nil
	}
	p.touch(n)
	return n
}

func (p *categoryPlan) rename(n *categoryNode, name string) {
	oldKey, newKey := domain.NameKey(n.desired.Name), domain.NameKey(name)
	if oldKey != newKey && p.byName[oldKey] == n {
		delete(p.byName, oldKey)
	}
	n.desired.Name = name
	if _, taken := p.byName[newKey]; !taken {
		p.byName[newKey] = n
	}
}

func (p *categoryPlan) isAncestor(n, parent *categoryNode) bool {
	for a := parent; a != nil; a = a.parent {
		if a == n {
			return true
		}
	}
	return false
}

func (p *categoryPlan) touch(n *categoryNode) {
	if !n.touched {
		n.touched = true
		p.touched = append(p.touched, n)
	}
}

// applyCategory writes n after its parent so the parent key is known.
func (s *SyncService) applyCategory(ctx context.Context, n *categoryNode, report *domain.PhaseReport, logger *slog.Logger) {
	if n.applied {
		return
	}
	n.applied = true

	n.desired.ParentID = nil
	if n.parent != nil {
		s.applyCategory(ctx, n.parent, report, logger)
		if n.parent.failed {
			logger.Warn("parent category was not stored, using root", "name", n.desired.Name)
		} else {
			parentID := n.parent.desired.ID
			n.desired.ParentID = &parentID
		}
	}

	if n.local == nil {
		id, err := s.categories.Insert(ctx, &n.desired)
		if err != nil {
			logger.Error("failed to create category", "name", n.desired.Name, "error", err)
			n.failed = true
			report.Failed++
			return
		}
		n.desired.ID = id
		logger.Debug("created category", "id", id, "name", n.desired.Name)
		report.Created++
		return
	}

	if sameCategory(n.local, &n.desired) {
		report.Unchanged++
		return
	}
	if err := s.categories.Update(ctx, &n.desired); err != nil {
		logger.Error("failed to update category", "id", n.desired.ID, "name", n.desired.Name, "error", err)
		report.Failed++
		return
	}
	logger.Debug("updated category", "id", n.desired.ID, "name", n.desired.Name)
	report.Updated++
}

func sameCategory(a, b *domain.Category) bool {
	return a.Name == b.Name &&
		samePtr(a.RemoteID, b.RemoteID) &&
		samePtr(a.ParentID, b.ParentID) &&
		samePtr(a.Sequence, b.Sequence) &&
		samePtr(a.GroupID, b.GroupID) &&
		samePtr(a.GroupName, b.GroupName)
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

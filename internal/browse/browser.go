// Package browse renders the published guides as a category tree for the
// help center pages.
package browse

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"guide_sync/internal/domain"
	"guide_sync/internal/product"
)

type CategoryLister interface {
	List(ctx context.Context) ([]domain.Category, error)
}

type GuideLister interface {
	ListPublished(ctx context.Context) ([]domain.Guide, error)
}

// Options selects and links the tree. An empty Product shows every root.
// BaseURL defaults to the product's guide path.
type Options struct {
	Product string
	BaseURL string
	Query   string
}

type Node struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	RemoteID *int64  `json:"remote_id,omitempty"`
	Guides   []Link  `json:"guides,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

type Link struct {
	ExternalID int64  `json:"external_id"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt,omitempty"`
	URL        string `json:"url"`
}

type Browser struct {
	categories CategoryLister
	guides     GuideLister
	rules      *product.Rules
}

func NewBrowser(categories CategoryLister, guides GuideLister, rules *product.Rules) *Browser {
	return &Browser{
		categories: categories,
		guides:     guides,
		rules:      rules,
	}
}

type tree struct {
	children map[int64][]domain.Category
	guides   map[int64][]domain.Guide
	baseURL  string
	visited  map[int64]bool
}

// Tree returns the root nodes holding at least one visible guide.
func (b *Browser) Tree(ctx context.Context, opts Options) ([]*Node, error) {
	categories, err := b.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	published, err := b.guides.ListPublished(ctx)
	if err != nil {
		return nil, err
	}

	t := &tree{
		children: make(map[int64][]domain.Category),
		guides:   make(map[int64][]domain.Guide),
		baseURL:  baseURL(opts),
		visited:  make(map[int64]bool),
	}

	byID := make(map[int64]struct{}, len(categories))
	for _, c := range categories {
		byID[c.ID] = struct{}{}
	}
	var roots []domain.Category
	for _, c := range categories {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		if _, ok := byID[*c.ParentID]; !ok {
			roots = append(roots, c)
			continue
		}
		t.children[*c.ParentID] = append(t.children[*c.ParentID], c)
	}
	for _, g := range published {
		for _, id := range g.CategoryIDs {
			t.guides[id] = append(t.guides[id], g)
		}
	}

	sortCategories(roots)
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	var out []*Node
	for _, root := range roots {
		if !b.showsRoot(opts.Product, root) {
			continue
		}
		if node := t.build(root, query); node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

func (b *Browser) showsRoot(productName string, root domain.Category) bool {
	if productName == "" {
		return true
	}
	matched := b.rules.Match(root.Name)
	if productName == b.rules.Fallback() {
		return len(matched) == 0
	}
	for _, p := range matched {
		if p == productName {
			return true
		}
	}
	return false
}

// build returns nil for categories with nothing visible below them. A
// category whose name matches the query shows its whole subtree.
func (t *tree) build(c domain.Category, query string) *Node {
	if t.visited[c.ID] {
		return nil
	}
	t.visited[c.ID] = true

	if query != "" && strings.Contains(strings.ToLower(c.Name), query) {
		query = ""
	}

	node := &Node{ID: c.ID, Name: c.Name, RemoteID: c.RemoteID}

	guides := t.guides[c.ID]
	sort.SliceStable(guides, func(i, j int) bool {
		ti, tj := strings.ToLower(guides[i].Title), strings.ToLower(guides[j].Title)
		if ti != tj {
			return ti < tj
		}
		return guides[i].ExternalID < guides[j].ExternalID
	})
	for _, g := range guides {
		if query != "" && !strings.Contains(strings.ToLower(g.Title), query) {
			continue
		}
		node.Guides = append(node.Guides, Link{
			ExternalID: g.ExternalID,
			Title:      g.Title,
			Excerpt:    g.Excerpt,
			URL:        t.baseURL + "/" + strconv.FormatInt(g.ExternalID, 10),
		})
	}

	children := t.children[c.ID]
	sortCategories(children)
	for _, child := range children {
		if n := t.build(child, query); n != nil {
			node.Children = append(node.Children, n)
		}
	}

	if len(node.Guides) == 0 && len(node.Children) == 0 {
		return nil
	}
	return node
}

func baseURL(opts Options) string {
	if opts.BaseURL != "" {
		return strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Product != "" {
		return "/" + opts.Product + "/guides"
	}
	return "/guides"
}

// sortCategories orders by sequence, unsequenced last, then by name.
func sortCategories(cs []domain.Category) {
	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := cs[i].Sequence, cs[j].Sequence
		switch {
		case si != nil && sj != nil && *si != *sj:
			return *si < *sj
		case si != nil && sj == nil:
			return true
		case si == nil && sj != nil:
			return false
		}
		return strings.ToLower(cs[i].Name) < strings.ToLower(cs[j].Name)
	})
}

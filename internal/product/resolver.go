// Package product maps guides onto the products whose help centers show
// them, and builds the product-scoped permalinks.
package product

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"guide_sync/internal/domain"
)

// ErrCycle is returned when a category's parent chain loops.
var ErrCycle = errors.New("category parent chain loops")

type CategoryReader interface {
	Get(ctx context.Context, id int64) (*domain.Category, error)
}

type GuideReader interface {
	GetByExternalID(ctx context.Context, externalID int64) (*domain.Guide, error)
}

// Rules maps root category slugs onto products.
type Rules struct {
	order    []string
	roots    map[string]map[string]struct{}
	fallback string
}

// NewRules builds a rule table. Products are reported in the given order.
func NewRules(products map[string][]string, order []string, fallback string) *Rules {
	r := &Rules{
		order:    order,
		roots:    make(map[string]map[string]struct{}, len(products)),
		fallback: fallback,
	}
	for product, slugs := range products {
		set := make(map[string]struct{}, len(slugs))
		for _, slug := range slugs {
			set[Slugify(slug)] = struct{}{}
		}
		r.roots[product] = set
	}
	return r
}

// Match returns the products showing the root named rootName.
func (r *Rules) Match(rootName string) []string {
	slug := Slugify(rootName)
	var out []string
	for _, product := range r.order {
		if _, ok := r.roots[product][slug]; ok {
			out = append(out, product)
		}
	}
	return out
}

func (r *Rules) Fallback() string {
	return r.fallback
}

// Known reports whether product is in the table or is the fallback.
func (r *Rules) Known(product string) bool {
	if product == r.fallback {
		return true
	}
	_, ok := r.roots[product]
	return ok
}

type Resolver struct {
	categories CategoryReader
	guides     GuideReader
	rules      *Rules
}

func NewResolver(categories CategoryReader, guides GuideReader, rules *Rules) *Resolver {
	return &Resolver{
		categories: categories,
		guides:     guides,
		rules:      rules,
	}
}

func (r *Resolver) Rules() *Rules {
	return r.rules
}

// Root walks up from the category with the given id. It returns
// domain.ErrNotFound when the chain is dangling and ErrCycle when it loops.
func (r *Resolver) Root(ctx context.Context, categoryID int64) (*domain.Category, error) {
	seen := make(map[int64]struct{})
	id := categoryID
	for {
		if _, loop := seen[id]; loop {
			return nil, fmt.Errorf("category %d at %d: %w", categoryID, id, ErrCycle)
		}
		seen[id] = struct{}{}

		category, err := r.categories.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if category.IsRoot() {
			return category, nil
		}
		id = *category.ParentID
	}
}

// Products lists the products a guide belongs to, in rule order. A guide
// matching no rule belongs to the fallback product.
func (r *Resolver) Products(ctx context.Context, guide *domain.Guide) ([]string, error) {
	matched := make(map[string]struct{})
	for _, categoryID := range guide.CategoryIDs {
		root, err := r.Root(ctx, categoryID)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrCycle) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, product := range r.rules.Match(root.Name) {
			matched[product] = struct{}{}
		}
	}

	var out []string
	for _, product := range r.rules.order {
		if _, ok := matched[product]; ok {
			out = append(out, product)
		}
	}
	if len(out) == 0 {
		out = []string{r.rules.fallback}
	}
	return out, nil
}

// Permalinks returns one permalink per product of the guide.
func (r *Resolver) Permalinks(ctx context.Context, guide *domain.Guide) ([]string, error) {
	products, err := r.Products(ctx, guide)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(products))
	for _, product := range products {
		links = append(links, Permalink(product, guide.ExternalID))
	}
	return links, nil
}

// Validate reports whether a published guide is reachable under product.
func (r *Resolver) Validate(ctx context.Context, product string, externalID int64) (bool, error) {
	if !r.rules.Known(product) {
		return false, nil
	}

	guide, err := r.guides.GetByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !guide.IsPublished() {
		return false, nil
	}

	products, err := r.Products(ctx, guide)
	if err != nil {
		return false, err
	}
	for _, p := range products {
		if p == product {
			return true, nil
		}
	}
	return false, nil
}

func Permalink(product string, externalID int64) string {
	return "/" + product + "/guides/" + strconv.FormatInt(externalID, 10)
}

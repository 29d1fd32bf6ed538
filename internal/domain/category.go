package domain

import "strings"

type Category struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	RemoteID  *int64  `db:"remote_id" json:"remote_id,omitempty"`
	ParentID  *int64  `db:"parent_id" json:"parent_id,omitempty"`
	Sequence  *int    `db:"sequence" json:"sequence,omitempty"`
	GroupID   *int64  `db:"group_id" json:"group_id,omitempty"`
	GroupName *string `db:"group_name" json:"group_name,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// NameKey is the case-folded name used for name-based matching.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RemoteCategory is one item of the remote FAQ list snapshot.
type RemoteCategory struct {
	ID        int64
	Name      string
	GroupID   int64
	GroupName string
	Sequence  *int
}

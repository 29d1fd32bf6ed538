package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	PhaseCategories = "categories"
	PhaseGuides     = "guides"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// PhaseReport holds statistics about one reconciliation phase.
type PhaseReport struct {
	Name          string `json:"name"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	Fetched       int    `json:"fetched"`
	Created       int    `json:"created"`
	Updated       int    `json:"updated"`
	Unchanged     int    `json:"unchanged"`
	Deleted       int    `json:"deleted"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	Retained      int    `json:"retained"`
	DetailFetches int    `json:"detail_fetches"`
	Published     int    `json:"published"`
}

// Mutations is the number of local writes the phase performed.
func (p *PhaseReport) Mutations() int {
	return p.Created + p.Updated + p.Deleted
}

// SyncReport is the outcome of one sync run.
type SyncReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Categories PhaseReport   `json:"categories"`
	Guides     PhaseReport   `json:"guides"`
	Duration   time.Duration `json:"duration"`
}

func (r *SyncReport) Status() RunStatus {
	switch {
	case r.Categories.OK && r.Guides.OK && r.Categories.Failed == 0 && r.Guides.Failed == 0:
		return RunSuccess
	case !r.Categories.OK && !r.Guides.OK:
		return RunFailed
	default:
		return RunPartial
	}
}

// Message is the human-readable success-or-partial-failure text.
func (r *SyncReport) Message() string {
	switch r.Status() {
	case RunSuccess:
		return fmt.Sprintf("sync completed: %d categories, %d guides",
			r.Categories.Fetched, r.Guides.Fetched)
	case RunFailed:
		return "sync failed: " + r.errorText()
	default:
		return "sync completed with errors: " + r.errorText()
	}
}

func (r *SyncReport) errorText() string {
	var parts []string
	for _, p := range []PhaseReport{r.Categories, r.Guides} {
		if p.Error != "" {
			parts = append(parts, p.Name+": "+p.Error)
		}
		if p.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d items failed", p.Name, p.Failed))
		}
	}
	return strings.Join(parts, "; ")
}

type SyncRun struct {
	ID         string    `db:"id"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Status     RunStatus `db:"status"`
	Message    string    `db:"message"`
	Report     []byte    `db:"report"`
}

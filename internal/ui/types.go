// Package ui holds the templ components of the web interface.
package ui

import "time"

// ExperimentListItem is one row of the experiment overview.
type ExperimentListItem struct {
	ID         string
	Name       string
	Objectives string // e.g. "cost (min), accuracy (max)"
	Trials     int
	Completed  int
	CreatedAt  time.Time
}

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/cwbudde/adaptivexp/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	experiments := s.store.List()

	// Convert to UI list items
	items := make([]ui.ExperimentListItem, len(experiments))
	for i, e := range experiments {
		items[i] = ui.ExperimentListItem{
			ID:         e.ID,
			Name:       e.Name,
			Objectives: describeObjectives(e.Objectives),
			Trials:     e.Trials,
			Completed:  e.Completed,
			CreatedAt:  e.CreatedAt,
		}
	}

	if err := ui.ExperimentList(items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

// describeObjectives renders objectives as "name (min|max)" pairs.
func describeObjectives(objectives []store.ObjectiveSpec) string {
	names := make([]string, len(objectives))
	for i, o := range objectives {
		dir := "max"
		if o.Minimize {
			dir = "min"
		}
		names[i] = fmt.Sprintf("%s (%s)", o.Name, dir)
	}
	return strings.Join(names, ", ")
}

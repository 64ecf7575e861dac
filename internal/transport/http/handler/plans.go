// Package handler holds the admin HTTP surface's gin handlers (spec §5.x).
package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
)

// PlanLister is the slice of registry.Registry the plans handler needs.
type PlanLister interface {
	Plans() (map[string]plan.Plan, error)
}

type planView struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Enable   bool         `json:"enable"`
	Interval plan.Interval `json:"interval"`
}

// Plans is a GET handler returning a read-only JSON snapshot of every plan
// the registry currently knows about, sorted by name for stable output.
// registry.Registry.Plans() only ever returns enabled plans (spec.md §4.2's
// get_plan() contract, filtered at the loader), so Enable is always true in
// this output and disabled plans never reach an operator through this
// endpoint. There is no mutation endpoint: spec.md §2 C4 gives the registry
// no public write API beyond reset()/close(), which are process-internal.
func Plans(lister PlanLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := lister.Plans()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		views := make([]planView, 0, len(plans))
		for name, p := range plans {
			views = append(views, planView{Name: name, Type: p.Type, Enable: p.Enable, Interval: p.Interval})
		}
		sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

		c.JSON(http.StatusOK, views)
	}
}

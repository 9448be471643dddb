package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Health reports "ok" when every registered dependency answers within two
// seconds, and 503 with the failing checks otherwise.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(a.Checks))
	for name := range a.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		if err := a.Checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		a.json(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": failures})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

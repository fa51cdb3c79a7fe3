package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady answers 503 while any dependency is unreachable.
func (c *Controller) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := c.App.Ready(r.Context()); err != nil {
		c.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "backend": c.App.Backend})
}

package controller

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

type Controller struct {
	App        *types.App
	AdminToken string
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App:        app,
		AdminToken: utils.Env("ADMIN_TOKEN", "devtoken"),
	}
}

// NewRouter returns the ops router. Probes are public, everything under /v1 needs the admin token.
func (c *Controller) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", c.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", c.HandleReady).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(c.RequireAuth)
	v1.HandleFunc("/pools/{id}/sync", c.HandleSyncPool).Methods(http.MethodPost)
	v1.HandleFunc("/chains/{chainId}/owners/{owner}/sync", c.HandleSyncOwner).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{task}/run", c.HandleRunTask).Methods(http.MethodPost)
	v1.HandleFunc("/schedules", c.HandleSchedules).Methods(http.MethodGet)

	return r
}

// ValidateToken checks if the Authorization header carries the admin token.
func (c *Controller) ValidateToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || c.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.AdminToken)) == 1
}

// RequireAuth middleware
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		c.writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (c *Controller) writeError(w http.ResponseWriter, statusCode int, message string) {
	c.writeJSON(w, statusCode, map[string]string{"error": message})
}

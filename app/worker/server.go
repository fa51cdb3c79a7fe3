package worker

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/app/worker/controller"
	"github.com/systemis/funding-machine-backend/app/worker/types"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

// NewServer builds the ops HTTP server of app.
func NewServer(app *types.App) {
	ctler := controller.NewController(app)

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           ctler.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))
}

package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/poolsync"
	"github.com/systemis/funding-machine-backend/pkg/scheduler"
)

// HandleSyncPool resyncs one pool from its on-chain state.
func (c *Controller) HandleSyncPool(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid pool id")
		return
	}

	err = c.App.Syncer.SyncPoolByID(r.Context(), id)
	switch {
	case err == nil:
		c.writeJSON(w, http.StatusOK, map[string]string{"status": "synced", "poolId": id.Hex()})
	case errors.Is(err, poolsync.ErrPoolNotFound):
		c.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, poolsync.ErrMachineNotInitialized):
		c.writeError(w, http.StatusConflict, err.Error())
	default:
		c.App.Logger.Error("pool sync failed", zap.String("poolId", id.Hex()), zap.Error(err))
		c.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// HandleSyncOwner resyncs every pool of an owner on one chain.
func (c *Controller) HandleSyncOwner(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chainID := entity.ChainID(vars["chainId"])
	owner := strings.TrimSpace(vars["owner"])
	if owner == "" {
		c.writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	if err := c.App.Syncer.SyncPoolsByOwnerAddress(r.Context(), owner, chainID); err != nil {
		c.App.Logger.Error("owner sync failed",
			zap.String("chainId", string(chainID)),
			zap.String("owner", owner),
			zap.Error(err))
		c.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "synced", "chainId": string(chainID), "owner": owner})
}

// HandleRunTask fires a registered task now. Per-owner tasks take the owner as a query
// parameter.
func (c *Controller) HandleRunTask(w http.ResponseWriter, r *http.Request) {
	spec, err := scheduler.LookupTask(mux.Vars(r)["task"])
	if err != nil {
		c.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	owner := r.URL.Query().Get("owner")
	if spec.PerOwner && owner == "" {
		c.writeError(w, http.StatusBadRequest, "owner is required for "+string(spec.Task))
		return
	}
	if !spec.PerOwner {
		owner = ""
	}
	key := scheduler.Key(spec.Task, owner)

	err = c.App.Trigger.Trigger(r.Context(), key)
	switch {
	case err == nil:
		c.writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "key": key})
	case errors.Is(err, scheduler.ErrNotRegistered):
		c.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		c.writeError(w, http.StatusConflict, err.Error())
	default:
		c.App.Logger.Error("task run failed", zap.String("key", key), zap.Error(err))
		c.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// HandleSchedules lists the current registrations.
func (c *Controller) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	regs, err := c.App.Registry.List(r.Context())
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if regs == nil {
		regs = []scheduler.Registration{}
	}
	c.writeJSON(w, http.StatusOK, regs)
}

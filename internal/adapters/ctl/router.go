// Package ctl exposes the local HTTP control surface that stands in for the
// call UI: create/join/leave/mute plus device preferences.
package ctl

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/call"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/domain"
)

type Controller struct {
	Engine   *call.Engine
	Settings *config.SettingsStore
	// OnSettings lets the wiring fan a saved change out (VAD threshold,
	// device switch). Optional.
	OnSettings func(domain.DeviceSettings)
}

func SetupRouter(mode string, ctl *Controller) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.GET("/call", ctl.getCall)
	v1.POST("/call", ctl.createCall)
	v1.POST("/call/join", ctl.joinCall)
	v1.DELETE("/call", ctl.leaveCall)
	v1.POST("/call/mute", ctl.toggleMute)
	v1.GET("/rooms/:id/call", ctl.probeRoom)
	v1.GET("/settings", ctl.getSettings)
	v1.PUT("/settings", ctl.putSettings)
	return r
}

func (ctl *Controller) getCall(c *gin.Context) {
	snap, err := ctl.Engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (ctl *Controller) createCall(c *gin.Context) {
	var req struct {
		RoomID   string `json:"room_id" binding:"required"`
		RoomKind string `json:"room_kind" binding:"required"`
		RoomName string `json:"room_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	err := ctl.Engine.CreateCall(c.Request.Context(),
		domain.RoomID(req.RoomID), domain.RoomKind(req.RoomKind), req.RoomName)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (ctl *Controller) joinCall(c *gin.Context) {
	var req struct {
		CallID string `json:"call_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := ctl.Engine.JoinCall(c.Request.Context(), domain.CallID(req.CallID)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (ctl *Controller) leaveCall(c *gin.Context) {
	if err := ctl.Engine.LeaveCall(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) toggleMute(c *gin.Context) {
	muted, err := ctl.Engine.ToggleMute(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (ctl *Controller) probeRoom(c *gin.Context) {
	if err := ctl.Engine.ProbeRoom(c.Request.Context(), domain.RoomID(c.Param("id"))); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (ctl *Controller) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.Settings.Get())
}

func (ctl *Controller) putSettings(c *gin.Context) {
	var set domain.DeviceSettings
	if err := c.ShouldBindJSON(&set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := ctl.Settings.Put(set); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ctl.OnSettings != nil {
		ctl.OnSettings(set)
	}
	log.Info().Str("module", "ctl").Str("device", set.DeviceID).Int("threshold", set.SpeakingThreshold).Msg("settings updated")
	c.JSON(http.StatusOK, set)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, call.ErrBusyInCall), errors.Is(err, call.ErrNotInCall):
		return http.StatusConflict
	case errors.Is(err, call.ErrMediaAcquisition):
		return http.StatusFailedDependency
	default:
		return http.StatusServiceUnavailable
	}
}

package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/smyd/pkg/bus"
	"github.com/dougsko/smyd/pkg/device"
	"github.com/dougsko/smyd/pkg/logging"
	"github.com/dougsko/smyd/pkg/playlist"
	"github.com/dougsko/smyd/pkg/protocol"
)

// handleGetStatus returns the daemon status document.
func (d *SMYDaemon) handleGetStatus(c *gin.Context) {
	status := protocol.Status{
		Connected: d.controller.Connected(),
		Mode:      d.controller.Mode().String(),
		OutputOn:  d.controller.OutputOn(),
		Hopping:   d.scheduler.Status(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime).Round(time.Second).String(),
		Version:   Version,
	}
	if status.Connected {
		id := d.controller.Identity()
		status.Identity = &id
	}

	c.JSON(http.StatusOK, status)
}

// handleConnect opens the instrument link and returns the parsed identity.
func (d *SMYDaemon) handleConnect(c *gin.Context) {
	if d.controller.Connected() {
		c.JSON(http.StatusOK, d.controller.Identity())
		return
	}

	id, err := d.controller.Connect()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, id)
}

// handleDisconnect stops any hopping session and closes the link.
func (d *SMYDaemon) handleDisconnect(c *gin.Context) {
	d.scheduler.Stop()

	if err := d.controller.Disconnect(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleSetFrequency(c *gin.Context) {
	var req protocol.FrequencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.controller.SetFrequency(req.FrequencyHz); err != nil {
		c.JSON(deviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleSetLevel(c *gin.Context) {
	var req protocol.LevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.controller.SetLevel(req.LevelDbm); err != nil {
		c.JSON(deviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleSetOutput(c *gin.Context) {
	var req protocol.OutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if req.Enabled {
		err = d.controller.EnableOutput()
	} else {
		err = d.controller.DisableOutput()
	}
	if err != nil {
		c.JSON(deviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleSetModulation(c *gin.Context) {
	var req protocol.ModulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch req.Mode {
	case "fm":
		err = d.controller.SetModulationFM(req.DeviationHz)
	case "am":
		err = d.controller.SetModulationAM()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown modulation mode %q", req.Mode)})
		return
	}
	if err != nil {
		c.JSON(deviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleReset(c *gin.Context) {
	if err := d.controller.Reset(); err != nil {
		c.JSON(deviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, protocol.OK())
}

// handleGetState polls the instrument and returns the snapshot.
func (d *SMYDaemon) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.StateResponse{State: d.poller.Snapshot()})
}

// handleGetPlaylist returns the daemon's live playlist.
func (d *SMYDaemon) handleGetPlaylist(c *gin.Context) {
	d.plMu.Lock()
	pl := d.livePlaylist.Clone()
	d.plMu.Unlock()

	if pl == nil {
		pl = playlist.Playlist{}
	}
	c.JSON(http.StatusOK, pl)
}

// handleSetPlaylist replaces the live playlist. A running session keeps its
// frozen snapshot.
func (d *SMYDaemon) handleSetPlaylist(c *gin.Context) {
	var pl playlist.Playlist
	if err := c.ShouldBindJSON(&pl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := pl.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d.plMu.Lock()
	d.livePlaylist = pl.Clone()
	d.plMu.Unlock()

	c.JSON(http.StatusOK, protocol.OK())
}

// handleGenerateSweep expands a sweep spec and merges it into the live
// playlist (replace or append per the spec). Pure computation; no device I/O.
func (d *SMYDaemon) handleGenerateSweep(c *gin.Context) {
	var req protocol.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d.plMu.Lock()
	merged, err := playlist.Apply(req.Spec, d.livePlaylist)
	if err == nil {
		d.livePlaylist = merged
	}
	d.plMu.Unlock()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.SweepResponse{Playlist: merged, Count: len(merged)})
}

func (d *SMYDaemon) handleStartHopping(c *gin.Context) {
	var req protocol.HopStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !d.controller.Connected() {
		c.JSON(http.StatusConflict, gin.H{"error": "instrument not connected"})
		return
	}

	// No playlist in the request means hop over the daemon's live playlist.
	if len(req.Playlist) == 0 {
		d.plMu.Lock()
		req.Playlist = d.livePlaylist.Clone()
		d.plMu.Unlock()
	}

	dwellMs := req.DwellMs
	if dwellMs <= 0 {
		dwellMs = d.config.Hopping.DefaultDwellMs
	}

	if err := d.scheduler.Start(req.Playlist, time.Duration(dwellMs)*time.Millisecond); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, protocol.OK())
}

func (d *SMYDaemon) handleStopHopping(c *gin.Context) {
	d.scheduler.Stop()
	c.JSON(http.StatusOK, protocol.OK())
}

// handleGetEvents returns persisted session events, newest first.
func (d *SMYDaemon) handleGetEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	var events interface{}
	if eventType := c.Query("type"); eventType != "" {
		events, err = d.store.EventsByType(eventType, limit)
	} else {
		events, err = d.store.RecentEvents(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}

// deviceErrorStatus maps controller errors onto HTTP statuses: command
// rejections and link faults are gateway-side problems, everything else is a
// bad request (validation, not connected).
func deviceErrorStatus(err error) int {
	if device.IsRejected(err) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEventWebSocket streams scheduler events and periodic state snapshots
// to a browser client.
func (d *SMYDaemon) handleEventWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("web", fmt.Sprintf("WebSocket upgrade failed: %v", err))
		return
	}
	defer conn.Close()

	logging.Debug("web", "WebSocket client connected")

	sub := d.bus.Subscribe(bus.TopicHop)
	defer d.bus.Unsubscribe(sub)

	// Drain client frames so pings and closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case msg, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "hop_event", "event": msg}); err != nil {
				logging.Debug("web", fmt.Sprintf("WebSocket write error: %v", err))
				return
			}

		case <-ticker.C:
			if !d.controller.Connected() {
				continue
			}
			state := d.poller.Snapshot()
			if err := conn.WriteJSON(gin.H{"type": "state", "state": state}); err != nil {
				logging.Debug("web", fmt.Sprintf("WebSocket write error: %v", err))
				return
			}
		}
	}
}

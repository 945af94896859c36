package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/smyd/pkg/bus"
	"github.com/dougsko/smyd/pkg/config"
	"github.com/dougsko/smyd/pkg/device"
	"github.com/dougsko/smyd/pkg/hopper"
	"github.com/dougsko/smyd/pkg/logging"
	"github.com/dougsko/smyd/pkg/playlist"
	"github.com/dougsko/smyd/pkg/storage"
	"github.com/dougsko/smyd/pkg/transport"
)

// SMYDaemon wires the controller, scheduler, poller, event store and web API
// into one process.
type SMYDaemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	controller *device.Controller
	poller     *device.Poller
	scheduler  *hopper.Scheduler
	bus        *bus.PubSubBus
	store      *storage.EventStore
	webServer  *http.Server

	// livePlaylist is the daemon's editable playlist. Hopping sessions freeze
	// their own copy, so edits here never race a running session.
	plMu         sync.Mutex
	livePlaylist playlist.Playlist

	startTime time.Time
}

// NewSMYDaemon creates a daemon instance from configuration.
func NewSMYDaemon(cfg *config.Config) (*SMYDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var tr transport.Transport
	switch cfg.Link.Kind {
	case "serial":
		tr = transport.NewSerialTransport(cfg.Link.Port, cfg.Link.BaudRate)
	default:
		tr = transport.NewTCPTransport(cfg.Link.Address)
	}

	controller := device.NewController(tr, device.Options{
		CommandTimeout: time.Duration(cfg.Link.CommandTimeoutMs) * time.Millisecond,
		StatusTimeout:  time.Duration(cfg.Link.StatusTimeoutMs) * time.Millisecond,
		StrictVerify:   cfg.Device.StrictVerify,
		BenignCodes:    cfg.Device.BenignCodes,
	})

	messageBus := bus.New()

	daemon := &SMYDaemon{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		controller: controller,
		poller: device.NewPoller(controller,
			time.Duration(cfg.Link.PollTimeoutMs)*time.Millisecond),
		scheduler: hopper.New(controller, messageBus, hopper.AutoModulation{
			Enabled:   cfg.AutoModulation.Enabled,
			AMFromMHz: cfg.AutoModulation.AMFromMHz,
			AMToMHz:   cfg.AutoModulation.AMToMHz,
		}),
		bus:       messageBus,
		startTime: time.Now(),
	}

	store, err := storage.NewEventStore(cfg.Storage.DatabasePath, cfg.Storage.MaxEvents)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	daemon.store = store

	if err := daemon.setupWebServer(); err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return daemon, nil
}

// Start brings up the event recorder, the web server and, when configured,
// the instrument link. A failed auto-connect is logged, not fatal; the API
// can retry.
func (d *SMYDaemon) Start() error {
	d.wg.Add(1)
	go d.eventRecorder()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
		logging.Info("daemon", fmt.Sprintf("Starting web server on %s", addr))
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("daemon", fmt.Sprintf("Web server error: %v", err))
		}
	}()

	if d.config.Link.AutoConnect {
		if _, err := d.controller.Connect(); err != nil {
			logging.Warn("daemon", fmt.Sprintf("Auto-connect failed: %v", err))
		}
	}

	return nil
}

// Stop shuts the daemon down: hopping first, then a best-effort RF-off, then
// the link, the web server, and finally the bus and store.
func (d *SMYDaemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	d.scheduler.Stop()

	if d.controller.Connected() {
		if err := d.controller.DisableOutput(); err != nil {
			logging.Warn("daemon", fmt.Sprintf("Failed to disable output on shutdown: %v", err))
		}
		if err := d.controller.Disconnect(); err != nil {
			logging.Warn("daemon", fmt.Sprintf("Disconnect error: %v", err))
		}
	}

	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warn("daemon", fmt.Sprintf("Web server shutdown error: %v", err))
		}
	}

	d.cancel()
	d.bus.Close()
	d.wg.Wait()

	if err := d.store.Close(); err != nil {
		logging.Warn("daemon", fmt.Sprintf("Event store close error: %v", err))
	}

	logging.Info("daemon", "Daemon stopped")
	return nil
}

// setupWebServer initializes the web server and routes
func (d *SMYDaemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/status", d.handleGetStatus)
		api.POST("/connect", d.handleConnect)
		api.POST("/disconnect", d.handleDisconnect)

		api.POST("/frequency", d.handleSetFrequency)
		api.POST("/level", d.handleSetLevel)
		api.POST("/output", d.handleSetOutput)
		api.POST("/modulation", d.handleSetModulation)
		api.POST("/reset", d.handleReset)

		api.GET("/state", d.handleGetState)
		api.GET("/playlist", d.handleGetPlaylist)
		api.PUT("/playlist", d.handleSetPlaylist)
		api.POST("/sweep", d.handleGenerateSweep)
		api.POST("/hop/start", d.handleStartHopping)
		api.POST("/hop/stop", d.handleStopHopping)
		api.GET("/events", d.handleGetEvents)

		api.GET("/ws", d.handleEventWebSocket)
	}

	addr := fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return nil
}

// eventRecorder persists scheduler events from the bus.
func (d *SMYDaemon) eventRecorder() {
	defer d.wg.Done()

	sub := d.bus.Subscribe(bus.TopicHop)
	defer d.bus.Unsubscribe(sub)

	for {
		select {
		case <-d.ctx.Done():
			return

		case msg, ok := <-sub:
			if !ok {
				return
			}
			ev, isHop := msg.(hopper.Event)
			if !isHop {
				continue
			}

			rec := storage.Event{
				Timestamp: ev.At,
				Type:      string(ev.Type),
				HopIndex:  ev.Index,
				Detail:    ev.Err,
			}
			if ev.Entry != nil {
				rec.EntryName = ev.Entry.Name
				rec.FrequencyHz = ev.Entry.FrequencyHz()
				rec.LevelDbm = ev.Entry.LevelDbm
				rec.Bandwidth = string(ev.Entry.Bandwidth)
			}

			if err := d.store.Record(rec); err != nil {
				logging.Warn("daemon", fmt.Sprintf("Failed to record event: %v", err))
			}
		}
	}
}

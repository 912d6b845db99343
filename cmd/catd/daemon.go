package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/catd/pkg/catset"
	"github.com/dougsko/catd/pkg/config"
	"github.com/dougsko/catd/pkg/engine"
	"github.com/dougsko/catd/pkg/hardware"
	"github.com/dougsko/catd/pkg/logging"
	"github.com/dougsko/catd/pkg/protocol"
	"github.com/dougsko/catd/pkg/server"
	"github.com/dougsko/catd/pkg/storage"
	"github.com/dougsko/catd/pkg/supervisor"
)

// CatDaemon wires the serial link, the rigctld listener and the optional
// status API together
type CatDaemon struct {
	config    *config.Config
	catalog   *catset.Catalog
	model     string
	startTime time.Time
	wg        sync.WaitGroup

	// Core components
	link       *hardware.SerialLink
	session    *engine.Session
	server     *server.Server
	supervisor *supervisor.Supervisor

	// Optional components
	journal   *storage.Journal
	events    *eventHub
	webServer *http.Server
}

// NewCatDaemon creates a daemon for the configured model and serial device
func NewCatDaemon(cfg *config.Config, catalog *catset.Catalog) (*CatDaemon, error) {
	return newCatDaemon(cfg, catalog, hardware.OpenSerialPort)
}

func newCatDaemon(cfg *config.Config, catalog *catset.Catalog, opener hardware.Opener) (*CatDaemon, error) {
	name, cs, err := catalog.Lookup(cfg.Radio.Model)
	if err != nil {
		return nil, err
	}

	baudRate := cfg.Radio.BaudRate
	if baudRate == 0 {
		baudRate = cs.DefaultBaudRate
	}

	d := &CatDaemon{
		config:    cfg,
		catalog:   catalog,
		model:     name,
		startTime: time.Now(),
		events:    newEventHub(),
	}

	d.link = hardware.NewSerialLinkWithOpener(hardware.SerialConfig{
		Device:   cfg.Radio.Device,
		BaudRate: baudRate,
	}, opener)
	d.session = engine.NewSession(name, cs)

	timing := engine.DefaultTiming()
	timing.ReadTimeout = cfg.ReadTimeout()
	timing.ResyncWindow = cfg.ResyncWindow()
	sender := engine.NewSender(d.link, d.session, timing)

	d.server = server.NewServer(cfg.ServerAddress(), protocol.NewInterpreter(sender))
	d.server.OnEvent(d.handleEvent)

	d.supervisor = supervisor.New(d.link, d.server, supervisor.Config{
		Device:     cfg.Radio.Device,
		BaudRate:   baudRate,
		Address:    cfg.ServerAddress(),
		Interval:   cfg.SupervisorInterval(),
		OpenSettle: cfg.OpenSettle(),
	})

	if cfg.Storage.JournalPath != "" {
		d.journal, err = storage.NewJournal(cfg.Storage.JournalPath, cfg.Storage.MaxEntries)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Web.Enabled {
		d.setupWebServer()
	}

	logging.Infof("main", "Radio: %s (#%04d) on %s at %d Baud", name, cs.ID, cfg.Radio.Device, baudRate)
	return d, nil
}

// Run supervises the serial link and the listener until ctx is cancelled
func (d *CatDaemon) Run(ctx context.Context) error {
	if d.webServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logging.Infof("web", "Starting web server on %s", d.webServer.Addr)
			if err := d.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Errorf("web", "Web server error: %v", err)
			}
		}()
	}

	err := d.supervisor.Run(ctx)

	d.shutdown()
	return err
}

func (d *CatDaemon) shutdown() {
	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("web", "Web server shutdown error: %v", err)
		}
	}
	d.events.Close()

	d.wg.Wait()

	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			logging.Warnf("storage", "Failed to close exchange journal: %v", err)
		}
	}
}

// handleEvent journals commands and forwards every event to the live stream
func (d *CatDaemon) handleEvent(e server.Event) {
	if e.Kind == server.EventCommand && d.journal != nil {
		_, err := d.journal.Record(storage.Exchange{
			Timestamp: e.Time,
			Client:    e.Client,
			Remote:    e.Remote,
			Request:   e.Request,
			Response:  e.Response,
			Code:      storage.ResponseCode(e.Response),
			Duration:  e.Duration.Milliseconds(),
		})
		if err != nil {
			logging.GetGlobalLogger().WithFields(map[string]interface{}{
				"client":  e.Client,
				"request": e.Request,
			}).Warnf("storage", "Failed to record exchange: %v", err)
		}
	}
	d.events.Broadcast(e)
}

// Status returns a snapshot of the daemon
func (d *CatDaemon) Status() protocol.Status {
	session := d.session.Status()
	cfg := d.link.Config()
	return protocol.Status{
		Model:        session.Model,
		Device:       cfg.Device,
		BaudRate:     cfg.BaudRate,
		Mode:         session.Mode,
		Transmitting: session.Transmitting,
		SerialOpen:   d.link.IsOpen(),
		Listening:    d.server.IsListening(),
		Clients:      d.server.ClientCount(),
		Uptime:       time.Since(d.startTime).Round(time.Second).String(),
		StartTime:    d.startTime,
		Version:      fmt.Sprintf("%s (%s)", Version, Build),
	}
}

// setupWebServer initializes the status API routes
func (d *CatDaemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	d.webServer = &http.Server{
		Addr:    d.config.WebAddress(),
		Handler: d.router(),
	}
}

func (d *CatDaemon) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/models", d.handleGetModels)
		api.GET("/capabilities", d.handleGetCapabilities)
		api.POST("/command", d.handleCommand)
		api.GET("/exchanges", d.handleGetExchanges)
		api.GET("/stats", d.handleGetStats)
		api.GET("/events", d.handleEvents)
	}
	return router
}

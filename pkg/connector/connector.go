// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/meshcore-irc/pkg/meshcore"
)

// MeshConnector bridges one IRC client to the mesh. It owns the active
// client slot, the mesh event queue and the admin API.
type MeshConnector struct {
	Config  Config
	Mesh    MeshAPI
	Log     zerolog.Logger
	Metrics *Metrics

	clientMu sync.Mutex
	client   *IRCClient

	events        chan meshcore.Event
	subscribeOnce sync.Once
	conns         sync.WaitGroup
}

// NewMeshConnector creates a connector for an already connected mesh client.
func NewMeshConnector(cfg Config, mesh MeshAPI, log zerolog.Logger) *MeshConnector {
	return &MeshConnector{
		Config:  cfg,
		Mesh:    mesh,
		Log:     log.With().Str("component", "bridge").Logger(),
		Metrics: NewMetrics(),
	}
}

// Start prepares the mesh side: it loads contacts, subscribes to incoming
// messages and starts fetching queued messages from the radio.
func (mc *MeshConnector) Start(ctx context.Context) error {
	if err := mc.Config.PostProcess(); err != nil {
		return fmt.Errorf("failed to post-process config: %w", err)
	}
	if err := mc.Mesh.EnsureContacts(ctx); err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	mc.subscribe()
	if err := mc.Mesh.StartAutoMessageFetching(ctx); err != nil {
		return fmt.Errorf("failed to start message fetching: %w", err)
	}
	return nil
}

func (mc *MeshConnector) subscribe() {
	mc.subscribeOnce.Do(func() {
		size := mc.Config.EventQueueSize
		if size <= 0 {
			size = defaultEventQueueSize
		}
		mc.events = make(chan meshcore.Event, size)
		mc.Mesh.Subscribe(meshcore.EventChannelMessage, mc.queueMeshEvent)
		mc.Mesh.Subscribe(meshcore.EventContactMessage, mc.queueMeshEvent)
	})
}

// queueMeshEvent is the mesh callback. It only enqueues so that the radio
// reader never waits on the IRC client.
func (mc *MeshConnector) queueMeshEvent(evt meshcore.Event) {
	select {
	case mc.events <- evt:
	default:
		mc.Metrics.MeshEventsTotal.WithLabelValues(evt.Type.String(), "queue_full").Inc()
		mc.Log.Warn().Stringer("event_type", evt.Type).Msg("Mesh event queue full, dropping event")
	}
}

// Run starts the bridge and serves IRC clients on the configured address
// until ctx is cancelled or a component fails.
func (mc *MeshConnector) Run(ctx context.Context) error {
	if err := mc.Start(ctx); err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", mc.Config.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", mc.Config.ListenAddr(), err)
	}
	return mc.Serve(ctx, ln)
}

// Serve accepts IRC clients on ln, translates mesh events and serves the
// admin API. Start must have been called. Serve closes ln and the active
// client before returning.
func (mc *MeshConnector) Serve(ctx context.Context, ln net.Listener) error {
	mc.subscribe()
	g, ctx := errgroup.WithContext(ctx)

	mc.Log.Info().Str("addr", ln.Addr().String()).Msg("Listening for IRC clients")
	g.Go(func() error {
		return mc.acceptLoop(ctx, ln)
	})
	g.Go(func() error {
		return mc.translateEvents(ctx)
	})
	if mc.Config.AdminAPIAddr != "" {
		g.Go(func() error {
			return mc.serveAdminAPI(ctx, mc.Config.AdminAPIAddr)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		if client := mc.ActiveClient(); client != nil {
			_ = client.Close()
		}
		return nil
	})

	err := g.Wait()
	mc.conns.Wait()
	return err
}

func (mc *MeshConnector) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept IRC connection: %w", err)
		}
		mc.conns.Go(func() {
			mc.handleConn(ctx, conn)
		})
	}
}

func (mc *MeshConnector) handleConn(ctx context.Context, conn net.Conn) {
	log := mc.Log.With().Str("remote_addr", conn.RemoteAddr().String()).Logger()
	client := newIRCClient(mc, conn, log)
	if !mc.adopt(client) {
		mc.Metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
		log.Error().Msg("IRC client already connected, rejecting new connection")
		_ = conn.Close()
		return
	}
	mc.Metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	mc.Metrics.SessionActive.Set(1)
	log.Debug().Msg("IRC client connected")

	defer func() {
		mc.release(client)
		mc.Metrics.SessionActive.Set(0)
		log.Debug().Msg("IRC client disconnected")
	}()

	// The slot may have been adopted after shutdown closed the previous client.
	if ctx.Err() != nil {
		_ = client.Close()
	}
	if err := client.serve(ctx); err != nil {
		log.Debug().Err(err).Msg("IRC connection ended")
	}
}

// adopt makes client the active client if no client is connected.
func (mc *MeshConnector) adopt(client *IRCClient) bool {
	mc.clientMu.Lock()
	defer mc.clientMu.Unlock()
	if mc.client != nil {
		return false
	}
	mc.client = client
	return true
}

// release clears the active slot if it still holds client.
func (mc *MeshConnector) release(client *IRCClient) {
	mc.clientMu.Lock()
	defer mc.clientMu.Unlock()
	if mc.client == client {
		mc.client = nil
	}
}

// ActiveClient returns the connected IRC client, or nil.
func (mc *MeshConnector) ActiveClient() *IRCClient {
	mc.clientMu.Lock()
	defer mc.clientMu.Unlock()
	return mc.client
}

// StatusResponse is served by GET /api/status.
type StatusResponse struct {
	Connected bool         `json:"connected"`
	Session   *SessionInfo `json:"session,omitempty"`
	Contacts  int          `json:"contacts"`
}

func (mc *MeshConnector) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", mc.HandleStatus)
	mux.Handle("/metrics", mc.Metrics.Handler())
	return mux
}

func (mc *MeshConnector) serveAdminAPI(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      mc.adminHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	mc.Log.Info().Str("addr", addr).Msg("Starting bridge admin API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve admin API: %w", err)
	}
	return nil
}

// HandleStatus is an HTTP handler for GET /api/status.
func (mc *MeshConnector) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{Contacts: mc.Mesh.ContactCount()}
	if client := mc.ActiveClient(); client != nil {
		info := client.Session()
		resp.Connected = true
		resp.Session = &info
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		mc.Log.Warn().Err(err).Msg("Failed to write status response")
	}
}

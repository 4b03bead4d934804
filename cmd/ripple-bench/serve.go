package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ripplekit/ripple"
	"github.com/ripplekit/ripple/pkg/instrument"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		tick    time.Duration
		sources int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo graph over HTTP with metrics and a live feed",
		Long: `serve runs the diamond graph fed by a ticker and exposes:

  GET /metrics   Prometheus metrics for the graph
  GET /stats     JSON snapshot of the graph state
  GET /live      WebSocket feed of tick values, demand-gated:
                 send {"request": n} to receive up to n frames`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, tick, sources)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "feed interval")
	cmd.Flags().IntVar(&sources, "sources", 16, "source signal count")
	return cmd
}

func runServe(ctx context.Context, addr string, tick time.Duration, sources int) error {
	reg := prometheus.NewRegistry()
	metrics := instrument.NewMetrics(instrument.WithRegistry(reg))
	g := ripple.NewGraph(ripple.WithObserver(metrics))

	diamond := newDiamondGraph(g, sources)
	ticks := ripple.NewSignal(g, 0)

	var glitches atomic.Uint64
	cancelCheck := diamond.check.Subscribe(func(v int, err error) {
		if err == nil && v != 0 {
			glitches.Add(1)
		}
	})
	defer cancelCheck()

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-feedCtx.Done():
				return
			case <-ticker.C:
				g.Batch(func() {
					diamond.sources[i%len(diamond.sources)].Update(func(n int) int { return n + 1 })
					ticks.Update(func(n int) int { return n + 1 })
				})
				i++
			}
		}
	}()

	started := time.Now()
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		n, _ := ticks.Value()
		check, checkErr := diamond.check.Value()
		stats := map[string]any{
			"uptime_seconds": time.Since(started).Seconds(),
			"ticks":          n,
			"checksum":       check,
			"checksum_ok":    checkErr == nil && check == 0,
			"glitches":       glitches.Load(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})
	r.Get("/live", liveHandler(ticks))

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("serving", "addr", addr, "tick", tick, "sources", sources)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type liveRequest struct {
	Request int64 `json:"request"`
}

type liveFrame struct {
	Seq   uint64 `json:"seq"`
	Value int    `json:"value"`
}

type liveError struct {
	Error string `json:"error"`
}

// liveHandler upgrades to WebSocket and forwards node values under the
// client's outstanding demand: a value arriving with no demand left is
// dropped, never buffered.
func liveHandler(node ripple.Node[int]) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		var (
			demand ripple.Demand
			mu     sync.Mutex
			seq    atomic.Uint64
		)
		cancel := node.Subscribe(func(v int, err error) {
			if err != nil || !demand.TryTake() {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_ = conn.WriteJSON(liveFrame{Seq: seq.Add(1), Value: v})
		})
		defer cancel()

		for {
			var req liveRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					slog.Warn("websocket read failed", "err", err)
				}
				return
			}
			if err := demand.Request(req.Request); err != nil {
				mu.Lock()
				_ = conn.WriteJSON(liveError{Error: err.Error()})
				mu.Unlock()
			}
		}
	}
}

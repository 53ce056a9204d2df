package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
	"pixelfetch/proxypool"
)

// StartServer serves the live progress feed: a websocket endpoint for
// push events and a small status API. Disabled when [web] enabled is
// false or the port is unset.
func StartServer(wg *sync.WaitGroup, cfg *types.Config, pool *proxypool.Pool, hub *Hub) {
	if !cfg.WebConf.Enabled || cfg.WebConf.Port <= 0 {
		logger.Info().Msg("Progress feed is disabled.")
		return
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	mux.HandleFunc("/api/proxies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool == nil {
			w.Write([]byte("[]"))
			return
		}
		if err := json.NewEncoder(w).Encode(pool.Snapshot()); err != nil {
			logger.Warn().Err(err).Msg("Failed to encode proxy snapshot.")
		}
	})

	addr := fmt.Sprintf(":%d", cfg.WebConf.Port)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", addr).Msg("Progress feed listening.")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("Progress feed server stopped.")
		}
	}()
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/proxypool/storage"
)

// NewHandler 返回事件服务的路由：/ws 推送事件，/api/proxies 返回已保存的列表。
func NewHandler(hub *Hub, st storage.Storage) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	mux.HandleFunc("/api/proxies", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list, err := st.Load()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})
	return mux
}

// Serve 在 addr 上启动事件服务，直到 ctx 结束。返回的 channel 在服务退出后关闭。
func Serve(ctx context.Context, addr string, hub *Hub, st storage.Storage) (<-chan struct{}, error) {
	l := logger.WithComponent("Events")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           NewHandler(hub, st),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go hub.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Info().Str("addr", ln.Addr().String()).Msg("Event server listening.")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Event server stopped unexpectedly.")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return done, nil
}

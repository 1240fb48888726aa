package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/internal/shared/types"
	"ytdlp_proxy/proxypool/model"
	"ytdlp_proxy/proxypool/storage"
)

func TestHub_BroadcastsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(NewHandler(hub, storage.NewMemoryStorage()))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnEvent(model.Event{
		Type:  model.EventSourceFetched,
		RunID: "run-1",
		Data:  model.SourceStatus{Source: "sandvpn", Count: 3, Valid: 2},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type  string             `json:"type"`
		RunID string             `json:"run_id"`
		Data  model.SourceStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "source_fetched", msg.Type)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "sandvpn", msg.Data.Source)
	assert.Equal(t, 2, msg.Data.Valid)
}

func TestHub_OnEventNeverBlocks(t *testing.T) {
	hub := NewHub() // not running: nothing drains the channel
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.OnEvent(model.Event{Type: model.EventBenchmarkProgress})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEvent blocked on a full broadcast channel")
	}
}

func TestHandler_Proxies(t *testing.T) {
	st := storage.NewMemoryStorage()
	srv := httptest.NewServer(NewHandler(NewHub(), st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/proxies")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, st.Save(model.RankedList{{ProxyRecord: model.ProxyRecord{Host: "1.2.3.4", Port: "80"}, Time: 1.5}}))
	resp, err = http.Get(srv.URL + "/api/proxies")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list model.RankedList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "1.2.3.4", list[0].Host)
}

func TestServeWs_RejectsPlainHTTP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithWriter(types.LogConf{Level: "info", NoColor: true}, &buf))
	t.Cleanup(func() { _ = logger.Init(types.LogConf{Level: "info"}) })

	srv := httptest.NewServer(NewHandler(NewHub(), storage.NewMemoryStorage()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, buf.String(), "Failed to upgrade websocket")
}

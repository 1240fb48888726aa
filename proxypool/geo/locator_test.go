package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdlp_proxy/proxypool/model"
)

func newGeoServer(t *testing.T, countries map[string]string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var queries []batchQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&queries))
		answers := make([]geoAPIResponse, 0, len(queries))
		for _, q := range queries {
			if c, ok := countries[q.Query]; ok {
				answers = append(answers, geoAPIResponse{Status: "success", Country: c, City: "Somewhere", Query: q.Query})
			} else {
				answers = append(answers, geoAPIResponse{Status: "fail", Query: q.Query})
			}
		}
		_ = json.NewEncoder(w).Encode(answers)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocate_FillsMissingCountry(t *testing.T) {
	var calls int32
	srv := newGeoServer(t, map[string]string{"1.1.1.1": "Russia", "2.2.2.2": "Germany"}, &calls)

	records := []*model.ProxyRecord{
		{Host: "1.1.1.1", Port: "1080", City: model.UnknownCity},
		{Host: "2.2.2.2", Port: "1080", City: model.UnknownCity},
		{Host: "2.2.2.2", Port: "1081", City: model.UnknownCity},
		{Host: "3.3.3.3", Port: "1080", Country: "US", City: "Boston"},
		{Host: "4.4.4.4", Port: "1080"},
		{Host: "1.1.1.1", Port: "1081", Country: model.UnknownCountry},
	}

	n := NewLocator(srv.URL, 0).Locate(context.Background(), records)

	assert.Equal(t, 4, n)
	assert.Equal(t, "Russia", records[0].Country)
	assert.Equal(t, "Somewhere", records[0].City)
	assert.Equal(t, "Germany", records[2].Country)
	assert.Equal(t, "Boston", records[3].City, "records with a country are left alone")
	assert.Empty(t, records[4].Country)
	assert.Equal(t, "Russia", records[5].Country, "Unknown counts as missing")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocate_Batches(t *testing.T) {
	var calls int32
	srv := newGeoServer(t, map[string]string{}, &calls)

	lc := NewLocator(srv.URL, 0)
	lc.batchSize = 2
	records := []*model.ProxyRecord{{Host: "a"}, {Host: "b"}, {Host: "c"}}
	assert.Equal(t, 0, lc.Locate(context.Background(), records))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLocate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	records := []*model.ProxyRecord{{Host: "1.1.1.1"}}
	assert.Equal(t, 0, NewLocator(srv.URL, 0).Locate(context.Background(), records))
	assert.Empty(t, records[0].Country)
}

func TestLocate_NothingToLocate(t *testing.T) {
	lc := NewLocator("http://127.0.0.1:1/unused", 0)
	assert.Equal(t, 0, lc.Locate(context.Background(), []*model.ProxyRecord{{Host: "x", Country: "US"}}))
}

package kueapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantURL string
	}{
		{
			name:    "plain",
			cfg:     ClientConfig{BaseURL: "http://localhost:3000"},
			wantURL: "http://localhost:3000",
		},
		{
			name:    "trailing slash removal",
			cfg:     ClientConfig{BaseURL: "http://localhost:3000/kue/"},
			wantURL: "http://localhost:3000/kue",
		},
		{
			name:    "with custom timeout",
			cfg:     ClientConfig{BaseURL: "http://localhost:3000", Timeout: time.Minute},
			wantURL: "http://localhost:3000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.cfg)
			require.NotNil(t, client)
			assert.Equal(t, tt.wantURL, client.baseURL)
		})
	}
}

func TestRangeByType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/jobs/encode/active/0..-1/asc", r.URL.Path)

		// ids and timestamps arrive as strings or numbers depending on Kue version
		_, _ = w.Write([]byte(`[
			{"id":"1","type":"encode","state":"active","priority":0,"data":{"file":"a.mp4"},"created_at":"1309973155248","updated_at":"1309973155248"},
			{"id":2,"type":"encode","state":"active","priority":-10,"data":{},"created_at":1309973155249}
		]`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	jobs, err := client.RangeByType(context.Background(), "encode", broker.StateActive, 0, broker.ToEnd, broker.OrderAsc)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, broker.StateActive, jobs[0].State)
	assert.JSONEq(t, `{"file":"a.mp4"}`, string(jobs[0].Payload))
	assert.Equal(t, int64(1309973155248), jobs[0].CreatedAt.UnixMilli())

	assert.Equal(t, "2", jobs[1].ID)
	assert.Equal(t, -10, jobs[1].Priority)
	assert.True(t, jobs[1].UpdatedAt.IsZero())
}

func TestRangeByTypeNormalisesState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"1","type":"encode","state":" Complete "},
			{"id":"2"}
		]`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	jobs, err := client.RangeByType(context.Background(), "encode", broker.StateComplete, 0, broker.ToEnd, broker.OrderAsc)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, broker.StateComplete, jobs[0].State)
	assert.Equal(t, broker.StateComplete, jobs[1].State)
	assert.Equal(t, "encode", jobs[1].Type)
}

func TestRangeByTypeUnknownState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","type":"encode","state":"stuck"}]`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	jobs, err := client.RangeByType(context.Background(), "encode", broker.StateActive, 0, broker.ToEnd, broker.OrderAsc)
	assert.ErrorIs(t, err, broker.ErrUnsupportedState)
	assert.Nil(t, jobs)
}

func TestRangeByTypeEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/encode/failed/2..5/desc", r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	jobs, err := client.RangeByType(context.Background(), "encode", broker.StateFailed, 2, 5, broker.OrderDesc)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRangeByTypeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"redis connection lost"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	jobs, err := client.RangeByType(context.Background(), "encode", broker.StateActive, 0, broker.ToEnd, broker.OrderAsc)
	require.Error(t, err)
	assert.Nil(t, jobs)
	assert.NotErrorIs(t, err, broker.ErrJobNotFound)
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErr      bool
		wantNotFound bool
	}{
		{name: "removed", status: http.StatusOK, body: `{"message":"job 3 removed"}`},
		{name: "missing via status", status: http.StatusNotFound, body: `{"error":"job 3 doesnt exist"}`, wantErr: true, wantNotFound: true},
		{name: "missing via body", status: http.StatusOK, body: `{"error":"job \"3\" doesnt exist"}`, wantErr: true, wantNotFound: true},
		{name: "other error", status: http.StatusOK, body: `{"error":"READONLY"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/job/3", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{BaseURL: server.URL})
			err := client.Remove(context.Background(), broker.Job{ID: "3", Type: "encode"})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantNotFound {
				assert.ErrorIs(t, err, broker.ErrJobNotFound)
			}
		})
	}
}

func TestSetState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/job/7/state/inactive", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Message{Message: "updated state"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, client.SetState(context.Background(), broker.Job{ID: "7"}, broker.StateInactive))
	assert.ErrorIs(t, client.SetState(context.Background(), broker.Job{ID: "7"}, "dead"), broker.ErrUnsupportedState)
}

func TestPingUsesStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "kue", user)
		assert.Equal(t, "pw", pass)
		assert.Equal(t, "/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Stats{InactiveCount: 4, ActiveCount: 1})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Username: "kue", Password: "pw"})
	require.NoError(t, client.Ping(context.Background()))

	stats, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.InactiveCount)
	assert.NoError(t, client.Close())
}

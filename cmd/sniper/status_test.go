package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage/memory"
)

type fakePositions []*domain.Position

func (f fakePositions) Active() []*domain.Position { return f }

type fakeQueue int

func (f fakeQueue) Len() int { return int(f) }

func TestStatusEndpoint(t *testing.T) {
	positions := fakePositions{{
		ID:                "pos-1",
		Network:           domain.NetworkSolana,
		Address:           "MintA",
		EntryPrice:        0.5,
		PeakPrice:         0.8,
		StopLossPrice:     0.35,
		RemainingFraction: 0.7,
		OpenedAt:          1700000000000,
	}}
	srv := httptest.NewServer(newMux(positions, fakeQueue(3), nil, time.Now().Add(-time.Minute)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 3, got.PendingCandidates)
	require.Len(t, got.OpenPositions, 1)
	assert.Equal(t, "MintA", got.OpenPositions[0].Address)
	assert.Equal(t, 0.7, got.OpenPositions[0].RemainingFraction)
}

func TestTicksEndpoint(t *testing.T) {
	ticks := memory.NewPriceTickStore()
	require.NoError(t, ticks.InsertBulk(context.Background(), []*domain.PriceTick{
		{PositionID: "pos-1", Network: domain.NetworkSolana, Address: "MintA", Price: 0.5, ObservedAt: 1000},
		{PositionID: "pos-1", Network: domain.NetworkSolana, Address: "MintA", Price: 0.6, ObservedAt: 2000},
		{PositionID: "pos-1", Network: domain.NetworkSolana, Address: "MintA", Price: 0.7, ObservedAt: 3000},
		{PositionID: "pos-2", Network: domain.NetworkSolana, Address: "MintB", Price: 9, ObservedAt: 2000},
	}))
	srv := httptest.NewServer(newMux(fakePositions{}, fakeQueue(0), ticks, time.Now()))
	defer srv.Close()

	get := func(path string) (int, TicksResponse) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var got TicksResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		}
		return resp.StatusCode, got
	}

	code, all := get("/positions/pos-1/ticks")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pos-1", all.PositionID)
	require.Len(t, all.Ticks, 3)
	assert.Equal(t, 0.5, all.Ticks[0].Price)
	assert.Equal(t, int64(3000), all.Ticks[2].ObservedAt)

	code, window := get("/positions/pos-1/ticks?since=2000&until=3000")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, window.Ticks, 2)
	assert.Equal(t, int64(2000), window.Ticks[0].ObservedAt)

	code, none := get("/positions/unknown/ticks")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, none.Ticks)

	code, _ = get("/positions/pos-1/ticks?since=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get("/positions/pos-1/ticks?since=3000&until=1000")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTicksEndpoint_NotRecorded(t *testing.T) {
	srv := httptest.NewServer(newMux(fakePositions{}, fakeQueue(0), nil, time.Now()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/positions/pos-1/ticks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux(fakePositions{}, fakeQueue(0), nil, time.Now()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,")
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Nil(t, splitList(""))
}

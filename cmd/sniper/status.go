package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"solana-sniper/internal/bounded"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

const tickQueryTimeout = 2 * time.Second

// statusSource is the slice of engine state exposed on /status.
type statusSource interface {
	Active() []*domain.Position
}

type pendingCounter interface {
	Len() int
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status            string           `json:"status"`
	Uptime            string           `json:"uptime"`
	Started           time.Time        `json:"started"`
	PendingCandidates int              `json:"pending_candidates"`
	OpenPositions     []PositionStatus `json:"open_positions"`
}

// PositionStatus summarizes one open position.
type PositionStatus struct {
	ID                string  `json:"id"`
	Network           string  `json:"network"`
	Address           string  `json:"address"`
	EntryPrice        float64 `json:"entry_price"`
	PeakPrice         float64 `json:"peak_price"`
	StopLossPrice     float64 `json:"stop_loss_price"`
	RemainingFraction float64 `json:"remaining_fraction"`
	OpenedAt          int64   `json:"opened_at"`
}

// TicksResponse is the JSON response for /positions/{id}/ticks.
type TicksResponse struct {
	PositionID string       `json:"position_id"`
	Ticks      []TickStatus `json:"ticks"`
}

// TickStatus is one recorded price observation.
type TickStatus struct {
	Price      float64 `json:"price"`
	ObservedAt int64   `json:"observed_at"`
}

// newMux serves health, metrics, status and recorded price ticks. ticks may
// be nil when price ticks are not recorded.
func newMux(positions statusSource, queue pendingCounter, ticks storage.PriceTickStore, started time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Status:            "running",
			Uptime:            time.Since(started).Truncate(time.Second).String(),
			Started:           started,
			PendingCandidates: queue.Len(),
			OpenPositions:     []PositionStatus{},
		}
		for _, p := range positions.Active() {
			resp.OpenPositions = append(resp.OpenPositions, PositionStatus{
				ID:                p.ID,
				Network:           string(p.Network),
				Address:           p.Address,
				EntryPrice:        p.EntryPrice,
				PeakPrice:         p.PeakPrice,
				StopLossPrice:     p.StopLossPrice,
				RemainingFraction: p.RemainingFraction,
				OpenedAt:          p.OpenedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /positions/{id}/ticks", func(w http.ResponseWriter, r *http.Request) {
		if ticks == nil {
			http.Error(w, "price ticks not recorded", http.StatusNotFound)
			return
		}
		id := r.PathValue("id")
		since, until, ranged, err := tickRange(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		found, err := bounded.Call(r.Context(), tickQueryTimeout, func(ctx context.Context) ([]*domain.PriceTick, error) {
			if ranged {
				return ticks.GetByTimeRange(ctx, id, since, until)
			}
			return ticks.GetByPosition(ctx, id)
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		resp := TicksResponse{PositionID: id, Ticks: make([]TickStatus, 0, len(found))}
		for _, t := range found {
			resp.Ticks = append(resp.Ticks, TickStatus{Price: t.Price, ObservedAt: t.ObservedAt})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// tickRange reads the optional since/until query (Unix ms). A missing until
// means now.
func tickRange(r *http.Request) (since, until int64, ranged bool, err error) {
	q := r.URL.Query()
	if q.Get("since") == "" && q.Get("until") == "" {
		return 0, 0, false, nil
	}
	until = time.Now().UnixMilli()
	if v := q.Get("since"); v != "" {
		if since, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, 0, false, fmt.Errorf("invalid since %q", v)
		}
	}
	if v := q.Get("until"); v != "" {
		if until, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, 0, false, fmt.Errorf("invalid until %q", v)
		}
	}
	if until < since {
		return 0, 0, false, fmt.Errorf("until %d before since %d", until, since)
	}
	return since, until, true, nil
}

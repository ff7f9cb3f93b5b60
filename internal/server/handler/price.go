package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openfolio/marketd/internal/domain"
)

// PriceService is the slice of the market-data service the price handler
// depends on.
type PriceService interface {
	GetPrice(ctx context.Context, symbol string, typ domain.AssetType, currency string) (domain.MarketPrice, error)
	Rate(ctx context.Context, from, to string) float64
}

// SnapshotReader reads last-known prices for stale fallback when the live
// lookup fails. May be nil when no snapshot store is configured.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, key string) (domain.MarketPrice, error)
}

// PriceHandler serves price and exchange-rate lookups.
type PriceHandler struct {
	svc    PriceService
	snaps  SnapshotReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. snaps may be nil.
func NewPriceHandler(svc PriceService, snaps SnapshotReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{svc: svc, snaps: snaps, logger: logger}
}

// priceResponse is a MarketPrice plus a stale marker set when the response
// was served from the snapshot store instead of a live lookup.
type priceResponse struct {
	domain.MarketPrice
	Stale bool `json:"stale,omitempty"`
}

// GetPrice returns the current price for a symbol.
// GET /api/prices/{symbol}?type=stock|etf|crypto&currency=USD
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(pathParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	typ, err := assetTypeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	currency := currencyParam(r)

	price, err := h.svc.GetPrice(r.Context(), symbol, typ, currency)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuote) {
			h.serveStale(w, r, symbol, typ, currency)
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: price lookup failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "price lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{MarketPrice: price})
}

// serveStale answers a failed live lookup with the last snapshot if one
// exists, otherwise a 404.
func (h *PriceHandler) serveStale(w http.ResponseWriter, r *http.Request, symbol string, typ domain.AssetType, currency string) {
	if h.snaps != nil {
		key := domain.PriceKey(typ, symbol, currency)
		if snap, err := h.snaps.GetSnapshot(r.Context(), key); err == nil {
			writeJSON(w, http.StatusOK, priceResponse{MarketPrice: snap, Stale: true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no price available")
}

// GetRate returns the exchange rate between two currencies. The rate is
// always available; on provider failure it degrades to 1.0.
// GET /api/rates/{from}/{to}
func (h *PriceHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	from := domain.NormalizeCurrency(pathParam(r, "from"))
	to := domain.NormalizeCurrency(pathParam(r, "to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "both currencies are required")
		return
	}

	rate := h.svc.Rate(r.Context(), from, to)
	writeJSON(w, http.StatusOK, map[string]any{
		"from": from,
		"to":   to,
		"rate": rate,
	})
}

package domain

import "context"

// SnapshotStore persists the last known price per cache key so the API layer
// can serve a stale quote when no fresh one is available. Implementations are
// best-effort collaborators: the acquisition core never fails a request on a
// snapshot error.
type SnapshotStore interface {
	SetSnapshot(ctx context.Context, key string, price MarketPrice) error
	GetSnapshot(ctx context.Context, key string) (MarketPrice, error)
}

// PriceBus fans freshly fetched prices out to interested subscribers (for
// example the WebSocket hub, possibly on another instance).
type PriceBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// CatalogStore reads current prices keyed by service type.
type CatalogStore interface {
	ListPrices(ctx context.Context, types []ServiceType) (map[ServiceType]decimal.Decimal, error)
}

// MissingPriceWarning flags a referenced service type or package type with no price.
type MissingPriceWarning struct {
	Type        ServiceType `json:"type"`
	PackageType string      `json:"package_type,omitempty"`
	Message     string      `json:"message"`
}

// Snapshot holds the prices read at the start of one computation.
type Snapshot struct {
	prices map[ServiceType]decimal.Decimal
}

// NewSnapshot copies prices into an immutable snapshot.
func NewSnapshot(prices map[ServiceType]decimal.Decimal) Snapshot {
	copied := make(map[ServiceType]decimal.Decimal, len(prices))
	for k, v := range prices {
		copied[k] = v
	}
	return Snapshot{prices: copied}
}

// Price returns the snapshot price. A missing type prices at zero and yields a warning.
func (s Snapshot) Price(t ServiceType) (decimal.Decimal, *MissingPriceWarning) {
	price, ok := s.prices[t]
	if !ok {
		return decimal.Zero, &MissingPriceWarning{Type: t, Message: fmt.Sprintf("no catalog price for %s, charged as 0", t)}
	}
	return price, nil
}

// CatalogReader collapses concurrent identical catalog reads.
type CatalogReader struct {
	store  CatalogStore
	group  singleflight.Group
	logger *slog.Logger
}

// NewCatalogReader builds a reader over store.
func NewCatalogReader(store CatalogStore, logger *slog.Logger) *CatalogReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogReader{store: store, logger: logger}
}

// Snapshot reads the given types, or the storage types when none are given.
func (r *CatalogReader) Snapshot(ctx context.Context, types ...ServiceType) (Snapshot, error) {
	if len(types) == 0 {
		types = StorageServiceTypes
	}
	key := catalogKey(types)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.store.ListPrices(context.WithoutCancel(ctx), types)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, fmt.Errorf("billing: read catalog: %w", res.Err)
		}
		if res.Shared {
			r.logger.Debug("catalog read shared", slog.String("types", key))
		}
		return NewSnapshot(res.Val.(map[ServiceType]decimal.Decimal)), nil
	}
}

func catalogKey(types []ServiceType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

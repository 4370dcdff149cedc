package cart

import (
	"encoding/json"
	"fmt"

	"storefront/internal/domain"
)

const snapshotVersion = 0

// persistedCart is the blob written to storage: {"state":{"items":[...]},"version":0}.
type persistedCart struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

type persistedState struct {
	Items []domain.CartLineItem `json:"items"`
}

func encodeSnapshot(items []domain.CartLineItem) ([]byte, error) {
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return json.Marshal(persistedCart{
		State:   persistedState{Items: items},
		Version: snapshotVersion,
	})
}

// decodeSnapshot parses a stored blob and restores the one-row-per-product,
// quantity >= 1 invariant on whatever it finds.
func decodeSnapshot(data []byte) ([]domain.CartLineItem, error) {
	var pc persistedCart
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCartSnapshot, err)
	}
	if pc.Version > snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrInvalidCartSnapshot, pc.Version)
	}

	items := make([]domain.CartLineItem, 0, len(pc.State.Items))
	index := make(map[int64]int, len(pc.State.Items))
	for _, item := range pc.State.Items {
		if item.Quantity < 1 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(items)
		items = append(items, item)
	}
	return items, nil
}

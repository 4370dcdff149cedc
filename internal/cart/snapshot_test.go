package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

func TestEncodeSnapshot_NilItems(t *testing.T) {
	data, err := encodeSnapshot(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"items":[]},"version":0}`, string(data))
}

func TestDecodeSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.CartLineItem
		wantErr bool
	}{
		{
			name:  "empty cart",
			input: `{"state":{"items":[]},"version":0}`,
			want:  []domain.CartLineItem{},
		},
		{
			name:  "round trip fields",
			input: `{"state":{"items":[{"id":1,"name":"Phone","image":"/p.png","price":10,"quantity":2}]},"version":0}`,
			want:  []domain.CartLineItem{{ProductID: 1, Name: "Phone", Image: "/p.png", UnitPrice: 10, Quantity: 2}},
		},
		{
			name:  "drops rows with quantity below one",
			input: `{"state":{"items":[{"id":1,"price":10,"quantity":0},{"id":2,"price":5,"quantity":1}]},"version":0}`,
			want:  []domain.CartLineItem{{ProductID: 2, UnitPrice: 5, Quantity: 1}},
		},
		{
			name:  "merges duplicate product rows",
			input: `{"state":{"items":[{"id":3,"price":4,"quantity":1},{"id":3,"price":4,"quantity":2}]},"version":0}`,
			want:  []domain.CartLineItem{{ProductID: 3, UnitPrice: 4, Quantity: 3}},
		},
		{
			name:  "missing state is empty",
			input: `{}`,
			want:  []domain.CartLineItem{},
		},
		{
			name:    "newer version is rejected",
			input:   `{"state":{"items":[]},"version":3}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSnapshot([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidCartSnapshot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPageOffset(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		wantOffset int
		wantLimit  int
	}{
		{"Defaults", Pagination{}, 0, 50},
		{"Second page", Pagination{Page: 2, Limit: 10}, 10, 10},
		{"Negative page", Pagination{Page: -3, Limit: 5}, 0, 5},
		{"Capped limit", Pagination{Page: 3, Limit: 500}, 200, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			offset, limit := p.GetPageOffset(50)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
			assert.GreaterOrEqual(t, p.Page, 1)
		})
	}
}

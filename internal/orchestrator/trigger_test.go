package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataLookups(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Lookup
	}{
		{
			name:  "order id",
			input: "Where is my order ORD001?",
			want:  []Lookup{{Source: "orders", Query: "ORD001"}},
		},
		{
			name:  "lowercase id",
			input: "status of ord002 please",
			want:  []Lookup{{Source: "orders", Query: "ORD002"}},
		},
		{
			name:  "multiple ids",
			input: "Compare PROD001 and PROD002 for customer CUST001",
			want: []Lookup{
				{Source: "products", Query: "PROD001"},
				{Source: "products", Query: "PROD002"},
				{Source: "customers", Query: "CUST001"},
			},
		},
		{
			name:  "catalog keyword scans everything",
			input: "Do you have wireless headphones in stock?",
			want:  []Lookup{{Query: "Do you have wireless headphones in stock?"}},
		},
		{
			name:  "small talk",
			input: "Good morning, how are you?",
			want:  nil,
		},
		{
			name:  "id fragment too short",
			input: "my code is ORD12",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataLookups(tt.input))
		})
	}
}

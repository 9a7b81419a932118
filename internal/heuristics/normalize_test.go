package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and spaces", "  Best   MEAT\tShop ", "best meat shop"},
		{"latin accents", "Café Basar", "cafe basar"},
		{"hebrew niqqud", "בָּשָׂר", "בשר"},
		{"plain hebrew unchanged", "קצביית כהן", "קצביית כהן"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHasHebrew(t *testing.T) {
	t.Parallel()

	assert.True(t, HasHebrew("Katzav קצב"))
	assert.False(t, HasHebrew("butcher shop"))
	assert.False(t, HasHebrew(""))
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ani-tui/internal/media"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Naruto", "naruto"},
		{"NARUTO", "naruto"},
		{"Naruto!", "naruto"},
		{"  Naruto  Shippuden ", "narutoshippuden"},
		{"Naruto: Shippūden", "narutoshippuden"},
		{"Pokémon", "pokemon"},
		{"Re:Zero - Starting Life in Another World", "rezerostartinglifeinanotherworld"},
		{"Mob Psycho 100", "mobpsycho100"},
		{"Straße", "strasse"},
		{"!!!", "!!!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.input), "NormalizeTitle(%q)", tt.input)
	}
}

func TestClosest(t *testing.T) {
	shows := []media.Show{
		{ID: "bleach", NormalizedTitle: "bleach"},
		{ID: "narutoshippuden", NormalizedTitle: "narutoshippuden"},
		{ID: "naruto", NormalizedTitle: "naruto", Aliases: []string{"Naruto"}},
	}

	got, ok := Closest(shows, "Naruto.")
	assert.True(t, ok)
	assert.Equal(t, "naruto", got.ID)

	got, _ = Closest(shows, "Naruto Shippuuden")
	assert.Equal(t, "narutoshippuden", got.ID)

	_, ok = Closest(nil, "x")
	assert.False(t, ok)
}

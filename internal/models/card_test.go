package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCard(t *testing.T) {
	for _, id := range []string{"r_0", "g_9", "b_skip", "y_reverse", "r_draw", "x_colorchooser", "x_draw_four"} {
		c, err := ParseCard(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, c.String())
	}
	for _, bad := range []string{"", "r5", "q_5", "r_10", "r_draw_four", "x_5", "x_skip"} {
		_, err := ParseCard(bad)
		assert.Error(t, err, bad)
	}
}

func TestCardJSONIsItsID(t *testing.T) {
	hand := []Card{{Color: Red, Rank: Five}, {Color: Wild, Rank: WildDrawFour}}
	data, err := json.Marshal(hand)
	require.NoError(t, err)
	assert.JSONEq(t, `["r_5","x_draw_four"]`, string(data))

	var back []Card
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, hand, back)
	assert.Error(t, json.Unmarshal([]byte(`["nope"]`), &back))
}

func TestCardClassification(t *testing.T) {
	assert.True(t, Card{Color: Wild, Rank: WildCard}.IsWild())
	assert.True(t, Card{Color: Blue, Rank: Skip}.IsSpecial())
	assert.False(t, Card{Color: Blue, Rank: Three}.IsSpecial())
	assert.True(t, Red.Choosable())
	assert.False(t, Wild.Choosable())
	assert.False(t, Color("").Choosable())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", User{FirstName: "Ann", Username: "ann"}.DisplayName())
	assert.Equal(t, "@ann", User{Username: "ann"}.DisplayName())
	assert.Equal(t, "Guest", User{}.DisplayName())
}

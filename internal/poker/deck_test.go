package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNewDeck_Canonical(t *testing.T) {
	deck := NewDeck()
	assert.Equal(t, 52, deck.Remaining())

	seen := make(map[string]bool)
	for deck.Remaining() > 0 {
		seen[deck.Draw().String()] = true
	}
	assert.Len(t, seen, 52)
}

func TestShuffle_KeepsAllCardsDistinct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deck := NewDeck()
		assert.Nil(t, deck.Shuffle(NewSeededRand(rapid.Int64().Draw(t, "seed"))))
		assert.Equal(t, 52, deck.Remaining())

		seen := make(map[Card]bool)
		for deck.Remaining() > 0 {
			card := deck.Draw()
			assert.False(t, seen[card])
			seen[card] = true
		}
		assert.Len(t, seen, 52)
	})
}

func TestShuffle_DeterministicGivenSeed(t *testing.T) {
	a := NewDeck()
	b := NewDeck()
	assert.Nil(t, a.Shuffle(NewSeededRand(42)))
	assert.Nil(t, b.Shuffle(NewSeededRand(42)))

	for a.Remaining() > 0 {
		assert.Equal(t, a.Draw(), b.Draw())
	}
}

func TestCryptoRand_InRange(t *testing.T) {
	r := CryptoRand{}
	for i := 0; i < 200; i++ {
		v, err := r.Intn(52)
		assert.Nil(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 52)
	}
}

func TestParseCard_RoundTrip(t *testing.T) {
	card, err := ParseCard("Ah")
	assert.Nil(t, err)
	assert.Equal(t, RankA, card.Rank)
	assert.Equal(t, SuitHeart, card.Suit)
	assert.Equal(t, "Ah", card.String())

	_, err = ParseCard("Xx")
	assert.NotNil(t, err)
}

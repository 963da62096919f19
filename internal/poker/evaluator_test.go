package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func mustCards(t *testing.T, names ...string) []Card {
	t.Helper()
	cards := make([]Card, len(names))
	for i, name := range names {
		card, err := ParseCard(name)
		assert.Nil(t, err)
		cards[i] = card
	}
	return cards
}

func TestEvaluate_Categories(t *testing.T) {
	testcases := []struct {
		name     string
		cards    []string
		category HandCategory
	}{
		{"royal flush", []string{"Ah", "Kh", "Qh", "Jh", "Th"}, RoyalFlush},
		{"straight flush", []string{"9s", "8s", "7s", "6s", "5s"}, StraightFlush},
		{"quads", []string{"Ah", "Ad", "Ac", "As", "2h"}, Quads},
		{"full house", []string{"Kh", "Kd", "Kc", "2s", "2h"}, FullHouse},
		{"flush", []string{"Ah", "Jh", "8h", "6h", "2h"}, Flush},
		{"straight", []string{"9s", "8d", "7s", "6c", "5h"}, Straight},
		{"wheel", []string{"Ah", "2d", "3s", "4c", "5h"}, Straight},
		{"trips", []string{"Qh", "Qd", "Qc", "8s", "2h"}, Trips},
		{"two pair", []string{"Qh", "Qd", "8c", "8s", "2h"}, TwoPair},
		{"pair", []string{"Qh", "Qd", "9c", "8s", "2h"}, Pair},
		{"high card", []string{"Ah", "Jd", "9c", "8s", "2h"}, HighCard},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(mustCards(t, tc.cards...))
			assert.Equal(t, tc.category, v.Category)
		})
	}
}

func TestEvaluate_WheelTopsAtFive(t *testing.T) {
	wheel := Evaluate(mustCards(t, "Ah", "2d", "3s", "4c", "5h"))
	sixHigh := Evaluate(mustCards(t, "2d", "3s", "4c", "5h", "6d"))

	assert.Equal(t, Rank5, wheel.Tiebreakers[0])
	assert.Greater(t, sixHigh.Compare(wheel), 0)
}

func TestEvaluate_SevenCardPicksBest(t *testing.T) {
	// board makes a flush, the pair in the hole is irrelevant
	v := Evaluate(mustCards(t, "Ah", "As", "Kh", "Qh", "Jh", "9h", "2c"))
	assert.Equal(t, Flush, v.Category)
	assert.Equal(t, RankA, v.Tiebreakers[0])
}

func TestEvaluate_KickerOrdering(t *testing.T) {
	better := Evaluate(mustCards(t, "Ah", "Ad", "Kc", "8s", "2h"))
	worse := Evaluate(mustCards(t, "As", "Ac", "Qc", "8d", "2s"))
	assert.Greater(t, better.Compare(worse), 0)

	tie := Evaluate(mustCards(t, "Ac", "As", "Kd", "8h", "2d"))
	assert.Equal(t, 0, better.Compare(tie))
}

func TestEvaluate_PermutationInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deck := NewDeck()
		seed := rapid.Int64().Draw(t, "seed")
		assert.Nil(t, deck.Shuffle(NewSeededRand(seed)))

		cards := make([]Card, 7)
		for i := range cards {
			cards[i] = deck.Draw()
		}
		original := Evaluate(cards)

		i := rapid.IntRange(0, 6).Draw(t, "i")
		j := rapid.IntRange(0, 6).Draw(t, "j")
		cards[i], cards[j] = cards[j], cards[i]
		permuted := Evaluate(cards)

		assert.Equal(t, original.Category, permuted.Category)
		assert.Equal(t, original.Tiebreakers, permuted.Tiebreakers)
	})
}

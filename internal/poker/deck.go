package poker

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand"
)

// Rand is the shuffle entropy capability. Production code injects the
// crypto source; tests inject a seeded deterministic one.
type Rand interface {
	// Intn returns a uniform integer in [0, n). n must be > 0.
	Intn(n int) (int, error)
}

// CryptoRand draws from crypto/rand. crypto/rand.Int performs rejection
// sampling internally, so there is no modulo bias.
type CryptoRand struct{}

func (CryptoRand) Intn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// SeededRand is a deterministic Rand for tests and replays.
type SeededRand struct {
	src *mathrand.Rand
}

func NewSeededRand(seed int64) *SeededRand {
	return &SeededRand{src: mathrand.New(mathrand.NewSource(seed))}
}

func (r *SeededRand) Intn(n int) (int, error) {
	return r.src.Intn(n), nil
}

type Deck struct {
	cards []Card
}

// NewDeck returns the canonical 52-card enumeration, unshuffled.
func NewDeck() *Deck {
	cards := make([]Card, 0, 52)
	for suit := SuitHeart; suit <= SuitSpade; suit++ {
		for rank := Rank2; rank <= RankA; rank++ {
			cards = append(cards, Card{Rank: rank, Suit: suit})
		}
	}
	return &Deck{cards: cards}
}

// Shuffle runs Fisher-Yates over the whole deck. An entropy failure is
// returned to the caller; a hand must never be dealt from a partially
// shuffled deck.
func (d *Deck) Shuffle(r Rand) error {
	for i := len(d.cards) - 1; i >= 1; i-- {
		j, err := r.Intn(i + 1)
		if err != nil {
			return fmt.Errorf("poker: shuffle entropy: %w", err)
		}
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return nil
}

// Draw removes and returns the top card.
func (d *Deck) Draw() Card {
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card
}

func (d *Deck) Remaining() int {
	return len(d.cards)
}

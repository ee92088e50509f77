package deck

import (
	crand "crypto/rand"
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
)

// ErrExhausted is returned by Draw on an empty deck. It signals end of game, not a failure to retry.
var ErrExhausted = errors.New("deck exhausted")

// Deck is a lobby's draw pile. Draws pop from the tail.
// A Deck is not safe for concurrent use; its owning lobby serialises access.
type Deck struct {
	cards []catalog.Card
}

// New copies cards and shuffles them with a freshly seeded generator.
func New(cards []catalog.Card) *Deck {
	return NewWithRand(cards, newRand())
}

// NewWithRand copies cards and shuffles them with r.
func NewWithRand(cards []catalog.Card, r *rand.Rand) *Deck {
	d := &Deck{cards: slices.Clone(cards)}
	d.shuffle(r)
	return d
}

// Fisher-Yates.
func (d *Deck) shuffle(r *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

func (d *Deck) Draw() (catalog.Card, error) {
	n := len(d.cards)
	if n == 0 {
		return catalog.Card{}, ErrExhausted
	}
	c := d.cards[n-1]
	d.cards = d.cards[:n-1]
	return c, nil
}

func (d *Deck) IsEmpty() bool { return len(d.cards) == 0 }

func (d *Deck) Len() int { return len(d.cards) }

func newRand() *rand.Rand {
	var seed [32]byte
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// NewOrdered builds an unshuffled deck whose first Draw returns the first card in cards.
func NewOrdered(cards []catalog.Card) *Deck {
	d := &Deck{cards: slices.Clone(cards)}
	slices.Reverse(d.cards)
	return d
}

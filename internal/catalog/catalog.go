package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// Card is a single Dobble card. Symbols compare by exact, case-sensitive string equality.
type Card struct {
	ID      int32
	Symbols []string
}

// Has reports whether the card carries symbol.
func (c Card) Has(symbol string) bool {
	return slices.Contains(c.Symbols, symbol)
}

// FormatError is returned when a catalog document is missing the card list
// or one of its entries is malformed.
type FormatError struct {
	Index  int // entry index, -1 for document-level problems
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return "catalog: " + e.Reason
	}
	return fmt.Sprintf("catalog: card #%d: %s", e.Index, e.Reason)
}

// Catalog is the immutable master set of cards, loaded once at startup.
type Catalog struct {
	cards []Card
	byID  map[int32]int
}

type document struct {
	Cards json.RawMessage `json:"cards"`
}

type entry struct {
	ID      *int32    `json:"id"`
	Symbols *[]string `json:"symbols"`
}

// Load reads and validates the catalog file at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a `{"cards":[{"id":..,"symbols":[..]}]}` document.
func Parse(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &FormatError{Index: -1, Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if len(doc.Cards) == 0 || string(doc.Cards) == "null" {
		return nil, &FormatError{Index: -1, Reason: `missing "cards" array`}
	}

	var entries []entry
	if err := json.Unmarshal(doc.Cards, &entries); err != nil {
		return nil, &FormatError{Index: -1, Reason: `"cards" is not an array of card objects`}
	}
	if len(entries) == 0 {
		return nil, &FormatError{Index: -1, Reason: "no cards"}
	}

	c := &Catalog{
		cards: make([]Card, 0, len(entries)),
		byID:  make(map[int32]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == nil {
			return nil, &FormatError{Index: i, Reason: `missing "id"`}
		}
		if e.Symbols == nil {
			return nil, &FormatError{Index: i, Reason: `missing "symbols"`}
		}
		if len(*e.Symbols) == 0 {
			return nil, &FormatError{Index: i, Reason: "empty symbol list"}
		}
		if _, dup := c.byID[*e.ID]; dup {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("duplicate id %d", *e.ID)}
		}

		c.byID[*e.ID] = len(c.cards)
		c.cards = append(c.cards, Card{ID: *e.ID, Symbols: slices.Clone(*e.Symbols)})
	}
	return c, nil
}

// New builds a catalog from cards already in memory. Used by tests and tools.
func New(cards []Card) (*Catalog, error) {
	c := &Catalog{byID: make(map[int32]int, len(cards))}
	for i, card := range cards {
		if len(card.Symbols) == 0 {
			return nil, &FormatError{Index: i, Reason: "empty symbol list"}
		}
		if _, dup := c.byID[card.ID]; dup {
			return nil, &FormatError{Index: i, Reason: fmt.Sprintf("duplicate id %d", card.ID)}
		}
		c.byID[card.ID] = len(c.cards)
		c.cards = append(c.cards, Card{ID: card.ID, Symbols: slices.Clone(card.Symbols)})
	}
	if len(c.cards) == 0 {
		return nil, &FormatError{Index: -1, Reason: "no cards"}
	}
	return c, nil
}

// All returns the cards in catalog order. The slice is a copy; symbol slices are shared and must not be modified.
func (c *Catalog) All() []Card {
	return slices.Clone(c.cards)
}

func (c *Catalog) Len() int { return len(c.cards) }

func (c *Catalog) Lookup(id int32) (Card, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

// Common returns the symbols shared by a and b, in a's order.
func Common(a, b Card) []string {
	var out []string
	for _, s := range a.Symbols {
		if b.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Package deck generates shuffled pair decks for the available difficulties
// and themes.
package deck

import (
	"fmt"
	"github.com/lefinal/pairs-server/errors"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Difficulty determines the pair count and flip-back delay of a room.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DefaultDifficulty is used when no difficulty is requested.
const DefaultDifficulty = DifficultyMedium

type difficultySettings struct {
	pairs     int
	flipDelay time.Duration
}

var difficulties = map[Difficulty]difficultySettings{
	DifficultyEasy:   {pairs: 6, flipDelay: 1200 * time.Millisecond},
	DifficultyMedium: {pairs: 8, flipDelay: 1000 * time.Millisecond},
	DifficultyHard:   {pairs: 12, flipDelay: 800 * time.Millisecond},
}

// ParseDifficulty parses the given difficulty name. An empty name results in
// DefaultDifficulty.
func ParseDifficulty(name string) (Difficulty, error) {
	if name == "" {
		return DefaultDifficulty, nil
	}
	d := Difficulty(name)
	if _, ok := difficulties[d]; !ok {
		return "", errors.NewValidationError(fmt.Sprintf("unknown difficulty: %s", name),
			errors.Details{"difficulty": name})
	}
	return d, nil
}

// Pairs returns the number of pairs in a deck for the Difficulty. Unknown
// difficulties have no pairs.
func (d Difficulty) Pairs() int {
	return difficulties[d].pairs
}

// FlipDelay returns how long a non-matching pair stays visible before being
// flipped back.
func (d Difficulty) FlipDelay() time.Duration {
	return difficulties[d].flipDelay
}

// Card is a single card of a deck.
type Card struct {
	// Index is the position of the card in the deck.
	Index int `json:"index"`
	// Value is the symbol shown on the card. Each value appears exactly twice in a
	// deck.
	Value string `json:"value"`
	// Flipped is true while the card is face up during a turn.
	Flipped bool `json:"flipped"`
	// Matched is true once the card's pair has been found.
	Matched bool `json:"matched"`
}

// Generator generates shuffled decks. It is safe for concurrent use.
type Generator struct {
	rand      *rand.Rand
	randMutex sync.Mutex
}

// NewGenerator creates a Generator using the given rand.Source. If src is nil,
// a time-seeded source is used.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rand: rand.New(src)}
}

// Generate creates a shuffled deck for the given difficulty and theme. The
// symbols are picked randomly from the theme, so two decks of the same theme may
// use different symbols.
func (g *Generator) Generate(difficulty Difficulty, themeName string) ([]Card, error) {
	pairs := difficulty.Pairs()
	if pairs == 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown difficulty: %s", difficulty),
			errors.Details{"difficulty": difficulty})
	}
	theme, err := ThemeByName(themeName)
	if err != nil {
		return nil, errors.Wrap(err, "theme by name", nil)
	}
	if len(theme.Symbols) < pairs {
		return nil, errors.NewValidationError(fmt.Sprintf("theme %s has not enough symbols for %s", theme.Name, difficulty),
			errors.Details{"theme": theme.Name, "difficulty": difficulty})
	}
	g.randMutex.Lock()
	defer g.randMutex.Unlock()
	// Pick symbols.
	perm := g.rand.Perm(len(theme.Symbols))
	cards := make([]Card, 0, 2*pairs)
	for _, symbolIndex := range perm[:pairs] {
		symbol := theme.Symbols[symbolIndex]
		cards = append(cards, Card{Value: symbol}, Card{Value: symbol})
	}
	g.rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	for i := range cards {
		cards[i].Index = i
	}
	return cards, nil
}

// Difficulties returns all known difficulties ordered by pair count.
func Difficulties() []Difficulty {
	all := make([]Difficulty, 0, len(difficulties))
	for d := range difficulties {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Pairs() < all[j].Pairs()
	})
	return all
}

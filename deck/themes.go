package deck

import (
	"fmt"
	"github.com/lefinal/pairs-server/errors"
)

// Theme is a named alphabet of card symbols.
type Theme struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// DefaultTheme is used when no theme is requested.
const DefaultTheme = "animals"

var themes = map[string]Theme{
	"emoji": {
		Name:    "emoji",
		Symbols: []string{"😀", "😎", "🥳", "🚀", "🎮", "🍕", "🐱", "🐶", "🌈", "🌟", "🎵", "🎁", "🏆", "🍦"},
	},
	"animals": {
		Name:    "animals",
		Symbols: []string{"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨", "🦁", "🐯", "🐸", "🐵", "🦄"},
	},
	"food": {
		Name:    "food",
		Symbols: []string{"🍎", "🍌", "🍓", "🍕", "🍔", "🍦", "🍩", "🍪", "🍫", "🍿", "🥗", "🍣", "🧁", "🥞"},
	},
}

// ThemeByName returns the Theme with the given name. An empty name results in
// DefaultTheme.
func ThemeByName(name string) (Theme, error) {
	if name == "" {
		name = DefaultTheme
	}
	theme, ok := themes[name]
	if !ok {
		return Theme{}, errors.NewValidationError(fmt.Sprintf("unknown theme: %s", name),
			errors.Details{"theme": name})
	}
	return theme, nil
}

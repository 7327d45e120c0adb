package deck

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Item is one learnable entry of a deck file. The ID ties it to the card
// tracked by the Store; front and back carry the prompt and the answer.
type Item struct {
	ID    string `yaml:"id"`
	Front string `yaml:"front"`
	Back  string `yaml:"back,omitempty"`
	Topic string `yaml:"topic,omitempty"`
}

// Deck is the YAML document format for a set of learnable items.
type Deck struct {
	Name  string `yaml:"name,omitempty"`
	Items []Item `yaml:"items"`
}

func LoadFile(path string) (Deck, error) {
	var deck Deck

	file, err := os.Open(path)
	if err != nil {
		return deck, fmt.Errorf("os.Open(%s) > %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(&deck); err != nil {
		return deck, fmt.Errorf("yaml.NewDecoder().Decode() > %w", err)
	}
	if err := deck.Validate(); err != nil {
		return deck, fmt.Errorf("deck.Validate() > %w", err)
	}
	return deck, nil
}

func (d Deck) Validate() error {
	if len(d.Items) == 0 {
		return fmt.Errorf("deck has no items")
	}
	seen := make(map[string]struct{}, len(d.Items))
	for i, item := range d.Items {
		if item.ID == "" {
			return fmt.Errorf("item %d has an empty id", i)
		}
		if item.Front == "" {
			return fmt.Errorf("item %q has an empty front", item.ID)
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("duplicate item id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// Item returns the deck item with the given id.
func (d Deck) Item(id string) (Item, bool) {
	for _, item := range d.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

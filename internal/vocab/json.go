package vocab

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

type fileFormat struct {
	Words []string `json:"words"`
}

// Load reads a JSON file that is either a words array or an object with a
// "words" field.
func Load(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes the formats accepted by Load.
func Parse(raw []byte) (*Vocab, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse vocab json: %w", err)
	}
	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		words, ok := v["words"]
		if !ok {
			return nil, fmt.Errorf("vocab json object missing \"words\" field")
		}
		list, ok := words.([]any)
		if !ok {
			return nil, fmt.Errorf("words field must be an array")
		}
		items = list
	default:
		return nil, fmt.Errorf("vocab json must be array or object")
	}

	words := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("vocab word %d is not a string", i)
		}
		words[i] = s
	}
	return New(words)
}

// Save writes the vocabulary as {"words": [...]}, specials included.
func (v *Vocab) Save(path string) error {
	raw, err := json.MarshalIndent(fileFormat{Words: v.words}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

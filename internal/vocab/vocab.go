// Package vocab maps caption words to token ids and back.
package vocab

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Special tokens always occupy the first ids of a vocabulary, in this order.
const (
	PadToken     = "<pad>"
	StartToken   = "<start>"
	EndToken     = "<end>"
	UnknownToken = "<unk>"
)

var specials = []string{PadToken, StartToken, EndToken, UnknownToken}

var (
	ErrDuplicateWord = errors.New("vocab: duplicate word")
	ErrUnknownID     = errors.New("vocab: token id out of range")
)

// Vocab is an immutable word list. It is safe for concurrent use.
type Vocab struct {
	words []string
	index map[string]int
}

// New builds a vocabulary from words. Special tokens are placed first;
// occurrences of them in words are ignored. Empty or repeated words are
// rejected.
func New(words []string) (*Vocab, error) {
	v := &Vocab{
		words: make([]string, 0, len(specials)+len(words)),
		index: make(map[string]int, len(specials)+len(words)),
	}
	for _, w := range specials {
		v.add(w)
	}
	for i, w := range words {
		if slices.Contains(specials, w) {
			continue
		}
		if strings.TrimSpace(w) == "" {
			return nil, fmt.Errorf("vocab: empty word at position %d", i)
		}
		if _, ok := v.index[w]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateWord, w)
		}
		v.add(w)
	}
	return v, nil
}

func (v *Vocab) add(w string) {
	v.index[w] = len(v.words)
	v.words = append(v.words, w)
}

// Size is the number of tokens, specials included.
func (v *Vocab) Size() int { return len(v.words) }

func (v *Vocab) Pad() int     { return v.index[PadToken] }
func (v *Vocab) Start() int   { return v.index[StartToken] }
func (v *Vocab) End() int     { return v.index[EndToken] }
func (v *Vocab) Unknown() int { return v.index[UnknownToken] }

// Words returns a copy of the word list, specials included.
func (v *Vocab) Words() []string {
	return slices.Clone(v.words)
}

// ID returns the id of word.
func (v *Vocab) ID(word string) (int, bool) {
	id, ok := v.index[word]
	return id, ok
}

// Word returns the word for id.
func (v *Vocab) Word(id int) (string, error) {
	if id < 0 || id >= len(v.words) {
		return "", fmt.Errorf("%w: %d (size %d)", ErrUnknownID, id, len(v.words))
	}
	return v.words[id], nil
}

// Encode tokenizes text and maps every word to its id, using the unknown
// token for words outside the vocabulary.
func (v *Vocab) Encode(text string) []int {
	words := Tokenize(text)
	ids := make([]int, len(words))
	for i, w := range words {
		id, ok := v.index[w]
		if !ok {
			id = v.Unknown()
		}
		ids[i] = id
	}
	return ids
}

// Decode renders ids as text. Decoding stops at the first end token;
// start and padding tokens are skipped.
func (v *Vocab) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		w, err := v.Word(id)
		if err != nil {
			return "", err
		}
		switch w {
		case EndToken:
			return b.String(), nil
		case StartToken, PadToken:
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String(), nil
}

// Tokenize lowercases text and splits it into words, dropping punctuation.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

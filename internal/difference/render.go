package difference

import (
	"fmt"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// OpKind is the kind of an edit script span.
type OpKind string

const (
	OpEqual  OpKind = "equal"
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op is one span of an edit script.
type Op struct {
	Kind OpKind `json:"kind"`
	Text string `json:"text"`
}

// Replacement is the flat "this becomes that" rendering.
type Replacement struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Rendered is a difference ready for display: either Ops or Replacement is
// set.
type Rendered struct {
	Name        string       `json:"name"`
	Replacement *Replacement `json:"replacement,omitempty"`
	Ops         []Op         `json:"ops,omitempty"`
}

type pair struct {
	original, edited string
}

// Renderer turns differences into display form. Edit scripts are cached,
// so a Renderer should be shared. It is safe for concurrent use.
type Renderer struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache *lru.Cache[pair, []Op]
}

// NewRenderer creates a renderer caching up to cacheSize edit scripts.
func NewRenderer(cacheSize int) (*Renderer, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[pair, []Op](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create edit script cache: %w", err)
	}
	return &Renderer{
		dmp:   diffmatchpatch.New(),
		cache: cache,
	}, nil
}

// Render converts one difference.
func (r *Renderer) Render(d Difference) Rendered {
	if !d.ColorDifferences {
		return Rendered{
			Name:        d.Name,
			Replacement: &Replacement{From: d.OriginalValue, To: d.EditedValue},
		}
	}
	return Rendered{Name: d.Name, Ops: r.EditScript(d.OriginalValue, d.EditedValue)}
}

// RenderAll converts a difference list, keeping its order.
func (r *Renderer) RenderAll(diffs []Difference) []Rendered {
	out := make([]Rendered, len(diffs))
	for i, d := range diffs {
		out[i] = r.Render(d)
	}
	return out
}

// EditScript computes a token-level edit script from original to edited.
// Tokens are words, whitespace runs and single punctuation characters.
// The returned slice is shared with the cache and must not be modified.
func (r *Renderer) EditScript(original, edited string) []Op {
	key := pair{original, edited}
	if ops, ok := r.cache.Get(key); ok {
		return ops
	}

	enc := newTokenEncoder()
	a := enc.encode(original)
	b := enc.encode(edited)
	diffs := r.dmp.DiffMainRunes(a, b, false)

	var ops []Op
	for _, d := range diffs {
		text := enc.decode(d.Text)
		if text == "" {
			continue
		}
		kind := OpEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = OpInsert
		case diffmatchpatch.DiffDelete:
			kind = OpDelete
		}
		if n := len(ops); n > 0 && ops[n-1].Kind == kind {
			ops[n-1].Text += text
			continue
		}
		ops = append(ops, Op{Kind: kind, Text: text})
	}

	r.cache.Add(key, ops)
	return ops
}

// tokenEncoder maps each distinct token to one rune so the diff runs on
// tokens instead of characters.
type tokenEncoder struct {
	runes  map[string]rune
	tokens map[rune]string
	next   rune
}

func newTokenEncoder() *tokenEncoder {
	return &tokenEncoder{
		runes:  make(map[string]rune),
		tokens: make(map[rune]string),
		next:   1,
	}
}

func (e *tokenEncoder) encode(s string) []rune {
	var out []rune
	for _, tok := range tokenize(s) {
		r, ok := e.runes[tok]
		if !ok {
			r = e.next
			e.next++
			// Skip surrogates, which do not survive a string round trip.
			if e.next == 0xD800 {
				e.next = 0xE000
			}
			e.runes[tok] = r
			e.tokens[r] = tok
		}
		out = append(out, r)
	}
	return out
}

func (e *tokenEncoder) decode(s string) string {
	var out []byte
	for _, r := range s {
		out = append(out, e.tokens[r]...)
	}
	return string(out)
}

func tokenize(s string) []string {
	var tokens []string
	runes := []rune(s)
	for i := 0; i < len(runes); {
		j := i + 1
		switch {
		case isWord(runes[i]):
			for j < len(runes) && isWord(runes[j]) {
				j++
			}
		case unicode.IsSpace(runes[i]):
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
		}
		tokens = append(tokens, string(runes[i:j]))
		i = j
	}
	return tokens
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

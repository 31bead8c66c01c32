package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

const defaultLexicalDims = 64

// LexicalEmbedder builds a deterministic vector from lexical features alone:
// token count, content-word ratio and hashed buckets of stemmed content
// words. It has no semantic understanding; it exists so an evaluation can
// always complete when no model-backed provider is reachable.
type LexicalEmbedder struct {
	// Dims is the total vector length. Two feature dimensions are reserved;
	// the rest hold hashed word buckets. Values below 8 fall back to the
	// default of 64.
	Dims int
}

// NewLexicalEmbedder creates the fallback embedder with the default
// dimensionality.
func NewLexicalEmbedder() *LexicalEmbedder {
	return &LexicalEmbedder{Dims: defaultLexicalDims}
}

var lexicalPunct = regexp.MustCompile(`[^\w\s]`)

// Word-level stopwords excluded from the hashed buckets.
var lexicalStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "by": true, "for": true, "from": true, "has": true,
	"he": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "that": true, "the": true, "to": true, "was": true, "will": true,
	"with": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "must": true, "shall": true, "this": true,
	"these": true, "they": true, "them": true, "their": true, "there": true,
	"then": true, "than": true, "or": true, "but": true, "not": true, "no": true,
	"nor": true, "so": true, "yet": true, "if": true, "do": true, "does": true,
	"did": true, "have": true, "had": true, "having": true, "when": true,
	"where": true, "which": true, "who": true, "whom": true, "whose": true,
	"what": true, "why": true, "how": true, "while": true, "because": true,
	"since": true, "though": true, "although": true, "unless": true, "until": true,
}

// Model implements Embedder.
func (e *LexicalEmbedder) Model() string {
	return "lexical-hash"
}

// Embed implements Embedder. It never fails; empty or whitespace-only text
// yields the zero vector, which compares with similarity 0 to everything.
func (e *LexicalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := e.dims()
	vec := make([]float32, dims)
	tokens := lexicalTokens(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	content := 0
	buckets := dims - 2
	for _, tok := range tokens {
		if lexicalStopWords[tok] {
			continue
		}
		content++
		stem, err := snowball.Stem(tok, "english", true)
		if err != nil || stem == "" {
			stem = tok
		}
		h := fnv.New32a()
		h.Write([]byte(stem))
		vec[2+int(h.Sum32()%uint32(buckets))]++
	}
	vec[0] = float32(math.Log1p(float64(len(tokens))))
	vec[1] = float32(content) / float32(len(tokens))
	return vec, nil
}

// Ping implements Embedder. The lexical path is always ready.
func (e *LexicalEmbedder) Ping(context.Context) error {
	return nil
}

func (e *LexicalEmbedder) dims() int {
	if e.Dims < 8 {
		return defaultLexicalDims
	}
	return e.Dims
}

func lexicalTokens(text string) []string {
	text = strings.ToLower(text)
	text = lexicalPunct.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

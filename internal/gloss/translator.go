package gloss

import (
	"context"
	"strings"
)

// Translator turns text into an ordered gloss sequence.
type Translator interface {
	Translate(ctx context.Context, text string) ([]Gloss, error)
}

// RuleTranslator tokenizes, normalizes date/time/number tokens and looks the
// rest up in the lexicon. Unknown words pass through upper-cased.
type RuleTranslator struct {
	lex *Lexicon
}

// NewRuleTranslator returns a translator backed by lex.
func NewRuleTranslator(lex *Lexicon) *RuleTranslator {
	return &RuleTranslator{lex: lex}
}

// Translate implements Translator.
func (t *RuleTranslator) Translate(ctx context.Context, text string) ([]Gloss, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	out := make([]Gloss, 0, len(tokens))
	for _, tok := range tokens {
		if g, ok := t.lex.Lookup(tok); ok {
			out = append(out, Gloss{Symbol: g, Confidence: KnownConfidence})
			continue
		}
		if syms, ok := normalizeToken(tok); ok {
			for _, s := range syms {
				out = append(out, Gloss{Symbol: s, Confidence: KnownConfidence})
			}
			continue
		}
		out = append(out, Gloss{Symbol: strings.ToUpper(tok), Confidence: UnknownConfidence})
	}
	return out, nil
}

// Symbols projects glosses to their symbols.
func Symbols(gs []Gloss) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Symbol
	}
	return out
}

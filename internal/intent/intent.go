// Package intent classifies free-text chat messages. Parsing is pure and
// total: every input yields an Intent, never an error.
package intent

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Kind names an intent.
type Kind string

const (
	KindSend       Kind = "send"
	KindBalance    Kind = "balance"
	KindAddress    Kind = "address"
	KindHelp       Kind = "help"
	KindHistory    Kind = "history"
	KindConfirmYes Kind = "confirm_yes"
	KindConfirmNo  Kind = "confirm_no"
	KindUnknown    Kind = "unknown"
)

// Intent is the classified meaning of one message. Amount and Recipient are
// only set for KindSend.
type Intent struct {
	Kind      Kind
	Amount    decimal.Decimal
	Recipient string
	// Named is true when Recipient is a free-form name rather than an
	// address-shaped token.
	Named bool
}

// Equal reports whether two intents carry the same meaning.
func (i Intent) Equal(other Intent) bool {
	return i.Kind == other.Kind &&
		i.Amount.Equal(other.Amount) &&
		i.Recipient == other.Recipient &&
		i.Named == other.Named
}

var (
	yesWords = map[string]struct{}{"yes": {}, "y": {}, "confirm": {}}
	noWords  = map[string]struct{}{"no": {}, "n": {}, "cancel": {}}

	keywordRules = []struct {
		kind     Kind
		keywords []string
	}{
		{KindBalance, []string{"balance", "how much"}},
		{KindAddress, []string{"address", "key", "wallet"}},
		{KindHelp, []string{"help"}},
		{KindHistory, []string{"history"}},
	}

	addressTransfer = regexp.MustCompile(`(?i)\b(?:send|transfer|pay)\s+(\d+(?:\.\d+)?)\s*(?:sol|eth)?\s*(?:to)?\s*\b([a-zA-Z0-9]{32,44})\b`)
	// Every word of a name starts with a letter.
	namedTransfer = regexp.MustCompile(`(?i)^\s*(?:send|transfer|pay)\s+(\d+(?:\.\d+)?)\s*(?:(?:sol|eth)\s+)?(?:to\s+)?(\pL[\pL\pN_.'-]*?(?:[ \t]+\pL[\pL\pN_.'-]*?)*)\s*[.!?]?\s*$`)
)

const maxNameLength = 64

// matcher returns an intent and true when it recognises text.
type matcher func(text string) (Intent, bool)

// matchers run in order; the first hit wins. Only the transfer matcher reads
// the text after contact substitution.
var matchers = []struct {
	match    matcher
	resolved bool
}{
	{matchConfirmation, false},
	{matchKeyword, false},
	{matchTransfer, true},
}

// Parse classifies text.
func Parse(text string) Intent {
	return ParseResolved(text, text)
}

// ParseResolved classifies a message whose contact name was replaced by an
// address in resolved. Confirmation words and keywords are matched against
// original, so letters inside a substituted address never change the intent.
func ParseResolved(original, resolved string) Intent {
	for _, m := range matchers {
		text := original
		if m.resolved {
			text = resolved
		}
		if in, ok := m.match(text); ok {
			return in
		}
	}
	return Intent{Kind: KindUnknown}
}

func matchConfirmation(text string) (Intent, bool) {
	word := strings.ToLower(strings.TrimSpace(text))
	if _, ok := yesWords[word]; ok {
		return Intent{Kind: KindConfirmYes}, true
	}
	if _, ok := noWords[word]; ok {
		return Intent{Kind: KindConfirmNo}, true
	}
	return Intent{}, false
}

func matchKeyword(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return Intent{Kind: rule.kind}, true
			}
		}
	}
	return Intent{}, false
}

func matchTransfer(text string) (Intent, bool) {
	if m := addressTransfer.FindStringSubmatch(text); m != nil {
		return sendIntent(m[1], m[2], false)
	}
	if m := namedTransfer.FindStringSubmatch(text); m != nil && utf8.RuneCountInString(m[2]) <= maxNameLength {
		return sendIntent(m[1], m[2], true)
	}
	return Intent{}, false
}

func sendIntent(rawAmount, recipient string, named bool) (Intent, bool) {
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil || !amount.IsPositive() {
		return Intent{}, false
	}
	return Intent{Kind: KindSend, Amount: amount, Recipient: recipient, Named: named}, true
}

// NamedRecipient locates the free-form recipient of a name-style transfer
// command. It returns the byte offsets of the name within text, or ok=false
// when text is not such a command or already names an address token.
func NamedRecipient(text string) (start, end int, ok bool) {
	if addressTransfer.MatchString(text) {
		return 0, 0, false
	}
	loc := namedTransfer.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	if utf8.RuneCountInString(text[loc[4]:loc[5]]) > maxNameLength {
		return 0, 0, false
	}
	return loc[4], loc[5], true
}

// Package keys names the physical keys the harness can synthesize.
package keys

import (
	"fmt"
	"sort"
)

// Code identifies a physical key.
type Code uint16

// Key codes. The zero value is not a key.
const (
	Undefined Code = iota

	A
	B
	C
	D
	E
	F
	G
	H
	I
	J
	K
	L
	M
	N
	O
	P
	Q
	R
	S
	T
	U
	V
	W
	X
	Y
	Z

	Digit0
	Digit1
	Digit2
	Digit3
	Digit4
	Digit5
	Digit6
	Digit7
	Digit8
	Digit9

	Add
	Ampersand
	Asterisk
	BackQuote
	BackSlash
	BraceLeft
	BraceRight
	Circumflex
	CloseBracket
	Colon
	Comma
	Decimal
	Divide
	Dollar
	Equals
	EuroSign
	ExclamationMark
	Greater
	LeftParenthesis
	Less
	Minus
	NumberSign
	OpenBracket
	Period
	Plus
	Pound
	Quote
	QuoteDbl
	RightParenthesis
	Semicolon
	Slash
	Star
	Subtract
	Underscore

	Shift
	Control
	Alt
	Space
	Enter
	Escape
	Tab
	Backspace
	Up
	Down
	Left
	Right
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12

	maxCode
)

var names = [maxCode]string{
	Undefined: "UNDEFINED",

	A: "A", B: "B", C: "C", D: "D", E: "E", F: "F", G: "G", H: "H", I: "I",
	J: "J", K: "K", L: "L", M: "M", N: "N", O: "O", P: "P", Q: "Q", R: "R",
	S: "S", T: "T", U: "U", V: "V", W: "W", X: "X", Y: "Y", Z: "Z",

	Digit0: "DIGIT0", Digit1: "DIGIT1", Digit2: "DIGIT2", Digit3: "DIGIT3",
	Digit4: "DIGIT4", Digit5: "DIGIT5", Digit6: "DIGIT6", Digit7: "DIGIT7",
	Digit8: "DIGIT8", Digit9: "DIGIT9",

	Add:              "ADD",
	Ampersand:        "AMPERSAND",
	Asterisk:         "ASTERISK",
	BackQuote:        "BACK_QUOTE",
	BackSlash:        "BACK_SLASH",
	BraceLeft:        "BRACELEFT",
	BraceRight:       "BRACERIGHT",
	Circumflex:       "CIRCUMFLEX",
	CloseBracket:     "CLOSE_BRACKET",
	Colon:            "COLON",
	Comma:            "COMMA",
	Decimal:          "DECIMAL",
	Divide:           "DIVIDE",
	Dollar:           "DOLLAR",
	Equals:           "EQUALS",
	EuroSign:         "EURO_SIGN",
	ExclamationMark:  "EXCLAMATION_MARK",
	Greater:          "GREATER",
	LeftParenthesis:  "LEFT_PARENTHESIS",
	Less:             "LESS",
	Minus:            "MINUS",
	NumberSign:       "NUMBER_SIGN",
	OpenBracket:      "OPEN_BRACKET",
	Period:           "PERIOD",
	Plus:             "PLUS",
	Pound:            "POUND",
	Quote:            "QUOTE",
	QuoteDbl:         "QUOTEDBL",
	RightParenthesis: "RIGHT_PARENTHESIS",
	Semicolon:        "SEMICOLON",
	Slash:            "SLASH",
	Star:             "STAR",
	Subtract:         "SUBTRACT",
	Underscore:       "UNDERSCORE",

	Shift:     "SHIFT",
	Control:   "CONTROL",
	Alt:       "ALT",
	Space:     "SPACE",
	Enter:     "ENTER",
	Escape:    "ESCAPE",
	Tab:       "TAB",
	Backspace: "BACK_SPACE",
	Up:        "UP",
	Down:      "DOWN",
	Left:      "LEFT",
	Right:     "RIGHT",
	F1:        "F1", F2: "F2", F3: "F3", F4: "F4", F5: "F5", F6: "F6",
	F7: "F7", F8: "F8", F9: "F9", F10: "F10", F11: "F11", F12: "F12",
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(names))
	for c, n := range names {
		m[n] = Code(c)
	}
	return m
}()

// String returns the stable name of the key.
func (c Code) String() string {
	if c < maxCode {
		return names[c]
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// Valid reports whether c names a real key.
func (c Code) Valid() bool {
	return c > Undefined && c < maxCode
}

// IsLetter reports whether c is one of A-Z.
func (c Code) IsLetter() bool { return c >= A && c <= Z }

// IsDigit reports whether c is one of the digit row keys.
func (c Code) IsDigit() bool { return c >= Digit0 && c <= Digit9 }

// IsModifier reports whether c is a modifier key.
func (c Code) IsModifier() bool { return c == Shift || c == Control || c == Alt }

// Parse looks a key up by its stable name.
func Parse(name string) (Code, error) {
	c, ok := byName[name]
	if !ok || c == Undefined {
		return Undefined, fmt.Errorf("unknown key %q", name)
	}
	return c, nil
}

// MarshalText encodes the key as its name.
func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid key %d", uint16(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a key name.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Descriptor is a physical key plus the modifier state needed to produce
// one character.
type Descriptor struct {
	Code  Code `json:"code"`
	Shift bool `json:"shift"`
}

func (d Descriptor) String() string {
	if d.Shift {
		return "SHIFT+" + d.Code.String()
	}
	return d.Code.String()
}

// symbolCandidates are the punctuation keys considered safe to press
// while probing: none of them submit, cancel, or move focus.
var symbolCandidates = []Code{
	Add, Ampersand, Asterisk, BackQuote, BackSlash, BraceLeft, BraceRight,
	Circumflex, CloseBracket, Colon, Comma, Decimal, Divide, Dollar, Equals,
	EuroSign, ExclamationMark, Greater, LeftParenthesis, Less, Minus,
	NumberSign, OpenBracket, Period, Plus, Pound, Quote, QuoteDbl,
	RightParenthesis, Semicolon, Slash, Star, Subtract, Underscore,
}

var candidates = func() []Code {
	var out []Code
	for c := Code(1); c < maxCode; c++ {
		if c.IsLetter() || c.IsDigit() {
			out = append(out, c)
		}
	}
	out = append(out, symbolCandidates...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}()

// Candidates returns the keys eligible for keymap probing, in code order.
// The slice is a copy.
func Candidates() []Code {
	return append([]Code(nil), candidates...)
}

// IsCandidate reports whether c may be pressed while probing.
func IsCandidate(c Code) bool {
	i := sort.Search(len(candidates), func(i int) bool { return candidates[i] >= c })
	return i < len(candidates) && candidates[i] == c
}

package sqltext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind int

const (
	Word Kind = iota
	QuotedIdent
	String
	Number
	Symbol
	Semicolon
	Comment
	Space
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case QuotedIdent:
		return "quoted_ident"
	case String:
		return "string"
	case Number:
		return "number"
	case Symbol:
		return "symbol"
	case Semicolon:
		return "semicolon"
	case Comment:
		return "comment"
	case Space:
		return "space"
	default:
		return "unknown"
	}
}

// Token is a lexical unit of a statement. Pos is the byte offset of Text in
// the source, so concatenating every token's Text reproduces the input.
type Token struct {
	Kind Kind
	Text string
	Pos  int
}

// Value returns the identifier or literal content with quoting removed.
func (t Token) Value() string {
	switch t.Kind {
	case QuotedIdent:
		if len(t.Text) < 2 {
			return t.Text
		}
		inner := t.Text[1:]
		if closer := t.Text[len(t.Text)-1]; closer == t.Text[0] {
			inner = t.Text[1 : len(t.Text)-1]
		}
		quote := string(t.Text[0])
		return strings.ReplaceAll(inner, quote+quote, quote)
	case String:
		if len(t.Text) < 2 {
			return ""
		}
		inner := t.Text[1:]
		if strings.HasSuffix(t.Text, "'") {
			inner = t.Text[1 : len(t.Text)-1]
		}
		return strings.ReplaceAll(inner, "''", "'")
	default:
		return t.Text
	}
}

func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Is reports whether the token is an unquoted word equal to one of words,
// ignoring case.
func (t Token) Is(words ...string) bool {
	if t.Kind != Word {
		return false
	}
	for _, word := range words {
		if strings.EqualFold(t.Text, word) {
			return true
		}
	}
	return false
}

func (t Token) IsSymbol(symbol string) bool {
	return t.Kind == Symbol && t.Text == symbol
}

// Identifier reports whether the token names a relation, column or alias.
func (t Token) Identifier() bool {
	return t.Kind == QuotedIdent || (t.Kind == Word && !IsKeyword(t.Text))
}

func (t Token) End() int {
	return t.Pos + len(t.Text)
}

var multiCharSymbols = []string{"<=", ">=", "<>", "!=", "||", "::", "->", "=>", "**"}

// Tokenize splits src into tokens. It never fails: an unterminated quote or
// comment extends to the end of the input.
func Tokenize(src string) []Token {
	tokens := make([]Token, 0, len(src)/3)
	i := 0
	for i < len(src) {
		start := i
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !unicode.IsSpace(r) {
					break
				}
				i += size
			}
			tokens = append(tokens, Token{Kind: Space, Text: src[start:i], Pos: start})
		case strings.HasPrefix(src[i:], "--"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end
			}
			tokens = append(tokens, Token{Kind: Comment, Text: src[start:i], Pos: start})
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += end + 4
			}
			tokens = append(tokens, Token{Kind: Comment, Text: src[start:i], Pos: start})
		case r == '\'':
			i = scanQuoted(src, i, '\'')
			tokens = append(tokens, Token{Kind: String, Text: src[start:i], Pos: start})
		case r == '"' || r == '`':
			i = scanQuoted(src, i, byte(r))
			tokens = append(tokens, Token{Kind: QuotedIdent, Text: src[start:i], Pos: start})
		case r == ';':
			i++
			tokens = append(tokens, Token{Kind: Semicolon, Text: ";", Pos: start})
		case isDigit(r) || (r == '.' && i+1 < len(src) && isDigit(rune(src[i+1]))):
			i = scanNumber(src, i)
			tokens = append(tokens, Token{Kind: Number, Text: src[start:i], Pos: start})
		case isWordStart(r):
			i += size
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isWordPart(r) {
					break
				}
				i += size
			}
			tokens = append(tokens, Token{Kind: Word, Text: src[start:i], Pos: start})
		default:
			text := src[i : i+size]
			for _, symbol := range multiCharSymbols {
				if strings.HasPrefix(src[i:], symbol) {
					text = symbol
					break
				}
			}
			i += len(text)
			tokens = append(tokens, Token{Kind: Symbol, Text: text, Pos: start})
		}
	}
	return tokens
}

// Significant drops whitespace and comments.
func Significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Kind == Space || token.Kind == Comment {
			continue
		}
		out = append(out, token)
	}
	return out
}

// StripComments replaces every comment in src with a single space.
func StripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for _, token := range Tokenize(src) {
		if token.Kind == Comment {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(token.Text)
	}
	return b.String()
}

// Split returns the statements of src separated by semicolons outside of
// quotes and comments. Empty statements are dropped.
func Split(src string) []string {
	statements := make([]string, 0, 1)
	start := 0
	for _, token := range Tokenize(src) {
		if token.Kind != Semicolon {
			continue
		}
		if statement := strings.TrimSpace(src[start:token.Pos]); hasContent(statement) {
			statements = append(statements, statement)
		}
		start = token.End()
	}
	if statement := strings.TrimSpace(src[start:]); hasContent(statement) {
		statements = append(statements, statement)
	}
	return statements
}

func hasContent(statement string) bool {
	return len(Significant(Tokenize(statement))) > 0
}

// QuoteIdent renders name as a double-quoted identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString renders value as a single-quoted literal.
func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func scanQuoted(src string, i int, quote byte) int {
	i++
	for i < len(src) {
		if src[i] == quote {
			if i+1 < len(src) && src[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(src)
}

func scanNumber(src string, i int) int {
	seenDot := false
	seenExp := false
	for i < len(src) {
		c := src[i]
		switch {
		case c >= '0' && c <= '9':
			i++
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			i++
		case (c == 'e' || c == 'E') && !seenExp && i+1 < len(src):
			next := src[i+1]
			if next == '+' || next == '-' {
				if i+2 >= len(src) || src[i+2] < '0' || src[i+2] > '9' {
					return i
				}
				i++
			} else if next < '0' || next > '9' {
				return i
			}
			seenExp = true
			i++
		default:
			return i
		}
	}
	return i
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

package asm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type TokenKind int

const (
	TOK_IDENT TokenKind = iota
	TOK_DIRECTIVE
	TOK_REGISTER
	TOK_MACRO_PARAM // %name inside a macro body
	TOK_INT
	TOK_FLOAT
	TOK_STRING
	TOK_CHAR
	TOK_COLON
	TOK_COMMA
	TOK_LPAREN
	TOK_RPAREN
	TOK_HI // %hi(label)
	TOK_LO // %lo(label)
)

func (k TokenKind) String() string {
	switch k {
	case TOK_IDENT:
		return "identifier"
	case TOK_DIRECTIVE:
		return "directive"
	case TOK_REGISTER:
		return "register"
	case TOK_MACRO_PARAM:
		return "macro parameter"
	case TOK_INT:
		return "integer"
	case TOK_FLOAT:
		return "float"
	case TOK_STRING:
		return "string"
	case TOK_CHAR:
		return "character"
	case TOK_COLON:
		return "':'"
	case TOK_COMMA:
		return "','"
	case TOK_LPAREN:
		return "'('"
	case TOK_RPAREN:
		return "')'"
	case TOK_HI:
		return "%hi"
	case TOK_LO:
		return "%lo"
	}
	return "token"
}

// Token is one lexical element of a source line. Text keeps the original
// spelling so macro bodies can be re-rendered for expansion.
type Token struct {
	Kind TokenKind
	Text string
	Col  int // 1-based column

	Int   int64
	Float float64
	Str   string // decoded string/char payload
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// tokenize splits one source line. Everything from an unquoted '#' to end
// of line is a comment.
func tokenize(line string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(line) {
		c := line[i]
		col := i + 1
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			return toks, nil
		case c == ':':
			toks = append(toks, Token{Kind: TOK_COLON, Text: ":", Col: col})
			i++
		case c == ',':
			toks = append(toks, Token{Kind: TOK_COMMA, Text: ",", Col: col})
			i++
		case c == '(':
			toks = append(toks, Token{Kind: TOK_LPAREN, Text: "(", Col: col})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: TOK_RPAREN, Text: ")", Col: col})
			i++
		case c == '"':
			str, n, err := scanString(line[i:])
			if err != nil {
				return nil, errors.Wrapf(err, "column %d", col)
			}
			toks = append(toks, Token{Kind: TOK_STRING, Text: line[i : i+n], Col: col, Str: str})
			i += n
		case c == '\'':
			str, n, err := scanChar(line[i:])
			if err != nil {
				return nil, errors.Wrapf(err, "column %d", col)
			}
			toks = append(toks, Token{
				Kind: TOK_CHAR, Text: line[i : i+n], Col: col,
				Str: str, Int: int64(str[0]),
			})
			i += n
		case c == '%':
			j := i + 1
			for j < len(line) && isIdentChar(line[j]) {
				j++
			}
			word := line[i:j]
			switch word {
			case "%hi":
				toks = append(toks, Token{Kind: TOK_HI, Text: word, Col: col})
			case "%lo":
				toks = append(toks, Token{Kind: TOK_LO, Text: word, Col: col})
			default:
				if j == i+1 {
					return nil, errors.Errorf("column %d: stray %%", col)
				}
				toks = append(toks, Token{Kind: TOK_MACRO_PARAM, Text: word, Col: col})
			}
			i = j
		case c == '$':
			j := i + 1
			for j < len(line) && isIdentChar(line[j]) {
				j++
			}
			if j == i+1 {
				return nil, errors.Errorf("column %d: stray $", col)
			}
			toks = append(toks, Token{Kind: TOK_REGISTER, Text: line[i:j], Col: col})
			i = j
		case isDigit(c) || (c == '-' || c == '+') && i+1 < len(line) && (isDigit(line[i+1]) || line[i+1] == '.'):
			tok, n, err := scanNumber(line[i:])
			if err != nil {
				return nil, errors.Wrapf(err, "column %d", col)
			}
			tok.Col = col
			toks = append(toks, tok)
			i += n
		case isIdentStart(c):
			j := i + 1
			for j < len(line) && isIdentChar(line[j]) {
				j++
			}
			word := line[i:j]
			kind := TOK_IDENT
			if word[0] == '.' {
				kind = TOK_DIRECTIVE
			}
			toks = append(toks, Token{Kind: kind, Text: word, Col: col})
			i = j
		default:
			return nil, errors.Errorf("column %d: unexpected character %q", col, c)
		}
	}
	return toks, nil
}

// scanNumber consumes an integer or float literal, returning the token and
// the number of bytes consumed.
func scanNumber(s string) (Token, int, error) {
	j := 0
	if s[j] == '-' || s[j] == '+' {
		j++
	}
	hex := strings.HasPrefix(s[j:], "0x") || strings.HasPrefix(s[j:], "0X")
	if hex {
		j += 2
	}
	float := false
	for j < len(s) {
		c := s[j]
		if isDigit(c) || hex && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			j++
		} else if !hex && (c == '.' || c == 'e' || c == 'E') {
			float = true
			j++
			if c == 'e' || c == 'E' {
				if j < len(s) && (s[j] == '-' || s[j] == '+') {
					j++
				}
			}
		} else {
			break
		}
	}
	text := s[:j]
	if float {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, 0, errors.Errorf("invalid float literal %q", text)
		}
		return Token{Kind: TOK_FLOAT, Text: text, Float: f}, j, nil
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		// unsigned spellings like 0xffffffff overflow ParseInt
		u, uerr := strconv.ParseUint(text, 0, 64)
		if uerr != nil {
			return Token{}, 0, errors.Errorf("invalid integer literal %q", text)
		}
		v = int64(u)
	}
	return Token{Kind: TOK_INT, Text: text, Int: v}, j, nil
}

func scanString(s string) (string, int, error) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, errors.New("unterminated escape in string literal")
			}
			dec, err := unescape(s[i+1])
			if err != nil {
				return "", 0, err
			}
			b.WriteByte(dec)
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("unterminated string literal")
}

func scanChar(s string) (string, int, error) {
	if len(s) >= 4 && s[1] == '\\' && s[3] == '\'' {
		dec, err := unescape(s[2])
		if err != nil {
			return "", 0, err
		}
		return string(dec), 4, nil
	}
	if len(s) >= 3 && s[2] == '\'' && s[1] != '\'' {
		return string(s[1]), 3, nil
	}
	return "", 0, errors.New("invalid character literal")
}

func unescape(c byte) (byte, error) {
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\':
		return '\\', nil
	case '\'':
		return '\'', nil
	case '"':
		return '"', nil
	}
	return 0, errors.Errorf("unknown escape \\%c", c)
}

// render reconstructs assembly text from tokens, used when a macro body or
// pseudo-instruction expansion is re-assembled.
func render(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 {
			switch t.Kind {
			case TOK_COLON, TOK_COMMA, TOK_RPAREN:
			case TOK_LPAREN:
			default:
				if toks[i-1].Kind != TOK_LPAREN {
					b.WriteByte(' ')
				}
			}
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

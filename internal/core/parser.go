package core

// parser.go tokenizes delimited text exported from spreadsheets.
//
// The scanner has two states. Outside quotes a delimiter ends a field, a line
// feed ends a row and a quote opens a quoted section. Inside quotes a doubled
// quote is a literal quote, a single quote closes the section, and everything
// else (delimiters and line feeds included) is literal. Carriage returns
// outside quotes are dropped. A final row without a line feed is still emitted.
//
// An unterminated quoted section is a ParseError: nothing from the input is
// returned, so a stray quote can never swallow the rest of a file into one cell.

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrUnterminatedQuote is wrapped by the ParseError returned when the input
// ends inside a quoted field.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// ErrInvalidDelimiter is returned for delimiters that collide with quoting
// or line structure.
var ErrInvalidDelimiter = errors.New("invalid delimiter")

const bom = '\uFEFF'

// ParseError reports structurally malformed input. It is fatal to the whole
// import attempt.
type ParseError struct {
	Line   int // 1-based line where the offending construct starts
	Column int // 1-based rune column
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid csv: line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseResult is the tokenized input: the first row as headers and every
// following row as data.
type ParseResult struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Parser tokenizes delimited text. The zero value splits on commas.
type Parser struct {
	Delimiter rune
}

// Parse reads all of r and tokenizes it with a comma delimiter.
func Parse(r io.Reader) (*ParseResult, error) {
	return Parser{}.Parse(r)
}

// ParseString tokenizes text with a comma delimiter.
func ParseString(text string) (*ParseResult, error) {
	return Parser{}.ParseString(text)
}

// Parse reads all of r and tokenizes it.
func (p Parser) Parse(r io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.ParseString(string(data))
}

// ParseString tokenizes text. Invalid UTF-8 bytes are read as U+FFFD.
func (p Parser) ParseString(text string) (*ParseResult, error) {
	delim := p.Delimiter
	if delim == 0 {
		delim = ','
	}
	if delim == '"' || delim == '\n' || delim == '\r' || delim == utf8.RuneError {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelimiter, delim)
	}

	var (
		records  [][]string
		row      []string
		field    strings.Builder
		inQuotes bool

		line, col           = 1, 0
		quoteLine, quoteCol int
	)

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		col++

		if inQuotes {
			switch {
			case r == '"' && i < len(text) && text[i] == '"':
				field.WriteByte('"')
				i++
				col++
			case r == '"':
				inQuotes = false
			default:
				field.WriteRune(r)
				if r == '\n' {
					line++
					col = 0
				}
			}
			continue
		}

		switch r {
		case '"':
			inQuotes = true
			quoteLine, quoteCol = line, col
		case delim:
			row = append(row, field.String())
			field.Reset()
		case '\n':
			row = append(row, field.String())
			field.Reset()
			records = append(records, row)
			row = nil
			line++
			col = 0
		case '\r':
		default:
			field.WriteRune(r)
		}
	}

	if inQuotes {
		return nil, &ParseError{Line: quoteLine, Column: quoteCol, Err: ErrUnterminatedQuote}
	}
	if field.Len() > 0 || len(row) > 0 {
		row = append(row, field.String())
		records = append(records, row)
	}

	result := &ParseResult{Headers: []string{}, Rows: [][]string{}}
	if len(records) == 0 {
		return result, nil
	}

	headers := records[0]
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, string(bom))
		}
		headers[i] = strings.TrimSpace(h)
	}
	result.Headers = headers
	result.Rows = records[1:]
	return result, nil
}

// DetectDelimiter picks the most frequent of comma, semicolon and tab on the
// first line outside quotes. Ties and lines without any candidate yield a comma.
func DetectDelimiter(text string) rune {
	counts := map[rune]int{}
	inQuotes := false
	for _, r := range text {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if r == '\n' {
			break
		}
		if r == ',' || r == ';' || r == '\t' {
			counts[r]++
		}
	}

	best := ','
	for _, candidate := range []rune{';', '\t'} {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}

package schema

import (
	"strconv"
	"strings"

	"github.com/fixtura/fixtura"
)

// DbType is the result of parsing a raw database column type string, such
// as "decimal(10,2) unsigned" or "enum('draft','published')". It is the
// dialect-level view of a column; mapping the base name to an OrmType is
// the type mapper's job.
type DbType struct {
	Name   string          // lower-cased base type name
	Length int             // parsed or derived length, 0 if none
	Values []string        // enum/set literals, in declaration order
	Attrs  map[string]bool // trailing boolean attributes, e.g. "unsigned"
}

// Unsigned reports whether the raw type carried the unsigned attribute.
func (t *DbType) Unsigned() bool {
	return t.Attrs["unsigned"]
}

// ParseDbType parses a raw column type string. The grammar is:
//
//	NAME            bare type, no length
//	NAME(N)         type with length N
//	NAME(N,M)       type with length N+1, reserving a sign/decimal digit
//	NAME(...) ATTR  trailing tokens are boolean attributes
//
// Special cases: "time" has a fixed length of 5 and "year" of 4. "enum"
// and "set" carry a comma-separated, quote-escaped literal list; their
// length is the length of the longest literal.
func ParseDbType(raw string) (*DbType, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fixtura.NewSchemaError("empty column type")
	}
	t := &DbType{Attrs: make(map[string]bool)}
	var inner, rest string
	if open := strings.IndexByte(s, '('); open != -1 {
		end := strings.LastIndexByte(s, ')')
		if end < open {
			return nil, fixtura.NewSchemaError("malformed column type %q", raw)
		}
		t.Name = strings.ToLower(strings.TrimSpace(s[:open]))
		inner = s[open+1 : end]
		rest = s[end+1:]
	} else {
		fields := strings.Fields(s)
		t.Name = strings.ToLower(fields[0])
		rest = strings.Join(fields[1:], " ")
	}
	if t.Name == "" {
		return nil, fixtura.NewSchemaError("malformed column type %q", raw)
	}
	for _, attr := range strings.Fields(rest) {
		t.Attrs[strings.ToLower(attr)] = true
	}
	switch t.Name {
	case "enum", "set":
		t.Values = parseValueList(inner)
		for _, v := range t.Values {
			if len(v) > t.Length {
				t.Length = len(v)
			}
		}
	case "time":
		t.Length = 5
	case "year":
		t.Length = 4
	default:
		if inner == "" {
			break
		}
		parts := strings.SplitN(inner, ",", 2)
		n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fixtura.NewSchemaError("invalid length in column type %q", raw)
		}
		t.Length = n
		if len(parts) == 2 {
			// One extra digit for the sign or the decimal point.
			t.Length = n + 1
		}
	}
	return t, nil
}

// parseValueList parses the literal list of an enum or set type. Literals
// are quoted with single or double quotes; a backslash escapes the next
// character and a doubled quote escapes the quote itself. Unquoted tokens
// are accepted verbatim.
func parseValueList(s string) []string {
	var values []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ',' || s[i] == ' ') {
			i++
		}
		if i >= len(s) {
			break
		}
		q := s[i]
		if q != '\'' && q != '"' {
			j := i
			for j < len(s) && s[j] != ',' {
				j++
			}
			values = append(values, strings.TrimSpace(s[i:j]))
			i = j
			continue
		}
		i++
		var b strings.Builder
	literal:
		for i < len(s) {
			switch c := s[i]; {
			case c == '\\' && i+1 < len(s):
				b.WriteByte(s[i+1])
				i += 2
			case c == q && i+1 < len(s) && s[i+1] == q:
				b.WriteByte(q)
				i += 2
			case c == q:
				i++
				break literal
			default:
				b.WriteByte(c)
				i++
			}
		}
		values = append(values, b.String())
	}
	return values
}

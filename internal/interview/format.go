package interview

import (
	"strings"
	"unicode"
)

// Semantic types a detector may attach to a field
const (
	TypeSSN     = "ssn"
	TypeEmail   = "email"
	TypePhone   = "phone"
	TypeDate    = "date"
	TypeName    = "name"
	TypeAddress = "address"
	TypeZip     = "zip"
)

// Format tidies a dictated or typed answer according to the field's semantic
// type. Values that do not match the expected shape are returned trimmed but
// otherwise untouched. Nothing in the store applies this automatically.
func Format(semanticType, value string) string {
	value = strings.TrimSpace(value)

	switch strings.ToLower(semanticType) {
	case TypeSSN:
		if d := digits(value); len(d) == 9 {
			return d[:3] + "-" + d[3:5] + "-" + d[5:]
		}
	case TypePhone:
		d := digits(value)
		if len(d) == 11 && d[0] == '1' {
			d = d[1:]
		}
		if len(d) == 10 {
			return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
		}
	case TypeZip:
		switch d := digits(value); len(d) {
		case 5:
			return d
		case 9:
			return d[:5] + "-" + d[5:]
		}
	case TypeEmail:
		return formatEmail(value)
	}
	return value
}

// formatEmail undoes the usual dictation of an address
func formatEmail(value string) string {
	words := strings.Fields(strings.ToLower(value))
	for i, w := range words {
		switch w {
		case "at":
			words[i] = "@"
		case "dot":
			words[i] = "."
		case "underscore":
			words[i] = "_"
		case "dash", "hyphen":
			words[i] = "-"
		}
	}
	return strings.Join(words, "")
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

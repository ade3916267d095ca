package adapter

import "bytes"

const maxTypeLen = 64

var typeName = []byte("type")

// PeekType returns the string value of the top-level "type" key of a JSON
// line without decoding it, or "" when there is none. Keys inside nested
// objects or arrays are ignored, as is "type" used as a value.
func PeekType(line []byte) string {
	depth := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case '"':
			start := i + 1
			i = closingQuote(line, start)
			if depth != 1 || i >= len(line) || !bytes.Equal(line[start:i], typeName) {
				continue
			}
			j := skipBlank(line, i+1)
			if j >= len(line) || line[j] != ':' {
				continue
			}
			return stringAt(line, skipBlank(line, j+1))
		}
	}
	return ""
}

// stringAt returns the short JSON string starting at line[i], or "" when
// something else is there.
func stringAt(line []byte, i int) string {
	if i >= len(line) || line[i] != '"' {
		return ""
	}
	end := closingQuote(line, i+1)
	if end >= len(line) || end-(i+1) > maxTypeLen {
		return ""
	}
	return string(line[i+1 : end])
}

// closingQuote returns the index of the quote ending the string whose body
// starts at i, or len(line) when it is unterminated.
func closingQuote(line []byte, i int) int {
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i
		default:
			i++
		}
	}
	return len(line)
}

func skipBlank(line []byte, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return i
}

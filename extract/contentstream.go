package extract

import (
	"strconv"
	"strings"
)

// textFromContentStream scans a decoded PDF content stream for text-showing
// operators (Tj, TJ, ' and ") and concatenates their string operands.
// Positioning operators Td, TD and T* are treated as line breaks.
func textFromContentStream(stream []byte) string {
	var out strings.Builder
	var pending []string

	i := 0
	for i < len(stream) {
		c := stream[i]
		switch {
		case c == '(':
			s, next := readLiteralString(stream, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			s, next := readHexString(stream, i)
			pending = append(pending, s)
			i = next
		case isOperatorStart(c):
			op, next := readToken(stream, i)
			switch op {
			case "Tj", "TJ", "'", "\"":
				for _, s := range pending {
					out.WriteString(s)
				}
				if len(pending) > 0 {
					out.WriteByte(' ')
				}
				pending = pending[:0]
			case "Td", "TD", "T*", "ET":
				pending = pending[:0]
				trimRightSpace(&out)
				out.WriteByte('\n')
			}
			i = next
		default:
			// Numbers, names, array brackets and whitespace carry no text.
			i++
		}
	}

	return out.String()
}

// readLiteralString reads a ( ... ) string starting at stream[start] == '('.
// Handles nested parentheses, escape sequences and octal codes.
func readLiteralString(stream []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				return sb.String(), i + 1
			}
			esc := stream[i+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r', 't', 'b', 'f':
				sb.WriteByte(' ')
			case '(', ')', '\\':
				sb.WriteByte(esc)
			default:
				if esc >= '0' && esc <= '7' {
					// Octal char code, up to three digits
					j := i + 1
					code := 0
					for j < len(stream) && j <= i+3 && stream[j] >= '0' && stream[j] <= '7' {
						code = code*8 + int(stream[j]-'0')
						j++
					}
					if code >= 32 && code < 127 {
						sb.WriteByte(byte(code))
					}
					i = j
					continue
				}
			}
			i += 2
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// readHexString reads a < ... > hex string starting at stream[start] == '<'.
// Only single-byte codes in the printable ASCII range are kept.
func readHexString(stream []byte, start int) (string, int) {
	end := start + 1
	for end < len(stream) && stream[end] != '>' {
		end++
	}
	hex := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
			return r
		}
		return -1
	}, string(stream[start+1:end]))

	var sb strings.Builder
	for i := 0; i+1 < len(hex); i += 2 {
		v, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			continue
		}
		if v >= 32 && v < 127 {
			sb.WriteByte(byte(v))
		}
	}
	if end < len(stream) {
		end++
	}
	return sb.String(), end
}

func isOperatorStart(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '\'' || c == '"' || c == '*'
}

func readToken(stream []byte, start int) (string, int) {
	end := start
	for end < len(stream) && isOperatorStart(stream[end]) {
		end++
	}
	// Lone quote operators
	if end == start {
		end = start + 1
	}
	return string(stream[start:end]), end
}

// trimRightSpace drops a single trailing space left by the last flush.
func trimRightSpace(sb *strings.Builder) {
	s := sb.String()
	if strings.HasSuffix(s, " ") {
		sb.Reset()
		sb.WriteString(s[:len(s)-1])
	}
}

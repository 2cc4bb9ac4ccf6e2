package lang

import "strings"

// closing maps each bracket to its partner.
//
//nolint:gochecknoglobals
var closing = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// matchClose returns the index in s of the bracket closing the one at s[open],
// skipping nested brackets and quoted strings. It returns -1 if the bracket
// is never closed.
func matchClose(s string, open int) int {
	if open >= len(s) {
		return -1
	}

	if _, ok := closing[s[open]]; !ok {
		return -1
	}

	stack := []byte{closing[s[open]]}

	for i := open + 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			end := skipQuoted(s, i)
			if end < 0 {
				return -1
			}

			i = end

		case '(', '[', '{':
			stack = append(stack, closing[c])

		case ')', ']', '}':
			if c != stack[len(stack)-1] {
				return -1
			}

			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}

	return -1
}

// skipQuoted returns the index of the quote closing the string that starts at
// s[open], honoring backslash escapes, or -1.
func skipQuoted(s string, open int) int {
	quote := s[open]

	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}

	return -1
}

// SplitArgs splits a comma-separated argument or parameter list at the top
// level, ignoring commas nested in brackets or quoted strings. Each element is
// trimmed of surrounding space; an empty or blank list yields nil.
func SplitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var (
		args  []string
		depth int
		start int
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'', '`':
			if end := skipQuoted(s, i); end > 0 {
				i = end
			}

		case '(', '[', '{':
			depth++

		case ')', ']', '}':
			depth--

		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}

	return append(args, strings.TrimSpace(s[start:]))
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c == '-' || (c >= '0' && c <= '9')
}

// readName returns the length of the name at the start of s. A name begins
// with a letter or underscore and continues with letters, digits, '_', '-',
// and any byte in extra.
func readName(s, extra string) int {
	if s == "" || !isNameStart(s[0]) {
		return 0
	}

	n := 1
	for n < len(s) && (isNameChar(s[n]) || strings.IndexByte(extra, s[n]) >= 0) {
		n++
	}

	return n
}

// leadingWidth returns the number of leading space and tab bytes in s.
func leadingWidth(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

// dedent removes the common leading whitespace of the non-blank lines.
func dedent(lines []string) []string {
	width := -1

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if w := leadingWidth(line); width < 0 || w < width {
			width = w
		}
	}

	out := make([]string, len(lines))

	for i, line := range lines {
		switch {
		case width <= 0:
			out[i] = line
		case leadingWidth(line) >= width:
			out[i] = line[width:]
		default:
			out[i] = strings.TrimLeft(line, " \t")
		}
	}

	return out
}

// Dedent removes the common leading whitespace of the non-blank lines of s.
func Dedent(s string) string {
	return strings.Join(dedent(strings.Split(s, "\n")), "\n")
}

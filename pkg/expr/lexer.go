package expr

import (
	"strconv"
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
)

const (
	sigFunc = "__sig"
	actFunc = "__act"
)

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// scanString returns the index just past the string literal starting at i.
func scanString(src string, i int) (int, bool) {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			return j + 1, true
		}
	}
	return len(src), false
}

// splitStatements splits src on top-level semicolons.
func splitStatements(src string) ([]string, error) {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"', '`':
			end, ok := scanString(src, i)
			if !ok {
				return nil, errors.New("E001").WithDetail("unterminated string").WithSource(src)
			}
			i = end - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				out = append(out, src[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, src[start:])

	stmts := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

// readPath reads a dot path starting at i.
func readPath(src string, i int) (string, int) {
	j := i
	for j < len(src) {
		if !isIdent(src[j]) {
			break
		}
		j++
		for j < len(src) && isIdent(src[j]) {
			j++
		}
		if j+1 < len(src) && src[j] == '.' && isIdentStart(src[j+1]) {
			j++
			continue
		}
		break
	}
	return src[i:j], j
}

// rewrite turns $path reads and @action( calls into plain function calls,
// and maps the strict equality operators onto == and !=.
func rewrite(src string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end, ok := scanString(src, i)
			if !ok {
				return "", errors.New("E001").WithDetail("unterminated string").WithSource(src)
			}
			b.WriteString(src[i:end])
			i = end - 1

		case c == '$' && i+1 < len(src) && isIdentStart(src[i+1]):
			path, end := readPath(src, i+1)
			b.WriteString(sigFunc + "(" + strconv.Quote(path) + ")")
			i = end - 1

		case c == '@' && i+1 < len(src) && isIdentStart(src[i+1]):
			name, end := readPath(src, i+1)
			j := end
			for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
				j++
			}
			if j >= len(src) || src[j] != '(' {
				return "", errors.New("E001").
					WithDetailf("action @%s must be called", name).
					WithSource(src)
			}
			k := j + 1
			for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
				k++
			}
			b.WriteString(actFunc + "(" + strconv.Quote(name))
			if k < len(src) && src[k] == ')' {
				b.WriteString(")")
				i = k
			} else {
				b.WriteString(", ")
				i = j
			}

		case strings.HasPrefix(src[i:], "==="):
			b.WriteString("==")
			i += 2

		case strings.HasPrefix(src[i:], "!=="):
			b.WriteString("!=")
			i += 2

		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// parseAssignment recognizes "$path op rhs" statements.
func parseAssignment(stmt string) (path, op, rhs string, ok bool) {
	if len(stmt) < 2 || stmt[0] != '$' || !isIdentStart(stmt[1]) {
		return "", "", "", false
	}
	path, i := readPath(stmt, 1)
	rest := strings.TrimLeft(stmt[i:], " \t")

	for _, candidate := range []string{"++", "--", "+=", "-=", "*=", "/="} {
		if strings.HasPrefix(rest, candidate) {
			rhs = strings.TrimSpace(rest[len(candidate):])
			if candidate == "++" || candidate == "--" {
				if rhs != "" {
					return "", "", "", false
				}
			}
			return path, candidate, rhs, true
		}
	}
	if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
		return path, "=", strings.TrimSpace(rest[1:]), true
	}
	return "", "", "", false
}

package sandbox

import (
	"fmt"
	"go/parser"
	"regexp"
	"strings"
)

// prepared is the result of preprocessing one snippet: hoisted imports,
// requested module bundles, and the wrapped source ready for evaluation.
type prepared struct {
	imports []string
	modules []string

	// wrapped carries the trailing-expression rewrite when one applied;
	// plain is the unrewritten fallback. transformed tells evalBounded
	// whether a compile failure of wrapped warrants a retry with plain.
	wrapped     string
	plain       string
	transformed bool
}

var useRe = regexp.MustCompile(`sandbox\.Use\(\s*"([^"]+)"\s*\)`)

// prepare hoists import declarations out of the snippet (they are only legal
// at interpreter top level), collects sandbox.Use module requests, and wraps
// the remaining body as an immediately-invoked function so its top-level
// declarations stay call-scoped.
func prepare(code string) (*prepared, error) {
	p := &prepared{}

	seen := make(map[string]bool)
	for _, m := range useRe.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			p.modules = append(p.modules, m[1])
		}
	}

	var body []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case inBlock:
			if strings.HasPrefix(t, ")") {
				inBlock = false
				continue
			}
			if t != "" {
				p.imports = append(p.imports, "import "+t)
			}
		case strings.HasPrefix(t, "import ("):
			inBlock = true
		case strings.HasPrefix(t, "import "):
			p.imports = append(p.imports, t)
		default:
			body = append(body, line)
		}
	}

	src := strings.TrimSpace(strings.Join(body, "\n"))
	if src == "" {
		return nil, fmt.Errorf("empty snippet")
	}

	p.plain = wrapBody(src)
	if rewritten, ok := rewriteTrailing(src); ok {
		p.wrapped = wrapBody(rewritten)
		p.transformed = true
	} else {
		p.wrapped = p.plain
	}
	return p, nil
}

// rewriteTrailing turns a trailing expression into a return statement so
// expression-like snippets ("1 + 1") yield their value without an explicit
// return. Purely line-based, mirroring how the snippet contract is defined;
// a bad guess is corrected by the plain-form retry.
func rewriteTrailing(body string) (string, bool) {
	if _, err := parser.ParseExpr(body); err == nil {
		return "return " + body, true
	}

	lines := strings.Split(body, "\n")
	idx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	last := strings.TrimSpace(lines[idx])
	if strings.HasPrefix(last, "return") {
		return "", false
	}
	if _, err := parser.ParseExpr(last); err != nil {
		return "", false
	}
	lines[idx] = "return " + last
	return strings.Join(lines, "\n"), true
}

// wrapBody produces the immediately-invoked function form. The call result
// is captured into a binding and read back as the program's final expression:
// yaegi evaluates a bare IIFE statement to an opaque pointer, so the value is
// only observable through the assign-then-read shape. "return nil" padding is
// appended only when the body does not already end in a return, keeping the
// wrapper compilable without unreachable code.
func wrapBody(body string) string {
	if !endsInReturn(body) {
		body += "\nreturn nil"
	}
	return fmt.Sprintf("__res := func() (_ interface{}) {\n%s\n}()\n__res", body)
}

// endsInReturn reports whether the last non-empty line of body is a return
// statement.
func endsInReturn(body string) bool {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		t := strings.TrimSpace(lines[i])
		if t == "" {
			continue
		}
		return t == "return" || strings.HasPrefix(t, "return ")
	}
	return false
}

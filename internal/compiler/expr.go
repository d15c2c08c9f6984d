package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsparser "github.com/dop251/goja/parser"

	sfcerrors "github.com/conneroisu/sfclive/internal/errors"
)

// checkExpression validates a JavaScript expression and records a
// diagnostic naming source when it is invalid.
func checkExpression(exp, source string, diags *sfcerrors.Diagnostics) bool {
	if strings.TrimSpace(exp) == "" {
		diags.Add("empty expression in %s", source)
		return false
	}
	if err := balanced(exp); err != nil {
		diags.Add("invalid expression %s: %v", source, err)
		return false
	}
	if _, err := jsparser.ParseFile(nil, "", "("+exp+"\n)", 0); err != nil {
		diags.Add("invalid expression %s: %v", source, err)
		return false
	}
	return true
}

// checkStatements validates an inline handler body.
func checkStatements(stmts, source string, diags *sfcerrors.Diagnostics) bool {
	if err := balanced(stmts); err != nil {
		diags.Add("invalid handler %s: %v", source, err)
		return false
	}
	if _, err := jsparser.ParseFile(nil, "", "(function($event){"+stmts+"\n})", 0); err != nil {
		diags.Add("invalid handler %s: %v", source, err)
		return false
	}
	return true
}

// checkAssignable validates that exp can be assigned to.
func checkAssignable(exp, source string, diags *sfcerrors.Diagnostics) bool {
	if !checkExpression(exp, source, diags) {
		return false
	}
	if _, err := jsparser.ParseFile(nil, "", "(function($event){"+exp+"=$event\n})", 0); err != nil {
		diags.Add("%s is not assignable: %v", source, err)
		return false
	}
	return true
}

// validateParams checks a v-for alias list such as "(item, index)".
func validateParams(params string) error {
	if err := balanced(params); err != nil {
		return err
	}
	_, err := jsparser.ParseFile(nil, "", "(function("+params+"){})", 0)
	return err
}

// balanced rejects code whose brackets close more than they open, which
// would let an expression escape the generated code around it.
func balanced(code string) error {
	var stack []byte
	var quote byte
	for i := 0; i < len(code); i++ {
		c := code[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			open := map[byte]byte{')': '(', ']': '[', '}': '{'}[c]
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return fmt.Errorf("unexpected %q at offset %d", c, i)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if quote != 0 {
		return fmt.Errorf("unterminated string")
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func unquote(code string) string {
	var s string
	if err := json.Unmarshal([]byte(code), &s); err != nil {
		return code
	}
	return s
}

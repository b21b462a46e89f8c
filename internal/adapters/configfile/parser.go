// Package configfile parses the hierarchical, Apache-style block
// configuration format described in spec.md §4.1 and §6 into a tree
// of configview.Scope values. This grammar is bespoke: no library in
// the retrieval pack parses nested <Block param>...</Block> syntax
// with scope inheritance (see DESIGN.md for why this one piece is
// hand-rolled rather than grounded on a third-party parser).
package configfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/snapback/snapback2/internal/usecase/configview"
)

// Parse reads r and returns the root (global) scope.
func Parse(r io.Reader) (*configview.Scope, error) {
	root := configview.NewScope("global", "", nil)
	stack := []*configview.Scope{root}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "</") {
			name, err := parseCloseTag(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if len(stack) < 2 {
				return nil, fmt.Errorf("line %d: unexpected close tag %q", lineNo, line)
			}
			top := stack[len(stack)-1]
			if !strings.EqualFold(top.Name, name) {
				return nil, fmt.Errorf("line %d: close tag %q does not match open block %q", lineNo, line, top.Name)
			}
			stack = stack[:len(stack)-1]
			continue
		}

		if strings.HasPrefix(line, "<") {
			name, param, err := parseOpenTag(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			parent := stack[len(stack)-1]
			child := configview.NewScope(name, param, parent)
			stack = append(stack, child)
			continue
		}

		key, value, err := parseDirective(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		applyDirective(stack[len(stack)-1], key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed block %q", stack[len(stack)-1].Name)
	}
	return root, nil
}

// multiValuedKeys accumulate across occurrences within one scope (§4.1).
var multiValuedKeys = map[string]bool{
	"directory":       true,
	"exclude":         true,
	"destinationlist": true,
}

func applyDirective(scope *configview.Scope, key, value string) {
	if multiValuedKeys[strings.ToLower(key)] {
		scope.AppendList(key, value)
		return
	}
	scope.SetScalar(key, value)
}

func parseOpenTag(line string) (name, param string, err error) {
	if !strings.HasSuffix(line, ">") {
		return "", "", fmt.Errorf("malformed block open %q: missing closing '>'", line)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "<"), ">")
	inner = strings.TrimSpace(inner)
	fields := strings.SplitN(inner, " ", 2)
	name = strings.TrimSpace(fields[0])
	if name == "" {
		return "", "", fmt.Errorf("malformed block open %q: empty block name", line)
	}
	if len(fields) == 2 {
		param = strings.Trim(strings.TrimSpace(fields[1]), `"`)
	}
	return name, param, nil
}

func parseCloseTag(line string) (string, error) {
	if !strings.HasSuffix(line, ">") {
		return "", fmt.Errorf("malformed block close %q: missing closing '>'", line)
	}
	name := strings.TrimSuffix(strings.TrimPrefix(line, "</"), ">")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("malformed block close %q: empty block name", line)
	}
	return name, nil
}

func parseDirective(line string) (key, value string, err error) {
	fields := strings.SplitN(line, " ", 2)
	key = strings.TrimSpace(fields[0])
	if key == "" {
		return "", "", fmt.Errorf("malformed directive %q", line)
	}
	if len(fields) == 2 {
		value = strings.TrimSpace(fields[1])
		value = strings.Trim(value, `"`)
	}
	return key, value, nil
}

// Package blocks parses block-delimited page content into a tree.
//
// Content stores blocks as HTML comment delimiters:
//
//	<!-- wp:swishfolio/contact-form {"formId":"f1"} -->
//	  ...inner markup and nested blocks...
//	<!-- /wp:swishfolio/contact-form -->
//
// or self-closing as <!-- wp:name {"attr":1} /-->. Names without a
// namespace belong to "core". Markup between delimiters is not retained.
package blocks

import (
	"encoding/json"
	"strings"
)

// Block is one parsed block with its attributes and nested blocks.
type Block struct {
	Name        string
	Attrs       map[string]any
	InnerBlocks []Block
}

type delimiterKind int

const (
	opener delimiterKind = iota
	closer
	void
)

type delimiter struct {
	kind  delimiterKind
	name  string
	attrs map[string]any
	end   int
}

// Parse returns the top-level blocks of content. Unclosed blocks are closed
// at end of input; stray closers are ignored.
func Parse(content string) []Block {
	var (
		root  []Block
		stack []*Block
	)

	appendBlock := func(b Block) {
		if len(stack) == 0 {
			root = append(root, b)
			return
		}
		parent := stack[len(stack)-1]
		parent.InnerBlocks = append(parent.InnerBlocks, b)
	}

	pos := 0
	for pos < len(content) {
		idx := strings.Index(content[pos:], "<!--")
		if idx < 0 {
			break
		}
		start := pos + idx
		d, ok := parseDelimiter(content, start)
		if !ok {
			pos = start + len("<!--")
			continue
		}
		pos = d.end

		switch d.kind {
		case void:
			appendBlock(Block{Name: d.name, Attrs: d.attrs})
		case opener:
			stack = append(stack, &Block{Name: d.name, Attrs: d.attrs})
		case closer:
			match := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Name == d.name {
					match = i
					break
				}
			}
			if match < 0 {
				continue
			}
			for len(stack) > match {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				appendBlock(*top)
			}
		}
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		appendBlock(*top)
	}
	return root
}

func parseDelimiter(s string, start int) (delimiter, bool) {
	var d delimiter
	i := start + len("<!--")

	ws := skipSpace(s, i)
	if ws == i {
		return d, false
	}
	i = ws

	d.kind = opener
	if i < len(s) && s[i] == '/' {
		d.kind = closer
		i++
	}
	if !strings.HasPrefix(s[i:], "wp:") {
		return d, false
	}
	i += len("wp:")

	name, next, ok := readName(s, i)
	if !ok {
		return d, false
	}
	d.name = name
	i = next

	ws = skipSpace(s, i)
	if ws == i {
		return d, false
	}
	i = ws

	if d.kind != closer && i < len(s) && s[i] == '{' {
		attrs, next, ok := readAttrs(s, i)
		if !ok {
			return d, false
		}
		d.attrs = attrs
		i = next
	}

	if strings.HasPrefix(s[i:], "/-->") {
		if d.kind == closer {
			return d, false
		}
		d.kind = void
		d.end = i + len("/-->")
		return d, true
	}
	if strings.HasPrefix(s[i:], "-->") {
		d.end = i + len("-->")
		return d, true
	}
	return d, false
}

// readAttrs finds the first "}" followed by whitespace and a comment end,
// decodes the object and returns the position after the whitespace.
func readAttrs(s string, i int) (map[string]any, int, bool) {
	for j := i; j < len(s); j++ {
		if s[j] != '}' {
			continue
		}
		k := skipSpace(s, j+1)
		if k == j+1 {
			continue
		}
		if !strings.HasPrefix(s[k:], "-->") && !strings.HasPrefix(s[k:], "/-->") {
			continue
		}
		var attrs map[string]any
		if err := json.Unmarshal([]byte(s[i:j+1]), &attrs); err != nil {
			return nil, 0, false
		}
		return attrs, k, true
	}
	return nil, 0, false
}

func readName(s string, i int) (string, int, bool) {
	first, next, ok := readSegment(s, i)
	if !ok {
		return "", 0, false
	}
	if next < len(s) && s[next] == '/' {
		second, after, ok := readSegment(s, next+1)
		if !ok {
			return "", 0, false
		}
		return first + "/" + second, after, true
	}
	return "core/" + first, next, true
}

func readSegment(s string, i int) (string, int, bool) {
	if i >= len(s) || s[i] < 'a' || s[i] > 'z' {
		return "", 0, false
	}
	j := i + 1
	for j < len(s) {
		c := s[j]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			j++
			continue
		}
		break
	}
	return s[i:j], j, true
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

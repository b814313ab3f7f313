package actions

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const messageHeading = "Message"

var markdown = goldmark.New()

// Summary is the parsed header and message of a stored record.
type Summary struct {
	File    string            `json:"file"`
	Meta    map[string]string `json:"meta"`
	Message string            `json:"message"`
}

// Status returns the record's status field, e.g. "needs_action".
func (s Summary) Status() string {
	return s.Meta["status"]
}

// List parses every record in the sink directory, oldest file name first.
func (s *Sink) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read action directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		summary := Parse(data)
		summary.File = name
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Parse reads the front matter and the text under the "Message" heading.
func Parse(data []byte) Summary {
	meta, body := splitFrontMatter(data)
	return Summary{Meta: meta, Message: sectionText(body, messageHeading)}
}

// splitFrontMatter separates the leading "---" block. Values are taken
// verbatim after the first ": ".
func splitFrontMatter(data []byte) (map[string]string, []byte) {
	meta := map[string]string{}
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return meta, data
	}
	rest := data[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		return meta, data
	}
	for _, line := range strings.Split(string(rest[:end]), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = value
	}
	return meta, rest[end+len("\n---\n"):]
}

// sectionText returns the raw lines of the blocks between the level-2
// heading named title and the next heading or thematic break.
func sectionText(src []byte, title string) string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var parts []string
	inSection := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if inSection {
				return strings.Join(parts, "\n")
			}
			inSection = node.Level == 2 && headingText(node, src) == title
			continue
		case *ast.ThematicBreak:
			if inSection {
				return strings.Join(parts, "\n")
			}
			continue
		}
		if !inSection {
			continue
		}
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		parts = append(parts, strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(parts, "\n")
}

func headingText(h *ast.Heading, src []byte) string {
	var buf bytes.Buffer
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimSpace(buf.String())
}

package note

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the flexible YAML front-matter map.
type Metadata map[string]interface{}

// Document is a markdown note split into front matter and body.
// The engine never alters the on-disk representation: notes remain plain
// markdown with an optional leading YAML block delimited by "---".
type Document struct {
	Meta Metadata
	Body string
}

// ParseDocument splits raw markdown into front matter and body.
// Content without a leading "---" fence is treated as pure body.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{Meta: make(Metadata)}

	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		doc.Body = string(data)
		return doc, nil
	}

	rest := data[3:]
	parts := bytes.SplitN(rest, []byte("\n---"), 2)
	if len(parts) == 1 {
		// Opening fence without a closing one. Treat the whole file as
		// body rather than failing the note load.
		doc.Body = string(data)
		return doc, nil
	}

	if err := yaml.Unmarshal(parts[0], &doc.Meta); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}

	body := strings.TrimPrefix(string(parts[1]), "\n")
	doc.Body = strings.TrimPrefix(body, "\r\n")
	return doc, nil
}

// Encode serializes the document back to markdown with front matter.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer

	if len(d.Meta) > 0 {
		buf.WriteString("---\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.Meta); err != nil {
			return nil, fmt.Errorf("encode front matter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		buf.WriteString("---\n")
	}

	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}

// TitleFromContent derives a display title for a note: front-matter "title"
// first, then the first markdown heading, then the filename stem.
func TitleFromContent(path string, content string) string {
	if doc, err := ParseDocument([]byte(content)); err == nil {
		if t, ok := doc.Meta["title"].(string); ok && t != "" {
			return t
		}
		for _, line := range strings.Split(doc.Body, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "# ") {
				return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			}
		}
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if title == "." {
		return ""
	}
	return title
}

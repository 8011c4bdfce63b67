package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose text never reaches the rendered page.
var hiddenText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Parse reads an HTML document and returns its element tree as a snapshot.
// The <html> element is the root; node ids are assigned in document order
// starting at 1, so re-parsing identical markup yields identical ids.
func Parse(r io.Reader, pageID string, version uint64) (*Snapshot, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	b := NewBuilder(pageID, version)
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			addElement(b, NoNode, c)
		}
	}
	return b.Build()
}

// ParseString is Parse over a string.
func ParseString(markup, pageID string, version uint64) (*Snapshot, error) {
	return Parse(strings.NewReader(markup), pageID, version)
}

func addElement(b *Builder, parent NodeID, n *html.Node) {
	var attrs map[string]string
	if len(n.Attr) > 0 {
		attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + a.Key
			}
			attrs[key] = a.Val
		}
	}
	id := b.Add(parent, n.Data, attrs, "")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			addElement(b, id, c)
		case html.TextNode:
			if !hiddenText[n.DataAtom] {
				b.AppendText(id, c.Data)
			}
		}
	}
}

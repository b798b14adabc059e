package headless

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document summarizes a parsed page.
type Document struct {
	Title string
	// SubResources lists the URLs of images, styles, scripts and frames the
	// page references. They are never fetched.
	SubResources []string
}

// parseDocument reads the whole document. Returning means the document has
// been parsed, which is the point a page becomes ready.
func parseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	walk(root, doc)
	return doc, nil
}

func walk(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if doc.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				doc.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case atom.Img, atom.Script, atom.Iframe, atom.Video, atom.Audio, atom.Source, atom.Embed:
			if src := attr(n, "src"); src != "" {
				doc.SubResources = append(doc.SubResources, src)
			}
		case atom.Link:
			if href := attr(n, "href"); href != "" && loadsResource(attr(n, "rel")) {
				doc.SubResources = append(doc.SubResources, href)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, doc)
	}
}

func loadsResource(rel string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		switch r {
		case "stylesheet", "icon", "preload", "modulepreload", "manifest":
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

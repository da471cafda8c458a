package chunker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element is the minimal view of a parsed markup node the chunker needs:
// flattened text, original markup, and direct children filtered by tag. It
// keeps the walking logic independent of the underlying DOM library.
type Element interface {
	// Text returns the element's flattened text: all text content,
	// whitespace-collapsed, space-joined and trimmed.
	Text() string
	// Markup returns the element's outer HTML.
	Markup() (string, error)
	// Children returns the element's direct children matching the selector.
	Children(selector string) []Element
}

// Document is a parsed HTML page with non-content elements removed.
type Document struct {
	doc *goquery.Document
}

// nonContentSelector matches elements that never carry indexable text.
const nonContentSelector = "script, style, noscript, meta, link"

// ParseDocument parses raw HTML and strips scripts, styles and metadata.
func ParseDocument(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	doc.Find(nonContentSelector).Remove()

	return &Document{doc: doc}, nil
}

// Candidates returns all elements matching the selector in document order.
func (d *Document) Candidates(selector string) []Element {
	var elements []Element
	d.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, &domElement{sel: sel})
	})
	return elements
}

// Text returns the whole document's flattened text.
func (d *Document) Text() string {
	return flattenText(d.doc.Selection)
}

// domElement adapts a goquery selection to the Element interface.
type domElement struct {
	sel *goquery.Selection
}

func (e *domElement) Text() string {
	return flattenText(e.sel)
}

func (e *domElement) Markup() (string, error) {
	return goquery.OuterHtml(e.sel)
}

func (e *domElement) Children(selector string) []Element {
	var children []Element
	e.sel.ChildrenFiltered(selector).Each(func(_ int, sel *goquery.Selection) {
		children = append(children, &domElement{sel: sel})
	})
	return children
}

// flattenText collapses all whitespace runs in the selection's text content
// to single spaces and trims the ends.
func flattenText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

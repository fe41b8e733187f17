// Package docinject links generated documentation pages to trace artifacts.
// It reads a doc build tree, resolves each page's declaration source
// location, matches it to a trace segment, and rewrites the page with a
// trace link, idempotently.
package docinject

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// DeclarationLocation is a doc page's declaration source location, parsed
// from the page's editor source link.
type DeclarationLocation struct {
	// Name is the declaration name the page documents.
	Name string
	// SourceFile is the absolute source path from the link.
	SourceFile string
	// Line and Column are zero-based; Line is -1 when the link carries no
	// position.
	Line   int
	Column int
}

const sourceURLPrefix = "vscode://file/"

// LocateDeclaration parses a doc page and returns its declaration location,
// or nil if the page has no source link (shared assets, index pages).
func LocateDeclaration(content []byte) (*DeclarationLocation, error) {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse doc page: %w", err)
	}

	anchor := findSourceAnchor(doc)
	if anchor == nil {
		return nil, nil
	}

	var href string
	for _, attr := range anchor.Attr {
		if attr.Key == "href" {
			href = attr.Val
		}
	}
	loc, err := parseSourceURL(href)
	if err != nil {
		return nil, err
	}
	loc.Name = declarationName(doc)
	return loc, nil
}

// findSourceAnchor walks the tree for an <a> whose href is an editor source
// URL. Doc generators emit one per declaration page.
func findSourceAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key == "href" && strings.HasPrefix(attr.Val, sourceURLPrefix) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findSourceAnchor(c); found != nil {
			return found
		}
	}
	return nil
}

// parseSourceURL splits vscode://file//abs/path:line:col. The generator
// writes one-based line and column; absent position parts yield Line -1.
// Double slashes after the prefix collapse to one absolute path.
func parseSourceURL(href string) (*DeclarationLocation, error) {
	raw := strings.TrimPrefix(href, sourceURLPrefix)
	if raw == "" {
		return nil, fmt.Errorf("empty source url %q", href)
	}

	loc := &DeclarationLocation{Line: -1}
	// Trailing :line and :line:col are numeric suffixes; anything else is
	// part of the path.
	parts := strings.Split(raw, ":")
	var nums []int
	for len(nums) < 2 && len(parts) > 1 {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		parts = parts[:len(parts)-1]
	}
	loc.SourceFile = "/" + strings.TrimLeft(strings.Join(parts, ":"), "/")
	if len(nums) >= 1 {
		loc.Line = nums[0] - 1
	}
	if len(nums) == 2 {
		loc.Column = nums[1] - 1
	}
	return loc, nil
}

// declarationName pulls the declaration name from the page title, falling
// back to empty. Titles look like "Nat.add_comm".
func declarationName(doc *html.Node) string {
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

package catalog

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// anchor is the digest of one <a> element on a catalog page: its
// target, its visible text, and the src of the first image inside it
// (the catalog's directory listings mark entry kinds with icons).
type anchor struct {
	href   string
	text   string
	imgSrc string
}

func parseAnchors(page []byte) ([]anchor, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var out []anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			out = append(out, anchor{
				href:   attrVal(n, "href"),
				text:   strings.TrimSpace(textContent(n)),
				imgSrc: firstImgSrc(n),
			})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func firstImgSrc(n *html.Node) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			found = attrVal(n, "src")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

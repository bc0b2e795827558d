package executor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	collapseSpace = regexp.MustCompile(`\s+`)
	collapseBlank = regexp.MustCompile(`\n{3,}`)
)

// htmlToMarkdown flattens an HTML document into readable markdown-ish text.
// Navigation chrome and scripts are dropped.
func htmlToMarkdown(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	skip := map[string]bool{
		"script": true, "style": true, "nav": true, "footer": true,
		"header": true, "aside": true, "noscript": true, "iframe": true,
	}
	block := map[string]bool{
		"p": true, "div": true, "section": true, "article": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"li": true, "tr": true, "blockquote": true, "pre": true, "table": true,
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skip[tag] {
				return
			}
			switch tag {
			case "h1":
				b.WriteString("\n# ")
			case "h2":
				b.WriteString("\n## ")
			case "h3":
				b.WriteString("\n### ")
			case "h4", "h5", "h6":
				b.WriteString("\n#### ")
			case "li":
				b.WriteString("\n- ")
			case "br":
				b.WriteString("\n")
			case "hr":
				b.WriteString("\n---\n")
			case "pre":
				b.WriteString("\n```\n")
			case "code":
				b.WriteString("`")
			case "p", "div", "section", "article", "blockquote":
				b.WriteString("\n")
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(collapseSpace.ReplaceAllString(text, " "))
				b.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			switch tag {
			case "pre":
				b.WriteString("\n```\n")
			case "code":
				b.WriteString("`")
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" &&
						!strings.HasPrefix(attr.Val, "#") && !strings.HasPrefix(attr.Val, "javascript:") {
						b.WriteString("(" + attr.Val + ") ")
						break
					}
				}
			}
			if block[tag] {
				b.WriteString("\n")
			}
		}
	}

	// Prefer the body when present.
	start := findElement(doc, "body")
	if start == nil {
		start = doc
	}
	walk(start)

	out := collapseBlank.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

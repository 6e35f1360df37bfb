package adapters

import (
	"math"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pageMeta is what the document head says about a page.
type pageMeta struct {
	Title       string
	OGTitle     string
	Description string
	Language    string
	Canonical   string
	FeedURLs    []string
}

type section struct {
	Path       string
	Paragraphs []string
}

type article struct {
	Title    string
	Sections []section
	Root     *html.Node
}

func (a *article) textLen() int {
	n := 0
	for _, s := range a.Sections {
		for _, p := range s.Paragraphs {
			n += len(p)
		}
	}
	return n
}

var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Nav: true, atom.Footer: true,
	atom.Aside: true, atom.Form: true, atom.Iframe: true, atom.Svg: true, atom.Button: true,
	atom.Select: true, atom.Template: true,
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Blockquote: true, atom.Pre: true, atom.Dd: true, atom.Dt: true,
	atom.Figcaption: true, atom.Td: true, atom.Th: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

var boilerplateHints = []string{"nav", "menu", "footer", "sidebar", "comment", "share", "social",
	"advert", "promo", "cookie", "banner", "newsletter", "related", "breadcrumb"}

func readPageMeta(doc *html.Node) pageMeta {
	var m pageMeta
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html:
				m.Language = attr(n, "lang")
			case atom.Title:
				if m.Title == "" {
					m.Title = collapse(textOf(n))
				}
			case atom.Meta:
				key := strings.ToLower(firstNonEmpty(attr(n, "property"), attr(n, "name")))
				val := strings.TrimSpace(attr(n, "content"))
				switch key {
				case "og:title":
					m.OGTitle = val
				case "og:description":
					m.Description = firstNonEmpty(m.Description, val)
				case "description":
					if m.Description == "" {
						m.Description = val
					}
				}
			case atom.Link:
				rel := strings.ToLower(attr(n, "rel"))
				typ := strings.ToLower(attr(n, "type"))
				href := strings.TrimSpace(attr(n, "href"))
				switch {
				case href == "":
				case strings.Contains(rel, "canonical"):
					m.Canonical = href
				case strings.Contains(rel, "alternate") && (strings.Contains(typ, "rss") || strings.Contains(typ, "atom")):
					m.FeedURLs = append(m.FeedURLs, href)
				}
			case atom.Body:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return m
}

// extractArticle picks the main content node (landmark first, then text density) and reads
// it into heading-scoped sections.
func extractArticle(doc *html.Node, minChars int) *article {
	root := findLandmark(doc, minChars)
	if root == nil {
		root = findDensest(doc)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		return &article{}
	}
	a := &article{Root: root}
	if h := findFirst(root, atom.H1); h != nil {
		a.Title = collapse(textOf(h))
	}
	readSections(root, a)
	return a
}

func findLandmark(doc *html.Node, minChars int) *html.Node {
	for _, tag := range []atom.Atom{atom.Article, atom.Main} {
		var best *html.Node
		bestLen := 0
		eachElement(doc, func(n *html.Node) bool {
			if n.DataAtom == tag {
				if l := len(collapse(textOf(n))); l > bestLen {
					best, bestLen = n, l
				}
			}
			return true
		})
		if best != nil && bestLen >= minChars {
			return best
		}
	}
	return nil
}

// findDensest scores container elements by text density weighted by text length and
// penalized by link text share.
func findDensest(doc *html.Node) *html.Node {
	var best *html.Node
	bestScore := 0.0
	eachElement(doc, func(n *html.Node) bool {
		if skipTags[n.DataAtom] || looksLikeBoilerplate(n) {
			return false
		}
		if n.DataAtom != atom.Div && n.DataAtom != atom.Section && n.DataAtom != atom.Td && n.DataAtom != atom.Body {
			return true
		}
		text := collapse(textOf(n))
		if len(text) < 50 {
			return true
		}
		linkLen := len(collapse(linkText(n)))
		linkDensity := float64(linkLen) / float64(len(text))
		if linkDensity > 0.5 {
			return true
		}
		tags := countElements(n)
		if tags == 0 {
			tags = 1
		}
		density := float64(len(text)) / float64(tags)
		score := density * math.Log2(float64(len(text))) * (1 - linkDensity)
		if score > bestScore {
			best, bestScore = n, score
		}
		return true
	})
	return best
}

type heading struct {
	level int
	title string
}

func readSections(root *html.Node, a *article) {
	var stack []heading
	cur := section{}
	flush := func() {
		if len(cur.Paragraphs) > 0 {
			a.Sections = append(a.Sections, cur)
		}
		titles := make([]string, 0, len(stack))
		for _, h := range stack {
			titles = append(titles, h.title)
		}
		cur = section{Path: strings.Join(titles, " > ")}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if skipTags[n.DataAtom] || (n != root && looksLikeBoilerplate(n)) {
			return
		}
		if lvl, ok := headingLevel[n.DataAtom]; ok {
			title := collapse(textOf(n))
			if title == "" {
				return
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= lvl {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: lvl, title: title})
			flush()
			return
		}
		if blockTags[n.DataAtom] || (n.DataAtom == atom.Div && !hasBlockChild(n)) {
			if text := collapse(textOf(n)); text != "" {
				cur.Paragraphs = append(cur.Paragraphs, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	flush()
}

func hasBlockChild(n *html.Node) bool {
	found := false
	eachElement(n, func(c *html.Node) bool {
		if c == n {
			return true
		}
		if blockTags[c.DataAtom] || c.DataAtom == atom.Div || c.DataAtom == atom.Section || headingLevel[c.DataAtom] > 0 {
			found = true
			return false
		}
		return !found
	})
	return found
}

func looksLikeBoilerplate(n *html.Node) bool {
	if n.DataAtom == atom.Header && n.Parent != nil && n.Parent.DataAtom == atom.Body {
		return true
	}
	role := strings.ToLower(attr(n, "role"))
	if role == "navigation" || role == "banner" || role == "contentinfo" || role == "complementary" {
		return true
	}
	hint := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	if strings.TrimSpace(hint) == "" {
		return false
	}
	for _, h := range boilerplateHints {
		if strings.Contains(hint, h) {
			return true
		}
	}
	return false
}

// eachElement walks element nodes depth first; fn returning false skips the subtree.
func eachElement(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		eachElement(c, fn)
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var out *html.Node
	eachElement(n, func(c *html.Node) bool {
		if out != nil {
			return false
		}
		if c.DataAtom == a {
			out = c
			return false
		}
		return true
	})
	return out
}

func countElements(n *html.Node) int {
	count := 0
	eachElement(n, func(*html.Node) bool {
		count++
		return true
	})
	return count
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func linkText(n *html.Node) string {
	var b strings.Builder
	eachElement(n, func(c *html.Node) bool {
		if c.DataAtom == atom.A {
			b.WriteString(textOf(c))
			return false
		}
		return true
	})
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, " ", " ")), " ")
}

func renderNode(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

package notion

import (
	"strings"

	"github.com/jomei/notionapi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToBlocks converts a markdown document into Notion blocks. Headings,
// paragraphs, bulleted and numbered lists, thematic breaks and fenced code
// are mapped; inline bold, italic, code and links are preserved.
func MarkdownToBlocks(md string) []notionapi.Block {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []notionapi.Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = append(blocks, convertBlock(n, src)...)
	}
	return blocks
}

func convertBlock(n ast.Node, src []byte) []notionapi.Block {
	switch node := n.(type) {
	case *ast.Heading:
		return []notionapi.Block{headingBlock(node.Level, inlineText(node, src))}
	case *ast.Paragraph, *ast.TextBlock:
		rt := inlineText(node, src)
		if len(rt) == 0 {
			return nil
		}
		return []notionapi.Block{paragraphBlock(rt)}
	case *ast.List:
		return listBlocks(node, src)
	case *ast.ThematicBreak:
		return []notionapi.Block{&notionapi.DividerBlock{
			BasicBlock: basic(notionapi.BlockTypeDivider),
		}}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return []notionapi.Block{paragraphBlock(codeText(node, src))}
	case *ast.Blockquote:
		var out []notionapi.Block
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			out = append(out, convertBlock(c, src)...)
		}
		return out
	default:
		return nil
	}
}

func listBlocks(list *ast.List, src []byte) []notionapi.Block {
	var out []notionapi.Block
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var rt []notionapi.RichText
		var children []notionapi.Block
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.TextBlock, *ast.Paragraph:
				if len(rt) > 0 {
					rt = append(rt, plain(" ")...)
				}
				rt = append(rt, inlineText(c, src)...)
			default:
				children = append(children, convertBlock(c, src)...)
			}
		}
		li := notionapi.ListItem{RichText: rt, Children: children}
		if list.IsOrdered() {
			out = append(out, &notionapi.NumberedListItemBlock{
				BasicBlock:       basic(notionapi.BlockTypeNumberedListItem),
				NumberedListItem: li,
			})
			continue
		}
		out = append(out, &notionapi.BulletedListItemBlock{
			BasicBlock:       basic(notionapi.BlockTypeBulletedListItem),
			BulletedListItem: li,
		})
	}
	return out
}

func headingBlock(level int, rt []notionapi.RichText) notionapi.Block {
	h := notionapi.Heading{RichText: rt}
	switch {
	case level <= 1:
		return &notionapi.Heading1Block{BasicBlock: basic(notionapi.BlockTypeHeading1), Heading1: h}
	case level == 2:
		return &notionapi.Heading2Block{BasicBlock: basic(notionapi.BlockTypeHeading2), Heading2: h}
	default:
		return &notionapi.Heading3Block{BasicBlock: basic(notionapi.BlockTypeHeading3), Heading3: h}
	}
}

func paragraphBlock(rt []notionapi.RichText) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: basic(notionapi.BlockTypeParagraph),
		Paragraph:  notionapi.Paragraph{RichText: rt},
	}
}

func basic(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

// style is the inline formatting in effect while walking a subtree.
type style struct {
	bold   bool
	italic bool
	code   bool
	link   string
}

func inlineText(n ast.Node, src []byte) []notionapi.RichText {
	var out []notionapi.RichText
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = appendInline(out, c, src, style{})
	}
	return mergeRuns(out)
}

func appendInline(out []notionapi.RichText, n ast.Node, src []byte, st style) []notionapi.RichText {
	switch node := n.(type) {
	case *ast.Text:
		s := string(node.Segment.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			s += " "
		}
		return append(out, run(s, st)...)
	case *ast.String:
		return append(out, run(string(node.Value), st)...)
	case *ast.CodeSpan:
		st.code = true
		var b strings.Builder
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Segment.Value(src))
			}
		}
		return append(out, run(b.String(), st)...)
	case *ast.Emphasis:
		if node.Level >= 2 {
			st.bold = true
		} else {
			st.italic = true
		}
	case *ast.Link:
		st.link = string(node.Destination)
	case *ast.AutoLink:
		url := string(node.URL(src))
		st.link = url
		return append(out, run(string(node.Label(src)), st)...)
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = appendInline(out, c, src, st)
	}
	return out
}

func run(s string, st style) []notionapi.RichText {
	segs := Text(s)
	for i := range segs {
		if st.link != "" {
			segs[i].Text.Link = &notionapi.Link{Url: st.link}
		}
		if st.bold || st.italic || st.code {
			segs[i].Annotations = &notionapi.Annotations{Bold: st.bold, Italic: st.italic, Code: st.code}
		}
	}
	return segs
}

func plain(s string) []notionapi.RichText {
	return run(s, style{})
}

// mergeRuns joins adjacent segments that share formatting and trims the
// trailing whitespace left by line breaks.
func mergeRuns(in []notionapi.RichText) []notionapi.RichText {
	var out []notionapi.RichText
	for _, rt := range in {
		if n := len(out); n > 0 && sameFormat(out[n-1], rt) &&
			len([]rune(out[n-1].Text.Content))+len([]rune(rt.Text.Content)) <= maxTextLen {
			out[n-1].Text.Content += rt.Text.Content
			continue
		}
		out = append(out, rt)
	}
	if n := len(out); n > 0 {
		out[n-1].Text.Content = strings.TrimRight(out[n-1].Text.Content, " ")
		if out[n-1].Text.Content == "" {
			out = out[:n-1]
		}
	}
	return out
}

func sameFormat(a, b notionapi.RichText) bool {
	if linkURL(a) != linkURL(b) {
		return false
	}
	if (a.Annotations == nil) != (b.Annotations == nil) {
		return false
	}
	return a.Annotations == nil || *a.Annotations == *b.Annotations
}

func linkURL(rt notionapi.RichText) string {
	if rt.Text == nil || rt.Text.Link == nil {
		return ""
	}
	return rt.Text.Link.Url
}

func codeText(n ast.Node, src []byte) []notionapi.RichText {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return run(strings.TrimRight(b.String(), "\n"), style{code: true})
}

package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// maxTextLen is the Notion limit for a single rich text segment.
const maxTextLen = 2000

// Text builds rich text segments for s, split at the segment limit.
func Text(s string) []notionapi.RichText {
	var out []notionapi.RichText
	for _, chunk := range chunkText(s, maxTextLen) {
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: chunk},
		})
	}
	return out
}

// TitleValue builds a title property value.
func TitleValue(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: Text(s)}
}

// RichTextValue builds a rich_text property value.
func RichTextValue(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: Text(s)}
}

// URLValue builds a url property value, adding an https scheme to bare hosts.
func URLValue(s string) notionapi.URLProperty {
	s = strings.TrimSpace(s)
	if s != "" && !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: s}
}

// SelectValue builds a select property value.
func SelectValue(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// MultiSelectValue builds a multi_select property value, dropping blanks.
func MultiSelectValue(names []string) notionapi.MultiSelectProperty {
	opts := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			opts = append(opts, notionapi.Option{Name: n})
		}
	}
	return notionapi.MultiSelectProperty{Type: notionapi.PropertyTypeMultiSelect, MultiSelect: opts}
}

// CheckboxValue builds a checkbox property value.
func CheckboxValue(v bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: v}
}

// NumberValue builds a number property value.
func NumberValue(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: v}
}

// PlainText returns the text of a title, rich_text, url, select or status
// property read back from the API. Other types yield "".
func PlainText(p notionapi.Property) string {
	var parts []notionapi.RichText
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		parts = v.Title
	case *notionapi.RichTextProperty:
		parts = v.RichText
	case *notionapi.URLProperty:
		return strings.TrimSpace(v.URL)
	case *notionapi.SelectProperty:
		return strings.TrimSpace(v.Select.Name)
	case *notionapi.StatusProperty:
		return strings.TrimSpace(v.Status.Name)
	default:
		return ""
	}
	var b strings.Builder
	for _, rt := range parts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// OptionNames returns the option names of a multi_select property.
func OptionNames(p notionapi.Property) []string {
	v, ok := p.(*notionapi.MultiSelectProperty)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.MultiSelect))
	for _, o := range v.MultiSelect {
		if o.Name != "" {
			out = append(out, o.Name)
		}
	}
	return out
}

// Checked reports whether p is a ticked checkbox.
func Checked(p notionapi.Property) bool {
	v, ok := p.(*notionapi.CheckboxProperty)
	return ok && v.Checkbox
}

// chunkText splits s into pieces of at most n runes.
func chunkText(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var out []string
	for len(runes) > n {
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return append(out, string(runes))
}

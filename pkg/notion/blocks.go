package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxAppendBlocks is the Notion limit on children per append request.
const maxAppendBlocks = 100

// ListChildren returns every top-level child block of blockID.
func ListChildren(ctx context.Context, c Client, blockID string) ([]notionapi.Block, error) {
	var all []notionapi.Block
	page := &notionapi.Pagination{PageSize: 100}
	for {
		resp, err := c.GetBlockChildren(ctx, blockID, page)
		if err != nil {
			return nil, eris.Wrap(err, "notion: list children")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		page = &notionapi.Pagination{PageSize: 100, StartCursor: notionapi.Cursor(resp.NextCursor)}
	}
}

// AppendBlocks appends blocks to blockID in request-sized batches.
func AppendBlocks(ctx context.Context, c Client, blockID string, blocks []notionapi.Block) error {
	for start := 0; start < len(blocks); start += maxAppendBlocks {
		end := min(start+maxAppendBlocks, len(blocks))
		if err := c.AppendBlockChildren(ctx, blockID, blocks[start:end]); err != nil {
			return eris.Wrap(err, "notion: append blocks")
		}
	}
	return nil
}

// ReplaceSection rewrites the part of a page that starts at the heading whose
// text equals marker. Blocks above the marker are left alone; the marker and
// everything after it are deleted and replaced by a fresh marker heading
// followed by blocks. A page without the marker gets the section appended.
func ReplaceSection(ctx context.Context, c Client, pageID, marker string, blocks []notionapi.Block) error {
	existing, err := ListChildren(ctx, c, pageID)
	if err != nil {
		return eris.Wrap(err, "notion: replace section")
	}

	from := -1
	for i, b := range existing {
		if HeadingText(b) == marker {
			from = i
			break
		}
	}
	if from >= 0 {
		for _, b := range existing[from:] {
			if err := c.DeleteBlock(ctx, string(b.GetID())); err != nil {
				return eris.Wrap(err, "notion: replace section")
			}
		}
	}

	out := make([]notionapi.Block, 0, len(blocks)+1)
	out = append(out, headingBlock(1, Text(marker)))
	out = append(out, blocks...)
	if err := AppendBlocks(ctx, c, pageID, out); err != nil {
		return eris.Wrap(err, "notion: replace section")
	}
	return nil
}

// HeadingText returns the plain text of a heading block, or "" for any other
// block type.
func HeadingText(b notionapi.Block) string {
	var rt []notionapi.RichText
	switch h := b.(type) {
	case *notionapi.Heading1Block:
		rt = h.Heading1.RichText
	case *notionapi.Heading2Block:
		rt = h.Heading2.RichText
	case *notionapi.Heading3Block:
		rt = h.Heading3.RichText
	default:
		return ""
	}
	var sb strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			sb.WriteString(r.PlainText)
		} else if r.Text != nil {
			sb.WriteString(r.Text.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}

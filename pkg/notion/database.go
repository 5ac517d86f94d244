package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors.
// The next page is fetched in the background while the current one is
// appended. Rate limiting is enforced by the Client.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	// Prefetch state: holds the result of a prefetched next page.
	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			// We already have a prefetched result pending.
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}

		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		// Start prefetching the next page in a goroutine.
		nextReq := &notionapi.DatabaseQueryRequest{
			StartCursor: resp.NextCursor,
		}
		if filter != nil {
			nextReq.Filter = filter.Filter
			nextReq.Sorts = filter.Sorts
			nextReq.PageSize = filter.PageSize
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// NeedsDossierProperty is the checkbox that queues a company for research.
const NeedsDossierProperty = "Needs Dossier"

// Schema maps a database's property names to their types.
type Schema map[string]notionapi.PropertyConfigType

// FetchSchema reads the property layout of a database.
func FetchSchema(ctx context.Context, c Client, dbID string) (Schema, error) {
	db, err := c.GetDatabase(ctx, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "notion: fetch schema")
	}
	s := make(Schema, len(db.Properties))
	for name, cfg := range db.Properties {
		if cfg == nil {
			continue
		}
		s[name] = cfg.GetType()
	}
	return s, nil
}

// Has reports whether the database carries name with the given type.
func (s Schema) Has(name string, typ notionapi.PropertyConfigType) bool {
	t, ok := s[name]
	return ok && t == typ
}

// TitleProperty returns the name of the database's title column.
func (s Schema) TitleProperty() string {
	for name, t := range s {
		if t == notionapi.PropertyConfigTypeTitle {
			return name
		}
	}
	return "Name"
}

// QueryNeedsDossier returns every company page whose Needs Dossier box is
// ticked. A database without that checkbox yields no pages.
func QueryNeedsDossier(ctx context.Context, c Client, dbID string, schema Schema) ([]notionapi.Page, error) {
	if !schema.Has(NeedsDossierProperty, notionapi.PropertyConfigTypeCheckbox) {
		return nil, nil
	}
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: NeedsDossierProperty,
			Checkbox: &notionapi.CheckboxFilterCondition{Equals: true},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query needs dossier")
	}
	return pages, nil
}

// FindByTitle returns the first page whose title equals title, or nil when
// none matches.
func FindByTitle(ctx context.Context, c Client, dbID, titleProp, title string) (*notionapi.Page, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, eris.New("notion: find by title: empty title")
	}
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: titleProp,
			RichText: &notionapi.TextFilterCondition{Equals: title},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: find page %q", title))
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	page := resp.Results[0]
	return &page, nil
}

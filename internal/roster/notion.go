package roster

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/pkg/notion"
)

// Companies database property names.
const (
	PropCompany  = "Company"
	PropDomain   = "Domain"
	PropWebsite  = "Website"
	PropOwners   = "Owners"
	PropLinkedIn = "LinkedIn"
	PropAKA      = "AKA Names"
	PropTags     = "Tags"
	PropTwitter  = "Twitter"
	PropCrunch   = "Crunchbase"
)

// FromNotionPage builds clues from a companies database page. The title
// column holds the callsign.
func FromNotionPage(page notionapi.Page, titleProp string) model.CompanyClues {
	props := page.Properties
	text := func(name string) string {
		if p, ok := props[name]; ok {
			return notion.PlainText(p)
		}
		return ""
	}

	c := model.NewCompanyClues(text(titleProp), text(PropCompany), splitList(text(PropOwners)), text(PropDomain), text(PropLinkedIn))
	c.Website = text(PropWebsite)
	c.AliasNames = splitList(text(PropAKA))
	c.SetSocial(text(PropTwitter), text(PropCrunch))
	if p, ok := props[PropTags]; ok {
		c.Tags = notion.OptionNames(p)
		if len(c.Tags) == 0 {
			c.Tags = splitList(notion.PlainText(p))
		}
	}
	if c.Domain == "" && c.Website != "" {
		c.Domain = model.NormalizeDomain(c.Website)
	}
	c.NotionPage = strings.TrimSpace(string(page.ID))
	return c
}

// LoadNotion returns clues for every company queued for a dossier.
func LoadNotion(ctx context.Context, client notion.Client, dbID string) ([]model.CompanyClues, error) {
	schema, err := notion.FetchSchema(ctx, client, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "roster: load notion")
	}
	pages, err := notion.QueryNeedsDossier(ctx, client, dbID, schema)
	if err != nil {
		return nil, eris.Wrap(err, "roster: load notion")
	}

	title := schema.TitleProperty()
	out := make([]model.CompanyClues, 0, len(pages))
	for _, p := range pages {
		c := FromNotionPage(p, title)
		if c.Callsign == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

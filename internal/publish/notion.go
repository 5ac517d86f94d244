package publish

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/roster"
	"github.com/sells-group/dossier-cli/pkg/notion"
)

// DossierMarker is the heading that starts the generated dossier on a
// company page. Everything from it to the end of the page is replaced on
// each publish.
const DossierMarker = "Research Dossier"

// Properties written back to the companies database, beyond the roster ones.
const (
	PropIdentityStatus     = "Identity Status"
	PropIdentityConfidence = "Identity Confidence"
	PropFundingStage       = "Funding Stage"
	PropLastIntelAt        = "Last Intel At"
)

// NotionPublisher upserts the company page and rewrites its dossier blocks.
type NotionPublisher struct {
	client notion.Client
	dbID   string
	now    func() time.Time

	schema notion.Schema
}

// NewNotionPublisher creates a NotionPublisher for the companies database.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID, now: time.Now}
}

// Publish implements Publisher. Runs without a dossier are ignored.
func (p *NotionPublisher) Publish(ctx context.Context, rec *model.RunRecord) error {
	if rec == nil || rec.Dossier == nil {
		return nil
	}
	schema, err := p.loadSchema(ctx)
	if err != nil {
		return err
	}

	pageID, err := p.upsertPage(ctx, schema, rec)
	if err != nil {
		return err
	}

	blocks := notion.MarkdownToBlocks(rec.Dossier.Markdown)
	if err := notion.ReplaceSection(ctx, p.client, pageID, DossierMarker, blocks); err != nil {
		return eris.Wrapf(err, "publish: notion dossier for %s", rec.Callsign)
	}

	zap.L().Info("publish: notion page updated",
		zap.String("callsign", rec.Callsign),
		zap.String("page_id", pageID),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}

// loadSchema fetches the database schema once per publisher.
func (p *NotionPublisher) loadSchema(ctx context.Context) (notion.Schema, error) {
	if p.schema != nil {
		return p.schema, nil
	}
	s, err := notion.FetchSchema(ctx, p.client, p.dbID)
	if err != nil {
		return nil, eris.Wrap(err, "publish: notion schema")
	}
	p.schema = s
	return s, nil
}

func (p *NotionPublisher) upsertPage(ctx context.Context, schema notion.Schema, rec *model.RunRecord) (string, error) {
	props := p.properties(schema, rec)

	pageID := rec.Clues.NotionPage
	if pageID == "" {
		page, err := notion.FindByTitle(ctx, p.client, p.dbID, schema.TitleProperty(), rec.Callsign)
		if err != nil {
			return "", eris.Wrap(err, "publish: notion find page")
		}
		if page != nil {
			pageID = string(page.ID)
		}
	}

	if pageID != "" {
		if _, err := p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", eris.Wrapf(err, "publish: notion update %s", rec.Callsign)
		}
		return pageID, nil
	}

	props[schema.TitleProperty()] = notion.TitleValue(rec.Callsign)
	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrapf(err, "publish: notion create %s", rec.Callsign)
	}
	return string(page.ID), nil
}

// properties maps the run onto whichever columns the database carries.
func (p *NotionPublisher) properties(schema notion.Schema, rec *model.RunRecord) notionapi.Properties {
	props := notionapi.Properties{}
	c := rec.Clues

	if c.DBA != "" && schema.Has(roster.PropCompany, notionapi.PropertyConfigTypeRichText) {
		props[roster.PropCompany] = notion.RichTextValue(c.DBA)
	}
	if len(c.Owners) > 0 && schema.Has(roster.PropOwners, notionapi.PropertyConfigTypeRichText) {
		props[roster.PropOwners] = notion.RichTextValue(strings.Join(c.Owners, ", "))
	}
	if len(c.Tags) > 0 && schema.Has(roster.PropTags, notionapi.PropertyConfigTypeMultiSelect) {
		props[roster.PropTags] = notion.MultiSelectValue(c.Tags)
	}
	if schema.Has(notion.NeedsDossierProperty, notionapi.PropertyConfigTypeCheckbox) {
		props[notion.NeedsDossierProperty] = notion.CheckboxValue(false)
	}
	if schema.Has(PropLastIntelAt, notionapi.PropertyConfigTypeDate) {
		d := notionapi.Date(p.now().UTC())
		props[PropLastIntelAt] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if id := rec.Identity; id != nil {
		if id.HasDomain() {
			switch {
			case schema.Has(roster.PropDomain, notionapi.PropertyConfigTypeURL):
				props[roster.PropDomain] = notion.URLValue(id.CurrentDomain)
			case schema.Has(roster.PropDomain, notionapi.PropertyConfigTypeRichText):
				props[roster.PropDomain] = notion.RichTextValue(id.CurrentDomain)
			}
		}
		if id.Website != "" && schema.Has(roster.PropWebsite, notionapi.PropertyConfigTypeURL) {
			props[roster.PropWebsite] = notion.URLValue(id.Website)
		}
		if schema.Has(PropIdentityStatus, notionapi.PropertyConfigTypeSelect) {
			props[PropIdentityStatus] = notion.SelectValue(string(id.Status))
		}
		if schema.Has(PropIdentityConfidence, notionapi.PropertyConfigTypeNumber) {
			props[PropIdentityConfidence] = notion.NumberValue(id.Confidence)
		}
	}

	if f := rec.Funding.Get(); f != nil && f.Stage != "" {
		switch {
		case schema.Has(PropFundingStage, notionapi.PropertyConfigTypeSelect):
			props[PropFundingStage] = notion.SelectValue(f.Stage)
		case schema.Has(PropFundingStage, notionapi.PropertyConfigTypeRichText):
			props[PropFundingStage] = notion.RichTextValue(f.Stage)
		}
	}
	return props
}

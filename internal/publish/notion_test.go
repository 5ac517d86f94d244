package publish

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/internal/roster"
	"github.com/sells-group/dossier-cli/pkg/notion"
	"github.com/sells-group/dossier-cli/pkg/notion/mocks"
)

func companiesDB() *notionapi.Database {
	return &notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"Callsign":                  &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			roster.PropCompany:          &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			roster.PropDomain:           &notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
			roster.PropWebsite:          &notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
			PropIdentityStatus:          &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
			PropIdentityConfidence:      &notionapi.NumberPropertyConfig{Type: notionapi.PropertyConfigTypeNumber},
			PropFundingStage:            &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			PropLastIntelAt:             &notionapi.DatePropertyConfig{Type: notionapi.PropertyConfigTypeDate},
			notion.NeedsDossierProperty: &notionapi.CheckboxPropertyConfig{Type: notionapi.PropertyConfigTypeCheckbox},
		},
	}
}

func newTestNotionPublisher(mc notion.Client) *NotionPublisher {
	p := NewNotionPublisher(mc, "db-co")
	p.now = func() time.Time { return time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC) }
	return p
}

func TestNotionPublisher_UpdatesExistingPage(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(companiesDB(), nil).Once()
	mc.On("QueryDatabase", ctx, "db-co", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-aalo"}},
		}, nil).Once()
	mc.On("UpdatePage", ctx, "page-aalo", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		p := req.Properties
		domain, ok := p[roster.PropDomain].(notionapi.URLProperty)
		if !ok || domain.URL != "https://aaloatomics.ai" {
			return false
		}
		status, ok := p[PropIdentityStatus].(notionapi.SelectProperty)
		if !ok || status.Select.Name != "redirected" {
			return false
		}
		stage, ok := p[PropFundingStage].(notionapi.RichTextProperty)
		if !ok || notion.PlainText(&stage) != "Series B" {
			return false
		}
		needs, ok := p[notion.NeedsDossierProperty].(notionapi.CheckboxProperty)
		_, hasTitle := p["Callsign"]
		return ok && !needs.Checkbox && !hasTitle
	})).Return(&notionapi.Page{ID: "page-aalo"}, nil).Once()
	mc.On("GetBlockChildren", ctx, "page-aalo", mock.Anything).
		Return(&notionapi.GetChildrenResponse{}, nil).Once()
	mc.On("AppendBlockChildren", ctx, "page-aalo", mock.MatchedBy(func(b []notionapi.Block) bool {
		return len(b) > 1 && notion.HeadingText(b[0]) == DossierMarker
	})).Return(nil).Once()

	p := newTestNotionPublisher(mc)
	require.NoError(t, p.Publish(ctx, doneRecord("AALO")))
}

func TestNotionPublisher_CreatesMissingPage(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(companiesDB(), nil).Once()
	mc.On("QueryDatabase", ctx, "db-co", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		title, ok := req.Properties["Callsign"].(notionapi.TitleProperty)
		return ok && notion.PlainText(&title) == "AALO" &&
			req.Parent.DatabaseID == notionapi.DatabaseID("db-co")
	})).Return(&notionapi.Page{ID: "page-new"}, nil).Once()
	mc.On("GetBlockChildren", ctx, "page-new", mock.Anything).
		Return(&notionapi.GetChildrenResponse{}, nil).Once()
	mc.On("AppendBlockChildren", ctx, "page-new", mock.Anything).Return(nil).Once()

	p := newTestNotionPublisher(mc)
	require.NoError(t, p.Publish(ctx, doneRecord("AALO")))
}

func TestNotionPublisher_UsesRosterPageAndCachesSchema(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(companiesDB(), nil).Once()
	mc.On("UpdatePage", ctx, "page-roster", mock.Anything).Return(&notionapi.Page{ID: "page-roster"}, nil).Twice()
	mc.On("GetBlockChildren", ctx, "page-roster", mock.Anything).
		Return(&notionapi.GetChildrenResponse{}, nil).Twice()
	mc.On("AppendBlockChildren", ctx, "page-roster", mock.Anything).Return(nil).Twice()

	rec := doneRecord("AALO")
	rec.Clues.NotionPage = "page-roster"

	p := newTestNotionPublisher(mc)
	require.NoError(t, p.Publish(ctx, rec))
	require.NoError(t, p.Publish(ctx, rec))
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotionPublisher_SkipsRunWithoutDossier(t *testing.T) {
	mc := mocks.NewMockClient(t)

	rec := doneRecord("AALO")
	rec.Dossier = nil
	require.NoError(t, newTestNotionPublisher(mc).Publish(context.Background(), rec))
}

func TestNotionPublisher_UpdateError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(companiesDB(), nil).Once()
	mc.On("UpdatePage", ctx, "page-roster", mock.Anything).Return(nil, assert.AnError).Once()

	rec := doneRecord("AALO")
	rec.Clues.NotionPage = "page-roster"

	err := newTestNotionPublisher(mc).Publish(ctx, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: notion update AALO")
}

func TestNotionPublisher_PropertiesFollowSchema(t *testing.T) {
	t.Parallel()

	schema := notion.Schema{
		"Name":            notionapi.PropertyConfigTypeTitle,
		roster.PropDomain: notionapi.PropertyConfigTypeRichText,
	}
	p := newTestNotionPublisher(nil)
	props := p.properties(schema, doneRecord("AALO"))

	require.Len(t, props, 1)
	domain, ok := props[roster.PropDomain].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "aaloatomics.ai", notion.PlainText(&domain))
}

func TestNotionPublisher_TagsWriteAsMultiSelect(t *testing.T) {
	t.Parallel()

	rec := doneRecord("AALO")
	rec.Clues.Tags = []string{"energy", " ", "nuclear"}
	p := newTestNotionPublisher(nil)

	props := p.properties(notion.Schema{roster.PropTags: notionapi.PropertyConfigTypeMultiSelect}, rec)
	tags, ok := props[roster.PropTags].(notionapi.MultiSelectProperty)
	require.True(t, ok)
	assert.Equal(t, []string{"energy", "nuclear"}, notion.OptionNames(&tags))

	props = p.properties(notion.Schema{roster.PropTags: notionapi.PropertyConfigTypeRichText}, rec)
	assert.NotContains(t, props, roster.PropTags)
}

package roster

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dossier-cli/pkg/notion"
	"github.com/sells-group/dossier-cli/pkg/notion/mocks"
)

func companyPage(id, callsign string, extra notionapi.Properties) notionapi.Page {
	props := notionapi.Properties{
		"Callsign": &notionapi.TitleProperty{Title: notion.Text(callsign)},
	}
	for k, v := range extra {
		props[k] = v
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func TestFromNotionPage(t *testing.T) {
	t.Parallel()

	page := companyPage("page-aalo", "AALO", notionapi.Properties{
		PropCompany:  &notionapi.RichTextProperty{RichText: notion.Text("Aalo Atomics")},
		PropDomain:   &notionapi.URLProperty{URL: "https://www.aalo.com"},
		PropOwners:   &notionapi.RichTextProperty{RichText: notion.Text("Matt Loszak, Yasir Arafat")},
		PropLinkedIn: &notionapi.URLProperty{URL: "https://linkedin.com/company/aalo"},
		PropTags: &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{
			{Name: "energy"},
		}},
		PropTwitter: &notionapi.RichTextProperty{RichText: notion.Text("@aaloatomics")},
		PropCrunch:  &notionapi.URLProperty{URL: "https://www.crunchbase.com/organization/aalo-atomics"},
	})

	c := FromNotionPage(page, "Callsign")
	assert.Equal(t, "AALO", c.Callsign)
	assert.Equal(t, "Aalo Atomics", c.DBA)
	assert.Equal(t, "aalo.com", c.Domain)
	assert.Equal(t, []string{"Matt Loszak", "Yasir Arafat"}, c.Owners)
	assert.Equal(t, "https://linkedin.com/company/aalo", c.SocialURL)
	assert.Equal(t, []string{"energy"}, c.Tags)
	assert.Equal(t, "page-aalo", c.NotionPage)
	assert.Equal(t, "aaloatomics", c.TwitterHandle)
	assert.Equal(t, "https://www.crunchbase.com/organization/aalo-atomics", c.CrunchbaseURL)
}

func TestFromNotionPage_WebsiteOnly(t *testing.T) {
	t.Parallel()

	page := companyPage("p", "WEB", notionapi.Properties{
		PropWebsite: &notionapi.URLProperty{URL: "https://webco.io/"},
	})
	c := FromNotionPage(page, "Callsign")
	assert.Equal(t, "webco.io", c.Domain)
	assert.Equal(t, "https://webco.io/", c.Website)
}

func TestLoadNotion(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(&notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"Callsign":                  &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			notion.NeedsDossierProperty: &notionapi.CheckboxPropertyConfig{Type: notionapi.PropertyConfigTypeCheckbox},
		},
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-co", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				companyPage("p1", "AALO", nil),
				companyPage("p2", "", nil),
			},
		}, nil).Once()

	clues, err := LoadNotion(ctx, mc, "db-co")
	require.NoError(t, err)
	require.Len(t, clues, 1)
	assert.Equal(t, "AALO", clues[0].Callsign)
	assert.Equal(t, "p1", clues[0].NotionPage)
}

func TestLoadNotion_SchemaError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-co").Return(nil, assert.AnError).Once()

	_, err := LoadNotion(ctx, mc, "db-co")
	assert.Error(t, err)
}

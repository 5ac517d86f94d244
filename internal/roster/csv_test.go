package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoster = `Callsign,Company,Owners,Domain,Website,LinkedIn_URL,AKA_Names,Tags,Notes
AALO,Aalo Atomics,"Matt Loszak; Yasir Arafat",aalo.com,,,,energy;nuclear,first
STLTH,,Jane Doe,,,https://www.linkedin.com/in/janedoe,,,
,Nameless,,,,,,,
aalo,Duplicate,,dup.com,,,,,
WEB,Web Co,,,https://www.webco.io/about,,"Web Company, WebCo",,
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	clues, err := ReadCSV(strings.NewReader(sampleRoster))
	require.NoError(t, err)
	require.Len(t, clues, 3)

	aalo := clues[0]
	assert.Equal(t, "AALO", aalo.Callsign)
	assert.Equal(t, "Aalo Atomics", aalo.DBA)
	assert.Equal(t, []string{"Matt Loszak", "Yasir Arafat"}, aalo.Owners)
	assert.Equal(t, "aalo.com", aalo.Domain)
	assert.Equal(t, []string{"energy", "nuclear"}, aalo.Tags)

	stealth := clues[1]
	assert.Empty(t, stealth.Domain)
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", stealth.SocialURL)

	web := clues[2]
	assert.Equal(t, "webco.io", web.Domain, "domain derived from website")
	assert.Equal(t, []string{"Web Company", "WebCo"}, web.AliasNames)
}

func TestReadCSV_SocialColumns(t *testing.T) {
	t.Parallel()

	in := "Callsign,Company,Twitter,Crunchbase\n" +
		"AALO,Aalo Atomics,@aaloatomics,https://www.crunchbase.com/organization/aalo-atomics\n" +
		"GHOST,Ghost Co,https://x.com/ghostco,\n"
	clues, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, clues, 2)

	assert.Equal(t, "aaloatomics", clues[0].TwitterHandle)
	assert.Equal(t, "https://www.crunchbase.com/organization/aalo-atomics", clues[0].CrunchbaseURL)
	assert.Equal(t, "ghostco", clues[1].TwitterHandle)
	assert.Empty(t, clues[1].CrunchbaseURL)
}

func TestReadCSV_Empty(t *testing.T) {
	t.Parallel()

	clues, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, clues)
}

func TestReadCSV_RaggedRow(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader("callsign,dba\nA,B,C\n"))
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte("callsign,dba\nZETA,Zeta Labs\n"), 0o600))

	clues, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, clues, 1)
	assert.Equal(t, "Zeta Labs", clues[0].DBA)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dba", normalizeHeader("\ufeffCompany Name"))
	assert.Equal(t, "owners", normalizeHeader("Beneficial Owners"))
	assert.Equal(t, "domain", normalizeHeader("domain_root"))
	assert.Equal(t, "linkedin_url", normalizeHeader("LinkedIn"))
	assert.Equal(t, "callsign", normalizeHeader(" Callsign "))
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitList(" "))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"Smith, Jr.", "Doe"}, splitList("Smith, Jr.; Doe"))
}

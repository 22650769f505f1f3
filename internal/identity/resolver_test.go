package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadsignal/signals-cli/internal/model"
)

// mockCompanyStore is a hand-rolled in-memory CompanyStore.
type mockCompanyStore struct {
	companies []model.Company
	nextID    int64

	createErr     error
	searchCalls   int
	domainLookups int
}

func (m *mockCompanyStore) GetCompanyByDomain(_ context.Context, domain string) (*model.Company, error) {
	m.domainLookups++
	for i := range m.companies {
		if m.companies[i].Domain == domain && domain != "" {
			c := m.companies[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) GetCompanyByRegistry(_ context.Context, registry string) (*model.Company, error) {
	for i := range m.companies {
		if m.companies[i].RegistryNumber == registry && registry != "" {
			c := m.companies[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) GetCompanyByNormalizedName(_ context.Context, normalized string) (*model.Company, error) {
	for i := range m.companies {
		if m.companies[i].NormalizedName == normalized {
			c := m.companies[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) SearchCompaniesByToken(_ context.Context, token string, _ int) ([]model.Company, error) {
	m.searchCalls++
	var out []model.Company
	for _, c := range m.companies {
		if token != "" && strings.Contains(c.NormalizedName, token) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCompanyStore) CreateCompany(_ context.Context, c *model.Company) error {
	if m.createErr != nil {
		return m.createErr
	}
	for i := range m.companies {
		if m.companies[i].ID > m.nextID {
			m.nextID = m.companies[i].ID
		}
	}
	m.nextID++
	c.ID = m.nextID
	m.companies = append(m.companies, *c)
	return nil
}

func obs(name, domain, registry string) model.RawPosting {
	return model.RawPosting{
		Title:          "Site Manager",
		CompanyName:    name,
		CompanyDomain:  domain,
		RegistryNumber: registry,
		PostedAt:       time.Now().UTC(),
		Source:         "adzuna",
	}
}

func TestResolve_DomainMatchBeatsName(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Acme Construction Ltd", NormalizedName: "acme construction", Domain: "acme.co.uk"},
		{ID: 2, Name: "Totally Different Name", NormalizedName: "totally different name", Domain: "other.co.uk"},
	}}
	r := NewResolver(st, 85)

	// Name points at nothing; domain decides.
	m, err := r.Resolve(context.Background(), obs("Some Trading Name", "https://www.acme.co.uk/jobs", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchDomain, m.Type)
	assert.Equal(t, int64(1), m.Company.ID)
	assert.Equal(t, 1.0, m.Confidence)
	assert.False(t, m.Created)
}

func TestResolve_RegistryMatch(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, NormalizedName: "acme construction", RegistryNumber: "01234567"},
	}}
	r := NewResolver(st, 85)

	m, err := r.Resolve(context.Background(), obs("ACME Group", "", "01234567"))
	require.NoError(t, err)
	assert.Equal(t, model.MatchRegistry, m.Type)
	assert.Equal(t, int64(1), m.Company.ID)
}

func TestResolve_NormalizedNameMatch(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Acme Construction Ltd", NormalizedName: "acme construction"},
	}}
	r := NewResolver(st, 85)

	// "Acme Construction Limited" and "Acme Construction Ltd" normalize
	// identically once the legal suffix is stripped.
	m, err := r.Resolve(context.Background(), obs("Acme Construction Limited", "", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchName, m.Type)
	assert.Equal(t, int64(1), m.Company.ID)
	assert.Equal(t, 1.0, m.Confidence)
}

func TestResolve_FuzzyMatch(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Morgan Sindall Group", NormalizedName: "morgan sindall group"},
	}}
	r := NewResolver(st, 85)

	// One-character typo: 19/20 runes survive, similarity 95.
	m, err := r.Resolve(context.Background(), obs("Morgan Sindale Group", "", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchFuzzy, m.Type)
	assert.Equal(t, int64(1), m.Company.ID)
	assert.InDelta(t, 0.95, m.Confidence, 0.001)
}

func TestResolve_FuzzyBelowThresholdCreates(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Morgan Sindall Group", NormalizedName: "morgan sindall group"},
	}}
	r := NewResolver(st, 85)

	m, err := r.Resolve(context.Background(), obs("Morgan Hunt Recruitment", "", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchNew, m.Type)
	assert.True(t, m.Created)
	assert.NotEqual(t, int64(1), m.Company.ID)
}

func TestResolve_CreateNew(t *testing.T) {
	st := &mockCompanyStore{}
	r := NewResolver(st, 85)

	m, err := r.Resolve(context.Background(), obs("Balfour Beatty plc", "balfourbeatty.com", "00395826"))
	require.NoError(t, err)
	assert.Equal(t, model.MatchNew, m.Type)
	assert.True(t, m.Created)
	assert.Equal(t, "Balfour Beatty plc", m.Company.Name)
	assert.Equal(t, "balfour beatty", m.Company.NormalizedName)
	assert.Equal(t, "balfourbeatty.com", m.Company.Domain)
	assert.Equal(t, "00395826", m.Company.RegistryNumber)
}

func TestResolve_MatchesAreReadOnly(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Acme Construction Ltd", NormalizedName: "acme construction"},
	}}
	r := NewResolver(st, 85)

	// A name match carrying a domain and registry number must not write
	// them onto the matched company.
	m, err := r.Resolve(context.Background(), obs("Acme Construction Ltd", "acme.co.uk", "01234567"))
	require.NoError(t, err)
	assert.Equal(t, model.MatchName, m.Type)
	assert.Empty(t, st.companies[0].Domain)
	assert.Empty(t, st.companies[0].RegistryNumber)
}

func TestResolve_FuzzyMatchDoesNotAdoptDomain(t *testing.T) {
	st := &mockCompanyStore{companies: []model.Company{
		{ID: 1, Name: "Acme Group", NormalizedName: "acme group"},
	}}
	r := NewResolver(st, 85)

	// "Acme Groop" fuzzy-matches "acme group", but the observed domain
	// stays off the candidate: the guess must not become an authoritative
	// identifier.
	m, err := r.Resolve(context.Background(), obs("Acme Groop", "acme.com", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchFuzzy, m.Type)
	assert.Equal(t, int64(1), m.Company.ID)
	assert.Empty(t, st.companies[0].Domain)

	// A later observation for the same domain under a different name
	// creates its own company instead of inheriting the fuzzy guess at
	// full confidence.
	m2, err := r.Resolve(context.Background(), obs("Zenith Rail", "acme.com", ""))
	require.NoError(t, err)
	assert.Equal(t, model.MatchNew, m2.Type)
	assert.NotEqual(t, m.Company.ID, m2.Company.ID)
}

func TestResolve_EmptyCompanyName(t *testing.T) {
	r := NewResolver(&mockCompanyStore{}, 85)
	_, err := r.Resolve(context.Background(), obs("  ", "", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no company name")
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.acme.co.uk/careers", "acme.co.uk"},
		{"http://Acme.CO.UK", "acme.co.uk"},
		{"acme.co.uk", "acme.co.uk"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDomain(tt.in), tt.in)
	}
}

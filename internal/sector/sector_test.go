package sector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/backend/internal/inference"
	"github.com/marketpulse/backend/internal/storage/models"
)

type fakeStore struct {
	sectors []*models.Sector
	err     error
}

func (f *fakeStore) ListSectors(ctx context.Context) ([]*models.Sector, error) {
	return f.sectors, f.err
}

func (f *fakeStore) AddSectorTickers(ctx context.Context, sectorID int64, tickers []string) ([]string, error) {
	for _, s := range f.sectors {
		if s.ID == sectorID {
			s.Tickers = append(s.Tickers, tickers...)
			return tickers, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeZeroShot struct {
	labels []inference.Label
	err    error
	calls  int
	text   string
	names  []string
}

func (f *fakeZeroShot) ZeroShot(ctx context.Context, model, text string, candidates []string) ([]inference.Label, error) {
	f.calls++
	f.text = text
	f.names = candidates
	return f.labels, f.err
}

type mapCache map[string]any

func (m mapCache) GetJSON(ctx context.Context, kind, id string, dest any) (bool, error) {
	v, ok := m[kind+id]
	if !ok {
		return false, nil
	}
	*(dest.(*[]inference.Label)) = v.([]inference.Label)
	return true, nil
}

func (m mapCache) SetJSON(ctx context.Context, kind, id string, value any, ttl time.Duration) error {
	m[kind+id] = value
	return nil
}

func testSectors() []*models.Sector {
	return []*models.Sector{
		{ID: 1, Name: "Finance", Keywords: []string{"bank", "loan"}, Tickers: []string{"HDFCBANK.NS", "SBIN.NS"}},
		{ID: 2, Name: "Technology", Keywords: []string{"software", "it services"}, Tickers: []string{"TCS.NS"}},
		{ID: 3, Name: "Energy", Keywords: []string{"oil", "power"}, Tickers: []string{"RELIANCE.NS", "TCS.NS"}},
	}
}

func TestMapperResolve(t *testing.T) {
	m := NewMapper(&fakeStore{sectors: testSectors()})
	ctx := context.Background()

	tests := []struct {
		name    string
		tickers []string
		wantID  int64
		wantOK  bool
	}{
		{"single match", []string{"reliance.ns"}, 3, true},
		{"first sector by id wins on overlap", []string{"TCS.NS"}, 2, true},
		{"any ticker may match", []string{"UNKNOWN", "SBIN.NS"}, 1, true},
		{"no match", []string{"AAPL"}, 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok, err := m.Resolve(ctx, tt.tickers)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestMapperResolveStoreError(t *testing.T) {
	m := NewMapper(&fakeStore{err: errors.New("db closed")})
	_, _, err := m.Resolve(context.Background(), []string{"TCS.NS"})
	require.Error(t, err)
}

func TestMapperExtendSkipsMappedTickers(t *testing.T) {
	store := &fakeStore{sectors: testSectors()}
	m := NewMapper(store)

	added, err := m.Extend(context.Background(), 1, []string{"TCS.NS", "icicibank.ns", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"ICICIBANK.NS"}, added)
	assert.Contains(t, store.sectors[0].Tickers, "ICICIBANK.NS")
	assert.NotContains(t, store.sectors[0].Tickers, "TCS.NS")
}

func TestClassifierAcceptsAtThreshold(t *testing.T) {
	oracle := &fakeZeroShot{labels: []inference.Label{{Label: "Energy", Score: 0.55}, {Label: "Finance", Score: 0.45}}}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli"})

	id, ok := c.Classify(context.Background(), "Crude oil prices surge on supply cuts")
	require.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, []string{"Finance", "Technology", "Energy"}, oracle.names)
}

func TestClassifierBelowThreshold(t *testing.T) {
	oracle := &fakeZeroShot{labels: []inference.Label{{Label: "Energy", Score: 0.54}}}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli"})

	_, ok := c.Classify(context.Background(), "Crude oil prices surge on supply cuts")
	assert.False(t, ok)
}

func TestClassifierShortTextSkipsOracle(t *testing.T) {
	oracle := &fakeZeroShot{}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli"})

	_, ok := c.Classify(context.Background(), "  Oil up 2%    ")
	assert.False(t, ok)
	assert.Zero(t, oracle.calls)
}

func TestClassifierNoSectors(t *testing.T) {
	oracle := &fakeZeroShot{}
	c := NewClassifier(oracle, &fakeStore{}, nil, ClassifierConfig{Model: "xnli"})

	_, ok := c.Classify(context.Background(), "Crude oil prices surge on supply cuts")
	assert.False(t, ok)
	assert.Zero(t, oracle.calls)
}

func TestClassifierTruncatesInput(t *testing.T) {
	oracle := &fakeZeroShot{labels: []inference.Label{{Label: "Finance", Score: 0.9}}}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli", MaxChars: 20})

	_, ok := c.Classify(context.Background(), "Banks report strong loan growth this quarter")
	require.True(t, ok)
	assert.Equal(t, "Banks report strong ", oracle.text)
}

func TestClassifierKeywordFallbackOnOracleFailure(t *testing.T) {
	oracle := &fakeZeroShot{err: context.DeadlineExceeded}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli"})

	id, ok := c.Classify(context.Background(), "Bank loan book grows while oil slips")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = c.Classify(context.Background(), "Monsoon arrives early across the south")
	assert.False(t, ok)
}

func TestClassifierUnknownLabel(t *testing.T) {
	oracle := &fakeZeroShot{labels: []inference.Label{{Label: "Agriculture", Score: 0.99}}}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, nil, ClassifierConfig{Model: "xnli"})

	_, ok := c.Classify(context.Background(), "Crude oil prices surge on supply cuts")
	assert.False(t, ok)
}

func TestClassifierCachesOracleResult(t *testing.T) {
	oracle := &fakeZeroShot{labels: []inference.Label{{Label: "Technology", Score: 0.8}}}
	c := NewClassifier(oracle, &fakeStore{sectors: testSectors()}, mapCache{}, ClassifierConfig{Model: "xnli"})

	for i := 0; i < 2; i++ {
		id, ok := c.Classify(context.Background(), "Software exports rise sharply")
		require.True(t, ok)
		assert.Equal(t, int64(2), id)
	}
	assert.Equal(t, 1, oracle.calls)
}

func TestMatchKeywords(t *testing.T) {
	sectors := testSectors()

	id, ok := MatchKeywords(sectors, "IT services firms and software majors; one bank")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	id, ok = MatchKeywords(sectors, "bank and software")
	require.True(t, ok)
	assert.Equal(t, int64(1), id, "tie goes to lower id")

	_, ok = MatchKeywords(sectors, "Bankruptcy filings rise")
	assert.False(t, ok, "whole words only")
}

func TestDefaultSeeds(t *testing.T) {
	seeds, err := DefaultSeeds()
	require.NoError(t, err)
	require.NotEmpty(t, seeds)

	names := make([]string, 0, len(seeds))
	for _, s := range seeds {
		names = append(names, s.Name)
	}
	assert.Subset(t, names, []string{"Finance", "Technology", "Energy", "Pharma", "Automobile"})
}

func TestParseSeedsRejectsSharedTickers(t *testing.T) {
	_, err := ParseSeeds([]byte(`
- name: A
  tickers: [X.NS]
- name: B
  tickers: [X.NS]
`))
	require.Error(t, err)
}

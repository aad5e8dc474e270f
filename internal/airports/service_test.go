package airports

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/storage/sqlite"
	"github.com/yegors/co-track/pkg/logger"
)

const sampleCSV = `"id","ident","type","name","latitude_deg","longitude_deg","elevation_ft"
2434,"LSZB","medium_airport","Bern Airport",46.912868,7.499368,1674
2435,"LSZG","small_airport","Grenchen Airport",47.181599,7.41719,1411
2436,"LSZH","large_airport","Zurich Airport",47.458056,8.548056,1416
9999,"BAD","small_airport","Broken",not-a-number,7.0,0
300001,"CH-0001","heliport","Inselspital Heliport",46.9476,7.4247,1788
`

func TestParseCSV(t *testing.T) {
	records, skipped, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 4)
	assert.Equal(t, markers.Record{
		ID: 2434, Ident: "LSZB", Type: markers.MediumAirport, Name: "Bern Airport", Lat: 46.912868, Lon: 7.499368,
	}, records[0])
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("id,ident,name\n1,X,Y\n"))
	assert.ErrorContains(t, err, "missing column")
}

func newTestService(t *testing.T, maxResults int) *Service {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.NewAirportStorage(filepath.Join(dir, "airports.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	csvPath := filepath.Join(dir, "airports.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))

	svc := NewService(store, Options{MaxResults: maxResults}, logger.NewNop())
	require.NoError(t, svc.ImportCSV(context.Background(), csvPath, true))
	return svc
}

func identsOf(records []markers.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Ident
	}
	return out
}

func TestService_LookupNearestFirst(t *testing.T) {
	svc := newTestService(t, 0)

	// Bern city center
	got, err := svc.Lookup(context.Background(), 46.948, 7.447, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH-0001", "LSZB", "LSZG"}, identsOf(got))
}

func TestService_LookupCapped(t *testing.T) {
	svc := newTestService(t, 2)

	got, err := svc.Lookup(context.Background(), 46.948, 7.447, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH-0001", "LSZB"}, identsOf(got))
}

func TestService_LookupInvalid(t *testing.T) {
	svc := newTestService(t, 0)

	_, err := svc.Lookup(context.Background(), 46.9, 7.4, 0)
	assert.Error(t, err)
	_, err = svc.Lookup(context.Background(), 95, 7.4, 10)
	assert.Error(t, err)
}

func TestService_ImportOnlyIfEmpty(t *testing.T) {
	svc := newTestService(t, 0)

	// a missing file is never read when the store is already populated
	require.NoError(t, svc.ImportCSV(context.Background(), "/does/not/exist.csv", true))
	assert.Error(t, svc.ImportCSV(context.Background(), "/does/not/exist.csv", false))
}

type countingStore struct {
	records []markers.Record
	queries int
}

func (s *countingStore) ReplaceAll(ctx context.Context, records []markers.Record) error {
	s.records = records
	return nil
}

func (s *countingStore) QueryBBox(ctx context.Context, box sqlite.BBox) ([]markers.Record, error) {
	s.queries++
	return append([]markers.Record(nil), s.records...), nil
}

func (s *countingStore) Count(ctx context.Context) (int, error) {
	return len(s.records), nil
}

func TestService_LookupCached(t *testing.T) {
	store := &countingStore{records: []markers.Record{{ID: 1, Ident: "LSZB", Lat: 46.91, Lon: 7.5}}}
	svc := NewService(store, Options{}, logger.NewNop())

	first, err := svc.Lookup(context.Background(), 46.9, 7.4, 10)
	require.NoError(t, err)
	first[0].Ident = "mutated"

	second, err := svc.Lookup(context.Background(), 46.9, 7.4, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, store.queries)
	assert.Equal(t, "LSZB", second[0].Ident)
}

func TestBoundingBox(t *testing.T) {
	box := boundingBox(46.9, 7.4, 60)
	assert.InDelta(t, 45.9, box.MinLat, 1e-9)
	assert.InDelta(t, 47.9, box.MaxLat, 1e-9)
	assert.Less(t, box.MinLon, 7.4-1.0)
	assert.Greater(t, box.MaxLon, 7.4+1.0)

	wrapped := boundingBox(-17.8, 179.5, 60)
	assert.Greater(t, wrapped.MinLon, wrapped.MaxLon)

	polar := boundingBox(89.5, 0, 60)
	assert.Equal(t, -180.0, polar.MinLon)
	assert.Equal(t, 180.0, polar.MaxLon)
}

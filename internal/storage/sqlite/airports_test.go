package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/pkg/logger"
)

func openTestStorage(t *testing.T) *AirportStorage {
	t.Helper()
	s, err := NewAirportStorage(filepath.Join(t.TempDir(), "airports.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testAirports = []markers.Record{
	{ID: 1, Ident: "LSZB", Name: "Bern Airport", Type: markers.MediumAirport, Lat: 46.914, Lon: 7.499},
	{ID: 2, Ident: "LSZH", Name: "Zurich Airport", Type: markers.LargeAirport, Lat: 47.458, Lon: 8.548},
	{ID: 3, Ident: "NZCH", Name: "Christchurch", Type: markers.LargeAirport, Lat: -43.489, Lon: 172.532},
	{ID: 4, Ident: "NFFN", Name: "Nadi", Type: markers.LargeAirport, Lat: -17.755, Lon: 177.443},
	{ID: 5, Ident: "PASY", Name: "Eareckson", Type: markers.MediumAirport, Lat: -17.9, Lon: -179.9},
}

func TestAirportStorage_ReplaceAndCount(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAll(ctx, testAirports))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testAirports), n)

	require.NoError(t, s.ReplaceAll(ctx, testAirports[:1]))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAirportStorage_QueryBBox(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, testAirports))

	got, err := s.QueryBBox(ctx, BBox{MinLat: 46, MaxLat: 47, MinLon: 7, MaxLon: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testAirports[0], got[0])
}

func TestAirportStorage_QueryBBoxAcrossAntimeridian(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceAll(ctx, testAirports))

	got, err := s.QueryBBox(ctx, BBox{MinLat: -19, MaxLat: -17, MinLon: 177, MaxLon: -179})
	require.NoError(t, err)

	idents := make([]string, 0, len(got))
	for _, r := range got {
		idents = append(idents, r.Ident)
	}
	assert.ElementsMatch(t, []string{"NFFN", "PASY"}, idents)
}

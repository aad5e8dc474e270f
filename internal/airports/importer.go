package airports

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yegors/co-track/internal/markers"
)

// Columns read from the OurAirports airports.csv export
var requiredColumns = []string{"id", "ident", "type", "name", "latitude_deg", "longitude_deg"}

// ParseCSV reads airport records in the OurAirports format. Rows with
// unparsable ids or coordinates are skipped and counted.
func ParseCSV(r io.Reader) ([]markers.Record, int, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", name)
		}
	}

	var out []markers.Record
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read row: %w", err)
		}

		rec, ok := parseRow(row, cols)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

func parseRow(row []string, cols map[string]int) (markers.Record, bool) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id, err := strconv.ParseInt(field("id"), 10, 64)
	if err != nil {
		return markers.Record{}, false
	}
	lat, err := strconv.ParseFloat(field("latitude_deg"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return markers.Record{}, false
	}
	lon, err := strconv.ParseFloat(field("longitude_deg"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return markers.Record{}, false
	}

	return markers.Record{
		ID:    id,
		Ident: field("ident"),
		Name:  field("name"),
		Type:  markers.FacilityType(field("type")),
		Lat:   lat,
		Lon:   lon,
	}, true
}

// ReadCSVFile parses an airports.csv file from disk
func ReadCSVFile(path string) ([]markers.Record, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()
	return ParseCSV(file)
}

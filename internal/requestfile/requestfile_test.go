package requestfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: https://www.united.com/en/gb
origin: London
destination: Chicago
departure_date: "2025-10-22"
passengers:
  - category: Adults
    count: 1
  - category: Children
    count: 1
cabin: " Economy "
`), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	want := schemas.SearchRequest{
		URL:           "https://www.united.com/en/gb",
		Origin:        "London",
		Destination:   "Chicago",
		DepartureDate: "2025-10-22",
		Passengers:    []schemas.Passenger{{Category: "Adults", Count: 1}, {Category: "Children", Count: 1}},
		Cabin:         schemas.CabinEconomy,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, got.Validate())
}

func TestDecode(t *testing.T) {
	t.Run("json documents are accepted", func(t *testing.T) {
		got, err := Decode(strings.NewReader(`{"origin": "London", "destination": "Chicago", "departure_date": "2025-10-22", "return_date": "2025-11-03", "passengers": [{"category": "Adults", "count": 2}]}`))
		require.NoError(t, err)
		assert.Equal(t, schemas.TripRoundTrip, got.TripType())
		assert.Equal(t, 2, got.Passengers[0].Count)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Decode(strings.NewReader("origin: London\ncabinType: economy\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cabinType")
	})

	t.Run("unknown cabin is kept for validation to report", func(t *testing.T) {
		got, err := Decode(strings.NewReader("cabin: premium\n"))
		require.NoError(t, err)
		assert.Equal(t, schemas.CabinClass("premium"), got.Cabin)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(strings.NewReader(""))
		assert.EqualError(t, err, "request file is empty")
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

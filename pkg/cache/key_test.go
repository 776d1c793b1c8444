package cache

import (
	"strings"
	"testing"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

func testKey() Key {
	return Key{
		Provider:  "open-meteo",
		Latitude:  47.4979,
		Longitude: 19.0402,
		Range: weather.DateRange{
			Start: weather.NewDate(2020, 6, 1),
			End:   weather.NewDate(2020, 8, 29),
		},
		Parameters: []weather.Parameter{weather.ParamTempMax, weather.ParamTempMin},
	}
}

func TestKeyString(t *testing.T) {
	s := testKey().String()

	if !strings.HasPrefix(s, "weather:segment:open-meteo:47.4979:19.0402:2020-06-01:2020-08-29:") {
		t.Errorf("unexpected key format: %s", s)
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := testKey().String()
	b := testKey().String()
	if a != b {
		t.Errorf("same key rendered differently: %s vs %s", a, b)
	}
}

func TestKeyParameterOrderIrrelevant(t *testing.T) {
	k1 := testKey()
	k1.Parameters = []weather.Parameter{weather.ParamTempMax, weather.ParamTempMin}
	k2 := testKey()
	k2.Parameters = []weather.Parameter{weather.ParamTempMin, weather.ParamTempMax}

	if k1.String() != k2.String() {
		t.Errorf("parameter order changed the key:\n%s\n%s", k1.String(), k2.String())
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	base := testKey()

	variants := []Key{base, base, base, base}
	variants[0].Provider = "meteostat"
	variants[1].Latitude = 48.0
	variants[2].Range.End = weather.NewDate(2020, 8, 30)
	variants[3].Parameters = []weather.Parameter{weather.ParamPrecipSum}

	seen := map[string]bool{base.String(): true}
	for i, v := range variants {
		s := v.String()
		if seen[s] {
			t.Errorf("variant %d collides with another key: %s", i, s)
		}
		seen[s] = true
	}
}

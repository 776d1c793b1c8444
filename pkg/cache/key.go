package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// Key identifies one cached segment response: which provider answered,
// for which point, over which span, with which parameter set.
type Key struct {
	Provider   string
	Latitude   float64
	Longitude  float64
	Range      weather.DateRange
	Parameters []weather.Parameter
}

// String generates a deterministic Redis key.
// Format: weather:segment:<provider>:<lat>:<lon>:<start>:<end>:<params-hash>
func (k Key) String() string {
	names := make([]string, len(k.Parameters))
	for i, p := range k.Parameters {
		names[i] = string(p)
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, ",")))

	return fmt.Sprintf("weather:segment:%s:%.4f:%.4f:%s:%s:%s",
		k.Provider,
		k.Latitude,
		k.Longitude,
		k.Range.Start,
		k.Range.End,
		hex.EncodeToString(sum[:8]),
	)
}

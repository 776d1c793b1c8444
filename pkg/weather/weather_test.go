package weather

import (
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name    string
		loc     Location
		wantErr bool
	}{
		{name: "valid", loc: Location{Name: "Budapest", Latitude: 47.4979, Longitude: 19.0402}},
		{name: "north pole", loc: Location{Latitude: 90, Longitude: 0}},
		{name: "latitude too high", loc: Location{Latitude: 90.1, Longitude: 0}, wantErr: true},
		{name: "latitude too low", loc: Location{Latitude: -91, Longitude: 0}, wantErr: true},
		{name: "longitude too high", loc: Location{Latitude: 0, Longitude: 180.5}, wantErr: true},
		{name: "longitude too low", loc: Location{Latitude: 0, Longitude: -181}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchRequestValidate(t *testing.T) {
	valid := FetchRequest{
		Location:   Location{Latitude: 47.5, Longitude: 19.04},
		Parameters: DefaultParameters(),
		Range: DateRange{
			Start: NewDate(2020, time.January, 1),
			End:   NewDate(2020, time.December, 31),
		},
		Provider: ProviderAuto,
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request failed validation: %v", err)
	}

	t.Run("no parameters", func(t *testing.T) {
		req := valid
		req.Parameters = nil
		if err := req.Validate(); err == nil {
			t.Error("expected error for empty parameter list")
		}
	})

	t.Run("unknown parameter", func(t *testing.T) {
		req := valid
		req.Parameters = []Parameter{"humidity_2m_max"}
		if err := req.Validate(); err == nil {
			t.Error("expected error for unknown parameter")
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		req := valid
		req.Range = DateRange{
			Start: NewDate(2020, time.June, 2),
			End:   NewDate(2020, time.June, 1),
		}
		if err := req.Validate(); err == nil {
			t.Error("expected error for start after end")
		}
	})

	t.Run("bad coordinates", func(t *testing.T) {
		req := valid
		req.Location.Latitude = 120
		if err := req.Validate(); err == nil {
			t.Error("expected error for out-of-range latitude")
		}
	})
}

func TestDailyRecordValue(t *testing.T) {
	rec := DailyRecord{
		Date:   NewDate(2020, time.June, 15),
		Source: "open-meteo",
		Values: map[Parameter]*float64{
			ParamTempMax:   fp(25.4),
			ParamPrecipSum: nil,
		},
	}

	if v, ok := rec.Value(ParamTempMax); !ok || v != 25.4 {
		t.Errorf("Value(ParamTempMax) = %v, %v; want 25.4, true", v, ok)
	}
	if _, ok := rec.Value(ParamPrecipSum); ok {
		t.Error("nil entry should report no value")
	}
	if _, ok := rec.Value(ParamWindSpeed); ok {
		t.Error("absent entry should report no value")
	}
}

func TestDailyRecordFillDerived(t *testing.T) {
	t.Run("computes mean from max and min", func(t *testing.T) {
		rec := DailyRecord{
			Values: map[Parameter]*float64{
				ParamTempMax: fp(20),
				ParamTempMin: fp(10),
			},
		}
		rec.FillDerived()
		if v, ok := rec.Value(ParamTempMean); !ok || v != 15 {
			t.Errorf("derived mean = %v, %v; want 15, true", v, ok)
		}
	})

	t.Run("keeps reported mean", func(t *testing.T) {
		rec := DailyRecord{
			Values: map[Parameter]*float64{
				ParamTempMax:  fp(20),
				ParamTempMin:  fp(10),
				ParamTempMean: fp(14.2),
			},
		}
		rec.FillDerived()
		if v, _ := rec.Value(ParamTempMean); v != 14.2 {
			t.Errorf("mean = %v, want reported 14.2", v)
		}
	})

	t.Run("leaves mean unset without both ends", func(t *testing.T) {
		rec := DailyRecord{
			Values: map[Parameter]*float64{ParamTempMax: fp(20)},
		}
		rec.FillDerived()
		if _, ok := rec.Value(ParamTempMean); ok {
			t.Error("mean should stay unset when min is missing")
		}
	})
}

func TestMergedSeriesGapDays(t *testing.T) {
	s := MergedSeries{
		Range: DateRange{Start: NewDate(2020, time.June, 1), End: NewDate(2020, time.June, 10)},
		Gaps: []Gap{
			{Range: DateRange{Start: NewDate(2020, time.June, 3), End: NewDate(2020, time.June, 4)}, Reason: GapAllProvidersFailed},
			{Range: DateRange{Start: NewDate(2020, time.June, 9), End: NewDate(2020, time.June, 9)}, Reason: GapCancelled},
		},
	}

	if s.Complete() {
		t.Error("series with gaps reported complete")
	}
	if got := s.GapDays(); got != 3 {
		t.Errorf("GapDays() = %d, want 3", got)
	}

	empty := MergedSeries{Range: s.Range}
	if !empty.Complete() {
		t.Error("gapless series reported incomplete")
	}
}

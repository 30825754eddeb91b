package validate

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/triage-ai/icio-mcp/internal/apperr"
)

// fakeRefs is an in-memory ReferenceStore that counts lookups.
type fakeRefs struct {
	countries map[string]bool
	sectors   map[string]bool
	err       error
	lookups   int
}

func (f *fakeRefs) CountryExists(_ context.Context, iso3 string) (bool, error) {
	f.lookups++
	if f.err != nil {
		return false, f.err
	}
	return f.countries[iso3], nil
}

func (f *fakeRefs) SectorExists(_ context.Context, code string) (bool, error) {
	f.lookups++
	if f.err != nil {
		return false, f.err
	}
	return f.sectors[code], nil
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{
		countries: map[string]bool{"FRA": true, "DEU": true, "CHN": true, "USA": true},
		sectors:   map[string]bool{"C26": true, "C29": true},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fra", "FRA"},
		{"  deu \n", "DEU"},
		{"C26", "C26"},
		{"c26 ", "C26"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", tt.in, got, again)
		}
	}
}

func TestCountryCode_Format(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		aggregate bool
		want      string
		kind      apperr.Kind
	}{
		{"lowercase normalized", " fra ", false, "FRA", ""},
		{"too short", "FR", false, "", apperr.KindInvalidFormat},
		{"digits", "F1A", false, "", apperr.KindInvalidFormat},
		{"empty", "", false, "", apperr.KindInvalidFormat},
		{"nil", nil, false, "", apperr.KindInvalidFormat},
		{"number", 250.0, false, "", apperr.KindInvalidType},
		{"aggregate allowed", "row", true, "ROW", ""},
		{"aggregate refused", "ROW", false, "", apperr.KindInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountryCode("buyer_country", tt.raw, tt.aggregate)
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Fatalf("expected %q, got %q", tt.want, got)
				}
				return
			}
			if apperr.KindOf(err) != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestSectorCode_Format(t *testing.T) {
	if got, err := SectorCode("buyer_sector", " c26"); err != nil || got != "C26" {
		t.Fatalf("expected C26, got %q (%v)", got, err)
	}
	for _, bad := range []any{"C2", "26C", "CC26", "C2A", ""} {
		if _, err := SectorCode("buyer_sector", bad); !errors.Is(err, apperr.ErrInvalidFormat) {
			t.Errorf("SectorCode(%q): expected invalid format, got %v", bad, err)
		}
	}
}

func TestValidateCountry_NotFound(t *testing.T) {
	refs := newFakeRefs()
	v := NewValidator(refs)

	_, err := v.ValidateCountry(context.Background(), "buyer_country", "XXX", false)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Field != "buyer_country" {
		t.Fatalf("expected field buyer_country, got %+v", appErr)
	}
}

func TestValidateCountry_FormatFailureSkipsLookup(t *testing.T) {
	refs := newFakeRefs()
	v := NewValidator(refs)

	_, err := v.ValidateCountry(context.Background(), "buyer_country", "FRANCE", false)
	if !errors.Is(err, apperr.ErrInvalidFormat) {
		t.Fatalf("expected invalid format, got %v", err)
	}
	if refs.lookups != 0 {
		t.Fatalf("expected no lookups, got %d", refs.lookups)
	}
}

func TestValidateCountry_AggregateBypassesLookup(t *testing.T) {
	refs := newFakeRefs()
	v := NewValidator(refs)

	got, err := v.ValidateCountry(context.Background(), "supplier_country", "row", true)
	if err != nil {
		t.Fatal(err)
	}
	if got != Aggregate {
		t.Fatalf("expected %s, got %s", Aggregate, got)
	}
	if refs.lookups != 0 {
		t.Fatalf("expected no lookups for aggregate, got %d", refs.lookups)
	}
}

func TestValidateSector(t *testing.T) {
	v := NewValidator(newFakeRefs())

	if got, err := v.ValidateSector(context.Background(), "buyer_sector", "c29"); err != nil || got != "C29" {
		t.Fatalf("expected C29, got %q (%v)", got, err)
	}
	if _, err := v.ValidateSector(context.Background(), "buyer_sector", "Z99"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateCountry_LookupErrorPropagates(t *testing.T) {
	refs := newFakeRefs()
	refs.err = apperr.QueryExecution(errors.New("connection refused"))
	v := NewValidator(refs)

	_, err := v.ValidateCountry(context.Background(), "buyer_country", "FRA", false)
	if !errors.Is(err, apperr.ErrQueryExecution) {
		t.Fatalf("expected query execution error, got %v", err)
	}
	if apperr.IsInvalidInput(err) {
		t.Fatal("backend failure must not be reported as invalid input")
	}
}

func TestYear(t *testing.T) {
	tests := []struct {
		raw  any
		want int
		kind apperr.Kind
	}{
		{2022, 2022, ""},
		{2022.0, 2022, ""},
		{json.Number("1995"), 1995, ""},
		{"2100", 0, apperr.KindInvalidType},
		{1994, 0, apperr.KindOutOfRange},
		{2101.0, 0, apperr.KindOutOfRange},
		{2022.5, 0, apperr.KindInvalidType},
		{"twenty", 0, apperr.KindInvalidType},
		{true, 0, apperr.KindInvalidType},
		{nil, 0, apperr.KindInvalidType},
	}
	for _, tt := range tests {
		got, err := Year("year", tt.raw)
		if tt.kind != "" {
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("Year(%v): expected %s, got %v", tt.raw, tt.kind, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Year(%v) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}

func TestLimit_Clamps(t *testing.T) {
	for _, n := range []int{1, 2, 10, 199, 200, 201, 1000, 1 << 40} {
		got, err := Limit("limit", n, 200)
		if err != nil {
			t.Fatalf("Limit(%d): %v", n, err)
		}
		want := n
		if want > 200 {
			want = 200
		}
		if got != want {
			t.Errorf("Limit(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestLimit_RejectsNonPositive(t *testing.T) {
	for _, n := range []any{0, -1, -500.0} {
		if _, err := Limit("limit", n, 200); !errors.Is(err, apperr.ErrOutOfRange) {
			t.Errorf("Limit(%v): expected out of range, got %v", n, err)
		}
	}
	if _, err := Limit("limit", 1.5, 200); !errors.Is(err, apperr.ErrInvalidType) {
		t.Errorf("expected invalid type for fractional limit, got %v", err)
	}
}

func TestYearRange(t *testing.T) {
	from, to, err := YearRange("year_from", 2016, "year_to", 2022)
	if err != nil || from != 2016 || to != 2022 {
		t.Fatalf("expected (2016, 2022), got (%d, %d, %v)", from, to, err)
	}

	from, to, err = YearRange("year_from", 2020, "year_to", 2020)
	if err != nil || from != 2020 || to != 2020 {
		t.Fatalf("expected equal bounds to pass, got (%d, %d, %v)", from, to, err)
	}

	if _, _, err := YearRange("year_from", 2022, "year_to", 2016); !errors.Is(err, apperr.ErrRangeInverted) {
		t.Fatalf("expected range inverted, got %v", err)
	}
	if _, _, err := YearRange("year_from", 1990, "year_to", 2016); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Fatalf("expected out of range for bound, got %v", err)
	}
}

func TestValidateCountryList_DedupPreservesOrder(t *testing.T) {
	v := NewValidator(newFakeRefs())

	got, err := v.ValidateCountryList(context.Background(), "buyer_countries", []any{"fra", "FRA", "deu"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"FRA", "DEU"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValidateCountryList_ExcludesAggregate(t *testing.T) {
	v := NewValidator(newFakeRefs())

	got, err := v.ValidateCountryList(context.Background(), "buyer_countries", []string{"ROW", "deu", " row ", "FRA"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"DEU", "FRA"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValidateCountryList_Empty(t *testing.T) {
	v := NewValidator(newFakeRefs())

	for _, raw := range []any{nil, []any{}, "FRA", []any{"ROW"}} {
		if _, err := v.ValidateCountryList(context.Background(), "buyer_countries", raw); !errors.Is(err, apperr.ErrEmptyList) {
			t.Errorf("ValidateCountryList(%v): expected empty list, got %v", raw, err)
		}
	}
}

func TestValidateCountryList_FormatBeforeLookup(t *testing.T) {
	refs := newFakeRefs()
	v := NewValidator(refs)

	_, err := v.ValidateCountryList(context.Background(), "buyer_countries", []any{"FRA", "DEU", "not-a-code"})
	if !errors.Is(err, apperr.ErrInvalidFormat) {
		t.Fatalf("expected invalid format, got %v", err)
	}
	if refs.lookups != 0 {
		t.Fatalf("expected no lookups before all formats pass, got %d", refs.lookups)
	}
}

func TestValidateCountryList_UnknownElement(t *testing.T) {
	v := NewValidator(newFakeRefs())

	_, err := v.ValidateCountryList(context.Background(), "buyer_countries", []any{"FRA", "XXX"})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if appErr.Field != "buyer_countries[1]" {
		t.Fatalf("expected element field, got %q", appErr.Field)
	}
}

func TestValidateCountryList_UnknownElementAfterDuplicates(t *testing.T) {
	v := NewValidator(newFakeRefs())

	_, err := v.ValidateCountryList(context.Background(), "buyer_countries", []any{"FRA", "ROW", "fra", "XXX"})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if appErr.Field != "buyer_countries[3]" {
		t.Fatalf("expected index in the caller's list, got %q", appErr.Field)
	}
}

func TestCountryCodes_Positions(t *testing.T) {
	list, err := CountryCodes("buyer_countries", []any{"ROW", "fra", "FRA", "deu"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"FRA", "DEU"}; !reflect.DeepEqual(list.Codes, want) {
		t.Fatalf("expected codes %v, got %v", want, list.Codes)
	}
	if want := []int{1, 3}; !reflect.DeepEqual(list.Positions, want) {
		t.Fatalf("expected positions %v, got %v", want, list.Positions)
	}
}

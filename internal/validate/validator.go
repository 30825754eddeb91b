// Package validate normalizes and checks caller-supplied codes and numbers
// before they are bound to SQL parameters.
//
// Checks come in two groups. The package-level functions are pure format and
// range checks. The Validator methods add reference-table lookups and are
// the only ones that touch the data store.
package validate

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"

	"github.com/triage-ai/icio-mcp/internal/apperr"
)

// Aggregate is the reserved supplier code for "rest of world".
const Aggregate = "ROW"

const (
	MinYear = 1995
	MaxYear = 2100
)

var (
	countryPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	sectorPattern  = regexp.MustCompile(`^[A-Z][0-9]{2}$`)
)

// ReferenceStore answers existence questions against the reference tables.
type ReferenceStore interface {
	CountryExists(ctx context.Context, iso3 string) (bool, error)
	SectorExists(ctx context.Context, code string) (bool, error)
}

// Validator combines format checks with reference lookups.
type Validator struct {
	refs ReferenceStore
}

// NewValidator creates a Validator backed by the given reference store.
func NewValidator(refs ReferenceStore) *Validator {
	return &Validator{refs: refs}
}

// CountryCode normalizes raw and checks its shape. The aggregate sentinel is
// accepted only when allowAggregate is set.
func CountryCode(field string, raw any, allowAggregate bool) (string, error) {
	code, ok := normalizeValue(raw)
	if !ok {
		return "", apperr.New(apperr.KindInvalidType, field, "%s must be a string", field)
	}
	if code == Aggregate {
		if allowAggregate {
			return code, nil
		}
		return "", apperr.New(apperr.KindInvalidFormat, field,
			"%s does not accept the aggregate code %q", field, Aggregate)
	}
	if !countryPattern.MatchString(code) {
		return "", apperr.New(apperr.KindInvalidFormat, field,
			"%s must be a 3-letter ISO code, got %q", field, code)
	}
	return code, nil
}

// SectorCode normalizes raw and checks it is one letter followed by two digits.
func SectorCode(field string, raw any) (string, error) {
	code, ok := normalizeValue(raw)
	if !ok {
		return "", apperr.New(apperr.KindInvalidType, field, "%s must be a string", field)
	}
	if !sectorPattern.MatchString(code) {
		return "", apperr.New(apperr.KindInvalidFormat, field,
			"%s must be a letter followed by two digits (e.g. C26), got %q", field, code)
	}
	return code, nil
}

// CountryList is a normalized, de-duplicated list of country codes.
// Positions[i] is the index of Codes[i] in the caller's list.
type CountryList struct {
	Codes     []string
	Positions []int
}

// CountryCodes normalizes a list of country codes, drops the aggregate
// sentinel and duplicates, and checks the shape of every element. Order of
// first occurrence is preserved.
func CountryCodes(field string, raw any) (CountryList, error) {
	items, ok := raw.([]any)
	if !ok {
		if strs, isStrs := raw.([]string); isStrs {
			items = make([]any, len(strs))
			for i, s := range strs {
				items[i] = s
			}
		} else {
			return CountryList{}, apperr.New(apperr.KindEmptyList, field, "%s must be a non-empty list", field)
		}
	}

	seen := make(map[string]struct{}, len(items))
	list := CountryList{
		Codes:     make([]string, 0, len(items)),
		Positions: make([]int, 0, len(items)),
	}
	for i, item := range items {
		elemField := field + "[" + strconv.Itoa(i) + "]"
		code, ok := normalizeValue(item)
		if !ok {
			return CountryList{}, apperr.New(apperr.KindInvalidType, elemField, "%s must be a string", elemField)
		}
		if code == Aggregate {
			continue
		}
		code, err := CountryCode(elemField, code, false)
		if err != nil {
			return CountryList{}, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		list.Codes = append(list.Codes, code)
		list.Positions = append(list.Positions, i)
	}

	if len(list.Codes) == 0 {
		return CountryList{}, apperr.New(apperr.KindEmptyList, field, "%s must contain at least one country code", field)
	}
	return list, nil
}

// Year checks raw is an integer within [MinYear, MaxYear].
func Year(field string, raw any) (int, error) {
	n, err := integer(field, raw)
	if err != nil {
		return 0, err
	}
	if n < MinYear || n > MaxYear {
		return 0, apperr.New(apperr.KindOutOfRange, field,
			"%s must be between %d and %d, got %d", field, MinYear, MaxYear, n)
	}
	return int(n), nil
}

// Limit checks raw is a positive integer and clamps it to maxCap.
func Limit(field string, raw any, maxCap int) (int, error) {
	n, err := integer(field, raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, apperr.New(apperr.KindOutOfRange, field, "%s must be >= 1, got %d", field, n)
	}
	if n > int64(maxCap) {
		return maxCap, nil
	}
	return int(n), nil
}

// YearRange checks both bounds and that from <= to.
func YearRange(fromField string, from any, toField string, to any) (int, int, error) {
	f, err := Year(fromField, from)
	if err != nil {
		return 0, 0, err
	}
	t, err := Year(toField, to)
	if err != nil {
		return 0, 0, err
	}
	if err := CheckRange(fromField, f, toField, t); err != nil {
		return 0, 0, err
	}
	return f, t, nil
}

// CheckRange fails with RangeInverted when from > to.
func CheckRange(fromField string, from int, toField string, to int) error {
	if from > to {
		return apperr.New(apperr.KindRangeInverted, fromField,
			"%s (%d) must not be after %s (%d)", fromField, from, toField, to)
	}
	return nil
}

// LookupCountry confirms a well-formed code exists in the countries table.
// The aggregate sentinel is never looked up.
func (v *Validator) LookupCountry(ctx context.Context, field, code string) error {
	if code == Aggregate {
		return nil
	}
	ok, err := v.refs.CountryExists(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, field, "%s %q not found in countries", field, code)
	}
	return nil
}

// LookupSector confirms a well-formed code exists in the activities table.
func (v *Validator) LookupSector(ctx context.Context, field, code string) error {
	ok, err := v.refs.SectorExists(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, field, "%s %q not found in activities", field, code)
	}
	return nil
}

// ValidateCountry runs the format check and then the reference lookup.
func (v *Validator) ValidateCountry(ctx context.Context, field string, raw any, allowAggregate bool) (string, error) {
	code, err := CountryCode(field, raw, allowAggregate)
	if err != nil {
		return "", err
	}
	if err := v.LookupCountry(ctx, field, code); err != nil {
		return "", err
	}
	return code, nil
}

// ValidateSector runs the format check and then the reference lookup.
func (v *Validator) ValidateSector(ctx context.Context, field string, raw any) (string, error) {
	code, err := SectorCode(field, raw)
	if err != nil {
		return "", err
	}
	if err := v.LookupSector(ctx, field, code); err != nil {
		return "", err
	}
	return code, nil
}

// ValidateCountryList checks every element's shape before looking any of
// them up.
func (v *Validator) ValidateCountryList(ctx context.Context, field string, raw any) ([]string, error) {
	list, err := CountryCodes(field, raw)
	if err != nil {
		return nil, err
	}
	if err := v.LookupCountries(ctx, field, list); err != nil {
		return nil, err
	}
	return list.Codes, nil
}

// LookupCountries looks up each code in order and stops at the first miss.
// A miss names the element by its index in the caller's list.
func (v *Validator) LookupCountries(ctx context.Context, field string, list CountryList) error {
	for i, code := range list.Codes {
		pos := i
		if i < len(list.Positions) {
			pos = list.Positions[i]
		}
		if err := v.LookupCountry(ctx, field+"["+strconv.Itoa(pos)+"]", code); err != nil {
			return err
		}
	}
	return nil
}

// integer converts a decoded argument into an int64. Fractional numbers,
// booleans and strings are rejected.
func integer(field string, raw any) (int64, error) {
	invalid := apperr.New(apperr.KindInvalidType, field, "%s must be an integer", field)

	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return floatInteger(float64(v), invalid)
	case float64:
		return floatInteger(v, invalid)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, invalid
		}
		return floatInteger(f, invalid)
	default:
		return 0, invalid
	}
}

func floatInteger(f float64, invalid error) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalid
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	if f <= math.MinInt64 {
		return math.MinInt64, nil
	}
	return int64(f), nil
}

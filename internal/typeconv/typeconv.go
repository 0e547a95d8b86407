// Package typeconv converts the string literal a user types into an HTML
// form field into the typed value a task parameter declares: scalars,
// domain types with range checks, and the Optional[T]/enum[...]
// modifiers.
package typeconv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	optionalRe = regexp.MustCompile(`^Optional\[(.*)\]$`)
	enumRe     = regexp.MustCompile(`^enum\[(.*)\]$`)
)

// LatLonArea is the parsed form of the "n/w/s/e" latlonArea grammar.
type LatLonArea struct {
	North, West, South, East float64
}

// MarsParam is a (name, level) pair; level 0 means a surface parameter.
type MarsParam struct {
	Name  string
	Level int
}

var paramLevels = []string{"q", "t", "u", "v", "w", "z"}
var levelValues = []string{"50", "100", "150", "200", "250", "300", "400", "500", "600", "700", "850", "925", "1000"}
var surfaceParams = []string{"10u", "10v", "2d", "2t", "msl", "skt", "sp", "tcw", "cp", "tp"}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Convert parses literal according to classTag and returns the typed Go
// value, or a descriptive error a form user could act on. classTag may be
// wrapped in Optional[...] or be an enum[...] grammar.
func Convert(classTag, literal string) (any, error) {
	if m := optionalRe.FindStringSubmatch(classTag); m != nil {
		if literal == "" {
			return nil, nil
		}
		return Convert(m[1], literal)
	}
	if m := enumRe.FindStringSubmatch(classTag); m != nil {
		members := strings.Split(m[1], ",")
		if contains(members, literal) {
			return literal, nil
		}
		return nil, errors.Errorf("value %q is not a member of %s", truncate(literal, 32), classTag)
	}

	switch classTag {
	case "int":
		v, err := strconv.Atoi(literal)
		if err != nil {
			return nil, errors.Wrapf(err, "not a valid int: %q", truncate(literal, 32))
		}
		return v, nil
	case "float":
		v, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "not a valid float: %q", truncate(literal, 32))
		}
		return v, nil
	case "str":
		return literal, nil
	case "latitude":
		return latitude(literal)
	case "longitude":
		return longitude(literal)
	case "latlonArea":
		return latlonArea(literal)
	case "marsParam":
		return marsParam(literal)
	case "marsParamList":
		return marsParamList(literal)
	case "datetime":
		return datetimeValue(literal)
	case "six_hours":
		return sixHours(literal)
	default:
		return nil, errors.Errorf("unknown class tag %q", classTag)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func latitude(value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "not a valid latitude: %q", value)
	}
	if f > 90.0 || f < -90.0 {
		return 0, errors.Errorf("latitude out of range [-90,90]: %v", f)
	}
	return f, nil
}

func longitude(value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "not a valid longitude: %q", value)
	}
	if f > 180.0 || f < -180.0 {
		return 0, errors.Errorf("longitude out of range [-180,180]: %v", f)
	}
	return f, nil
}

func latlonArea(value string) (LatLonArea, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 4 {
		return LatLonArea{}, errors.Errorf("latlonArea must be n/w/s/e, got %q", value)
	}
	n, err := latitude(parts[0])
	if err != nil {
		return LatLonArea{}, err
	}
	w, err := longitude(parts[1])
	if err != nil {
		return LatLonArea{}, err
	}
	s, err := latitude(parts[2])
	if err != nil {
		return LatLonArea{}, err
	}
	e, err := longitude(parts[3])
	if err != nil {
		return LatLonArea{}, err
	}
	var msgs []string
	if n <= s {
		msgs = append(msgs, fmt.Sprintf("north lat %v is under south lat %v", n, s))
	}
	if w >= e {
		msgs = append(msgs, fmt.Sprintf("west lon %v is over east lon %v", w, e))
	}
	if len(msgs) > 0 {
		return LatLonArea{}, errors.New(strings.Join(msgs, "; "))
	}
	return LatLonArea{North: n, West: w, South: s, East: e}, nil
}

func marsParam(value string) (MarsParam, error) {
	if contains(surfaceParams, value) {
		return MarsParam{Name: value, Level: 0}, nil
	}
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 || !contains(paramLevels, parts[0]) || !contains(levelValues, parts[1]) {
		return MarsParam{}, errors.Errorf("not a valid mars param: %q", truncate(value, 32))
	}
	level, err := strconv.Atoi(parts[1])
	if err != nil {
		return MarsParam{}, errors.Wrapf(err, "not a valid mars param level: %q", parts[1])
	}
	return MarsParam{Name: parts[0], Level: level}, nil
}

func marsParamList(value string) ([]MarsParam, error) {
	if value == "all" {
		var out []MarsParam
		for _, p := range paramLevels {
			for _, l := range levelValues {
				lv, _ := strconv.Atoi(l)
				out = append(out, MarsParam{Name: p, Level: lv})
			}
		}
		for _, p := range surfaceParams {
			out = append(out, MarsParam{Name: p, Level: 0})
		}
		return out, nil
	}
	var out []MarsParam
	for _, e := range strings.Split(value, ",") {
		p, err := marsParam(strings.TrimSpace(e))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func datetimeValue(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("not a valid datetime (expected YYYY-MM-DDTHH:MM[:SS]): %q", value)
}

func sixHours(value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "not a valid integer: %q", value)
	}
	if v <= 0 || v%6 != 0 {
		return 0, errors.Errorf("value must be a positive multiple of six: %v", v)
	}
	return v, nil
}

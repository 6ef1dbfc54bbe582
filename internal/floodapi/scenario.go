package floodapi

import "fmt"

// HistoricalTag is the scenario tag the flood API uses for present-day
// statistics.
const HistoricalTag = "historical"

// yearRanges maps projection years to the CMIP6 averaging windows the flood
// API understands.
var yearRanges = map[int]string{
	2030: "2016-2045",
	2040: "2026-2055",
	2050: "2036-2065",
	2080: "2066-2095",
	2100: "2086-2115",
}

// pillarYears are the projection years requested on every API call so that
// later lookups for the same locations hit the cache. 2040 and 2100 are
// omitted to keep responses small.
var pillarYears = []int{2030, 2050, 2080}

var supportedScenarios = []string{"ssp126", "ssp245", "ssp585"}

// ScenarioTag builds the combined scenario/year tag the flood API uses,
// e.g. "ssp585_2066-2095". The historical scenario maps to a single tag
// with no year component.
func ScenarioTag(scenario string, year int) (string, error) {
	if scenario == HistoricalTag {
		return HistoricalTag, nil
	}
	supported := false
	for _, s := range supportedScenarios {
		if s == scenario {
			supported = true
			break
		}
	}
	if !supported {
		return "", fmt.Errorf("scenario %s not supported by flood API", scenario)
	}
	rng, ok := yearRanges[year]
	if !ok {
		return "", fmt.Errorf("year %d not supported by flood API", year)
	}
	return scenario + "_" + rng, nil
}

// PrefetchTags returns every projection tag requested on each API call.
// The API charges per location rather than per scenario, so requesting the
// full set and caching it makes repeat lookups free. The historical tag is
// not listed here; the API returns it whenever baseline statistics are
// requested.
func PrefetchTags() []string {
	tags := make([]string, 0, len(pillarYears)*len(supportedScenarios))
	for _, y := range pillarYears {
		for _, s := range supportedScenarios {
			tag, _ := ScenarioTag(s, y)
			tags = append(tags, tag)
		}
	}
	return tags
}

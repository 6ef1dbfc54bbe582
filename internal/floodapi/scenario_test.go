package floodapi

import (
	"strings"
	"testing"
)

// TestScenarioTag covers the supported scenario/year combinations and the
// rejections for anything outside them.
func TestScenarioTag(t *testing.T) {
	cases := []struct {
		scenario string
		year     int
		want     string
		wantErr  bool
	}{
		{"historical", 0, "historical", false},
		{"historical", 2080, "historical", false},
		{"ssp126", 2030, "ssp126_2016-2045", false},
		{"ssp245", 2040, "ssp245_2026-2055", false},
		{"ssp585", 2050, "ssp585_2036-2065", false},
		{"ssp585", 2080, "ssp585_2066-2095", false},
		{"ssp585", 2100, "ssp585_2086-2115", false},
		{"ssp585", 2077, "", true},
		{"rcp8p5", 2050, "", true},
		{"", 2050, "", true},
	}
	for _, c := range cases {
		got, err := ScenarioTag(c.scenario, c.year)
		if c.wantErr {
			if err == nil {
				t.Errorf("ScenarioTag(%q, %d): expected error, got %q", c.scenario, c.year, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ScenarioTag(%q, %d): %v", c.scenario, c.year, err)
			continue
		}
		if got != c.want {
			t.Errorf("ScenarioTag(%q, %d) = %q, want %q", c.scenario, c.year, got, c.want)
		}
	}
}

// TestPrefetchTags verifies every prefetched tag is well formed and that
// the set covers all supported scenarios for each pillar year.
func TestPrefetchTags(t *testing.T) {
	tags := PrefetchTags()
	if len(tags) != len(pillarYears)*len(supportedScenarios) {
		t.Fatalf("got %d tags, want %d", len(tags), len(pillarYears)*len(supportedScenarios))
	}
	seen := make(map[string]bool)
	for _, tag := range tags {
		if seen[tag] {
			t.Errorf("duplicate tag %q", tag)
		}
		seen[tag] = true
		if !strings.Contains(tag, "_") {
			t.Errorf("tag %q missing year range", tag)
		}
	}
	for _, want := range []string{"ssp126_2016-2045", "ssp245_2036-2065", "ssp585_2066-2095"} {
		if !seen[want] {
			t.Errorf("expected tag %q in prefetch set", want)
		}
	}
}

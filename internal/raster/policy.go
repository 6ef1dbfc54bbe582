package raster

import "fmt"

// Policy selects the sub-pixel sampling strategy for point lookups.
type Policy string

const (
	// PolicyFloor truncates to the containing pixel.
	PolicyFloor Policy = "floor"
	// PolicyLinear bilinearly interpolates the four surrounding pixels.
	PolicyLinear Policy = "linear"
	// PolicyMax takes the maximum of the four surrounding pixels.
	PolicyMax Policy = "max"
	// PolicyMin takes the minimum of the four surrounding pixels.
	PolicyMin Policy = "min"
)

// ParsePolicy validates a policy string from config or a request.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFloor, PolicyLinear, PolicyMax, PolicyMin:
		return Policy(s), nil
	}
	return "", fmt.Errorf("interpolation must be floor, linear, max or min, got %q", s)
}

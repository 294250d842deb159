package timezone

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Load resolves an IANA zone name, an empty name is UTC. tzdata is
// embedded, zone names resolve without a system zoneinfo.
func Load(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone '%s': %w", name, err)
	}
	return loc, nil
}

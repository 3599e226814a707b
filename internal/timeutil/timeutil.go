// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// HumanLayout is the layout accepted for start/stop times on the command line and in config.
const HumanLayout = "2006-01-02 15:04:05"

// rfc3339Nano always renders nine fractional digits and a numeric offset, e.g.
// 2024-02-20T03:04:00.000000000+02:00. The flow metrics endpoint rejects "Z".
const rfc3339Nano = "2006-01-02T15:04:05.000000000-07:00"

// Location returns the zone used to interpret human times. A nil offset means the local zone.
func Location(offsetMin *int) *time.Location {
	if offsetMin == nil {
		return time.Local
	}
	return time.FixedZone("", *offsetMin*60)
}

// ParseHuman parses a human time in the given zone.
func ParseHuman(human string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(HumanLayout, strings.TrimSpace(human), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected %q): %w", human, HumanLayout, err)
	}
	return t, nil
}

// ToRFC3339Nano converts a human time to the RFC3339 nanosecond form used by
// getEdgeFlowVisibilityMetrics.
func ToRFC3339Nano(human string, offsetMin *int) (string, error) {
	t, err := ParseHuman(human, Location(offsetMin))
	if err != nil {
		return "", err
	}
	return t.Format(rfc3339Nano), nil
}

// ToUnixMillis converts a human time to epoch milliseconds, as used by getEnterpriseEvents.
// Seconds precision only; the result is always a multiple of 1000.
func ToUnixMillis(human string, offsetMin *int) (int64, error) {
	t, err := ParseHuman(human, Location(offsetMin))
	if err != nil {
		return 0, err
	}
	return t.Unix() * 1000, nil
}

// FileStamp renders a human time for use in file names: "2024-02-20 03:04:00" becomes
// "2024-02-20_03-04-00".
func FileStamp(human string) string {
	return strings.NewReplacer(":", "-", " ", "_").Replace(human)
}

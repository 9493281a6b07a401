package services

import (
	"fmt"
	"time"

	"github.com/analyticbot/apiclient/validation"
)

// PeriodRange converts an analytics period into the [from, to] range ending at now.
func PeriodRange(period string, now time.Time) (from, to time.Time, err error) {
	var d time.Duration
	switch period {
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	case "90d":
		d = 90 * 24 * time.Hour
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q, expected one of %v", period, validation.Periods)
	}
	to = now.UTC()
	return to.Add(-d), to, nil
}

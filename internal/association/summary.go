package association

import (
	"fmt"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

const summaryTimeFormat = "2006-01-02 15:04:05.000"

// FormatEvent renders a one-line description of an event.
func FormatEvent(ev domain.Event) string {
	mag := "M?"
	if m, ok := ev.PreferredMagnitude(); ok {
		mag = fmt.Sprintf("%s %.1f", m.Scale, m.Value)
	}
	return fmt.Sprintf("%s %s %8.4f %9.4f %5.1f km %s",
		ev.ID, ev.Time.UTC().Format(summaryTimeFormat), ev.Lat, ev.Lon, ev.Depth/1000, mag)
}

// FormatCandidate renders a candidate with its separation from the event.
func FormatCandidate(c domain.CandidateOrigin) string {
	mag := "M?"
	if c.Magnitude != nil {
		mag = fmt.Sprintf("M%.1f", *c.Magnitude)
	}
	return fmt.Sprintf("%s %s %8.4f %9.4f %5.1f km %s (%+.1f s, %.1f km, metric %.2f)",
		c.ID, c.Time.UTC().Format(summaryTimeFormat), c.Lat, c.Lon, c.Depth/1000, mag,
		c.TimeDelta, c.DistanceKm, c.Metric)
}

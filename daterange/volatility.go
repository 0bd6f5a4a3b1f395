package daterange

import "time"

// Volatility classifies how likely a range's rows are to still change.
type Volatility string

const (
	// Live ranges end today or later.
	Live Volatility = "LIVE"
	// Recent ranges ended within the staleness horizon.
	Recent Volatility = "RECENT"
	// Stable ranges ended before the staleness horizon.
	Stable Volatility = "STABLE"
)

// DefaultHorizonDays is how many days after its end a range stays Recent.
const DefaultHorizonDays = 3

// Volatility classifies d at now. A non-positive horizon uses
// DefaultHorizonDays.
func (d Descriptor) Volatility(now time.Time, horizonDays int) Volatility {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	today := Day(now.In(d.End.Location()))
	if !d.End.Before(today) {
		return Live
	}
	if daysBetween(d.End, today) <= horizonDays {
		return Recent
	}
	return Stable
}

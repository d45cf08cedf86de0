// Package accrual holds the pure numeric rules of the point economy:
// per-heartbeat earnings, owner tax, XP leveling, spot leveling and the
// contest week boundary. Nothing here touches storage.
package accrual

import (
	"math"
	"time"
)

// CheckInToleranceMeters is how far from a spot's center a check-in is
// accepted.
const CheckInToleranceMeters = 100.0

// XPPerLevel scales the XP a level requires: level N needs N*XPPerLevel.
const XPPerLevel = 100

// SpotActivityPerLevel scales spot leveling: a spot at level N levels up
// once its total activity reaches N*SpotActivityPerLevel.
const SpotActivityPerLevel = 500

// TickPoints returns the points earned by one heartbeat at the given spot
// rate. A tick always earns at least 1 point.
func TickPoints(ratePerMinute int, interval time.Duration) int64 {
	earned := int64(ratePerMinute) * int64(interval/time.Second) / 60
	if earned < 1 {
		earned = 1
	}
	return earned
}

// TickXP returns the XP awarded for a tick that earned the given points.
// A tick always awards at least 1 XP.
func TickXP(points int64) int {
	xp := int(points / 2)
	if xp < 1 {
		xp = 1
	}
	return xp
}

// TaxDelta returns the owner's cut for the tick that moved a visit's gross
// earnings to cumEarned, given the tax already withheld from that visit.
// The cut is the running difference floor(cumEarned*rate) - taxPaid, so the
// total withheld over a visit converges to floor(total*rate) no matter how
// small the individual ticks are. A rate drop mid-visit (boost expiry) can
// put taxPaid ahead of the target; the delta clamps at zero rather than
// refunding.
func TaxDelta(cumEarned, taxPaid int64, ratePercent int) int64 {
	target := cumEarned * int64(ratePercent) / 100
	delta := target - taxPaid
	if delta < 0 {
		delta = 0
	}
	return delta
}

// PerTickTax floors each tick's cut independently. At low spot rates the
// per-tick amount rounds to zero every time, so it collects less than the
// cumulative target; it exists only for the comparison in cmd/taxcheck and
// the regression test. Production accrual uses TaxDelta.
func PerTickTax(tickPoints int64, ratePercent int) int64 {
	return tickPoints * int64(ratePercent) / 100
}

// ApplyXP adds earned XP to a user's level/XP pair, carrying excess forward
// across as many level-ups as the award crosses.
func ApplyXP(level, xp, earned int) (newLevel, newXP int, leveledUp bool) {
	newLevel = level
	newXP = xp + earned
	for newXP >= newLevel*XPPerLevel {
		newXP -= newLevel * XPPerLevel
		newLevel++
		leveledUp = true
	}
	return newLevel, newXP, leveledUp
}

// SpotLevel returns the level a spot should be at for the given cumulative
// activity, starting from its current level.
func SpotLevel(level int, totalActivity int64) int {
	for totalActivity >= int64(level)*SpotActivityPerLevel {
		level++
	}
	return level
}

// WeekStart truncates t to the contest week boundary: Monday 00:00 UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := t.Truncate(24 * time.Hour)
	weekday := int(day.Weekday())
	// time.Weekday has Sunday = 0
	offset := (weekday + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Haversine returns the great-circle distance in meters between two
// lat/lng pairs.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusMeters = 6371000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

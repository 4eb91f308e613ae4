// Package hktime handles Hong Kong local time for entry display strings
// and trading-session checks.
package hktime

import "time"

// HKT is the Hong Kong time zone (UTC+8, no DST).
var HKT = time.FixedZone("HKT", 8*3600)

// HKEX trading hours (continuous sessions, ignoring the lunch break).
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// DisplayTime renders t in Hong Kong local time in the format shown in
// the ledger, e.g. "2026/08/31 14:30:05".
func DisplayTime(t time.Time) string {
	return t.In(HKT).Format("2006/01/02 15:04:05")
}

// IsTradingHours returns true if t falls within HKEX trading hours
// (9:30 AM – 4:00 PM HKT, Mon–Fri).
func IsTradingHours(t time.Time) bool {
	hk := t.In(HKT)
	wd := hk.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := hk.Hour()*60 + hk.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

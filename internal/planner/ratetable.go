package planner

// rateEntry pairs the minimum RSSI (dBm) a rate requires with the
// achievable PHY rate in Mbps, for 802.11n HT40 1x1 short-GI (spec §4.5
// "static RSSI→rate table"; full table carried in per SPEC_FULL.md
// "supplemented features", not just the threshold points spec.md quotes).
type rateEntry struct {
	minRSSI float64
	mbps    float64
}

// htRateTable is ordered from best (least negative RSSI) to worst.
var htRateTable = []rateEntry{
	{-72, 135.0}, // MCS7
	{-75, 121.5}, // MCS6
	{-78, 108.0}, // MCS5
	{-82, 81.0},  // MCS4
	{-85, 54.0},  // MCS3
	{-87, 40.5},  // MCS2
	{-89, 27.0},  // MCS1
	{-90, 13.5},  // MCS0
}

// AccessBandwidth looks up the 802.11n HT40 1x1 short-GI access bandwidth
// for a predicted RSSI, returning 0 if the signal is below every rate's
// floor (effectively disconnected).
func AccessBandwidth(rssi float64) float64 {
	for _, e := range htRateTable {
		if rssi >= e.minRSSI {
			return e.mbps
		}
	}

	return 0
}

// EffectiveAccessBandwidth applies spec §4.5's min(access_bw, bts→edge_bw)
// rule.
func EffectiveAccessBandwidth(rssi, btsEdgeBW float64) float64 {
	access := AccessBandwidth(rssi)
	if btsEdgeBW < access {
		return btsEdgeBW
	}

	return access
}

package store

import (
	"database/sql"
	"math"
	"sync"
	"time"

	"github.com/edgefabric/centralctl/internal/geo"
	"github.com/edgefabric/centralctl/internal/model"
)

const (
	emaAlpha        = 0.5
	pathLossN       = 3.0
	pathLossA       = -30.0
	positionRingLen = 5
)

// positionRings tracks, per user, the last up-to-5 fixes used to refit
// the linear trajectory (spec §4.2). Kept in-memory rather than in SQL:
// it is derived state reconstructible from rssi_monitor, not a fact the
// store must persist durably.
type positionRings struct {
	mu   sync.Mutex
	ring map[string][][2]float64
}

func newPositionRings() *positionRings {
	return &positionRings{ring: make(map[string][][2]float64)}
}

func (p *positionRings) push(user string, x, y float64) [][2]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := append(p.ring[user], [2]float64{x, y})
	if len(r) > positionRingLen {
		r = r[len(r)-positionRingLen:]
	}

	p.ring[user] = r
	out := make([][2]float64, len(r))
	copy(out, r)
	return out
}

var globalRings = newPositionRings() //nolint:gochecknoglobals // mirrors Store's own package-level sqlite driver registration pattern

// EMA applies the exponential moving average of spec §4.2: with no
// prior value the filtered reading equals the raw one (testable
// property 4: feeding the same value repeatedly converges to it, since
// erssi stays exactly x once it first equals x).
func EMA(raw float64, prev *float64) float64 {
	if prev == nil {
		return raw
	}

	return emaAlpha*raw + (1-emaAlpha)*(*prev)
}

// lastFiltered returns the most recent filtered_rssi for (user,bs), or
// nil if there is no prior sample.
func (s *Store) lastFiltered(user, bs string) (*float64, error) {
	var v float64
	err := s.db.QueryRow(`
		SELECT filtered_rssi FROM rssi_monitor
		WHERE user = ? AND bs = ? ORDER BY t DESC LIMIT 1`, user, bs).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// IngestRSSI filters one raw RSSI reading, persists it, and refreshes
// the user's position/velocity/trajectory from trilateration against the
// three currently-strongest base stations heard from this user (spec
// §4.2). It returns the filtered value.
func (s *Store) IngestRSSI(t time.Time, user, bsName string, x, y, raw float64) (float64, error) {
	prev, err := s.lastFiltered(user, bsName)
	if err != nil {
		return 0, err
	}

	filtered := EMA(raw, prev)
	t = nowOrT(t)

	_, err = s.db.Exec(`
		INSERT INTO rssi_monitor (t, user, bs, x, y, raw_rssi, filtered_rssi)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, t, user, bsName, x, y, raw, filtered)
	if err != nil {
		return 0, err
	}

	if err := s.refreshUserPosition(user); err != nil {
		return filtered, err
	}

	return filtered, nil
}

// bsRSSI is one of the "strongest 3" used for trilateration.
type bsRSSI struct {
	bs       string
	x, y     float64
	filtered float64
}

func rssiToDistance(rssi float64) float64 {
	return math.Pow(10, (pathLossA-rssi)/(10*pathLossN))
}

func (s *Store) strongestBS(user string, n int) ([]bsRSSI, error) {
	rows, err := s.db.Query(`
		SELECT bs, x, y, filtered_rssi FROM rssi_monitor r
		WHERE user = ? AND t = (SELECT MAX(t) FROM rssi_monitor WHERE user = r.user AND bs = r.bs)
		ORDER BY filtered_rssi DESC LIMIT ?`, user, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bsRSSI
	for rows.Next() {
		var b bsRSSI
		if err := rows.Scan(&b.bs, &b.x, &b.y, &b.filtered); err != nil {
			return nil, err
		}

		out = append(out, b)
	}

	return out, rows.Err()
}

// StrongestBS returns user's n most recently strongest base stations by
// filtered RSSI, used by the nearest/random/cloud planners to rank
// candidates (spec §4.5).
func (s *Store) StrongestBS(user string, n int) ([]model.BSSignal, error) {
	rows, err := s.strongestBS(user, n)
	if err != nil {
		return nil, err
	}

	out := make([]model.BSSignal, len(rows))
	for i, r := range rows {
		out[i] = model.BSSignal{BS: r.bs, X: r.x, Y: r.y, Filtered: r.filtered}
	}

	return out, nil
}

// refreshUserPosition recomputes (x,y), the position ring, the fitted
// trajectory, and velocity for user, given its three strongest BS
// readings. It is a no-op (not an error) when fewer than 3 distinct BSs
// have been heard yet.
func (s *Store) refreshUserPosition(user string) error {
	top, err := s.strongestBS(user, 3)
	if err != nil {
		return err
	}

	if len(top) < 3 {
		return nil
	}

	r := make([]float64, 3)
	for i, b := range top {
		r[i] = rssiToDistance(b.filtered)
	}

	x, y, ok := geo.Trilaterate(top[0].x, top[0].y, r[0], top[1].x, top[1].y, r[1], top[2].x, top[2].y, r[2])
	if !ok {
		return nil
	}

	u, err := s.UserByName(user)
	if err != nil && err != ErrNotFound {
		return err
	}

	prevX, prevY := u.X, u.Y
	hadPrior := err == nil

	u.Name = user
	u.X, u.Y = x, y

	ring := globalRings.push(user, x, y)
	if len(ring) >= 2 {
		xs := make([]float64, len(ring))
		ys := make([]float64, len(ring))
		for i, p := range ring {
			xs[i] = p[0]
			ys[i] = p[1]
		}

		if a, b, ok := geo.LinearRegression(xs, ys); ok {
			u.TrajA, u.TrajB = a, b
		}
	}

	if hadPrior {
		const dt = 1.0 // seconds between consecutive fixes, fixed cadence per spec's monitor stream
		u.VX = (x - prevX) / dt
		u.VY = (y - prevY) / dt
	}

	return s.UpsertUser(u)
}

// InsertNetworkSample records one inter-server measurement.
func (s *Store) InsertNetworkSample(ns model.NetworkSample) error {
	_, err := s.db.Exec(`
		INSERT INTO network_monitor (t, src_server, dst_server, latency_us, bw_mbps)
		VALUES (?, ?, ?, ?, ?)`, nowOrT(ns.T), ns.SrcServer, ns.DstServer, ns.LatencyUS, ns.BWMbps)
	return err
}

// sentinelBW/RTT are the "very bad" defaults spec §4.2 mandates when no
// measurement exists yet for a server pair.
const (
	sentinelBWMbps  = 0.001 // 1 kbps
	sentinelRTTSecs = 10.0
)

// AverageBW returns the mean bandwidth over the most recent window
// samples for (src,dst), falling back to the sentinel when none exist.
func (s *Store) AverageBW(src, dst string, window int) (float64, error) {
	if src == dst {
		return math.Inf(1), nil // co-located sentinel, §9(a)
	}

	return s.averageRecent(`bw_mbps`, src, dst, window, sentinelBWMbps)
}

// AverageRTT returns the mean round-trip latency over the most recent
// window samples for (src,dst), in seconds.
func (s *Store) AverageRTT(src, dst string, window int) (float64, error) {
	if src == dst {
		return 0, nil
	}

	us, err := s.averageRecent(`latency_us`, src, dst, window, sentinelRTTSecs*1e6)
	if err != nil {
		return 0, err
	}

	return us / 1e6, nil
}

func (s *Store) averageRecent(column, src, dst string, window int, sentinel float64) (float64, error) {
	rows, err := s.db.Query(`
		SELECT `+column+` FROM (
			SELECT `+column+` FROM network_monitor
			WHERE src_server = ? AND dst_server = ?
			ORDER BY t DESC LIMIT ?
		)`, src, dst, window)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, err
		}

		sum += v
		n++
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if n == 0 {
		return sentinel, nil
	}

	return sum / float64(n), nil
}

// BTSToEdgeBW returns the access-to-edge bandwidth from bts to server: if
// bts is co-located with server, unbounded (§9a); otherwise delegates to
// the server-to-server query using the BS's own co-located server.
func (s *Store) BTSToEdgeBW(btsName, server string) (float64, error) {
	bts, err := s.BTSByName(btsName)
	if err != nil {
		return 0, err
	}

	if bts.ServerName == server {
		return math.Inf(1), nil
	}

	if bts.ServerName == "" {
		return sentinelBWMbps, nil
	}

	return s.AverageBW(bts.ServerName, server, 10)
}

// BTSToEdgeRTT mirrors BTSToEdgeBW for round-trip latency.
func (s *Store) BTSToEdgeRTT(btsName, server string) (float64, error) {
	bts, err := s.BTSByName(btsName)
	if err != nil {
		return 0, err
	}

	if bts.ServerName == server {
		return 0, nil
	}

	if bts.ServerName == "" {
		return sentinelRTTSecs, nil
	}

	return s.AverageRTT(bts.ServerName, server, 10)
}

// InsertRequestSample records one end-to-end request measurement.
func (s *Store) InsertRequestSample(rs model.RequestSample) error {
	_, err := s.db.Exec(`
		INSERT INTO request_monitor (t, user, service, bs, server, proc_delay_ms, e2e_delay_ms, request_size_b)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nowOrT(rs.T), rs.User, rs.Service, rs.BS, rs.Server, rs.ProcDelayMS, rs.E2EDelayMS, rs.RequestSizeB)
	return err
}

// AverageRequestSize returns the mean request size over the last window
// (default 10) samples for user.
func (s *Store) AverageRequestSize(user string, window int) (float64, error) {
	rows, err := s.db.Query(`
		SELECT request_size_b FROM (
			SELECT request_size_b FROM request_monitor WHERE user = ? ORDER BY t DESC LIMIT ?
		)`, user, window)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, err
		}

		sum += v
		n++
	}

	if n == 0 {
		return 0, nil
	}

	return sum / float64(n), rows.Err()
}

// AverageProcDelay returns the mean processing delay over the last
// window (default 10) samples for (user, bs, server).
func (s *Store) AverageProcDelay(user, bs, server string, window int) (float64, error) {
	rows, err := s.db.Query(`
		SELECT proc_delay_ms FROM (
			SELECT proc_delay_ms FROM request_monitor
			WHERE user = ? AND bs = ? AND server = ? ORDER BY t DESC LIMIT ?
		)`, user, bs, server, window)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, err
		}

		sum += v
		n++
	}

	if n == 0 {
		return 0, nil
	}

	return sum / float64(n), rows.Err()
}

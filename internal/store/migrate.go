package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/edgefabric/centralctl/internal/model"
)

// correlationWindow is the 60-second window (spec §4.6, §5) within which
// a dest-side migrate_report must arrive to complete a source-side one.
const correlationWindow = 60 * time.Second

// InsertMigrateRecord records a source-side migrate_report (spec §4.6),
// stamping it with a fresh correlation id the dest-side report's match
// can be traced back to in logs. The snapshot fields let UpdatePhi/
// UpdateRho average without needing to join back against a service that
// may already have moved on.
func (s *Store) InsertMigrateRecord(rec model.MigrateRecord, svc model.Service, src, dst model.Server) (int64, error) {
	correlationID := uuid.New().String()

	res, err := s.db.Exec(`
		INSERT INTO migrate_history
			(correlation_id, t, src, dst, service, method, pre_checkpoint_s, pre_rsync_s, prepare_s, checkpoint_s, rsync_s,
			 xdelta_source_s, final_rsync_s, migrate_s, premigration_s, xdelta_dest_s, restore_s,
			 size_pre_rsync_b, size_rsync_b, size_final_rsync_b,
			 container_size_mb, src_cpu_max_mhz, src_core_count, dst_cpu_max_mhz, dst_core_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		correlationID, nowOrT(rec.T), rec.Src, rec.Dst, rec.Service, rec.Method, rec.PreCheckpointS, rec.PreRsyncS,
		rec.PrepareS, rec.CheckpointS, rec.RsyncS, rec.XdeltaSourceS, rec.FinalRsyncS, rec.MigrateS,
		rec.PremigrationS, rec.XdeltaDestS, rec.SizePreRsyncB, rec.SizeRsyncB, rec.SizeFinalRsyncB,
		svc.SizeMB, src.CPUMaxMHz, src.CoreCount, dst.CPUMaxMHz, dst.CoreCount)
	if err != nil {
		return 0, fmt.Errorf("store: insert migrate record: %w", err)
	}

	return res.LastInsertId()
}

// CompleteMigrateRecord matches a dest-side migrate_report against the
// newest uncompleted source-side record for (src,dst,service) younger
// than the 60-second correlation window (spec §3 invariant 4, §4.6,
// §9d), and fills in its restore field. Returns ErrCorrelationWindowExpired
// if the best candidate is too old (and is NOT completed), or ErrNotFound
// if there is no candidate at all. The matched record's correlation id
// is returned for the caller's log line.
func (s *Store) CompleteMigrateRecord(src, dst, service string, restoreS, xdeltaDestS, premigrationS float64, now time.Time) (string, error) {
	now = nowOrT(now)

	var id int64
	var correlationID string
	var t time.Time
	err := s.db.QueryRow(`
		SELECT id, correlation_id, t FROM migrate_history
		WHERE src = ? AND dst = ? AND service = ? AND restore_s IS NULL
		ORDER BY t DESC LIMIT 1`, src, dst, service).Scan(&id, &correlationID, &t)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if now.Sub(t) > correlationWindow {
		return "", ErrCorrelationWindowExpired
	}

	_, err = s.db.Exec(`
		UPDATE migrate_history SET restore_s = ?, xdelta_dest_s = ?, premigration_s = ? WHERE id = ?`,
		restoreS, xdeltaDestS, premigrationS, id)
	if err != nil {
		return "", err
	}

	return correlationID, nil
}

// MigrationHistory returns the most recent limit MigrateRecords for
// service, newest first (supplemented feature, SPEC_FULL.md).
func (s *Store) MigrationHistory(service string, limit int) ([]model.MigrateRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, correlation_id, t, src, dst, service, method, pre_checkpoint_s, pre_rsync_s, prepare_s, checkpoint_s,
		       rsync_s, xdelta_source_s, final_rsync_s, migrate_s, premigration_s, xdelta_dest_s, restore_s,
		       size_pre_rsync_b, size_rsync_b, size_final_rsync_b
		FROM migrate_history WHERE service = ? ORDER BY t DESC LIMIT ?`, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MigrateRecord
	for rows.Next() {
		var r model.MigrateRecord
		var restore sql.NullFloat64

		err := rows.Scan(&r.ID, &r.CorrelationID, &r.T, &r.Src, &r.Dst, &r.Service, &r.Method, &r.PreCheckpointS, &r.PreRsyncS,
			&r.PrepareS, &r.CheckpointS, &r.RsyncS, &r.XdeltaSourceS, &r.FinalRsyncS, &r.MigrateS,
			&r.PremigrationS, &r.XdeltaDestS, &restore, &r.SizePreRsyncB, &r.SizeRsyncB, &r.SizeFinalRsyncB)
		if err != nil {
			return nil, err
		}

		if restore.Valid {
			v := restore.Float64
			r.RestoreS = &v
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// maxRecordsForCoefficient bounds phi/rho averaging to the last 20
// records per server (spec §4.2).
const maxRecordsForCoefficient = 20

// UpdatePhi recomputes server's checkpoint coefficient as the mean of
// max_cpu*cores*checkpoint_time/size_mb over its last up to 20
// source-side migrate_history rows (spec §4.2).
func (s *Store) UpdatePhi(server string) error {
	rows, err := s.db.Query(`
		SELECT checkpoint_s, container_size_mb, src_cpu_max_mhz, src_core_count
		FROM migrate_history WHERE src = ? ORDER BY t DESC LIMIT ?`, server, maxRecordsForCoefficient)
	if err != nil {
		return err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var checkpointS, sizeMB, cpuMax float64
		var cores int
		if err := rows.Scan(&checkpointS, &sizeMB, &cpuMax, &cores); err != nil {
			return err
		}

		if sizeMB == 0 {
			continue
		}

		sum += cpuMax * float64(cores) * checkpointS / sizeMB
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	_, err = s.db.Exec(`UPDATE edge_server_info SET phi = ? WHERE name = ?`, sum/float64(n), server)
	return err
}

// UpdateRho recomputes server's restore coefficient as the mean of
// max_cpu*cores*restore_time/(size_mb+(rsync+pre_rsync+final_rsync)/1e6)
// over its last up to 20 dest-side migrate_history rows (spec §4.2).
func (s *Store) UpdateRho(server string) error {
	rows, err := s.db.Query(`
		SELECT restore_s, container_size_mb, dst_cpu_max_mhz, dst_core_count,
		       size_rsync_b, size_pre_rsync_b, size_final_rsync_b
		FROM migrate_history
		WHERE dst = ? AND restore_s IS NOT NULL ORDER BY t DESC LIMIT ?`, server, maxRecordsForCoefficient)
	if err != nil {
		return err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var restoreS, sizeMB, cpuMax, rsync, preRsync, finalRsync float64
		var cores int
		if err := rows.Scan(&restoreS, &sizeMB, &cpuMax, &cores, &rsync, &preRsync, &finalRsync); err != nil {
			return err
		}

		denom := sizeMB + (rsync+preRsync+finalRsync)/1e6
		if denom == 0 {
			continue
		}

		sum += cpuMax * float64(cores) * restoreS / denom
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	_, err = s.db.Exec(`UPDATE edge_server_info SET rho = ? WHERE name = ?`, sum/float64(n), server)
	return err
}

// UpdateContainerMonitor writes a new service status/footprint report
// (spec §4.2 `update_container_monitor`) and returns the updated Service.
func (s *Store) UpdateContainerMonitor(serviceID, status string, cpu, mem, size, deltaMemory, preCheckpoint, timeXdelta, timeCheckpoint float64) (model.Service, error) {
	_, err := s.db.Exec(`
		UPDATE service_info SET
			status = ?, cpu_mhz = ?, mem_mb = ?, size_mb = ?, delta_memory_bytes = ?,
			pre_checkpoint_bytes = ?, time_xdelta_s = ?, time_checkpoint_s = ?
		WHERE name = ?`,
		status, cpu, mem, size, deltaMemory, preCheckpoint, timeXdelta, timeCheckpoint, serviceID)
	if err != nil {
		return model.Service{}, err
	}

	return s.ServiceByID(serviceID)
}

// ComputeNeighbourCosts implements the `optimised`-planner recompute in
// spec §4.2: for every server other than svc's current one, estimate
// T_pre_mig and T_mig from the current container footprint, the
// source's learned phi, the destination's learned rho, and the measured bandwidth between the
// two servers. Checkpointing runs on the source, restore on the
// destination (a reading of §4.2 left implicit by the spec; see
// DESIGN.md).
func (s *Store) ComputeNeighbourCosts(svc model.Service, window int) (map[string]model.CostPair, error) {
	src, err := s.ServerByName(svc.ServerName)
	if err != nil {
		return nil, err
	}

	servers, err := s.ListServers()
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.CostPair)
	for _, dst := range servers {
		if dst.Name == svc.ServerName {
			continue
		}

		bw, err := s.AverageBW(svc.ServerName, dst.Name, window)
		if err != nil {
			return nil, err
		}

		if math.IsInf(bw, 1) || bw <= 0 {
			bw = sentinelBWMbps
		}

		srcCap := src.CPUMaxMHz * float64(src.CoreCount)
		dstCap := dst.CPUMaxMHz * float64(dst.CoreCount)

		var tCheckpoint, tRestore float64
		if srcCap > 0 {
			tCheckpoint = src.Phi * svc.SizeMB / srcCap
		}
		if dstCap > 0 {
			tRestore = dst.Rho * (svc.SizeMB + (svc.PreCheckpointBytes+svc.DeltaMemoryBytes)/1e6) / dstCap
		}

		maxPreSize := svc.DeltaMemoryBytes
		if svc.PreCheckpointBytes > maxPreSize {
			maxPreSize = svc.PreCheckpointBytes
		}

		tPreMig := tCheckpoint + maxPreSize*8/(1e6*bw) + svc.TimeXdeltaS
		tMig := tCheckpoint + svc.DeltaMemoryBytes*8/(1e6*bw) + tRestore + svc.TimeXdeltaS

		out[dst.Name] = model.CostPair{Src: svc.ServerName, Dst: dst.Name, TPreMigS: tPreMig, TMigS: tMig}
	}

	return out, nil
}

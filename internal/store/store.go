// Package store is the Central Store (C2, spec §4.2): a transactional,
// single-writer-from-the-controller's-viewpoint record of servers, base
// stations, users, services, and the measurement streams the estimators
// depend on. Backed by mattn/go-sqlite3, the engine the teacher's own
// lxd/db package is built on (recovered from lxd/db/db_test.go, which
// ships in this retrieval without its non-test sources).
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edgefabric/centralctl/internal/model"
)

// Store wraps the sqlite connection. All mutation happens on the
// dispatcher goroutine (spec §5); Store itself does no internal locking
// beyond what database/sql already serialises for a single connection.
type Store struct {
	db *sql.DB
}

// Open creates the schema if missing and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1) // single-writer semantics (spec §5)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying *sql.DB, matching the teacher's
// db.Node.DB()/db.Cluster.DB() accessor used directly in db_test.go.
func (s *Store) DB() *sql.DB { return s.db }

// Close commits any pending writes and releases the connection.
func (s *Store) Close() error { return s.db.Close() }

// RegisterServer inserts or replaces a Server row (spec §6 `register`).
func (s *Store) RegisterServer(srv model.Server) error {
	_, err := s.db.Exec(`
		INSERT INTO edge_server_info
			(name, ip, distance_tier, core_count, cpu_max_mhz, ram_mb, ram_free_mb, disk_mb, disk_free_mb, phi, rho)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ip=excluded.ip, distance_tier=excluded.distance_tier, core_count=excluded.core_count,
			cpu_max_mhz=excluded.cpu_max_mhz, ram_mb=excluded.ram_mb, ram_free_mb=excluded.ram_free_mb,
			disk_mb=excluded.disk_mb, disk_free_mb=excluded.disk_free_mb, phi=excluded.phi, rho=excluded.rho`,
		srv.Name, srv.IP, srv.DistanceTier, srv.CoreCount, srv.CPUMaxMHz,
		srv.RAMMB, srv.RAMFreeMB, srv.DiskMB, srv.DiskFreeMB, srv.Phi, srv.Rho)
	if err != nil {
		return fmt.Errorf("store: register server %s: %w", srv.Name, err)
	}

	return nil
}

// DeleteServer removes a server (on last-will, spec §4.6 `LWT/edge`).
// Invariant 2 is preserved by detaching any co-located BS.
func (s *Store) DeleteServer(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE bts_info SET server_id = NULL WHERE server_id = ?`, name); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM edge_server_info WHERE name = ?`, name); err != nil {
		return err
	}

	return tx.Commit()
}

func scanServer(row interface{ Scan(...any) error }) (model.Server, error) {
	var srv model.Server
	err := row.Scan(&srv.Name, &srv.IP, &srv.DistanceTier, &srv.CoreCount, &srv.CPUMaxMHz,
		&srv.RAMMB, &srv.RAMFreeMB, &srv.DiskMB, &srv.DiskFreeMB, &srv.Phi, &srv.Rho)
	return srv, err
}

const serverColumns = `name, ip, distance_tier, core_count, cpu_max_mhz, ram_mb, ram_free_mb, disk_mb, disk_free_mb, phi, rho`

// ServerByName looks up a server by its unique name.
func (s *Store) ServerByName(name string) (model.Server, error) {
	row := s.db.QueryRow(`SELECT `+serverColumns+` FROM edge_server_info WHERE name = ?`, name)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return model.Server{}, ErrNotFound
	}

	return srv, err
}

// ServerByIP looks up a server by its registered IP address.
func (s *Store) ServerByIP(ip string) (model.Server, error) {
	row := s.db.QueryRow(`SELECT `+serverColumns+` FROM edge_server_info WHERE ip = ?`, ip)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return model.Server{}, ErrNotFound
	}

	return srv, err
}

// ListServers returns every registered server, ordered by name for a
// stable `updated` topic payload (spec §4.8, §6).
func (s *Store) ListServers() ([]model.Server, error) {
	rows, err := s.db.Query(`SELECT ` + serverColumns + ` FROM edge_server_info ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, srv)
	}

	return out, rows.Err()
}

// RegisterBS inserts or replaces a BaseStation row.
func (s *Store) RegisterBS(bs model.BaseStation) error {
	var serverID any
	if bs.ServerName != "" {
		serverID = bs.ServerName
	}

	_, err := s.db.Exec(`
		INSERT INTO bts_info (name, bssid, password, x, y, server_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			bssid=excluded.bssid, password=excluded.password, x=excluded.x, y=excluded.y, server_id=excluded.server_id`,
		bs.Name, bs.BSSID, bs.Password, bs.X, bs.Y, serverID)
	return err
}

// BTSByName looks up a base station by its unique name.
func (s *Store) BTSByName(name string) (model.BaseStation, error) {
	var bs model.BaseStation
	var serverID sql.NullString

	err := s.db.QueryRow(`SELECT name, bssid, password, x, y, server_id FROM bts_info WHERE name = ?`, name).
		Scan(&bs.Name, &bs.BSSID, &bs.Password, &bs.X, &bs.Y, &serverID)
	if err == sql.ErrNoRows {
		return model.BaseStation{}, ErrNotFound
	}
	if err != nil {
		return model.BaseStation{}, err
	}

	bs.ServerName = serverID.String
	return bs, nil
}

// BTSByBSSID looks up a base station by its radio BSSID, used when a
// `discover` payload identifies the BS by BSSID rather than name.
func (s *Store) BTSByBSSID(bssid string) (model.BaseStation, error) {
	var bs model.BaseStation
	var serverID sql.NullString

	err := s.db.QueryRow(`SELECT name, bssid, password, x, y, server_id FROM bts_info WHERE bssid = ?`, bssid).
		Scan(&bs.Name, &bs.BSSID, &bs.Password, &bs.X, &bs.Y, &serverID)
	if err == sql.ErrNoRows {
		return model.BaseStation{}, ErrNotFound
	}
	if err != nil {
		return model.BaseStation{}, err
	}

	bs.ServerName = serverID.String
	return bs, nil
}

// ListBaseStations returns every registered base station.
func (s *Store) ListBaseStations() ([]model.BaseStation, error) {
	rows, err := s.db.Query(`SELECT name, bssid, password, x, y, server_id FROM bts_info ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BaseStation
	for rows.Next() {
		var bs model.BaseStation
		var serverID sql.NullString
		if err := rows.Scan(&bs.Name, &bs.BSSID, &bs.Password, &bs.X, &bs.Y, &serverID); err != nil {
			return nil, err
		}

		bs.ServerName = serverID.String
		out = append(out, bs)
	}

	return out, rows.Err()
}

// UpsertUser inserts or updates an EndUser row.
func (s *Store) UpsertUser(u model.EndUser) error {
	var serviceID any
	if u.CurrentServiceID != "" {
		serviceID = u.CurrentServiceID
	}

	_, err := s.db.Exec(`
		INSERT INTO end_user_info (name, current_bs, service_id, online, x, y, vx, vy, traj_a, traj_b)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			current_bs=excluded.current_bs, service_id=excluded.service_id, online=excluded.online,
			x=excluded.x, y=excluded.y, vx=excluded.vx, vy=excluded.vy, traj_a=excluded.traj_a, traj_b=excluded.traj_b`,
		u.Name, u.CurrentBS, serviceID, u.Online, u.X, u.Y, u.VX, u.VY, u.TrajA, u.TrajB)
	return err
}

// UserByName looks up an EndUser by its unique name.
func (s *Store) UserByName(name string) (model.EndUser, error) {
	var u model.EndUser
	var serviceID sql.NullString
	var online int

	err := s.db.QueryRow(`
		SELECT name, current_bs, service_id, online, x, y, vx, vy, traj_a, traj_b
		FROM end_user_info WHERE name = ?`, name).
		Scan(&u.Name, &u.CurrentBS, &serviceID, &online, &u.X, &u.Y, &u.VX, &u.VY, &u.TrajA, &u.TrajB)
	if err == sql.ErrNoRows {
		return model.EndUser{}, ErrNotFound
	}
	if err != nil {
		return model.EndUser{}, err
	}

	u.CurrentServiceID = serviceID.String
	u.Online = online != 0
	return u, nil
}

// ListUsers returns every registered end-user.
func (s *Store) ListUsers() ([]model.EndUser, error) {
	rows, err := s.db.Query(`
		SELECT name, current_bs, service_id, online, x, y, vx, vy, traj_a, traj_b
		FROM end_user_info ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EndUser
	for rows.Next() {
		var u model.EndUser
		var serviceID sql.NullString
		var online int

		if err := rows.Scan(&u.Name, &u.CurrentBS, &serviceID, &online, &u.X, &u.Y, &u.VX, &u.VY, &u.TrajA, &u.TrajB); err != nil {
			return nil, err
		}

		u.CurrentServiceID = serviceID.String
		u.Online = online != 0
		out = append(out, u)
	}

	return out, rows.Err()
}

// DeleteUser removes a user and, per invariant 1, its bound service.
func (s *Store) DeleteUser(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := s.userTx(tx, name)
	if err == nil && u.CurrentServiceID != "" {
		if _, err := tx.Exec(`DELETE FROM service_info WHERE name = ?`, u.CurrentServiceID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM end_user_info WHERE name = ?`, name); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) userTx(tx *sql.Tx, name string) (model.EndUser, error) {
	var u model.EndUser
	var serviceID sql.NullString
	var online int

	err := tx.QueryRow(`
		SELECT name, current_bs, service_id, online, x, y, vx, vy, traj_a, traj_b
		FROM end_user_info WHERE name = ?`, name).
		Scan(&u.Name, &u.CurrentBS, &serviceID, &online, &u.X, &u.Y, &u.VX, &u.VY, &u.TrajA, &u.TrajB)
	if err != nil {
		return model.EndUser{}, err
	}

	u.CurrentServiceID = serviceID.String
	u.Online = online != 0
	return u, nil
}

const serviceColumns = `name, user, image, server_name, host_port, container_port, checkpoint_dir, method, status, state, cpu_mhz, mem_mb, size_mb, delta_memory_bytes, pre_checkpoint_bytes, time_xdelta_s, time_checkpoint_s, request_count`

func scanService(row interface{ Scan(...any) error }) (model.Service, error) {
	var svc model.Service
	err := row.Scan(&svc.ID, &svc.User, &svc.Image, &svc.ServerName, &svc.HostPort, &svc.ContainerPort,
		&svc.CheckpointDir, &svc.Method, &svc.Status, &svc.State, &svc.CPUMHz, &svc.MemMB, &svc.SizeMB,
		&svc.DeltaMemoryBytes, &svc.PreCheckpointBytes, &svc.TimeXdeltaS, &svc.TimeCheckpointS, &svc.RequestCount)
	return svc, err
}

// UpsertService inserts or updates a Service row and binds it to its
// user (invariant 1: an EndUser has at most one live Service).
func (s *Store) UpsertService(svc model.Service) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO service_info (`+serviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			user=excluded.user, image=excluded.image, server_name=excluded.server_name,
			host_port=excluded.host_port, container_port=excluded.container_port,
			checkpoint_dir=excluded.checkpoint_dir, method=excluded.method, status=excluded.status,
			state=excluded.state, cpu_mhz=excluded.cpu_mhz, mem_mb=excluded.mem_mb, size_mb=excluded.size_mb,
			delta_memory_bytes=excluded.delta_memory_bytes, pre_checkpoint_bytes=excluded.pre_checkpoint_bytes,
			time_xdelta_s=excluded.time_xdelta_s, time_checkpoint_s=excluded.time_checkpoint_s,
			request_count=excluded.request_count`,
		svc.ID, svc.User, svc.Image, svc.ServerName, svc.HostPort, svc.ContainerPort, svc.CheckpointDir,
		svc.Method, svc.Status, svc.State, svc.CPUMHz, svc.MemMB, svc.SizeMB, svc.DeltaMemoryBytes,
		svc.PreCheckpointBytes, svc.TimeXdeltaS, svc.TimeCheckpointS, svc.RequestCount)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE end_user_info SET service_id = ? WHERE name = ?`, svc.ID, svc.User); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO user_service (user, service_id) VALUES (?, ?)`, svc.User, svc.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// ServiceByID looks up a service by its unique id (service_name ∥ user).
func (s *Store) ServiceByID(id string) (model.Service, error) {
	row := s.db.QueryRow(`SELECT `+serviceColumns+` FROM service_info WHERE name = ?`, id)
	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return model.Service{}, ErrNotFound
	}

	return svc, err
}

// ServicesByServer returns every service currently bound to server,
// used to re-home a server's users on `LWT/edge/<server>` (spec §4.6).
func (s *Store) ServicesByServer(server string) ([]model.Service, error) {
	rows, err := s.db.Query(`SELECT `+serviceColumns+` FROM service_info WHERE server_name = ?`, server)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, svc)
	}

	return out, rows.Err()
}

// ServiceForUser looks up the Service currently bound to user.
func (s *Store) ServiceForUser(user string) (model.Service, error) {
	row := s.db.QueryRow(`
		SELECT `+serviceColumns+` FROM service_info
		WHERE name = (SELECT service_id FROM end_user_info WHERE name = ?)`, user)
	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return model.Service{}, ErrNotFound
	}

	return svc, err
}

// DeleteService removes a service and, per invariant 1, clears the
// user's binding.
func (s *Store) DeleteService(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE end_user_info SET service_id = NULL WHERE service_id = ?`, id); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM service_info WHERE name = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// SetServiceState updates only the service's state/status columns,
// matching the narrow `update_container_monitor` write described in
// spec §4.2.
func (s *Store) SetServiceState(id string, state model.ServiceState, status string) error {
	res, err := s.db.Exec(`UPDATE service_info SET state = ?, status = ? WHERE name = ?`, state, status, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveCostPair persists one (user,src,dst) migration-cost sample to
// `service_profile`, the durable twin of the in-memory
// MigrationCostModel the estimator keeps (spec §6 "Persisted state").
func (s *Store) SaveCostPair(user, src, dst string, tPreMigS, tMigS float64) error {
	_, err := s.db.Exec(`
		INSERT INTO service_profile (user, src, dst, t_pre_mig_s, t_mig_s)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user, src, dst) DO UPDATE SET t_pre_mig_s=excluded.t_pre_mig_s, t_mig_s=excluded.t_mig_s`,
		user, src, dst, tPreMigS, tMigS)
	return err
}

// LoadCostPairs returns every persisted cost pair for user, used to
// rehydrate its MigrationCostModel on first access after a restart.
func (s *Store) LoadCostPairs(user string) ([]model.CostPair, error) {
	rows, err := s.db.Query(`SELECT src, dst, t_pre_mig_s, t_mig_s FROM service_profile WHERE user = ?`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CostPair
	for rows.Next() {
		var c model.CostPair
		if err := rows.Scan(&c.Src, &c.Dst, &c.TPreMigS, &c.TMigS); err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// nowOrT returns t if non-zero, else the current time; used so tests can
// inject deterministic timestamps while production code defaults to now.
func nowOrT(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}

	return t
}

package store

// schema is applied once at Open time, the way the teacher's lxd/db
// package initializes its node/cluster schema on first connect (see
// lxd/db/db_test.go's TestNode_Schema). Table and column names follow
// spec §6 "Persisted state" and its foreign-key list verbatim.
const schema = `
CREATE TABLE IF NOT EXISTS edge_server_info (
	name TEXT PRIMARY KEY,
	ip TEXT NOT NULL,
	distance_tier INTEGER NOT NULL DEFAULT 0,
	core_count INTEGER NOT NULL DEFAULT 0,
	cpu_max_mhz REAL NOT NULL DEFAULT 0,
	ram_mb REAL NOT NULL DEFAULT 0,
	ram_free_mb REAL NOT NULL DEFAULT 0,
	disk_mb REAL NOT NULL DEFAULT 0,
	disk_free_mb REAL NOT NULL DEFAULT 0,
	phi REAL NOT NULL DEFAULT 0,
	rho REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bts_info (
	name TEXT PRIMARY KEY,
	bssid TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	x REAL NOT NULL DEFAULT 0,
	y REAL NOT NULL DEFAULT 0,
	server_id TEXT REFERENCES edge_server_info(name)
);

CREATE TABLE IF NOT EXISTS service_info (
	name TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	server_name TEXT REFERENCES edge_server_info(name),
	host_port INTEGER NOT NULL DEFAULT 0,
	container_port INTEGER NOT NULL DEFAULT 0,
	checkpoint_dir TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT 'pre_copy',
	status TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'init',
	cpu_mhz REAL NOT NULL DEFAULT 0,
	mem_mb REAL NOT NULL DEFAULT 0,
	size_mb REAL NOT NULL DEFAULT 0,
	delta_memory_bytes REAL NOT NULL DEFAULT 0,
	pre_checkpoint_bytes REAL NOT NULL DEFAULT 0,
	time_xdelta_s REAL NOT NULL DEFAULT 0,
	time_checkpoint_s REAL NOT NULL DEFAULT 0,
	request_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS end_user_info (
	name TEXT PRIMARY KEY,
	current_bs TEXT NOT NULL DEFAULT '',
	service_id TEXT REFERENCES service_info(name),
	online INTEGER NOT NULL DEFAULT 0,
	x REAL NOT NULL DEFAULT 0,
	y REAL NOT NULL DEFAULT 0,
	vx REAL NOT NULL DEFAULT 0,
	vy REAL NOT NULL DEFAULT 0,
	traj_a REAL NOT NULL DEFAULT 0,
	traj_b REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_service (
	user TEXT NOT NULL,
	service_id TEXT NOT NULL,
	bound_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rssi_monitor (
	t DATETIME NOT NULL,
	user TEXT NOT NULL,
	bs TEXT NOT NULL,
	x REAL NOT NULL DEFAULT 0,
	y REAL NOT NULL DEFAULT 0,
	raw_rssi REAL NOT NULL,
	filtered_rssi REAL NOT NULL,
	eta2 REAL NOT NULL DEFAULT 0,
	eta1 REAL NOT NULL DEFAULT 0,
	eta0 REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rssi_monitor_user_bs ON rssi_monitor(user, bs, t);

CREATE TABLE IF NOT EXISTS network_monitor (
	t DATETIME NOT NULL,
	src_server TEXT NOT NULL,
	dst_server TEXT NOT NULL,
	latency_us REAL NOT NULL,
	bw_mbps REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_network_monitor_pair ON network_monitor(src_server, dst_server, t);

CREATE TABLE IF NOT EXISTS request_monitor (
	t DATETIME NOT NULL,
	user TEXT NOT NULL,
	service TEXT NOT NULL,
	bs TEXT NOT NULL,
	server TEXT NOT NULL,
	proc_delay_ms REAL NOT NULL,
	e2e_delay_ms REAL NOT NULL,
	request_size_b REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_monitor_user ON request_monitor(user, t);

CREATE TABLE IF NOT EXISTS migrate_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id TEXT NOT NULL DEFAULT '',
	t DATETIME NOT NULL,
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	service TEXT NOT NULL,
	method TEXT NOT NULL,
	pre_checkpoint_s REAL NOT NULL DEFAULT 0,
	pre_rsync_s REAL NOT NULL DEFAULT 0,
	prepare_s REAL NOT NULL DEFAULT 0,
	checkpoint_s REAL NOT NULL DEFAULT 0,
	rsync_s REAL NOT NULL DEFAULT 0,
	xdelta_source_s REAL NOT NULL DEFAULT 0,
	final_rsync_s REAL NOT NULL DEFAULT 0,
	migrate_s REAL NOT NULL DEFAULT 0,
	premigration_s REAL NOT NULL DEFAULT 0,
	xdelta_dest_s REAL NOT NULL DEFAULT 0,
	restore_s REAL,
	size_pre_rsync_b REAL NOT NULL DEFAULT 0,
	size_rsync_b REAL NOT NULL DEFAULT 0,
	size_final_rsync_b REAL NOT NULL DEFAULT 0,
	-- snapshot of the migrated container's footprint and the source
	-- server's capacity at report time, needed to average phi/rho (§4.2)
	container_size_mb REAL NOT NULL DEFAULT 0,
	src_cpu_max_mhz REAL NOT NULL DEFAULT 0,
	src_core_count INTEGER NOT NULL DEFAULT 0,
	dst_cpu_max_mhz REAL NOT NULL DEFAULT 0,
	dst_core_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_migrate_history_dst ON migrate_history(dst, service, restore_s);

CREATE TABLE IF NOT EXISTS service_profile (
	user TEXT NOT NULL,
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	t_pre_mig_s REAL NOT NULL,
	t_mig_s REAL NOT NULL,
	PRIMARY KEY (user, src, dst)
);
`

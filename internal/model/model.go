// Package model defines the entity types owned by the central store (§3).
//
// Entities are plain structs keyed by name; cross-entity references are
// foreign-key style strings resolved through store lookups, never graph
// pointers (see DESIGN.md "cyclic entity references").
package model

import "time"

// MigrateMethod identifies the migration protocol used for a Service.
type MigrateMethod string

const (
	MigratePreCopy   MigrateMethod = "pre_copy"
	MigrateNonLive   MigrateMethod = "non_live"
)

// ServiceState is the lifecycle state of a single Service container.
type ServiceState string

const (
	ServiceInit         ServiceState = "init"
	ServiceRunning      ServiceState = "running"
	ServicePreMigrate   ServiceState = "pre_migrate"
	ServicePreMigrated  ServiceState = "pre_migrated"
	ServiceMigrate      ServiceState = "migrate"
)

// Server is an edge compute node, zero or one of which is co-located with a
// BaseStation. DistanceTier 0 denotes the cloud.
type Server struct {
	Name         string
	IP           string
	DistanceTier int
	CoreCount    int
	CPUMaxMHz    float64
	RAMMB        float64
	RAMFreeMB    float64
	DiskMB       float64
	DiskFreeMB   float64
	Phi          float64 // checkpoint coefficient
	Rho          float64 // restore coefficient
}

// BaseStation is a wireless access point, optionally co-located with a Server.
type BaseStation struct {
	Name       string
	BSSID      string
	Password   string
	X, Y       float64
	ServerName string // empty if not co-located
}

// EndUser is a mobile client and its last known kinematic state.
type EndUser struct {
	Name             string
	CurrentBS        string
	CurrentServiceID string
	Online           bool
	X, Y             float64
	VX, VY           float64
	TrajA            float64 // slope
	TrajB            float64 // intercept
}

// Service is the container bound 1:1 to an EndUser.
type Service struct {
	ID                 string // service_name ∥ user
	User               string
	Image              string
	ServerName         string
	HostPort           int
	ContainerPort      int
	CheckpointDir      string
	Method             MigrateMethod
	Status             string
	State              ServiceState
	CPUMHz             float64
	MemMB              float64
	SizeMB             float64
	DeltaMemoryBytes   float64
	PreCheckpointBytes float64
	TimeXdeltaS        float64
	TimeCheckpointS    float64
	RequestCount       int64
}

// RSSISample is one (user, BS) radio measurement.
type RSSISample struct {
	T             time.Time
	User          string
	BS            string
	X, Y          float64
	RawRSSI       float64
	FilteredRSSI  float64
	Eta2, Eta1, Eta0 float64
}

// NetworkSample is one inter-server measurement.
type NetworkSample struct {
	T         time.Time
	SrcServer string
	DstServer string
	LatencyUS float64
	BWMbps    float64
}

// RequestSample is one end-to-end request-latency measurement.
type RequestSample struct {
	T            time.Time
	User         string
	Service      string
	BS           string
	Server       string
	ProcDelayMS  float64
	E2EDelayMS   float64
	RequestSizeB float64
}

// MigrateRecord is one pre-copy/non-live migration episode.
type MigrateRecord struct {
	ID              int64
	CorrelationID   string // assigned on the source-side report, carried through to the dest-side match
	T               time.Time
	Src, Dst        string
	Service         string
	Method          MigrateMethod
	PreCheckpointS  float64
	PreRsyncS       float64
	PrepareS        float64
	CheckpointS     float64
	RsyncS          float64
	XdeltaSourceS   float64
	FinalRsyncS     float64
	MigrateS        float64
	PremigrationS   float64
	XdeltaDestS     float64
	RestoreS        *float64 // nil until dest-side report completes it
	SizePreRsyncB   float64
	SizeRsyncB      float64
	SizeFinalRsyncB float64
}

// BSSignal is one (bs, filtered RSSI) reading as last observed for a
// user, used by planners to rank candidate base stations.
type BSSignal struct {
	BS       string
	X, Y     float64
	Filtered float64
}

// CostPair is a (src,dst) entry in a per-user MigrationCostModel.
type CostPair struct {
	Src, Dst  string
	TPreMigS  float64
	TMigS     float64
}

// MigrationCostModel is the per-user map described in §3/§4.4.
type MigrationCostModel struct {
	User  string
	Pairs map[[2]string]*CostPair
	Count int
}

// NewMigrationCostModel creates an empty, inheritable cost model for user.
func NewMigrationCostModel(user string) *MigrationCostModel {
	return &MigrationCostModel{User: user, Pairs: make(map[[2]string]*CostPair)}
}

// Get returns the cost pair for (src,dst), or nil if unpopulated. src==dst
// always yields the zero cost pair per invariant 3.
func (m *MigrationCostModel) Get(src, dst string) *CostPair {
	if src == dst {
		return &CostPair{Src: src, Dst: dst}
	}

	return m.Pairs[[2]string{src, dst}]
}

// Set records or updates the cost pair for (src,dst).
func (m *MigrationCostModel) Set(src, dst string, tPreMig, tMig float64) {
	if src == dst {
		return
	}

	key := [2]string{src, dst}
	if _, ok := m.Pairs[key]; !ok {
		m.Count++
	}

	m.Pairs[key] = &CostPair{Src: src, Dst: dst, TPreMigS: tPreMig, TMigS: tMig}
}

// Ready reports whether at least n distinct pairs have samples (§4.4).
func (m *MigrationCostModel) Ready(n int) bool {
	return len(m.Pairs) >= n
}

// Avg returns the mean TPreMig/TMig across all populated pairs.
func (m *MigrationCostModel) Avg() (avgPreMig, avgMig float64) {
	if len(m.Pairs) == 0 {
		return 0, 0
	}

	for _, p := range m.Pairs {
		avgPreMig += p.TPreMigS
		avgMig += p.TMigS
	}

	n := float64(len(m.Pairs))
	return avgPreMig / n, avgMig / n
}

// Max returns the largest TPreMig/TMig across all populated pairs.
func (m *MigrationCostModel) Max() (maxPreMig, maxMig float64) {
	for _, p := range m.Pairs {
		if p.TPreMigS > maxPreMig {
			maxPreMig = p.TPreMigS
		}

		if p.TMigS > maxMig {
			maxMig = p.TMigS
		}
	}

	return maxPreMig, maxMig
}

// Package wire defines the narrow payload record types for every
// inbound topic class (spec §6, §9 "dynamic kwargs payloads"): each
// message maps to an explicit struct with optional fields tagged, so
// unknown JSON fields are silently ignored and missing required fields
// are caught by the caller's own validation before the malformed-payload
// path is taken (handlers own that decision, not this package).
package wire

// Register is the payload of the `register` topic.
type Register struct {
	ServerName string  `json:"server_name"`
	IP         string  `json:"ip"`
	Distance   int     `json:"distance"`
	Port       int     `json:"port"`
	BS         string  `json:"bs"`
	BSX        float64 `json:"bs_x"`
	BSY        float64 `json:"bs_y"`
	Rho        float64 `json:"rho"`
	Phi        float64 `json:"phi"`
}

// Valid reports whether the required fields are present.
func (r Register) Valid() bool {
	return r.ServerName != "" && r.IP != ""
}

// Discover is the payload of the `discover` topic.
type Discover struct {
	ServiceName string `json:"service_name"`
	EndUser     string `json:"end_user"`
	SSID        string `json:"ssid"`
	BSSID       string `json:"bssid"`
}

func (d Discover) Valid() bool {
	return d.ServiceName != "" && d.EndUser != "" && d.SSID != ""
}

// NearbyAP is one scan entry inside a MonitorEU payload.
type NearbyAP struct {
	SSID  string  `json:"SSID"`
	BSSID string  `json:"BSSID"`
	Level float64 `json:"level"`
}

// MonitorEU is the payload of `monitor/eu/<user>`.
type MonitorEU struct {
	EndUser  string     `json:"end_user"`
	NearbyAP []NearbyAP `json:"nearbyAP"`
}

func (m MonitorEU) Valid() bool { return m.EndUser != "" && len(m.NearbyAP) > 0 }

// MonitorService is the payload of `monitor/service/<user>`.
type MonitorService struct {
	EndUser     string  `json:"end_user"`
	ServiceName string  `json:"service_name"`
	SSID        string  `json:"ssid"`
	BSSID       string  `json:"bssid"`
	StartTimeNS int64   `json:"startTime"`
	EndTimeNS   int64   `json:"endTime"`
	ProcessMS   float64 `json:"processTime"`
	SentSizeB   float64 `json:"sentSize"`
}

func (m MonitorService) Valid() bool { return m.EndUser != "" && m.ServiceName != "" }

// TransferDelayMS is the transmission-delay component of the end-to-end
// latency in milliseconds: (endTime-startTime) minus processTime (spec
// §4.6 SLA check, §8 S5).
func (m MonitorService) TransferDelayMS() float64 {
	return float64(m.EndTimeNS-m.StartTimeNS)/1e6 - m.ProcessMS
}

// MonitorServer is the payload of `monitor/server/<server>`.
type MonitorServer struct {
	CPUMax    float64 `json:"cpu_max"`
	CPUCores  int     `json:"cpu_cores"`
	MemTotal  float64 `json:"mem_total"`
	MemFree   float64 `json:"mem_free"`
	DiskTotal float64 `json:"disk_total"`
	DiskFree  float64 `json:"disk_free"`
}

// MonitorContainer is the payload of `monitor/container/<server>`.
type MonitorContainer struct {
	Container      string  `json:"container"`
	Status         string  `json:"status"`
	CPU            float64 `json:"cpu"`
	Mem            float64 `json:"mem"`
	Size           float64 `json:"size"`
	DeltaMemory    float64 `json:"delta_memory"`
	PreCheckpoint  float64 `json:"pre_checkpoint"`
	TimeXdelta     float64 `json:"time_xdelta"`
	TimeCheckpoint float64 `json:"time_checkpoint"`
}

func (m MonitorContainer) Valid() bool { return m.Container != "" }

// MonitorEdge is the payload of `monitor/edge/<server>`.
type MonitorEdge struct {
	SrcNode string  `json:"src_node"`
	DstNode string  `json:"dest_node"`
	Latency float64 `json:"latency"`
	BW      float64 `json:"bw"`
}

func (m MonitorEdge) Valid() bool { return m.SrcNode != "" && m.DstNode != "" }

// MigrateReport is the payload of `migrate_report/{source,dest}/<server>`.
type MigrateReport struct {
	Source         string  `json:"source"`
	Dest           string  `json:"dest"`
	Service        string  `json:"service"`
	PreCheckpoint  float64 `json:"pre_checkpoint"`
	PreRsync       float64 `json:"pre_rsync"`
	Prepare        float64 `json:"prepare"`
	Checkpoint     float64 `json:"checkpoint"`
	Rsync          float64 `json:"rsync"`
	XdeltaSource   float64 `json:"xdelta_source"`
	FinalRsync     float64 `json:"final_rsync"`
	Migrate        float64 `json:"migrate"`
	Premigration   float64 `json:"premigration"`
	XdeltaDest     float64 `json:"xdelta_dest"`
	Restore        float64 `json:"restore"`
	SizePreRsync   float64 `json:"size_pre_rsync"`
	SizeRsync      float64 `json:"size_rsync"`
	SizeFinalRsync float64 `json:"size_final_rsync"`
}

func (m MigrateReport) Valid() bool { return m.Source != "" && m.Dest != "" && m.Service != "" }

// ServiceDescriptor is the common shape used by `allocated`, `pre_migrated`,
// `migrated`, `deploy`, `pre_migrate`, `migrate`, and `destroy` payloads.
type ServiceDescriptor struct {
	ServiceName   string  `json:"service_name"`
	EndUser       string  `json:"end_user"`
	Image         string  `json:"image"`
	Server        string  `json:"server"`
	NextServer    string  `json:"next_server"`
	NextIP        string  `json:"next_ip"`
	NextBS        string  `json:"next_bs"`
	HostPort      int     `json:"host_port"`
	ContainerPort int     `json:"container_port"`
	CheckpointDir string  `json:"checkpoint_dir"`
	MigrateMethod string  `json:"migrate_method"`
	Status        string  `json:"status"`
}

func (s ServiceDescriptor) Valid() bool { return s.ServiceName != "" && s.EndUser != "" }

// Handovered is the payload of `handovered/<user>`.
type Handovered struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// HandoverCommand is the payload published on `handover/<user>`.
type HandoverCommand struct {
	NextSSID     string  `json:"nextSSID"`
	NextBSSID    string  `json:"nextBSSID"`
	NextPassword string  `json:"nextPassword"`
	ElapsedTimeMS float64 `json:"elapsedTime"`
}

// ServerSummary is one entry of the `updated` topic's server-list array.
type ServerSummary struct {
	ServerName string `json:"server_name"`
	IP         string `json:"ip"`
	Distance   int    `json:"distance"`
	BS         string `json:"bs,omitempty"`
}

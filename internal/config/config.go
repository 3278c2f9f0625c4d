// Package config loads the CLI flags and topology/profile YAML described
// in spec §6 "CLI" and §8 bootstrap, the way the teacher's lxc/config and
// lxd/cluster/config packages load YAML with gopkg.in/yaml.v2.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// PlannerKind selects which §4.5 planner variant to instantiate.
type PlannerKind string

const (
	PlannerNearest     PlannerKind = "nearest"
	PlannerRandom      PlannerKind = "random"
	PlannerCloud       PlannerKind = "cloud"
	PlannerOptimised   PlannerKind = "optimization"
)

// MigrateMethod mirrors the CLI-selectable default migration method.
type MigrateMethod string

const (
	MigratePreCopy MigrateMethod = "pre_copy"
	MigrateNonLive MigrateMethod = "non_live_migration"
)

// Config is the fully parsed set of flags for the centralctl daemon.
type Config struct {
	DatabaseFile  string
	ProfileFile   string
	Log           string
	LogLevel      string
	MigrateMethod MigrateMethod
	Planner       PlannerKind
	Verbose       bool
}

// LogrusLevel parses LogLevel, defaulting to Info on error or empty.
func (c Config) LogrusLevel() logrus.Level {
	if c.LogLevel == "" {
		return logrus.InfoLevel
	}

	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return lvl
}

// Validate checks that the planner/method flags carry a recognised value.
func (c Config) Validate() error {
	switch c.Planner {
	case PlannerNearest, PlannerRandom, PlannerCloud, PlannerOptimised:
	default:
		return fmt.Errorf("unknown planner %q", c.Planner)
	}

	switch c.MigrateMethod {
	case MigratePreCopy, MigrateNonLive:
	default:
		return fmt.Errorf("unknown migrate method %q", c.MigrateMethod)
	}

	return nil
}

// TopologyServer is one statically pre-provisioned server entry in the
// profile YAML (register messages can also create servers dynamically;
// this is only a bootstrap convenience, not a requirement).
type TopologyServer struct {
	Name         string  `yaml:"name"`
	IP           string  `yaml:"ip"`
	Distance     int     `yaml:"distance"`
	CoreCount    int     `yaml:"core_count"`
	CPUMaxMHz    float64 `yaml:"cpu_max_mhz"`
	RAMMB        float64 `yaml:"ram_mb"`
	DiskMB       float64 `yaml:"disk_mb"`
	BS           string  `yaml:"bs"`
	BSX          float64 `yaml:"bs_x"`
	BSY          float64 `yaml:"bs_y"`
}

// Topology is the parsed --profile_file document.
type Topology struct {
	Servers []TopologyServer `yaml:"servers"`
}

// LoadTopology reads and parses a topology YAML file. A missing path is
// not an error: the store can be populated entirely by `register` events.
func LoadTopology(path string) (*Topology, error) {
	if path == "" {
		return &Topology{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}

	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse profile file: %w", err)
	}

	return &top, nil
}

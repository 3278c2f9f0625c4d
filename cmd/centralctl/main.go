// Command centralctl is the single entry point described in spec §6
// "CLI": it loads the topology/profile file, opens the store, connects
// to the message bus, wires the configured planner and estimators into
// the orchestrator, subscribes every handler, and runs until SIGTERM or
// SIGINT tells it to shut down. End of standard input does not stop it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgefabric/centralctl/internal/bus"
	"github.com/edgefabric/centralctl/internal/config"
	"github.com/edgefabric/centralctl/internal/handlers"
	"github.com/edgefabric/centralctl/internal/logging"
	"github.com/edgefabric/centralctl/internal/migcost"
	"github.com/edgefabric/centralctl/internal/model"
	"github.com/edgefabric/centralctl/internal/orchestrator"
	"github.com/edgefabric/centralctl/internal/planner"
	"github.com/edgefabric/centralctl/internal/radio"
	"github.com/edgefabric/centralctl/internal/revert"
	"github.com/edgefabric/centralctl/internal/scheduler"
	"github.com/edgefabric/centralctl/internal/store"
)

// clientID is the fixed bus identity the controller connects with; it
// is the single process named in every topic's `centre` segment and
// last-will (spec §4.6 `LWT/centre`).
const clientID = "centralizedcontroller"

// plannerTickInterval drives the periodic reassignment sweep, which runs
// for every planner variant. `optimised` is additionally run from RSSI
// updates with the measured pre-migration average as its horizon (see
// orchestrator.OnRSSIUpdate).
const plannerTickInterval = 5 * time.Second

func main() {
	var cfg config.Config
	var brokerURL string

	rootCmd := &cobra.Command{
		Use:   "centralctl",
		Short: "Centralized orchestration controller for live container migration",
		Long:  `centralctl decides container placement, migration timing, and BS handover for a fleet of edge servers, and coordinates it through the message bus.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cfg, brokerURL)
		},
	}

	rootCmd.Flags().StringVar(&cfg.DatabaseFile, "database_file", "centralctl.db", "Path to the sqlite store")
	rootCmd.Flags().StringVar(&cfg.ProfileFile, "profile_file", "", "Path to the topology YAML")
	rootCmd.Flags().StringVar(&cfg.Log, "log", "", "Log file path (default stderr)")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log_level", "info", "Log level")
	rootCmd.Flags().StringVar((*string)(&cfg.MigrateMethod), "migrate_method", string(config.MigratePreCopy), "Default migration method: pre_copy|non_live_migration")
	rootCmd.Flags().StringVar((*string)(&cfg.Planner), "planner", string(config.PlannerNearest), "Planner: nearest|random|optimization|cloud")
	rootCmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable debug-level logging regardless of --log_level")
	rootCmd.Flags().StringVar(&brokerURL, "broker", "ws://localhost:9999", "Message bus broker URL (spec §6 constant, port 9999)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cfg config.Config, brokerURL string) error {
	log, err := logging.New(cfg.Log, cfg.LogrusLevel(), cfg.Verbose)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	rv := revert.New()
	defer rv.Fail()

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	rv.Add(func() { _ = st.Close() })

	topology, err := config.LoadTopology(cfg.ProfileFile)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	if err := seedTopology(st, topology); err != nil {
		return fmt.Errorf("seed topology: %w", err)
	}

	adapter := bus.NewWebSocketAdapter(brokerURL, clientID, log)
	if err := adapter.RegisterLastWill("LWT/centre", nil); err != nil {
		return fmt.Errorf("register last-will: %w", err)
	}

	radioEst := radio.NewEstimator()
	costEst := migcost.NewEstimator(st)

	pl := newPlanner(cfg.Planner, st, radioEst, costEst)

	method := model.MigratePreCopy
	if cfg.MigrateMethod == config.MigrateNonLive {
		method = model.MigrateNonLive
	}

	orch := orchestrator.New(st, adapter, pl, costEst, radioEst, log, method)

	h := &handlers.Handlers{Store: st, Orchestrator: orch, Bus: adapter, Log: log}

	if err := adapter.Connect(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	rv.Add(func() { _ = adapter.Close() })

	if err := h.Register(); err != nil {
		return fmt.Errorf("subscribe handlers: %w", err)
	}

	h.PublishUpdated()

	stopTick, _ := scheduler.Start(func(ctx context.Context) {
		orch.RunPlannerTick(plannerTickInterval)
	}, scheduler.Every(plannerTickInterval))

	rv.Add(func() { _ = stopTick(2 * time.Second) })

	rv.Success()

	log.Info("centralctl: started", nil)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	<-sig

	log.Info("centralctl: shutting down", nil)

	_ = stopTick(2 * time.Second)
	_ = adapter.Close()

	return st.Close()
}

// newPlanner constructs the configured planner variant, wiring the
// radio/cost estimators into the optimised variant only (spec §4.5).
func newPlanner(kind config.PlannerKind, st *store.Store, rad *radio.Estimator, cost *migcost.Estimator) planner.Planner {
	switch kind {
	case config.PlannerRandom:
		return &planner.Random{Store: st}
	case config.PlannerCloud:
		return &planner.Cloud{Store: st}
	case config.PlannerOptimised:
		return &planner.Optimised{Store: st, Radio: rad, Cost: cost}
	default:
		return &planner.Nearest{Store: st}
	}
}

// seedTopology pre-registers every statically configured server and its
// co-located base station, a bootstrap convenience on top of the
// dynamic `register` event path (spec §6 "CLI", config.TopologyServer).
func seedTopology(st *store.Store, top *config.Topology) error {
	for _, t := range top.Servers {
		srv := model.Server{
			Name: t.Name, IP: t.IP, DistanceTier: t.Distance, CoreCount: t.CoreCount,
			CPUMaxMHz: t.CPUMaxMHz, RAMMB: t.RAMMB, RAMFreeMB: t.RAMMB, DiskMB: t.DiskMB, DiskFreeMB: t.DiskMB,
		}
		if err := st.RegisterServer(srv); err != nil {
			return err
		}

		if t.BS == "" {
			continue
		}

		bts := model.BaseStation{Name: t.BS, X: t.BSX, Y: t.BSY, ServerName: t.Name}
		if err := st.RegisterBS(bts); err != nil {
			return err
		}
	}

	return nil
}

// Command syncpoint runs fault-injection scenarios against a live cluster.
//
// Usage:
//
//	syncpoint -config syncpoint.yaml [-scenarios SimpleBackup,TabletScans] [-list]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/syncpoint"
	cqlv1 "github.com/arloliu/syncpoint/adapter/cql/v1"
	"github.com/arloliu/syncpoint/config"
	vmmetrics "github.com/arloliu/syncpoint/contrib/metrics/vm"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/scenario"
	"github.com/arloliu/syncpoint/taskctl"
	"github.com/arloliu/syncpoint/types"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "syncpoint.yaml", "Path to configuration file")
	only := flag.String("scenarios", "", "Comma-separated scenario names (overrides the config file)")
	list := flag.Bool("list", false, "List scenarios and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if *list {
		for _, s := range scenario.All(scenario.Settings{}) {
			fmt.Printf("%-28s %s\n", s.Name(), s.Description())
		}
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", *configPath, "error", err)
		return err
	}
	names := cfg.Run.Scenarios
	if *only != "" {
		names = nil
		for _, name := range strings.Split(*only, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	selected, err := scenario.Select(scenario.All(settings(cfg)), names)
	if err != nil {
		logger.Error("Invalid scenario selection", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := vmmetrics.New(vmmetrics.WithPrefix(cfg.Metrics.Prefix))
	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, logger, cfg.Metrics.Addr, collector)
	}

	sc, cleanup, err := buildContext(ctx, cfg, logger, collector)
	if err != nil {
		logger.Error("Failed to prepare scenario context", "error", err)
		return err
	}
	defer cleanup()

	logger.Info("Starting syncpoint",
		"nodes", len(sc.Nodes),
		"scenarios", len(selected),
	)

	runner := scenario.NewRunner(
		scenario.WithLogger(logger),
		scenario.WithMetrics(collector),
	)
	runner.Register(selected...)

	report, err := runner.Run(ctx, sc)
	for _, res := range report.Results {
		status := "PASS"
		if !res.Passed() {
			status = "FAIL"
		}
		fmt.Printf("%s  %-28s %s\n", status, res.Name, res.Duration.Round(time.Millisecond))
	}
	if err != nil {
		logger.Error("Scenarios failed", "failed", len(report.Failed()), "error", err)
		return err
	}

	logger.Info("All scenarios passed")

	return nil
}

func settings(cfg *config.Config) scenario.Settings {
	s := scenario.Settings{
		Backup: scenario.BackupTarget{
			Keyspace:    cfg.Run.Backup.Keyspace,
			Table:       cfg.Run.Backup.Table,
			Tag:         cfg.Run.Backup.Tag,
			Endpoint:    cfg.Run.Backup.Endpoint,
			TaskTimeout: cfg.Run.TaskTimeout,
		},
		Tablets: scenario.TabletSettings{
			Keyspace:    cfg.Run.Tablets.Keyspace,
			LogTimeout:  cfg.Run.LogTimeout,
			MoveTimeout: cfg.Run.Tablets.MoveTimeout,
		},
	}
	if cfg.ObjectStore != nil {
		s.Backup.Bucket = cfg.ObjectStore.Bucket
	}

	return s
}

// buildContext connects every collaborator named by cfg.
// The returned cleanup releases them in reverse order.
func buildContext(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector types.MetricsCollector) (*syncpoint.ScenarioContext, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*syncpoint.ScenarioContext, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	apiURLs := make(map[types.NodeID]string, len(cfg.Nodes))
	dataDirs := make(map[types.NodeID]string, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		apiURLs[types.NodeID(n.ID)] = n.APIURL
		dataDirs[types.NodeID(n.ID)] = n.DataDir
	}

	api := restapi.New(
		restapi.WithPort(cfg.ControlAPI.Port),
		restapi.WithTimeout(cfg.ControlAPI.Timeout),
		restapi.WithAddressResolver(func(node types.NodeID) string {
			if u := apiURLs[node]; u != "" {
				return u
			}
			return fmt.Sprintf("http://%s:%d", node, cfg.ControlAPI.Port)
		}),
		restapi.WithLogger(logger),
		restapi.WithMetrics(collector),
	)

	sources, stop, err := logSources(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, stop)

	session, err := cqlSession(cfg)
	if err != nil {
		return fail(err)
	}

	opts := []syncpoint.Option{
		syncpoint.WithControlAPI(api),
		syncpoint.WithCQLSession(cqlv1.WrapSession(session)),
		syncpoint.WithSnapshotLister(syncpoint.DirSnapshotLister{
			DataDir: func(node types.NodeID) string { return dataDirs[node] },
		}),
		syncpoint.WithLogWatchOptions(logwatch.WithDefaultTimeout(cfg.Run.LogTimeout)),
		syncpoint.WithTaskOptions(taskctl.WithDefaultTimeout(cfg.Run.TaskTimeout)),
		syncpoint.WithLogger(logger),
		syncpoint.WithMetrics(collector),
	}
	for _, n := range cfg.Nodes {
		opts = append(opts, syncpoint.WithNode(types.NodeID(n.ID), sources[types.NodeID(n.ID)]))
	}

	if cfg.ObjectStore != nil {
		store, err := objstore.NewMinIO(*cfg.ObjectStore)
		if err != nil {
			session.Close()
			return fail(err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			session.Close()
			return fail(err)
		}
		opts = append(opts, syncpoint.WithObjectStore(store))
	}

	sc, err := syncpoint.NewScenarioContext(opts...)
	if err != nil {
		session.Close()
		return fail(err)
	}
	closers = append(closers, sc.Close)

	return sc, cleanup, nil
}

func cqlSession(cfg *config.Config) (*gocql.Session, error) {
	consistency, err := gocql.ParseConsistencyWrapper(cfg.CQL.Consistency)
	if err != nil {
		return nil, fmt.Errorf("cql consistency: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CQL.Hosts...)
	cluster.Port = cfg.CQL.Port
	cluster.Timeout = cfg.CQL.Timeout
	cluster.ConnectTimeout = cfg.CQL.Timeout
	cluster.Consistency = consistency

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cql connect: %w", err)
	}

	return session, nil
}

// logSources returns a log source per node. Without a log stream the node
// log files are read directly; with one, lines are read from JetStream and
// optionally shipped there from the log files first.
func logSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[types.NodeID]logwatch.Source, func(), error) {
	sources := make(map[types.NodeID]logwatch.Source, len(cfg.Nodes))
	if cfg.LogStream == nil {
		for _, n := range cfg.Nodes {
			sources[types.NodeID(n.ID)] = logwatch.NewFileSource(n.LogFile)
		}
		return sources, func() {}, nil
	}

	ls := cfg.LogStream
	nc, err := nats.Connect(ls.URL, nats.Name("syncpoint"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	streamCfg := logwatch.DefaultStreamConfig()
	streamCfg.StreamName = ls.Stream
	streamCfg.SubjectPrefix = ls.SubjectPrefix
	stream, err := logwatch.EnsureStream(ctx, js, streamCfg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	shipCtx, stopShipping := context.WithCancel(ctx)
	done := make(chan struct{})
	shippers := 0
	for _, n := range cfg.Nodes {
		node := types.NodeID(n.ID)
		source := logwatch.NewNATSSource(stream, streamCfg, node)
		sources[node] = source

		if !ls.Ship {
			continue
		}
		file := logwatch.NewFileSource(n.LogFile)
		end, err := file.End(ctx)
		if err != nil {
			stopShipping()
			nc.Close()
			return nil, nil, fmt.Errorf("node %s: %w", node, err)
		}
		shipper := logwatch.NewShipper(js, streamCfg, node, file, logger)
		shipper.StartAt(end)
		source.WithShipper(shipper)
		shippers++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := shipper.Run(shipCtx, ls.ShipInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Log shipper stopped", "node", node, "error", err)
			}
		}()
	}

	stop := func() {
		stopShipping()
		for range shippers {
			<-done
		}
		nc.Close()
	}

	return sources, stop, nil
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, collector *vmmetrics.Collector) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", collector.Handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", "error", err)
	}
}

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"seqdb/api/grpcserver"
	"seqdb/config"
	"seqdb/infra/catalog"
	"seqdb/infra/kafka"
	"seqdb/infra/metrics"
	"seqdb/infra/txn"
	"seqdb/jobs/broadcaster"
	"seqdb/jobs/vacuum"
	"seqdb/service"
)

// Options override the config file from the command line.
type Options struct {
	Config    string `short:"c" long:"config" description:"path to the YAML config file"`
	GRPCAddr  string `long:"grpc.listen" description:"gRPC listen address"`
	DataDir   string `long:"storage.dir" description:"catalog directory"`
	InMemory  bool   `long:"storage.in-memory" description:"keep the catalog in memory"`
	Broadcast bool   `long:"broadcast" description:"publish DDL events to Kafka"`
	Feed      bool   `long:"feed" description:"consume DDL events from other nodes"`
	LogLevel  string `long:"log.level" description:"panic, fatal, error, warn, info, debug or trace"`
}

func (o Options) apply(cfg *config.Config) {
	if o.GRPCAddr != "" {
		cfg.GRPC.ListenAddr = o.GRPCAddr
	}
	if o.DataDir != "" {
		cfg.Storage.Dir = o.DataDir
	}
	if o.InMemory {
		cfg.Storage.InMemory = true
	}
	if o.Broadcast {
		cfg.Broadcast.Enabled = true
	}
	if o.Feed {
		cfg.Feed.Enabled = true
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("config invalid")
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	// ---------------- Metrics ----------------

	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)

	// ---------------- Transactions ----------------

	mgr := txn.NewManager(log)
	metrics.RegisterTxnGauge(reg, mgr.ActiveCount)

	// ---------------- Catalog ----------------

	origin := nodeOrigin()
	catCfg := catalog.Config{
		Dir:           cfg.Storage.Dir,
		TileGroupSize: cfg.Storage.TileGroupSize,
		Origin:        origin,
	}
	if cfg.Storage.InMemory {
		catCfg.FS = vfs.NewMem()
	}
	store, err := catalog.Open(catCfg, mgr, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// ---------------- Service + Recovery ----------------

	engine := service.New(service.Config{
		Retry: service.RetryPolicy{
			MaxAttempts:     cfg.Commit.MaxAttempts,
			InitialInterval: cfg.Commit.InitialInterval,
			MaxInterval:     cfg.Commit.MaxInterval,
		},
		RedactNames: cfg.Commit.RedactNames,
	}, mgr, store, m, log)

	if err := engine.Recover(store); err != nil {
		return errors.Wrap(err, "recover catalog")
	}

	lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.GRPC.ListenAddr)
	}

	g, ctx := errgroup.WithContext(ctx)

	// ---------------- Background Jobs ----------------

	vac := vacuum.New(mgr, cfg.Vacuum.Interval, m, log, store.Table())
	g.Go(func() error { return vac.Run(ctx) })

	if cfg.Broadcast.Enabled {
		pub, err := newPublisher(cfg.Broadcast)
		if err != nil {
			return errors.Wrap(err, "broadcast publisher")
		}
		bc := broadcaster.New(store, pub, broadcaster.Config{
			Topic:      cfg.Broadcast.Topic,
			Interval:   cfg.Broadcast.Interval,
			PurgeEvery: cfg.Broadcast.PurgeEvery,
		}, m, log)
		defer bc.Close()
		g.Go(func() error { return bc.Run(ctx) })
	}

	if cfg.Feed.Enabled {
		feed := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Broadcast.Brokers,
			Topic:   cfg.Broadcast.Topic,
			GroupID: cfg.Feed.GroupID + "-" + origin,
			Origin:  origin,
		}, engine, m, log)
		defer feed.Close()
		g.Go(func() error { return feed.Run(ctx) })
	}

	// ---------------- Metrics endpoint ----------------

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		g.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpSrv.Close()
		})
	}

	// ---------------- gRPC ----------------

	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(engine, log))
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":   cfg.GRPC.ListenAddr,
			"origin": origin,
		}).Info("seqdb serving")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

func newPublisher(cfg config.Broadcast) (broadcaster.Publisher, error) {
	if cfg.Client == config.ClientKafkaGo {
		return kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Brokers,
			Topic:        cfg.Topic,
			BatchTimeout: cfg.Interval / 10,
		}), nil
	}
	return broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
}

// nodeOrigin names this process in the events it publishes.
func nodeOrigin() string {
	host, err := os.Hostname()
	if err != nil {
		host = "seqdb"
	}
	return host + "-" + uuid.NewString()[:8]
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/cellgrid/featureflag"
	"github.com/aukilabs/cellgrid/geometry"
	cghttp "github.com/aukilabs/cellgrid/http"
	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/cellgrid/modules/overlap"
	"github.com/aukilabs/cellgrid/smoketest"
	cgwebsocket "github.com/aukilabs/cellgrid/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The cellgrid version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "cellgrid_info",
		Help:        "Cellgrid information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config field names readable by the cli package when the binary
// is obfuscated. https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"CELLGRID_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"CELLGRID_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"CELLGRID_PUBLIC_ENDPOINT"      help:"The public endpoint where this cellgrid server is reachable."`
	ServerID           string        `cli:""        env:"CELLGRID_SERVER_ID"            help:"The id prefixed to the ids of the regions hosted by this server."`
	LogLevel           string        `cli:""        env:"CELLGRID_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"CELLGRID_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"CELLGRID_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"CELLGRID_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"CELLGRID_FRAME_DURATION"       help:"The duration of a region frame, between two grid index rebuilds."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"CELLGRID_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Region             regionConfig  `cli:""        env:"-"                             help:"Default region configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                             help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"CELLGRID_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type regionConfig struct {
	GridWidth   int    `cli:"" env:"CELLGRID_REGION_GRID_WIDTH"   help:"The width of the default region."`
	GridHeight  int    `cli:"" env:"CELLGRID_REGION_GRID_HEIGHT"  help:"The height of the default region."`
	CellWidth   int    `cli:"" env:"CELLGRID_REGION_CELL_WIDTH"   help:"The width of a default region grid cell."`
	CellHeight  int    `cli:"" env:"CELLGRID_REGION_CELL_HEIGHT"  help:"The height of a default region grid cell."`
	PresetsFile string `cli:"" env:"CELLGRID_REGION_PRESETS_FILE" help:"TOML file that defines named region presets."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"CELLGRID_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"CELLGRID_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"CELLGRID_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"CELLGRID_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "cellgrid",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 50,
		LogSummaryInterval: time.Minute,
		Region: regionConfig{
			GridWidth:  4096,
			GridHeight: 4096,
			CellWidth:  64,
			CellHeight: 64,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts cellgrid server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	presets, err := loadRegionPresets(conf.Region)
	if err != nil {
		logs.Fatal(errors.New("loading region presets failed").Wrap(err))
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	if unknown := featureFlags.Unknown(); len(unknown) != 0 {
		logs.Warn(errors.New("unknown feature flags are ignored").
			WithTag("feature_flags", unknown))
	}

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "cellgrid",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	regions := models.RegionStore{
		ServerID: conf.ServerID,
	}

	var service http.ServeMux
	service.Handle("/health", cghttp.HandleWithCORS(http.HandlerFunc(cghttp.HandleHealthCheck)))
	service.Handle("/ready", cghttp.HandleWithCORS(cghttp.HandleReadyCheck(ctx, &regions)))
	service.Handle("/version", cghttp.HandleWithCORS(cghttp.HandleVersion(version)))

	service.Handle("/", cghttp.HandleWithCORS(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh cgwebsocket.Handler = &cgwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				FrameDuration:           conf.FrameDuration,
				Regions:                 &regions,
				Presets:                 presets,
				Modules: []modules.Module{
					&overlap.Module{},
				},
				FeatureFlags: featureFlags,
			}
			h := cgwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = cgwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			cgwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", cghttp.HandleHealthCheck)
	admin.HandleFunc("/ready", cghttp.HandleReadyCheck(ctx, &regions))
	admin.HandleFunc("/debug/regions", cghttp.HandleRegions(&regions))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("cellgrid %s", version),
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("server_id", conf.ServerID).
		WithTag("presets", len(presets)).
		Info("starting cellgrid server")

	cghttp.ListenAndServe(ctx,
		cghttp.NewServer(conf.Addr, metrics.HTTPHandler(&service, cghttp.MetricsPathFormatter)),
		cghttp.NewServer(conf.AdminAddr, &admin),
	)
}

// loadRegionPresets returns the presets defined in the presets file, plus the
// default preset built from the region config when the file does not define
// one.
func loadRegionPresets(conf regionConfig) (models.RegionPresets, error) {
	presets := make(models.RegionPresets)

	if conf.PresetsFile != "" {
		p, err := models.LoadRegionPresets(conf.PresetsFile)
		if err != nil {
			return nil, err
		}
		if p != nil {
			presets = p
		}
	}

	if _, ok := presets[models.DefaultPresetName]; !ok {
		preset := models.NewRegionPreset(
			geometry.NewSize(conf.GridWidth, conf.GridHeight),
			geometry.NewSize(conf.CellWidth, conf.CellHeight),
		)
		if err := preset.Validate(); err != nil {
			return nil, errors.New("invalid default region").Wrap(err)
		}
		presets[models.DefaultPresetName] = preset
	}

	return presets, nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	return nil
}

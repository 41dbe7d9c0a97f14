package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/fetchpipe"
	"github.com/always-cache/fetchpipe/adblock"
	"github.com/always-cache/fetchpipe/cache"
	"github.com/always-cache/fetchpipe/csp"
	"github.com/always-cache/fetchpipe/journal"
	"github.com/always-cache/fetchpipe/metrics"
	"github.com/always-cache/fetchpipe/transport"
)

var (
	// CLI flags
	configFlag         string
	portFlag           int
	dbFilenameFlag     string
	blocklistFlag      string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Config file (yaml)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Journal DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&blocklistFlag, "blocklist", "", "Block list file or directory (added to the configured lists)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if dbFilenameFlag != "" {
		config.DB = dbFilenameFlag
	}
	if blocklistFlag != "" {
		config.Blocklists = append(config.Blocklists, blocklistFlag)
	}

	matcher := adblock.NewMatcher()
	for _, list := range config.Blocklists {
		if err := loadBlocklist(matcher, list); err != nil {
			log.Fatal().Err(err).Str("list", list).Msg("Could not load block list")
		}
	}
	log.Info().Int("rules", matcher.Len()).Msg("Block lists loaded")

	// journal db, in memory if requested
	dbFilename := config.DB
	if dbFilename == "memory" {
		dbFilename = ""
	}
	j := journal.NewSQLiteJournal(dbFilename)
	defer j.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := newServer(config, matcher, j, transport.NewHTTP(config.Transport), registry, log.Logger)

	scheduler := cron.New()
	if config.Journal.Retention > 0 {
		if _, err := scheduler.AddFunc(config.Journal.PruneSchedule, pruneJournal(j, config.Journal.Retention)); err != nil {
			log.Fatal().Err(err).Str("schedule", config.Journal.PruneSchedule).Msg("Invalid prune schedule")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Msgf("Listening on port %v", config.Port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), s.routes())

	if err != nil {
		panic(err)
	}
}

// newServer wires cache, policies, journal and metrics into a fetcher and
// the per-tab interceptor chain.
func newServer(config Config, matcher *adblock.Matcher, j journal.SQLiteJournal, tr fetchpipe.Transport, registry *prometheus.Registry, logger zerolog.Logger) *server {
	m := metrics.NewMetrics(registry)
	httpCache := cache.CreateCache(cache.Config{
		MaxMemoryBytes: config.Cache.MaxMemoryBytes,
		MaxEntries:     config.Cache.MaxEntries,
		OnEvict:        m.Evicted,
	})
	m.TrackCache(httpCache)
	policies := csp.NewManager()

	fetcher := fetchpipe.CreateFetcher(fetchpipe.Config{
		Cache:        httpCache,
		Policies:     policies,
		Transport:    tr,
		Logger:       &logger,
		Recorder:     j,
		Observer:     m,
		MaxRedirects: config.MaxRedirects,
	})

	headers := make(http.Header)
	for name, value := range config.Headers {
		headers.Set(name, value)
	}

	return &server{
		fetcher:  fetcher,
		cache:    httpCache,
		policies: policies,
		journal:  j,
		gatherer: registry,
		tabs:     map[string]*tab{},
		newHandler: func() *fetchpipe.RequestHandler {
			adBlock := fetchpipe.DisabledAdBlock()
			if matcher != nil && matcher.Len() > 0 {
				adBlock = fetchpipe.NewAdBlockInterceptor(matcher.ShouldBlock)
			}
			// decoding comes last so it unwraps the body before the others
			// see the response
			return fetchpipe.NewRequestHandler(
				adBlock,
				fetchpipe.NewHeaderInjectorInterceptor(headers),
				fetchpipe.NewRedirectInterceptor(config.MaxRedirects),
				fetchpipe.NewCspInterceptor(policies, j),
				fetchpipe.NewRulesInterceptor(config.Rules),
				fetchpipe.NewDecodingInterceptor(),
			)
		},
	}
}

func loadBlocklist(matcher *adblock.Matcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		_, err = matcher.LoadDir(path)
	} else {
		_, err = matcher.LoadFile(path)
	}
	return err
}

func pruneJournal(j journal.SQLiteJournal, retention time.Duration) func() {
	return func() {
		removed, err := j.Prune(time.Now().Add(-retention))
		if err != nil {
			log.Error().Err(err).Msg("Could not prune journal")
			return
		}
		log.Debug().Int64("removed", removed).Msg("Pruned journal")
	}
}

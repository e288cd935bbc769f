package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/platform/config"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/platform/store"

	"cacdarchive/internal/adapters/courtsite"
	"cacdarchive/internal/services/alerts"
	"cacdarchive/internal/services/ingest/discovery"
	"cacdarchive/internal/services/ingest/listsync"
	"cacdarchive/internal/services/ingest/pipeline"
	"cacdarchive/internal/services/ingest/tableparse"
	"cacdarchive/internal/services/notify"
	"cacdarchive/internal/services/scheduler"
	"cacdarchive/internal/services/scrapes"
)

// pipelineRunner adapts the pipeline to the scheduler's Runner seam
type pipelineRunner struct{ p *pipeline.Pipeline }

func (r pipelineRunner) Run(ctx context.Context, kind scrapes.Kind) error {
	_, err := r.p.Run(ctx, kind)
	return err
}

func main() {
	_ = godotenv.Load()

	root := config.New()
	dbCfg := root.Prefix("SERVICE_PGSQL_")
	scrCfg := root.Prefix("SCRAPER_")
	notCfg := root.Prefix("NOTIFY_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dbCfg.MustString("DBURL"),
			MaxConns:    int32(dbCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: dbCfg.MayInt("SLOW_MS", 500),
			LogSQL:      dbCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var sink alerts.Sink = alerts.NewLogSink()
	if root.MayEnum("MAIL_SINK", "log", "log", "noop") == "noop" {
		sink = alerts.NoopSink{}
	}

	division, err := causelist.ParseDivision(scrCfg.MayString("DIVISION", "Criminal"))
	if err != nil {
		l.Panic().Err(err).Msg("bad SCRAPER_DIVISION")
	}

	summaryURL := scrCfg.MustString("SUMMARY_URL")
	fetcher := courtsite.NewClient(courtsite.Options{
		UserAgent: scrCfg.MayString("USER_AGENT", "cacd-archive-scraper"),
		Timeout:   time.Duration(scrCfg.MayInt("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
	})

	disc := discovery.New(fetcher, sink, discovery.Options{
		SummaryURL:   summaryURL,
		AllowedHosts: scrCfg.MayCSV("ALLOWED_HOSTS", nil),
		Division:     division,
	})
	parser := tableparse.New(sink)
	syncer := listsync.New(st.PG, listsync.NewPG())
	history := scrapes.New(st.PG, scrapes.NewPG())
	matcher := notify.New(st.PG, notify.NewPG(), sink, notify.Options{
		MaxPerWindow: notCfg.MayInt("MAX_PER_WINDOW", 5),
		WindowHours:  notCfg.MayInt("WINDOW_HOURS", 24),
		BaseURL:      notCfg.MayString("BASE_URL", ""),
	})

	pipe := pipeline.New(fetcher, disc, parser, syncer, history, matcher,
		pipeline.Options{SummaryURL: summaryURL})

	sched := scheduler.New(pipelineRunner{p: pipe}, history, scheduler.Options{
		Instance:     root.MayInt("APP_INSTANCE", 0),
		Interval:     time.Duration(scrCfg.MayInt("INTERVAL_MINUTES", 60)) * time.Minute,
		RunOnStartup: scrCfg.MayBool("ON_STARTUP", true),
		Window: scheduler.Window{
			Enabled:   scrCfg.MayBool("WINDOW_ENABLED", false),
			StartHour: scrCfg.MayInt("WINDOW_START_HOUR", 6),
			EndHour:   scrCfg.MayInt("WINDOW_END_HOUR", 22),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		l.Panic().Err(err).Msg("scheduler start failed")
	}

	<-ctx.Done()
	l.Info().Msg("signal received, draining")

	drainCtx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	sched.Stop(drainCtx)

	l.Info().Msg("scraper stopped")
	_ = os.Stdout.Sync()
}

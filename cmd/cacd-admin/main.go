// cacd-admin is the administrative CLI: account management, migrations,
// one-shot scrapes, and system info. Every command prints a final status
// line and exits non-zero on failure
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/core/version"
	"cacdarchive/internal/platform/config"
	"cacdarchive/internal/platform/db"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/platform/store"

	"cacdarchive/internal/adapters/courtsite"
	"cacdarchive/internal/services/alerts"
	"cacdarchive/internal/services/ingest/discovery"
	"cacdarchive/internal/services/ingest/listsync"
	"cacdarchive/internal/services/ingest/pipeline"
	"cacdarchive/internal/services/ingest/tableparse"
	"cacdarchive/internal/services/notify"
	"cacdarchive/internal/services/scrapes"
	"cacdarchive/internal/services/users"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cacd-admin <command> [args]

commands:
  users create -email <email> [-name <name>] [-password <pw>]
  users list
  users show -id <id>
  users approve -id <id> [-notes <notes>]
  users deactivate -id <id> [-notes <notes>]
  db migrate
  scraper run
  system info`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()
	root := config.New()

	var code int
	switch os.Args[1] {
	case "users":
		code = usersCmd(ctx, root, os.Args[2:])
	case "db":
		code = dbCmd(ctx, root, os.Args[2:])
	case "scraper":
		code = scraperCmd(ctx, root, os.Args[2:])
	case "system":
		code = systemCmd(os.Args[2:])
	default:
		usage()
	}
	os.Exit(code)
}

// openStore opens the shared postgres store for CLI commands
func openStore(ctx context.Context, root config.Conf) (*store.Store, error) {
	dbCfg := root.Prefix("SERVICE_PGSQL_")
	return store.Open(ctx, store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dbCfg.MustString("DBURL"),
			MaxConns:    int32(dbCfg.MayInt("MAX_CONNS", 2)),
			SlowQueryMs: dbCfg.MayInt("SLOW_MS", 500),
			LogSQL:      dbCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*logger.Get()))
}

func fail(err error) int {
	fmt.Printf("status: error: %v\n", err)
	return 1
}

func usersCmd(ctx context.Context, root config.Conf, args []string) int {
	if len(args) < 1 {
		usage()
	}
	sub := args[0]

	fs := flag.NewFlagSet("users "+sub, flag.ExitOnError)
	var (
		fEmail    = fs.String("email", "", "account email")
		fName     = fs.String("name", "", "display name")
		fPassword = fs.String("password", "", "initial password")
		fID       = fs.String("id", "", "account id")
		fNotes    = fs.String("notes", "", "audit notes for the status change")
	)
	_ = fs.Parse(args[1:])

	st, err := openStore(ctx, root)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = st.Close(ctx) }()

	svc := users.New(st.PG, users.NewPG())

	switch sub {
	case "create":
		u, err := svc.Create(ctx, *fEmail, *fName, *fPassword)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("created %s (%s) status=%s\n", u.ID, u.Email, u.Status)

	case "list":
		list, err := svc.List(ctx)
		if err != nil {
			return fail(err)
		}
		for _, u := range list {
			fmt.Printf("%s  %-30s  %-12s  %s\n",
				u.ID, u.Email, u.Status, u.CreatedAt.Format(time.RFC3339))
		}
		fmt.Printf("%d account(s)\n", len(list))

	case "show":
		u, err := svc.Get(ctx, *fID)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("id: %s\nemail: %s\nname: %s\nstatus: %s\ncreated: %s\n",
			u.ID, u.Email, u.DisplayName, u.Status, u.CreatedAt.Format(time.RFC3339))
		hist, err := svc.History(ctx, *fID)
		if err != nil {
			return fail(err)
		}
		for _, c := range hist {
			fmt.Printf("  %s  %s -> %s  %s\n",
				c.ChangedAt.Format(time.RFC3339), c.From, c.To, c.Notes)
		}

	case "approve":
		u, err := svc.Approve(ctx, *fID, *fNotes)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("approved %s (%s)\n", u.ID, u.Email)

	case "deactivate":
		u, err := svc.Deactivate(ctx, *fID, *fNotes)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("deactivated %s (%s)\n", u.ID, u.Email)

	default:
		usage()
	}

	fmt.Println("status: ok")
	return 0
}

func dbCmd(ctx context.Context, root config.Conf, args []string) int {
	if len(args) < 1 || args[0] != "migrate" {
		usage()
	}

	st, err := openStore(ctx, root)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = st.Close(ctx) }()

	if err := db.Migrate(ctx, st.PG); err != nil {
		return fail(err)
	}
	fmt.Println("status: ok")
	return 0
}

func scraperCmd(ctx context.Context, root config.Conf, args []string) int {
	if len(args) < 1 || args[0] != "run" {
		usage()
	}

	st, err := openStore(ctx, root)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = st.Close(ctx) }()

	scrCfg := root.Prefix("SCRAPER_")
	notCfg := root.Prefix("NOTIFY_")

	division, err := causelist.ParseDivision(scrCfg.MayString("DIVISION", "Criminal"))
	if err != nil {
		return fail(err)
	}

	var sink alerts.Sink = alerts.NewLogSink()
	summaryURL := scrCfg.MustString("SUMMARY_URL")
	fetcher := courtsite.NewClient(courtsite.Options{
		UserAgent: scrCfg.MayString("USER_AGENT", "cacd-archive-scraper"),
		Timeout:   time.Duration(scrCfg.MayInt("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
	})

	pipe := pipeline.New(
		fetcher,
		discovery.New(fetcher, sink, discovery.Options{
			SummaryURL:   summaryURL,
			AllowedHosts: scrCfg.MayCSV("ALLOWED_HOSTS", nil),
			Division:     division,
		}),
		tableparse.New(sink),
		listsync.New(st.PG, listsync.NewPG()),
		scrapes.New(st.PG, scrapes.NewPG()),
		notify.New(st.PG, notify.NewPG(), sink, notify.Options{
			MaxPerWindow: notCfg.MayInt("MAX_PER_WINDOW", 5),
			WindowHours:  notCfg.MayInt("WINDOW_HOURS", 24),
			BaseURL:      notCfg.MayString("BASE_URL", ""),
		}),
		pipeline.Options{SummaryURL: summaryURL},
	)

	sum, err := pipe.Run(ctx, scrapes.KindManual)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("run %s: links=%d processed=%d added=%d updated=%d deleted=%d\n",
		sum.RunID, sum.Links, sum.Stats.LinksProcessed,
		sum.Stats.RecordsAdded, sum.Stats.RecordsUpdated, sum.Stats.RecordsDeleted)
	if sum.StepErr != nil {
		return fail(sum.StepErr)
	}
	fmt.Println("status: ok")
	return 0
}

func systemCmd(args []string) int {
	if len(args) < 1 || args[0] != "info" {
		usage()
	}
	info := version.Info()
	fmt.Printf("service: %s\nversion: %s\ncommit: %s\ndate: %s\ntimezone: %s\n",
		info.Service, info.Version, info.Commit, info.Date, causelist.Zone)
	fmt.Println("status: ok")
	return 0
}

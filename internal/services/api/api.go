// Package api provides the HTTP API for the application
package api

import (
	"time"

	"github.com/go-chi/httprate"

	"cacdarchive/internal/platform/config"
	"cacdarchive/internal/platform/logger"
	phttp "cacdarchive/internal/platform/net/http"
	"cacdarchive/internal/platform/store"

	"cacdarchive/internal/modkit"
	"cacdarchive/internal/modkit/httpkit"
	"cacdarchive/internal/modkit/module"

	hearingsmod "cacdarchive/internal/services/api/hearings/module"
	metamod "cacdarchive/internal/services/api/meta/module"
	searchesmod "cacdarchive/internal/services/api/searches/module"
	searchessvc "cacdarchive/internal/services/api/searches/service"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	Instance       int
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
	}

	mods := []module.Module{
		metamod.New(deps, metamod.Options{Instance: opt.Instance}),
		hearingsmod.New(deps, hearingsmod.Options{
			DefaultLimit: opt.Config.MayInt("RECORDS_PER_PAGE", 20),
		}),
		searchesmod.New(deps, searchessvc.Limits{
			MinLength:  opt.Config.MayInt("SAVED_SEARCH_MIN_LENGTH", 3),
			MaxLength:  opt.Config.MayInt("SAVED_SEARCH_MAX_LENGTH", 100),
			MaxPerUser: opt.Config.MayInt("SAVED_SEARCH_MAX_PER_USER", 10),
		}),
	}

	// versioned API with a common middleware stack and a per-IP rate limit
	stack := append(httpkit.CommonStack(), httprate.LimitByIP(
		opt.Config.MayInt("RATE_LIMIT_PER_SECOND", 30), time.Second))

	httpkit.MountAPIV1(r, stack, func(api httpkit.Router) {
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/metalagman/psyche/internal/backend"
	"github.com/metalagman/psyche/internal/config"
	"github.com/metalagman/psyche/internal/db"
	"github.com/metalagman/psyche/internal/escalation"
	"github.com/metalagman/psyche/internal/loop"
	"github.com/metalagman/psyche/internal/procwatch"
	"github.com/metalagman/psyche/internal/roles"
	"github.com/metalagman/psyche/internal/session"
	"github.com/metalagman/psyche/internal/substrate"
	"github.com/metalagman/psyche/internal/web"
)

// limitRelay forwards session results to the loop's rate-limit observer. It
// breaks the construction cycle between the launcher (which needs an
// observer) and the loop (which needs roles built on the launcher).
type limitRelay struct {
	mu   sync.Mutex
	loop *loop.Loop
}

func (r *limitRelay) observe(res session.Result) {
	r.mu.Lock()
	l := r.loop
	r.mu.Unlock()
	if l != nil {
		l.Observe(res)
	}
}

func (r *limitRelay) bind(l *loop.Loop) {
	r.mu.Lock()
	r.loop = l
	r.mu.Unlock()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Run the psyche daemon",
		Long:         "Run the cycle loop, the subprocess reaper and the control-plane HTTP listener until interrupted.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir, err := stateDir()
			if err != nil {
				return err
			}

			lock, ok, err := loop.TryAcquireLock(dir)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("another psyche daemon already holds %s", filepath.Join(dir, "locks", "loop.lock"))
			}
			defer func() { _ = lock.Release() }()

			app := fx.New(
				fx.NopLogger,
				fx.Supply(cfg),
				fx.Provide(
					func() (*sql.DB, error) { return db.Open(filepath.Join(dir, "psyche.db")) },
					db.NewStore,
					func() (substrate.Store, error) { return substrate.NewDir(filepath.Join(dir, "substrate")) },
					func(cfg config.Config) (backend.Runner, error) { return backend.New(cfg.Backend) },
					func(cfg config.Config) *procwatch.Supervisor {
						return procwatch.New(cfg.Reaper.Grace(), cfg.Reaper.Interval())
					},
					func() *limitRelay { return &limitRelay{} },
					func(runner backend.Runner, sup *procwatch.Supervisor, relay *limitRelay) *session.Launcher {
						return session.NewLauncher(runner, sup, relay.observe)
					},
					func(cfg config.Config) session.Options {
						return session.Options{
							MaxRetries: cfg.Loop.MaxRetries,
							RetryDelay: cfg.Loop.RetryDelay(),
						}
					},
					func(cfg config.Config) *escalation.Tracker {
						return escalation.NewTracker(filepath.Join(dir, "escalations.json"), cfg.Escalation.GapCeiling)
					},
					func(store substrate.Store, l *session.Launcher, opts session.Options) *roles.Planner {
						// No trigger evaluator: deferred tasks stay deferred
						// until the planner rewrites the plan.
						return roles.NewPlanner(store, l, opts, nil)
					},
					func(cfg config.Config, store substrate.Store, l *session.Launcher, opts session.Options) *roles.Worker {
						return roles.NewWorker(store, l, opts, cfg.Worker.Reconsider, cfg.Worker.ReassessThreshold)
					},
					func(store substrate.Store, l *session.Launcher, opts session.Options, tracker *escalation.Tracker) *roles.Auditor {
						return roles.NewAuditor(store, l, opts, tracker)
					},
					func(store substrate.Store, l *session.Launcher, opts session.Options) *roles.Drives {
						return roles.NewDrives(store, l, opts)
					},
					func(cfg config.Config, p *roles.Planner, w *roles.Worker, a *roles.Auditor, d *roles.Drives, store *db.Store, relay *limitRelay) *loop.Loop {
						lp := loop.New(p, w, a, d, store, loop.Options{
							Interval:   cfg.Loop.Interval(),
							AuditEvery: cfg.Loop.AuditEvery,
							KeepLast:   cfg.Retention.KeepLast,
							StatePath:  filepath.Join(dir, "loop.json"),
						})
						relay.bind(lp)
						return lp
					},
					func(lp *loop.Loop, store *db.Store) *web.Server {
						return web.NewServer(lp, store)
					},
				),
				fx.Invoke(registerDaemon),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func registerDaemon(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, dbh *sql.DB, sup *procwatch.Supervisor, lp *loop.Loop, srv *web.Server) {
	httpSrv := &http.Server{Addr: cfg.Web.Addr, Handler: srv.Routes()}
	reaperCtx, stopReaper := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go sup.Run(reaperCtx)
			go func() {
				log.Info().Str("addr", cfg.Web.Addr).Msg("control plane listening")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("control plane listener failed")
					_ = shutdowner.Shutdown()
				}
			}()
			return lp.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			_ = lp.Stop()
			lp.Wait()
			stopReaper()
			_ = httpSrv.Shutdown(ctx)
			return dbh.Close()
		},
	})
}

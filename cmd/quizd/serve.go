package main

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/quizdesk/internal/api/http"
	"github.com/mind-engage/quizdesk/internal/audit"
	authmw "github.com/mind-engage/quizdesk/internal/auth/middleware"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/config"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/evaluation"
	"github.com/mind-engage/quizdesk/internal/importer"
	"github.com/mind-engage/quizdesk/internal/notify"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/remote"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/scheduler"
	"github.com/mind-engage/quizdesk/internal/storage"
	"github.com/mind-engage/quizdesk/internal/users"
)

const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, evaluation polling and scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, a)
	},
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.log

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}
	site, _ := os.Hostname()
	auditLog := audit.NewLog(a.db, site)

	us := users.NewStore(a.db)
	courses := course.NewStore(a.db)
	banks := bank.NewStore(a.db)
	quizzes := quiz.NewStore(a.db)

	reports := &report.Service{
		Store:   report.NewStore(a.db),
		Quizzes: quizzes,
		Courses: courses,
		Users:   us,
		Generator: report.NewClassReportClient(remote.Config{
			BaseURL: cfg.ReportBaseURL,
			Timeout: cfg.EvalTimeout,
		}),
		Blobs: blobs,
		Log:   log,
	}

	eval := evaluation.NewService(evaluation.Deps{
		Evaluator: evaluation.NewClient(remote.Config{
			BaseURL:      cfg.EvalBaseURL,
			TokenURL:     cfg.EvalTokenURL,
			ClientID:     cfg.EvalClientID,
			ClientSecret: cfg.EvalClientSecret,
			Timeout:      cfg.EvalTimeout,
		}),
		Quizzes:  quizzes,
		Reports:  reports,
		Users:    us,
		Notifier: newNotifier(cfg, a),
		Audit:    auditLog,
		Log:      log,
	}, cfg.PollInterval, cfg.MaxPollErrors)
	defer eval.Close()

	router := api.NewRouter(api.Deps{
		DB:                a.db,
		Auth:              authmw.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		Users:             us,
		Courses:           courses,
		Banks:             banks,
		Importer:          &importer.Importer{Banks: banks, Blobs: blobs, Log: log},
		Quizzes:           quizzes,
		Reports:           reports,
		Eval:              eval,
		Audit:             auditLog,
		Blobs:             blobs,
		Log:               log,
		CORSOrigins:       cfg.CORSOrigins,
		ClaimRoleFallback: cfg.Mode == config.ModeOffline,
		RequestTimeout:    30 * time.Second,
		AccessLog:         cfg.Env == "dev",
	})

	sched := scheduler.New(log)
	if err := sched.Add("resume-evaluations", cfg.CronResumeSpec, 30*time.Second, scheduler.ResumeEvaluations(eval)); err != nil {
		return err
	}
	if err := sched.Add("close-expired-quizzes", cfg.CronCloseSpec, time.Minute,
		scheduler.CloseExpiredQuizzes(quizzes, reports, time.Now, log)); err != nil {
		return err
	}

	if n, err := eval.Resume(ctx); err != nil {
		log.WarnContext(ctx, "resume evaluations", "err", err)
	} else if n > 0 {
		log.InfoContext(ctx, "evaluations resumed", "count", n)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return sched.Run(gctx) })

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func newNotifier(cfg config.Config, a *app) notify.Notifier {
	if cfg.SendgridKey == "" {
		return notify.Console{Log: a.log}
	}
	return notify.NewSendGrid(cfg.SendgridKey, cfg.AppName, mail.Address{Name: cfg.AppName, Address: cfg.MailFrom}, a.log)
}

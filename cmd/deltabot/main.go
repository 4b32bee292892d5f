package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"deltabot/internal/award"
	"deltabot/internal/cmdlog"
	"deltabot/internal/config"
	"deltabot/internal/deltaboard"
	"deltabot/internal/detect"
	"deltabot/internal/dispatch"
	"deltabot/internal/engine"
	"deltabot/internal/forum"
	"deltabot/internal/metrics"
	"deltabot/internal/model"
	"deltabot/internal/pm"
	"deltabot/internal/queue"
	"deltabot/internal/reply"
	"deltabot/internal/store/ledger"
	"deltabot/internal/validate"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "deltaboards":
		cmdDeltaboards()
	case "process":
		cmdProcess()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: deltabot <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init         Create a config file at ./deltabot.yaml")
	fmt.Println("  run          Poll the forum and process comments and messages")
	fmt.Println("  deltaboards  Rebuild and publish the deltaboards document once")
	fmt.Println("  process      Re-process a single comment by id")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./deltabot.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

// app bundles the wired components behind the run/deltaboards/process commands.
type app struct {
	cfg    config.Config
	db     *ledger.DB
	client *forum.HTTPClient
	boards *deltaboard.Publisher
	eng    *engine.Engine
	pmProc *pm.Processor
}

func buildApp(cfg config.Config) (*app, error) {
	db, err := ledger.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	clock := clockwork.NewRealClock()
	client := forum.NewHTTPClient(cfg.Forum.BaseURL, cfg.Forum.Community, cfg.Credentials.Token)
	boards, err := deltaboard.New(db, client, clock, cfg.Deltaboard, cfg.Templates, cfg.Forum)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	detector := detect.New(cfg.Account.Username, cfg.Replies)
	validator := validate.New(cfg.Validation, cfg.Replies, cfg.Account.Username)
	awarder := award.New(db, boards, clock)
	replier := reply.New(client, cfg.Replies.Wrapper, cfg.ReadOnly)
	eng := engine.New(cfg.Validation, client, detector, validator, awarder, replier, db, clock)
	pmProc := pm.NewProcessor(client)
	return &app{cfg: cfg, db: db, client: client, boards: boards, eng: eng, pmProc: pmProc}, nil
}

func loadApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./deltabot.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("run", func() error {
		a, err := loadApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.db.Close()
		metrics.StartServer(a.cfg.Metrics.Addr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		q := queue.New()
		worker := engine.NewWorker(q, map[model.MessageKind]engine.Handler{
			model.KindComment:        a.eng.CommentHandler(),
			model.KindPrivateMessage: engine.MessageHandler(a.pmProc),
		})
		done := make(chan struct{})
		go func() {
			worker.Run(ctx)
			close(done)
		}()

		monitor := dispatch.NewMonitor(a.client, dispatch.NewNormalizer(q), a.db, clockwork.NewRealClock())
		interval := time.Duration(a.cfg.PollIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		err = monitor.Run(ctx, interval)
		q.Close()
		<-done
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdDeltaboards() {
	fs := flag.NewFlagSet("deltaboards", flag.ExitOnError)
	cfgPath := fs.String("config", "./deltabot.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	err := cmdlog.Run("deltaboards", func() error {
		a, err := loadApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.db.Close()
		return a.boards.Publish(context.Background())
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	cfgPath := fs.String("config", "./deltabot.yaml", "config path")
	id := fs.String("id", "", "comment id to re-process")
	_ = fs.Parse(os.Args[2:])
	if *id == "" {
		fmt.Println("error: -id is required")
		os.Exit(1)
	}

	err := cmdlog.Run("process", func() error {
		a, err := loadApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.db.Close()
		ctx := context.Background()
		t := &model.Thing{ID: *id, Type: model.TypeComment}
		if err := a.client.FetchParentAndChildren(ctx, t); err != nil {
			return err
		}
		return a.eng.Process(ctx, t)
	})
	if err != nil {
		os.Exit(1)
	}
}

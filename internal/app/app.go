// Package app wires the components shared by the api, worker and cli
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/cloudinary"
	"rollcall/internal/config"
	"rollcall/internal/leave"
	"rollcall/internal/metrics"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/subject"
)

// App is the assembled process.
type App struct {
	Config       config.App
	Log          *zap.Logger
	Clock        clock.Clock
	Store        *store.Store
	Connectivity *store.Toggle
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Queue        queue.Queue
	Subjects     *subject.Directory
	Sessions     *session.Manager
	Attendance   *attendance.Service
	Reports      *report.Aggregator
	Leave        *leave.Service
	Inbox        *notify.Inbox
	Uploader     cloudinary.Uploader

	closers []func() error
}

// Options override parts of the wiring, mainly for tests.
type Options struct {
	Clock   clock.Clock
	Backend store.Backend
	Queue   queue.Queue
	// InlineDelivery delivers notifications straight into the inbox when
	// the queue is in-memory, for processes that run no worker.
	InlineDelivery bool
}

// New opens the configured store and queue and builds every service.
func New(cfg config.App, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, w := range cfg.Warnings {
		log.Warn("config value replaced by default", zap.String("detail", w))
	}
	a := &App{Config: cfg, Log: log, Clock: opts.Clock}
	if a.Clock == nil {
		a.Clock = clock.Real{Location: cfg.Location()}
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.Registry)
	if err != nil {
		return nil, err
	}
	a.Metrics = m

	failMode, err := store.ParseFailMode(cfg.StoreFailMode)
	if err != nil {
		log.Warn("invalid store fail mode, using open", zap.String("value", cfg.StoreFailMode))
		failMode = store.FailOpen
	}
	backend := opts.Backend
	if backend == nil {
		backend, err = store.OpenBackend(store.BackendConfig{
			Kind:        cfg.StoreBackend,
			SQLitePath:  cfg.SQLitePath,
			DatabaseURL: cfg.DatabaseURL,
			RedisAddr:   cfg.RedisAddr,
			RedisPrefix: cfg.StorePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	a.closers = append(a.closers, backend.Close)

	a.Connectivity = store.NewToggle(cfg.StoreOnline)
	a.Store = store.New(backend, store.Options{
		Connectivity: a.Connectivity,
		FailMode:     failMode,
		Clock:        a.Clock,
		Logger:       log.Named("store"),
		OnWrite: func(key string, status store.SyncStatus) {
			m.ObserveStoreWrite(key, string(status))
		},
	})

	a.Queue = opts.Queue
	if a.Queue == nil {
		switch cfg.QueueBackend {
		case "redis":
			client := store.NewRedisClient(cfg.RedisAddr)
			a.closers = append(a.closers, client.Close)
			a.Queue = queue.NewRedisQueue(client, cfg.QueueKey)
		default:
			a.Queue = queue.NewInMemory(256)
		}
	}

	a.Subjects = subject.NewDirectory(a.Store, a.Clock, log.Named("subject"))
	a.Inbox = notify.NewInbox(a.Store, a.Subjects, a.Clock, log.Named("inbox"))

	var sink notify.Sink
	if opts.InlineDelivery && cfg.QueueBackend != "redis" && opts.Queue == nil {
		sink = notify.InboxSink{Inbox: a.Inbox, Log: log.Named("notify")}
	} else {
		qs := notify.NewQueueSink(a.Queue, log.Named("notify"))
		qs.OnDrop = func(k notify.Kind) { m.ObserveDelivery(string(k), "overflow") }
		sink = qs
	}
	a.Sessions = session.NewManager(a.Store, a.Clock, session.Options{
		Supersede: cfg.SessionSupersede,
		Logger:    log.Named("session"),
	})
	a.Attendance = attendance.NewService(a.Store, a.Sessions, a.Subjects, a.Clock, attendance.Options{
		Sink:      sink,
		Logger:    log.Named("attendance"),
		OnOutcome: m.ObserveRecording,
	})
	a.Reports = report.NewAggregator(a.Attendance, a.Subjects, a.Clock)
	a.Leave = leave.NewService(a.Store, a.Subjects, sink, a.Clock, log.Named("leave"))

	if cfg.CloudinaryEnabled() {
		a.Uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		a.Uploader = cloudinary.Disabled{}
	}
	return a, nil
}

// Worker returns the notification delivery loop over the app queue.
func (a *App) Worker() *notify.Worker {
	return &notify.Worker{
		Queue:   a.Queue,
		Inbox:   a.Inbox,
		Log:     a.Log.Named("worker"),
		Observe: a.Metrics.ObserveDelivery,
	}
}

// Healthy reports whether the store backend answers.
func (a *App) Healthy(ctx context.Context) error {
	_, err := a.Store.Keys(ctx)
	if err != nil {
		return err
	}
	if rq, ok := a.Queue.(interface{ Client() *redis.Client }); ok {
		return rq.Client().Ping(ctx).Err()
	}
	return nil
}

// Close releases the store and queue connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tactica.ai/internal/persistence/indexdb"
	"tactica.ai/internal/sim/command"
	"tactica.ai/internal/sim/driver"
	"tactica.ai/internal/sim/level"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/tuning"
	"tactica.ai/internal/telemetry"
	"tactica.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		levelPath  = flag.String("level", "./configs/levels/skirmish.yaml", "level file (.json or .yaml)")
		mapPath    = flag.String("map", "", "map file (default: <configs>/maps/<level.map>.yaml when the level names one)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		sessionID  = flag.String("session", "", "session id (default: random uuid)")
		seed       = flag.Int("seed", 0, "seed override (0: level seed, then tuning seed)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session index")
		exitOnEnd  = flag.Bool("exit_on_end", false, "stop serving once the level ends")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		if tune, err = tuning.Load(""); err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	lv, m, err := loadLevel(*levelPath, *mapPath, *configDir)
	if err != nil {
		logger.Fatalf("load level: %v", err)
	}
	sessionSeed := int32(*seed)
	if sessionSeed == 0 && lv.Seed == 0 {
		sessionSeed = tune.Seed
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "tactica-server")
	if err != nil {
		logger.Fatalf("telemetry: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownTracing(ctx2)
	}()

	idx, err := openRuntimeIndex(tune.IndexPath, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	var index driver.Index
	if idx != nil {
		defer idx.Close()
		index = idx
	}

	bus := notify.NewBus()
	bus.Subscribe(notify.KindLevelEnded, func(n notify.Notification) {
		logger.Printf("level %s ended at tick %d: %s", n.Level, n.Tick, n.Reason)
	})

	queue := command.NewQueue(tune.QueueLimit)
	local, err := driver.NewLocal(driver.LocalConfig{
		Session: driver.SessionConfig{
			ID:       strings.TrimSpace(*sessionID),
			Level:    lv,
			Map:      m,
			Seed:     sessionSeed,
			Step:     tune.Step(),
			MaxDelta: tune.MaxDelta(),
			Bus:      bus,
		},
		Queue:         queue,
		LogDir:        tune.LogDir,
		SnapshotDir:   filepath.Join(filepath.Dir(tune.LogDir), "snapshots"),
		SnapshotEvery: uint64(tune.SnapshotEveryTicks),
		Index:         index,
		Logger:        log.New(os.Stdout, "[driver] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}
	if err := local.Init(); err != nil {
		logger.Fatalf("init: %v", err)
	}
	if err := local.Start(); err != nil {
		logger.Fatalf("start: %v", err)
	}
	defer func() {
		if err := local.End(); err != nil {
			logger.Printf("end session: %v", err)
		}
	}()
	session := local.Session()
	logger.Printf("session %s: level %s seed=%d step=%s log=%s", session.ID(), lv.ID, session.Seed(), tune.Step(), local.LogPath())

	wsSrv := ws.NewServer(session, queue, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsView{
			Session: session.ID(),
			State:   session.Latest(),
			Paused:  session.Clock().Paused(),
			Clients: wsSrv.Clients(),
			Queue:   queue.Len(),
			Dropped: queue.Dropped(),
			Index:   idx,
		})
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/v1/state", wsSrv.StateHandler())
	mux.HandleFunc("/v1/clock", loopbackOnly(wsSrv.ClockHandler()))

	if envBool("TACTICA_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	} else {
		logger.Printf("pprof endpoints disabled (TACTICA_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := driver.Run(gctx, local, tune.Step()); err != nil {
			return fmt.Errorf("session %s: %w", session.ID(), err)
		}
		if *exitOnEnd {
			cancel()
		}
		return nil
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stopped: %v", err)
	}
}

// loadLevel reads the level and, when it names a map, the map file.
func loadLevel(levelPath, mapPath, configDir string) (*level.Level, *level.Map, error) {
	lv, err := level.LoadLevel(levelPath)
	if err != nil {
		return nil, nil, err
	}
	if lv.Map == "" && mapPath == "" {
		return lv, nil, nil
	}
	if mapPath == "" {
		mapPath = filepath.Join(configDir, "maps", lv.Map+".yaml")
	}
	m, err := level.LoadMap(mapPath)
	if err != nil {
		return nil, nil, err
	}
	return lv, m, nil
}

type metricsView struct {
	Session string
	State   *driver.State
	Paused  bool
	Clients int64
	Queue   int
	Dropped uint64
	Index   *indexdb.SQLiteIndex
}

// writeMetrics renders a minimal Prometheus exposition.
func writeMetrics(w io.Writer, m metricsView) {
	var tick uint64
	var actors int
	if m.State != nil {
		tick, actors = m.State.Tick, len(m.State.Actors)
	}
	fmt.Fprintf(w, "# HELP tactica_session_tick Last committed tick.\n")
	fmt.Fprintf(w, "# TYPE tactica_session_tick gauge\n")
	fmt.Fprintf(w, "tactica_session_tick{session=%q} %d\n", m.Session, tick)

	fmt.Fprintf(w, "# HELP tactica_session_actors Live actors after the last tick.\n")
	fmt.Fprintf(w, "# TYPE tactica_session_actors gauge\n")
	fmt.Fprintf(w, "tactica_session_actors{session=%q} %d\n", m.Session, actors)

	var paused int
	if m.Paused {
		paused = 1
	}
	fmt.Fprintf(w, "# HELP tactica_clock_paused Whether the host clock is held.\n")
	fmt.Fprintf(w, "# TYPE tactica_clock_paused gauge\n")
	fmt.Fprintf(w, "tactica_clock_paused{session=%q} %d\n", m.Session, paused)

	fmt.Fprintf(w, "# HELP tactica_session_clients Connected websocket clients.\n")
	fmt.Fprintf(w, "# TYPE tactica_session_clients gauge\n")
	fmt.Fprintf(w, "tactica_session_clients{session=%q} %d\n", m.Session, m.Clients)

	fmt.Fprintf(w, "# HELP tactica_command_queue_depth Commands waiting for the next tick.\n")
	fmt.Fprintf(w, "# TYPE tactica_command_queue_depth gauge\n")
	fmt.Fprintf(w, "tactica_command_queue_depth{session=%q} %d\n", m.Session, m.Queue)

	fmt.Fprintf(w, "# HELP tactica_command_dropped_total Commands refused by a full queue.\n")
	fmt.Fprintf(w, "# TYPE tactica_command_dropped_total counter\n")
	fmt.Fprintf(w, "tactica_command_dropped_total{session=%q} %d\n", m.Session, m.Dropped)

	if m.Index == nil {
		return
	}
	s := m.Index.Stats()
	fmt.Fprintf(w, "# HELP tactica_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(w, "# TYPE tactica_index_queue_depth gauge\n")
	fmt.Fprintf(w, "tactica_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP tactica_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE tactica_index_dropped_total counter\n")
	fmt.Fprintf(w, "tactica_index_dropped_total{kind=%q} %d\n", "session", s.DropSessionTotal)
	fmt.Fprintf(w, "tactica_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(w, "tactica_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

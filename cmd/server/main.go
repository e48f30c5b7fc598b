package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"dshnews.game/internal/persistence/archive"
	persistlog "dshnews.game/internal/persistence/log"
	"dshnews.game/internal/persistence/savestore"
	"dshnews.game/internal/sim/game"
	"dshnews.game/internal/sim/locations"
	"dshnews.game/internal/sim/scene"
	"dshnews.game/internal/sim/tuning"
	"dshnews.game/internal/transport/ws"
)

// serverEnv holds the environment overrides. Flags win when both are set.
type serverEnv struct {
	DeployEnv       string `env:"DEPLOY_ENV"`
	EnableAdminHTTP *bool  `env:"DSH_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"DSH_ENABLE_PPROF_HTTP"`
	DataDir         string `env:"DSH_DATA_DIR"`
	DisableDB       bool   `env:"DSH_DISABLE_DB"`
	IndexBackend    string `env:"DSH_INDEX_BACKEND" envDefault:"sqlite"`
}

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		dataDir       = flag.String("data", "", "runtime data directory (default: $DSH_DATA_DIR or <user config dir>/dshnews)")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		locationsPath = flag.String("locations", "", "path to locations.yaml (default: <configs>/locations.yaml)")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite index (transitions + saves)")
		loadOnStart   = flag.Bool("load_on_start", false, "load the save file right after the menu is up")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var envCfg serverEnv
	if err := env.Parse(&envCfg); err != nil {
		logger.Fatalf("parse env: %v", err)
	}

	dir := strings.TrimSpace(*dataDir)
	if dir == "" {
		dir = strings.TrimSpace(envCfg.DataDir)
	}
	if dir == "" {
		dir = defaultDataDir()
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	lp := strings.TrimSpace(*locationsPath)
	if lp == "" {
		lp = filepath.Join(*configDir, "locations.yaml")
		if _, err := os.Stat(lp); err != nil {
			logger.Printf("locations not found (%s); using built-in catalog", lp)
			lp = ""
		}
	}
	cat, err := locations.LoadCatalog(lp)
	if err != nil {
		logger.Fatalf("load locations: %v", err)
	}

	saveDir := filepath.Join(dir, tune.SaveDir)
	savePath := filepath.Join(saveDir, tune.SaveFile)
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		logger.Fatalf("create save dir: %v", err)
	}

	// Optional read-model index; the game never reads from it.
	idx, err := openRuntimeIndex(dir, *disableDB || envCfg.DisableDB, envCfg.IndexBackend, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalog(cat, tune); err != nil {
			logger.Printf("index backend: upsert catalog: %v", err)
		}
	}

	var history *archive.History
	if tune.HistoryKeep > 0 {
		history, err = archive.OpenHistory(filepath.Join(saveDir, "history"), tune.HistoryKeep, logger)
		if err != nil {
			logger.Fatalf("open save history: %v", err)
		}
	}

	logDir := filepath.Join(dir, "logs")
	transitionLog := persistlog.NewTransitionLogger(logDir)
	saveLog := persistlog.NewSaveLogger(logDir)
	defer transitionLog.Close()
	defer saveLog.Close()

	saveSinks := []savestore.SaveSink{saveLog}
	transitionSinks := []scene.TransitionSink{transitionLog}
	if history != nil {
		saveSinks = append(saveSinks, history)
	}
	if idx != nil {
		saveSinks = append(saveSinks, idx)
		transitionSinks = append(transitionSinks, idx)
	}

	sess, err := game.New(game.Config{
		Tuning:          tune,
		Catalog:         cat,
		SavePath:        savePath,
		Logger:          log.New(os.Stdout, "[game] ", log.LstdFlags|log.Lmicroseconds),
		SaveSinks:       saveSinks,
		TransitionSinks: transitionSinks,
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}
	sess.Start()
	if *loadOnStart {
		// The load request is dropped while the menu is still loading, so
		// queue it behind the first completed transition.
		var unsub func()
		unsub = sess.Events().Transitioned.Subscribe(func(scene.TransitionEntry) {
			unsub()
			sess.Load()
		})
	}
	logger.Printf("save file %s", savePath)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(sess, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		var (
			st      game.Status
			dropped uint64
		)
		ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel2()
		if err := sess.Do(ctx2, func() {
			st = sess.Status()
			dropped = sess.Coordinator().Dropped()
		}); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}

		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP dshnews_frame Current scheduler frame.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_frame gauge\n")
		fmt.Fprintf(rw, "dshnews_frame %d\n", st.Frame)

		fmt.Fprintf(rw, "# HELP dshnews_transition_state Coordinator state (1 for the active one).\n")
		fmt.Fprintf(rw, "# TYPE dshnews_transition_state gauge\n")
		for _, s := range []scene.State{scene.StateIdle, scene.StateUnloading, scene.StateLoading} {
			v := 0
			if st.State == s.String() {
				v = 1
			}
			fmt.Fprintf(rw, "dshnews_transition_state{state=%q} %d\n", s.String(), v)
		}

		fmt.Fprintf(rw, "# HELP dshnews_transitions_total Completed location transitions.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_transitions_total counter\n")
		fmt.Fprintf(rw, "dshnews_transitions_total %d\n", st.Transitions)

		fmt.Fprintf(rw, "# HELP dshnews_transitions_dropped_total Load requests dropped while a transition was running.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_transitions_dropped_total counter\n")
		fmt.Fprintf(rw, "dshnews_transitions_dropped_total %d\n", dropped)

		fmt.Fprintf(rw, "# HELP dshnews_saves_total Completed saves.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_saves_total counter\n")
		fmt.Fprintf(rw, "dshnews_saves_total %d\n", st.Saves)

		fmt.Fprintf(rw, "# HELP dshnews_loads_total Load requests handled.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_loads_total counter\n")
		fmt.Fprintf(rw, "dshnews_loads_total %d\n", st.Loads)

		fmt.Fprintf(rw, "# HELP dshnews_participants Registered save participants.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_participants gauge\n")
		fmt.Fprintf(rw, "dshnews_participants %d\n", len(st.Registered))

		fmt.Fprintf(rw, "# HELP dshnews_clients Connected control clients.\n")
		fmt.Fprintf(rw, "# TYPE dshnews_clients gauge\n")
		fmt.Fprintf(rw, "dshnews_clients %d\n", wsSrv.Clients())

		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := defaultEnableAdminHTTP(envCfg.DeployEnv)
	if envCfg.EnableAdminHTTP != nil {
		enableAdminHTTP = *envCfg.EnableAdminHTTP
	}
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var st game.Status
			ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel2()
			if err := sess.Do(ctx2, func() { st = sess.Status() }); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(st)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			var saveErr error
			err := sess.Do(ctx2, func() { saveErr = sess.Save() })
			if err == nil {
				err = saveErr
			}
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": savePath})
		})
		mux.HandleFunc("/admin/v1/history", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			metas := []archive.Meta{}
			if history != nil {
				var err error
				if metas, err = history.List(); err != nil {
					http.Error(rw, err.Error(), http.StatusInternalServerError)
					return
				}
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(metas)
		})
		mux.HandleFunc("/admin/v1/transitions", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusNotFound)
				return
			}
			limit := 50
			if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
				limit = v
			}
			rows, err := idx.RecentTransitions(r.Context(), limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rows)
		})
	} else {
		logger.Printf("admin endpoints disabled (DSH_ENABLE_ADMIN_HTTP=false)")
	}
	if envCfg.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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

// defaultDataDir mirrors a per-user persistent data path.
func defaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "dshnews")
	}
	return "./data"
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

func defaultEnableAdminHTTP(deployEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(deployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP dshnews_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE dshnews_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "dshnews_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP dshnews_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE dshnews_index_dropped_total counter\n")
	fmt.Fprintf(rw, "dshnews_index_dropped_total{kind=%q} %d\n", "transition", s.DropTransitionTotal)
	fmt.Fprintf(rw, "dshnews_index_dropped_total{kind=%q} %d\n", "save", s.DropSaveTotal)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "echoraid.gg/internal/persistence/log"
	"echoraid.gg/internal/persistence/timelinestore"
	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/arena"
	"echoraid.gg/internal/sim/boss"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/guild"
	"echoraid.gg/internal/sim/scheduler"
	"echoraid.gg/internal/sim/tuning"
	"echoraid.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the roster index (timeline files still persist)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q does not match server protocol %q",
			tune.ProtocolVersion, protocol.Version)
	}

	abilities, err := catalogs.LoadAbilities(resolvePath(*configDir, tune.AbilitiesFile, "abilities.yaml"))
	if err != nil {
		logger.Fatalf("load abilities: %v", err)
	}

	brain := bossBrains(tune, *configDir, logger)

	_ = os.MkdirAll(*dataDir, 0o755)
	store := timelinestore.NewStore(filepath.Join(*dataDir, "timelines"), tune.TickRateHz, logger)

	var index *timelinestore.RosterIndex
	if !*disableDB {
		index, err = timelinestore.OpenRosterIndex(filepath.Join(*dataDir, "roster.db"))
		if err != nil {
			logger.Fatalf("open roster index: %v", err)
		}
		defer index.Close()
	}

	sched := scheduler.New(tune, abilities, brain, logger)
	sched.AttachPersistence(store, index)
	sched.AttachGuild(guild.NewContext())
	if n := sched.LoadTimelines(); n > 0 {
		logger.Printf("loaded %d stored timelines", n)
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	sched.AttachSink(tickLog)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("scheduler stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP echoraid_tick Current scheduler tick.\n")
		fmt.Fprintf(rw, "# TYPE echoraid_tick counter\n")
		fmt.Fprintf(rw, "echoraid_tick %d\n", sched.Tick())

		refs := sched.ArenaRefs()
		fmt.Fprintf(rw, "# HELP echoraid_arena_ghosts Ghosts replaying per arena.\n")
		fmt.Fprintf(rw, "# TYPE echoraid_arena_ghosts gauge\n")
		for _, ref := range refs {
			fmt.Fprintf(rw, "echoraid_arena_ghosts{arena=\"%d\"} %d\n", ref.ArenaID, ref.Ghosts)
		}

		fmt.Fprintf(rw, "# HELP echoraid_arena_loop_count Completed loops per arena.\n")
		fmt.Fprintf(rw, "# TYPE echoraid_arena_loop_count counter\n")
		for _, ref := range refs {
			fmt.Fprintf(rw, "echoraid_arena_loop_count{arena=\"%d\"} %d\n", ref.ArenaID, ref.LoopCount)
		}

		fmt.Fprintf(rw, "# HELP echoraid_arena_recording Whether the arena has an active recording session.\n")
		fmt.Fprintf(rw, "# TYPE echoraid_arena_recording gauge\n")
		for _, ref := range refs {
			v := 0
			if ref.Recording {
				v = 1
			}
			fmt.Fprintf(rw, "echoraid_arena_recording{arena=\"%d\"} %d\n", ref.ArenaID, v)
		}
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(sched, tune, abilities, logger).Handler())

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

	logger.Printf("listening on %s (arenas=%d tick=%dHz loop=%vs)",
		*addr, tune.ArenaCount, tune.TickRateHz, tune.LoopSeconds)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// bossBrains builds the per-arena brain factory. Each arena gets its own Lua
// state; a missing or broken script falls back to the fixed rotation so the
// server still comes up.
func bossBrains(tune tuning.Tuning, configDir string, logger *log.Logger) func(id uint8) arena.BossBrain {
	fallback := &boss.RotationBrain{Slots: []uint8{9}}

	path := resolvePath(configDir, tune.BossScriptFile, "boss.lua")
	src, err := os.ReadFile(path)
	if err != nil {
		logger.Printf("boss script %s unavailable (%v); using rotation fallback", path, err)
		return func(uint8) arena.BossBrain { return fallback }
	}
	return func(id uint8) arena.BossBrain {
		b, err := boss.NewScriptBrain(string(src))
		if err != nil {
			logger.Printf("arena %d: %v; using rotation fallback", id, err)
			return fallback
		}
		return b
	}
}

func resolvePath(configDir, configured, def string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return filepath.Join(configDir, def)
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(configDir, configured)
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

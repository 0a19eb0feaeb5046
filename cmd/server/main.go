package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/emberfall-mud/emberfall/pkg/server"
	"github.com/emberfall-mud/emberfall/pkg/store"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	// A .env file is optional; real environment variables win over it.
	godotenv.Load()

	confFile := flag.String("conf", envDefault("EMBER_CONF", ""), "Path to YAML config file (env: EMBER_CONF)")
	worldFile := flag.String("world", envDefault("EMBER_WORLD", ""), "Path to YAML world file (env: EMBER_WORLD)")
	dataFile := flag.String("data", envDefault("EMBER_DATA", ""), "Path to bbolt database file (env: EMBER_DATA)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: EMBER_PORT)")
	httpPort := flag.Int("http-port", 0, "WebSocket/metrics port, overrides config (env: EMBER_HTTP_PORT)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	conf := server.DefaultConfig()
	if *confFile != "" {
		var err error
		conf, err = server.LoadConfig(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	}

	// Flags override env, env overrides the config file.
	if *port == 0 {
		if p, err := strconv.Atoi(os.Getenv("EMBER_PORT")); err == nil {
			*port = p
		}
	}
	if *port != 0 {
		conf.Port = *port
	}
	if *httpPort == 0 {
		if p, err := strconv.Atoi(os.Getenv("EMBER_HTTP_PORT")); err == nil {
			*httpPort = p
		}
	}
	if *httpPort != 0 {
		conf.HTTPPort = *httpPort
	}
	if *worldFile != "" {
		conf.WorldFile = *worldFile
	}
	if *dataFile != "" {
		conf.DataFile = *dataFile
	}

	st, err := store.Open(conf.DataFile)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer st.Close()

	// The world comes from the world file when given, importing a snapshot
	// into the database; otherwise the last imported snapshot is used.
	var w *world.World
	switch {
	case conf.WorldFile != "":
		w, err = world.LoadFile(conf.WorldFile)
		if err != nil {
			log.Fatalf("Error loading world: %v", err)
		}
		if err := st.ImportWorld(w); err != nil {
			log.Fatalf("Error importing world: %v", err)
		}
		log.Printf("Loaded world from %s (%d rooms)", conf.WorldFile, w.Size())
	case st.HasWorld():
		w, err = st.LoadWorld()
		if err != nil {
			log.Fatalf("Error loading world snapshot: %v", err)
		}
		log.Printf("Loaded world snapshot from %s (%d rooms)", st.Path(), w.Size())
	default:
		log.Fatalf("No world available: pass -world or set EMBER_WORLD on first boot")
	}

	srv := server.NewServer(conf, w, st)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

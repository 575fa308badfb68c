package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcmpchat/bcmp/pkg/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	configPath := flag.String("config", "~/.bcmp/server.toml", "Path to config file")
	addr := flag.String("addr", "", "Bind address (overrides config)")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	httpPort := flag.Int("http-port", 0, "HTTP port for WebSocket bridge and metrics (overrides config)")
	unencrypted := flag.Bool("unencrypted", false, "Accept plaintext sessions (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("BCMP Server %s\n", Version)
		os.Exit(0)
	}

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	config := tomlConfig.ToConfig()
	config.ApplyEnv()

	if *addr != "" {
		config.BindAddress = *addr
	}
	if *port != 0 {
		config.Port = *port
	}
	if *httpPort != 0 {
		config.HTTPPort = *httpPort
	}
	if *unencrypted {
		config.RequireEncryption = false
	}

	if *debug {
		server.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	srv := server.NewServer(config, server.NewMetrics())
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("BCMP server %s started successfully", Version)
	log.Printf("Max users: %d", config.MaxUsers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	srv.Stop()
	log.Println("Server stopped")
}

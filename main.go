package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"

	"google.golang.org/grpc"

	"github.com/chord-frb/sifter/internal/config"
	"github.com/chord-frb/sifter/internal/db"
	"github.com/chord-frb/sifter/internal/frb/pipeline"
	"github.com/chord-frb/sifter/internal/monitor"
	"github.com/chord-frb/sifter/internal/rpc"
	"github.com/chord-frb/sifter/internal/version"
)

var (
	configFile = flag.String("config", "", "Path to sifter config JSON (defaults when empty)")
	grpcListen = flag.String("grpc", ":50051", "gRPC listen address for L1 search nodes")
	listen     = flag.String("listen", ":8080", "HTTP listen address for status and debug pages")
	dbPath     = flag.String("db", "", "Event database path (overrides db_path; empty keeps the config value)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// Max message size for one node's chunk batch.
const maxMsgSize = 16 * 1024 * 1024

func loadConfig() *config.SifterConfig {
	if *configFile == "" {
		return config.DefaultSifterConfig()
	}
	cfg, err := config.LoadSifterConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("sifter %s", version.String())

	cfg := loadConfig()
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}

	sinks := []pipeline.GroupSink{pipeline.LogSink{}}
	var store *db.DB
	if path := cfg.GetDBPath(); path != "" {
		var err error
		store, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open event database: %v", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	rt, err := pipeline.NewRuntime(pipeline.ConfigFromSifter(cfg, *configFile), sinks...)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	web, err := monitor.NewWebServer(monitor.WebServerConfig{Address: *listen, Source: rt, DB: store})
	if err != nil {
		log.Fatalf("Failed to build web server: %v", err)
	}

	lis, err := net.Listen("tcp", *grpcListen)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *grpcListen, err)
	}
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	rpc.RegisterFrbSifterServer(gs, rpc.NewServer(config.NewNodeConfigChecker(), rt, cfg.BeamGrid(), cfg.GetInjections()))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// pipeline workers
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rt.Run(ctx); err != nil {
			log.Printf("pipeline error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// gRPC server
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			log.Printf("gRPC server listening on %s", *grpcListen)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC server error: %v", err)
				stop()
			}
		}()
		<-ctx.Done()
		gs.GracefulStop()
		log.Printf("gRPC server stopped")
	}()

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nicktill/tinytsdb/pkg/archive"
	badgerarchive "github.com/nicktill/tinytsdb/pkg/archive/badger"
	"github.com/nicktill/tinytsdb/pkg/config"
	"github.com/nicktill/tinytsdb/pkg/server"
	"github.com/nicktill/tinytsdb/pkg/store"
)

func main() {
	cfg := server.LoadConfig()

	var cold archive.Archive
	if cfg.ArchiveDir != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("Failed to create archive directory: %v", err)
		}
		a, err := badgerarchive.New(badgerarchive.Config{Path: cfg.ArchiveDir})
		if err != nil {
			log.Fatalf("Failed to open archive: %v", err)
		}
		cold = a
		log.Printf("Cold archive enabled at %s", cfg.ArchiveDir)
	}

	st, err := store.Open(store.Options{
		Path:      cfg.LogPath,
		Retention: cfg.Retention,
		Archive:   cold,
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	hub := server.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	handler := server.NewHandler(st, hub)
	router := server.NewRouter(handler, hub)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go server.RunRetention(st, config.RetentionSweepInterval, stop, &wg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("tinytsdb listening on :%s (retention %v)", cfg.Port, cfg.Retention)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	close(stop)
	wg.Wait()
	stopHub()

	if err := st.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
	if cold != nil {
		if err := cold.Close(); err != nil {
			log.Printf("Archive close error: %v", err)
		}
	}
	log.Println("Shutdown complete")
}

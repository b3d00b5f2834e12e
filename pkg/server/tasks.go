package server

import (
	"log"
	"sync"
	"time"

	"github.com/nicktill/tinytsdb/pkg/store"
)

// RunRetention sweeps the store on a fixed interval so a long-running
// server keeps evicting aged-out samples. The store also sweeps once on
// open; this task covers everything after that.
func RunRetention(st *store.Store, interval time.Duration, stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Retention sweeper started (every %v, window %v)", interval, st.Retention())

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			evicted := st.Sweep()
			if evicted > 0 {
				log.Printf("Retention sweep evicted %d samples in %v",
					evicted, time.Since(start).Round(time.Millisecond))
			}
		case <-stop:
			log.Println("Stopping retention sweeper")
			return
		}
	}
}

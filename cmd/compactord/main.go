// Command compactord runs the compaction driver loop as a long-lived
// service, exposing Prometheus metrics and a live WebSocket status feed
// (spec.md §6, "Driver Loop").
package main

import (
	"context"
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gokitlog "github.com/go-kit/log"

	catalogmem "github.com/miretskiy/tiercompactor/catalog/memstore"
	"github.com/miretskiy/tiercompactor/compactor"
	"github.com/miretskiy/tiercompactor/driver"
	"github.com/miretskiy/tiercompactor/executor"
	objectstoremem "github.com/miretskiy/tiercompactor/objectstore/memstore"
)

var indexTemplate *template.Template

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes.
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

// statusMessage is broadcast over /ws once per poll interval. Only Type and
// LastRoundAt are filled in, and LastRoundAt is the time of the broadcast
// itself; Partitions is never set and stays 0.
type statusMessage struct {
	Type        string `json:"type"`
	Partitions  int    `json:"partitions_processed"`
	LastRoundAt string `json:"last_round_at"`
}

// statusBroadcaster fans out one statusMessage to every connected client,
// mirroring the teacher's safeConn-per-client, single-writer-loop pattern.
type statusBroadcaster struct {
	mu      sync.Mutex
	clients map[*safeConn]struct{}
}

func newStatusBroadcaster() *statusBroadcaster {
	return &statusBroadcaster{clients: make(map[*safeConn]struct{})}
}

func (b *statusBroadcaster) add(c *safeConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *statusBroadcaster) remove(c *safeConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

func (b *statusBroadcaster) broadcast(msg statusMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := c.WriteJSON(msg); err != nil {
			log.Printf("error sending status: %v", err)
		}
	}
}

func (b *statusBroadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading connection: %v", err)
		return
	}
	sc := &safeConn{Conn: conn}
	b.add(sc)
	defer func() {
		b.remove(sc)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		log.Printf("error executing template: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Println("shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "server shutting down...")
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	pollInterval := flag.Duration("poll-interval", 10*time.Second, "interval between driver loop passes")
	partitionConcurrency := flag.Int("partition-concurrency", 4, "partitions processed concurrently")
	jobConcurrency := flag.Int("job-concurrency", 4, "input files fetched concurrently within one round")
	partitionTimeout := flag.Duration("partition-timeout", time.Minute, "per-partition round timeout")
	shadowMode := flag.Bool("shadow-mode", false, "plan every round but never commit")
	shardIndex := flag.Uint64("shard-index", 0, "this process's shard index")
	shardCount := flag.Uint64("shard-count", 1, "total number of shards")
	templateDir := flag.String("template-dir", "templates", "directory containing index.html")
	flag.Parse()

	var err error
	indexTemplate, err = template.ParseFiles(filepath.Join(*templateDir, "index.html"))
	if err != nil {
		log.Fatalf("error loading template: %v", err)
	}

	logger := gokitlog.NewLogfmtLogger(gokitlog.NewSyncWriter(os.Stderr))
	logger = gokitlog.With(logger, "ts", gokitlog.DefaultTimestampUTC, "caller", gokitlog.DefaultCaller)

	reg := prometheus.NewRegistry()
	metrics := driver.NewMetrics(reg)

	cat := catalogmem.New()
	objStore := objectstoremem.New()
	exec := &executor.Adapter{
		Store: objStore,
		Namer: executor.PathNamerFunc(func(partitionID int64, targetLevel compactor.Level, segment int) string {
			return fmt.Sprintf("partitions/%d/%s/%d-%d", partitionID, targetLevel, time.Now().UnixNano(), segment)
		}),
		Merger:         executor.ConcatMerger{}, // a real deployment supplies a columnar RowMerger; see DESIGN.md
		Cfg:            compactor.DefaultConfig(),
		JobConcurrency: *jobConcurrency,
	}

	cfg := driver.Config{
		Compactor:            compactor.DefaultConfig(),
		Source:               driver.SourceRecentWrites,
		Shard:                driver.ShardFilter{ShardIndex: *shardIndex, ShardCount: *shardCount},
		PartitionConcurrency: *partitionConcurrency,
		JobConcurrency:       *jobConcurrency,
		PartitionTimeout:     *partitionTimeout,
		ShadowMode:           *shadowMode,
		PollInterval:         *pollInterval,
	}

	d := driver.New(cat, exec, cfg, metrics, logger)

	broadcaster := newStatusBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		level.Info(logger).Log("msg", "shutdown signal received")
		cancel()
	}()

	go func() {
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			level.Error(logger).Log("msg", "driver loop exited", "err", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(*pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				broadcaster.broadcast(statusMessage{
					Type:        "status",
					LastRoundAt: time.Now().UTC().Format(time.RFC3339),
				})
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", serveHome)
	mux.HandleFunc("/ws", broadcaster.handleWebSocket)
	mux.HandleFunc("/quitquitquit", quitHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	level.Info(logger).Log("msg", "compactord starting", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}

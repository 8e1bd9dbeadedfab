// Command greyd is the greylisting decision daemon: it classifies
// (client_address, sender, recipient) triples against a rotating Bloom
// ring, optionally consulting a reputation oracle and replicating
// operational/aggregate state to a peer, and exposes the result over a
// stream or datagram transport plus an operator admin surface.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	mathbits "math/bits"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/greyd/internal/acct"
	"github.com/ocx/greyd/internal/adminrpc"
	"github.com/ocx/greyd/internal/circuitbreaker"
	"github.com/ocx/greyd/internal/config"
	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/events"
	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/oracle"
	"github.com/ocx/greyd/internal/queue"
	"github.com/ocx/greyd/internal/ring"
	"github.com/ocx/greyd/internal/server"
	"github.com/ocx/greyd/internal/syncmgr"

	adminhttp "github.com/ocx/greyd/internal/admin"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := config.Get()

	m := metrics.New()
	bus := events.NewEventBus()
	sink := buildAcctSink(cfg, bus)

	// cfg.Ring.FilterBits is the bit count per filter; ring.New takes its
	// base-2 exponent (a non-power-of-two count rounds down).
	filterExp := uint(mathbits.Len(uint(cfg.Ring.FilterBits)) - 1)
	r, err := ring.New(cfg.Ring.Size, filterExp, cfg.Ring.K, cfg.Ring.SliceBits)
	if err != nil {
		log.Fatalf("greyd: build ring: %v", err)
	}

	q := queue.New(cfg.Queue.Capacity, m)
	consumer := queue.NewConsumer(q, r, m)

	breakers := circuitbreaker.NewBreakers()

	oc := buildOracleChecker(cfg, sink)

	var peer *syncmgr.Manager
	if cfg.Peer.Host != "" {
		peer, err = buildPeerManager(cfg, r, q, m)
		if err != nil {
			log.Fatalf("greyd: build peer manager: %v", err)
		}
	}

	eng := engine.New(r, q, oc, breakers.Oracle, peerNotifier(peer), sink, engine.Config{
		UpdateAlways:  cfg.Server.UpdateAlways,
		OracleTimeout: time.Duration(cfg.Oracle.TimeoutMs) * time.Millisecond,
	})

	srv := server.New(server.Config{
		Transport:     cfg.Server.Transport,
		ListenHost:    cfg.Server.ListenHost,
		ListenPort:    cfg.Server.ListenPort,
		MaxWorkers:    cfg.Server.MaxWorkers,
		ListenBacklog: cfg.Server.ListenBacklog,
	}, eng, m)

	hub := adminhttp.NewHub(bus)
	adminHandler := adminhttp.NewHandler(r, peerInspector(peer), m, hub)

	rpcSrv := adminrpc.NewGRPCServer(r, peerInspector(peer), func(ctx context.Context) error {
		return q.PutRotate(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runRotator(ctx, q, time.Duration(cfg.Ring.RotationInterval)*time.Second)
	}()

	if peer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			peer.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("greyd: server exited: %v", err)
		}
	}()

	adminAddr := net.JoinHostPort(cfg.Admin.HTTPHost, strconv.Itoa(cfg.Admin.HTTPPort))
	httpSrv := &http.Server{Addr: adminAddr, Handler: adminHandler}
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("greyd: admin http listening", "addr", adminAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("greyd: admin http exited", "error", err)
		}
	}()

	rpcAddr := net.JoinHostPort(cfg.Admin.RPCHost, strconv.Itoa(cfg.Admin.RPCPort))
	rpcListener, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		log.Fatalf("greyd: listen admin rpc: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("greyd: admin rpc listening", "addr", rpcAddr)
		if err := rpcSrv.Serve(rpcListener); err != nil {
			slog.Info("greyd: admin rpc stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("greyd: shutdown signal received, draining")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	rpcSrv.GracefulStop()

	wg.Wait()
	slog.Info("greyd: shutdown complete")
}

// runRotator ticks at interval, enqueuing a ROTATE message each time. A
// lost tick widens the greylisting window, so PutRotate blocks rather
// than drops (see internal/queue).
func runRotator(ctx context.Context, q *queue.Queue, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := q.PutRotate(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func buildAcctSink(cfg *config.Config, bus *events.EventBus) acct.Sink {
	sinks := acct.Multi{acct.NewSlogSink(nil), acct.NewEventBusSink(bus, cfg.Acct.EventBusName)}

	if cfg.Acct.PostgresDSN != "" {
		pq, err := acct.NewPQSink(cfg.Acct.PostgresDSN)
		if err != nil {
			slog.Warn("greyd: postgres acct sink disabled", "error", err)
		} else {
			if err := pq.EnsureSchema(context.Background()); err != nil {
				slog.Warn("greyd: postgres acct schema setup failed", "error", err)
			}
			sinks = append(sinks, pq)
		}
	}

	return sinks
}

func buildOracleChecker(cfg *config.Config, sink acct.Sink) oracle.Checker {
	if !cfg.Oracle.Enabled {
		return oracle.NullChecker{}
	}

	checker := oracle.NewDNSBLChecker(cfg.Oracle.DNSBLZone)
	checker.OnQuery = func(query string) {
		sink.Acct(acct.EventDNSQuery, query)
	}

	var oc oracle.Checker = checker
	if cfg.Oracle.RedisAddr != "" {
		cached, err := oracle.NewRedisCache(oc, cfg.Oracle.RedisAddr, cfg.Oracle.RedisPassword, cfg.Oracle.RedisDB,
			time.Duration(cfg.Oracle.RedisTTLSec)*time.Second)
		if err != nil {
			slog.Warn("greyd: redis oracle cache disabled", "error", err)
			return oc
		}
		oc = cached
	}
	return oc
}

func buildPeerManager(cfg *config.Config, r *ring.Ring, q *queue.Queue, m *metrics.Metrics) (*syncmgr.Manager, error) {
	var macKey []byte
	if cfg.Peer.MACKeyHex != "" {
		decoded, err := hex.DecodeString(cfg.Peer.MACKeyHex)
		if err != nil {
			return nil, fmt.Errorf("greyd: decode peer MAC key: %w", err)
		}
		macKey = decoded
	}

	return syncmgr.New(syncmgr.Config{
		PeerHost:          cfg.Peer.Host,
		PeerPort:          cfg.Peer.Port,
		AggregateInterval: time.Duration(cfg.Peer.AggregateInterval) * time.Second,
		SpiffeSocketPath:  cfg.Peer.SpiffeSocketPath,
		PeerSpiffeID:      cfg.Peer.PeerSpiffeID,
		MACKey:            macKey,
	}, r, q, m)
}

func peerNotifier(peer *syncmgr.Manager) engine.PeerNotifier {
	if peer == nil {
		return nil
	}
	return peer
}

func peerInspector(peer *syncmgr.Manager) adminhttp.PeerInspector {
	if peer == nil {
		return nil
	}
	return peer
}

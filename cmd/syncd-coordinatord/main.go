/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
syncd-coordinatord runs the replication coordinator: it loads
configuration, wires the metadata/version/chunk/event/cluster
components together, starts the replication orchestrator, and serves
the JSON/WebSocket API until terminated.

Usage:

	syncd-coordinatord --config /etc/syncd/coordinator.conf
	syncd-coordinatord --http-addr :8761 --data-dir /var/lib/syncd
*/
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncd/internal/chunkstore"
	"syncd/internal/cluster"
	"syncd/internal/compression"
	"syncd/internal/config"
	"syncd/internal/events"
	"syncd/internal/logging"
	"syncd/internal/metadata"
	"syncd/internal/replication"
	"syncd/internal/server"
	synctls "syncd/internal/tls"
	"syncd/internal/vclock"
	"syncd/internal/version"
)

func main() {
	configFile := flag.String("config", "", "Path to a coordinator config file (key = value format)")
	httpAddr := flag.String("http-addr", "", "Override the JSON/WebSocket listen address")
	dataDir := flag.String("data-dir", "", "Override the metadata persistence directory")
	memoryOnly := flag.Bool("memory-only", false, "Use an in-memory metadata engine instead of SQLite")
	nodeID := flag.String("node-id", "coordinator", "Identity this process uses when it originates events")
	noTLS := flag.Bool("no-tls", false, "Dial replication targets over plain TCP instead of TLS")
	certDir := flag.String("cert-dir", "", "Directory holding the replication channel's TLS cert/key (generated on first run if missing)")
	compressionAlgo := flag.String("compression", "gzip", "Chunk body compression algorithm for the replication channel: none, gzip, lz4, snappy, zstd")
	flag.Parse()

	mgr := config.NewManager()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "syncd-coordinatord: loading config: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()

	loaded := *mgr.Get()
	cfg := &loaded
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "syncd-coordinatord: invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("coordinatord")
	logger.Info("starting coordinator",
		"http_addr", cfg.HTTPAddr,
		"replication_port", cfg.ReplicationPort,
		"chunk_size", cfg.ChunkSize,
		"data_dir", cfg.DataDir,
	)

	engineType := metadata.EngineTypeSQLite
	enginePath := cfg.DataDir + "/coordinator.db"
	if *memoryOnly {
		engineType = metadata.EngineTypeMemory
		enginePath = ""
	}
	metaEngine, err := metadata.NewEngine(metadata.Config{Type: engineType, Path: enginePath})
	if err != nil {
		logger.Error("failed to open metadata engine", "error", err)
		os.Exit(1)
	}
	defer metaEngine.Close()

	clocks := vclock.NewManager()
	chunks := chunkstore.New()
	versions := version.New(clocks, chunks)

	registry := cluster.NewRegistry(cluster.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		OfflineAfter:      cfg.NodeOfflineAfter,
	})
	defer registry.Stop()

	eventsMgr := events.NewManager(metaEngine, events.Config{
		BufferSize:       cfg.EventBufferSize,
		FlushInterval:    2 * time.Second,
		SubscriberBuffer: 64,
	})
	defer eventsMgr.Stop()

	algo, err := compression.ParseAlgorithm(*compressionAlgo)
	if err != nil {
		logger.Error("invalid --compression value", "error", err)
		os.Exit(1)
	}
	compressCfg := compression.DefaultConfig()
	compressCfg.Algorithm = algo
	compressor := compression.NewCompressor(compressCfg)

	transport := replication.NewTCPTransport(*nodeID, nil).WithCompression(compressor)
	defer transport.Close()

	receiver := replication.NewReceiver(*nodeID, chunks, versions, clocks, eventsMgr).WithCompression(compressor)

	var tlsConfig *tls.Config
	if !*noTLS {
		var certPath, keyPath string
		if *certDir == "" {
			_, certPath, keyPath = synctls.GetDefaultCertPaths()
		} else {
			certPath = *certDir + "/server.crt"
			keyPath = *certDir + "/server.key"
		}
		certConfig := synctls.DefaultCertConfig()
		if err := synctls.EnsureCertificates(certPath, keyPath, certConfig); err != nil {
			logger.Error("failed to provision replication TLS certificates", "error", err)
			os.Exit(1)
		}
		loaded, err := synctls.LoadTLSConfig(certPath, keyPath)
		if err != nil {
			logger.Error("failed to load replication TLS certificates", "error", err)
			os.Exit(1)
		}
		// Nodes in this deployment mint their own self-signed certs rather
		// than sharing a CA, so the dial side trusts on first use.
		loaded.InsecureSkipVerify = true
		tlsConfig = loaded
		transport.WithTLS(tlsConfig)
		logger.Info("replication channel using TLS", "cert_path", certPath)
	} else {
		logger.Warn("replication channel running without TLS (--no-tls)")
	}

	replicationAddr := fmt.Sprintf(":%d", cfg.ReplicationPort)
	if err := receiver.Listen(replicationAddr, tlsConfig); err != nil {
		logger.Error("failed to bind replication listener", "addr", replicationAddr, "error", err)
		os.Exit(1)
	}
	go receiver.Serve()
	defer receiver.Close()
	logger.Info("replication listener accepting pushes", "addr", replicationAddr, "compression", algo.String())

	orch := replication.NewOrchestrator(cfg, versions, chunks, registry, eventsMgr, transport)

	srv := server.New(cfg, registry, versions, chunks, clocks, eventsMgr, orch)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server exited unexpectedly", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("coordinator stopped")
}

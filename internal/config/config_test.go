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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ChunkSize != 4096 {
		t.Errorf("Expected default chunk size 4096, got %d", cfg.ChunkSize)
	}
	if cfg.NodeOfflineAfter != 3*cfg.HeartbeatInterval {
		t.Errorf("Expected node_offline_after to be 3x heartbeat_interval, got %s vs %s", cfg.NodeOfflineAfter, cfg.HeartbeatInterval)
	}
	if cfg.ChunkTransferDeadline != 30*time.Second {
		t.Errorf("Expected chunk_transfer_deadline 30s, got %s", cfg.ChunkTransferDeadline)
	}
	if cfg.SessionDeadline != 5*time.Minute {
		t.Errorf("Expected session_deadline 5m, got %s", cfg.SessionDeadline)
	}
	if cfg.MaxParallelSessionsPerTarget != 1 {
		t.Errorf("Expected max_parallel_sessions_per_target 1, got %d", cfg.MaxParallelSessionsPerTarget)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate cleanly, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		return DefaultConfig()
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"negative chunk size", func(c *Config) { c.ChunkSize = -1 }, true},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"offline threshold below heartbeat", func(c *Config) {
			c.HeartbeatInterval = 10 * time.Second
			c.NodeOfflineAfter = 5 * time.Second
		}, true},
		{"zero session deadline", func(c *Config) { c.SessionDeadline = 0 }, true},
		{"zero chunk transfer deadline", func(c *Config) { c.ChunkTransferDeadline = 0 }, true},
		{"zero max parallel per target", func(c *Config) { c.MaxParallelSessionsPerTarget = 0 }, true},
		{"total below per-target", func(c *Config) {
			c.MaxParallelSessionsPerTarget = 4
			c.MaxParallelSessionsTotal = 2
		}, true},
		{"bad replication port", func(c *Config) { c.ReplicationPort = 70000 }, true},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, true},
		{"zero event buffer", func(c *Config) { c.EventBufferSize = 0 }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "syncd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
chunk_size = 8192
heartbeat_interval = "10s"
node_offline_after = "30s"
session_deadline = "10m"
chunk_transfer_deadline = "1m"
max_parallel_sessions_per_target = 2
max_parallel_sessions_total = 16
http_addr = ":9000"
replication_port = 9001
event_buffer_size = 2048
data_dir = "/tmp/syncd"
log_level = "debug"
log_json = true
`

	configPath := filepath.Join(tmpDir, "syncd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.ChunkSize != 8192 {
		t.Errorf("Expected chunk_size 8192, got %d", cfg.ChunkSize)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Errorf("Expected heartbeat_interval 10s, got %s", cfg.HeartbeatInterval)
	}
	if cfg.ReplicationPort != 9001 {
		t.Errorf("Expected replication_port 9001, got %d", cfg.ReplicationPort)
	}
	if cfg.DataDir != "/tmp/syncd" {
		t.Errorf("Expected data_dir '/tmp/syncd', got '%s'", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origChunk := os.Getenv(EnvChunkSize)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origAdminPass := os.Getenv(EnvAdminPassword)

	defer func() {
		os.Setenv(EnvChunkSize, origChunk)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvAdminPassword, origAdminPass)
	}()

	os.Setenv(EnvChunkSize, "2048")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvAdminPassword, "testpassword")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ChunkSize != 2048 {
		t.Errorf("Expected chunk_size 2048 from env, got %d", cfg.ChunkSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.AdminPassword != "testpassword" {
		t.Errorf("Expected admin_password 'testpassword' from env, got '%s'", cfg.AdminPassword)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "syncd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `chunk_size = 4096
data_dir = "test-data"
`
	configPath := filepath.Join(tmpDir, "syncd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origChunk := os.Getenv(EnvChunkSize)
	defer os.Setenv(EnvChunkSize, origChunk)
	os.Setenv(EnvChunkSize, "16384")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ChunkSize != 16384 {
		t.Errorf("Expected chunk_size 16384 (env override), got %d", cfg.ChunkSize)
	}
}

func TestToConf(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/syncd"

	out := cfg.ToConf()

	if !strings.Contains(out, "chunk_size = 4096") {
		t.Error("ToConf output missing chunk_size")
	}
	if !strings.Contains(out, `data_dir = "/var/lib/syncd"`) {
		t.Error("ToConf output missing data_dir")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "syncd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.ChunkSize = 1024

	configPath := filepath.Join(tmpDir, "subdir", "syncd.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.ChunkSize != 1024 {
		t.Errorf("Expected chunk_size 1024, got %d", loaded.ChunkSize)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "syncd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `chunk_size = 4096
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "syncd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.ChunkSize != 4096 {
		t.Errorf("Expected initial chunk_size 4096, got %d", cfg.ChunkSize)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `chunk_size = 8192
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.ChunkSize != 8192 {
		t.Errorf("Expected reloaded chunk_size 8192, got %d", cfg.ChunkSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !strings.Contains(str, "ChunkSize:") {
		t.Error("String() missing ChunkSize")
	}
	if !strings.Contains(str, "4096") {
		t.Error("String() missing chunk size value")
	}
}

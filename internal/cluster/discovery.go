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

package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// mdnsServiceName is the DNS-SD service type coordinators advertise
// themselves under, so a bootstrapping node can find an existing fleet
// on the local network without being handed an address.
const mdnsServiceName = "_syncd._tcp"

// DiscoveryConfig configures advertising and discovery of coordinators
// over mDNS.
type DiscoveryConfig struct {
	NodeID          string
	Enabled         bool // advertise this coordinator; false means discover-only
	HTTPAddr        string
	ReplicationPort int
	Version         string
}

// DiscoveredNode is a coordinator found on the local network.
type DiscoveredNode struct {
	NodeID          string `json:"node_id"`
	HTTPAddr        string `json:"http_addr"`
	ReplicationPort int    `json:"replication_port,omitempty"`
	Version         string `json:"version,omitempty"`
}

// DiscoveryService advertises this coordinator (if enabled) and finds
// peer coordinators via mDNS (Bonjour/Avahi).
type DiscoveryService struct {
	config DiscoveryConfig
	server *mdns.Server
}

// NewDiscoveryService constructs a DiscoveryService. If config.Enabled,
// it immediately begins advertising; the returned service must be
// Shutdown when the coordinator exits, or the responder goroutine leaks.
func NewDiscoveryService(config DiscoveryConfig) *DiscoveryService {
	ds := &DiscoveryService{config: config}
	if config.Enabled {
		if err := ds.advertise(); err != nil {
			// Advertising is a convenience, not a load-bearing dependency:
			// discovery-only mode still works via DiscoverNodes.
			ds.server = nil
		}
	}
	return ds
}

func (ds *DiscoveryService) advertise() error {
	host, port, err := splitHostPort(ds.config.HTTPAddr)
	if err != nil {
		return err
	}

	txt := []string{
		fmt.Sprintf("node_id=%s", ds.config.NodeID),
		fmt.Sprintf("replication_port=%d", ds.config.ReplicationPort),
		fmt.Sprintf("version=%s", ds.config.Version),
	}

	info, err := mdns.NewMDNSService(ds.config.NodeID, mdnsServiceName, "", "", port, nil, txt)
	if err != nil {
		return fmt.Errorf("cluster: build mdns service: %w", err)
	}
	_ = host

	server, err := mdns.NewServer(&mdns.Config{Zone: info})
	if err != nil {
		return fmt.Errorf("cluster: start mdns responder: %w", err)
	}
	ds.server = server
	return nil
}

// Shutdown stops advertising, if this service was advertising at all.
func (ds *DiscoveryService) Shutdown() error {
	if ds.server == nil {
		return nil
	}
	return ds.server.Shutdown()
}

// DiscoverNodes queries the local network for other coordinators and
// returns whatever answers arrive within timeout.
func (ds *DiscoveryService) DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	results := make([]*DiscoveredNode, 0, 4)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			results = append(results, entryToNode(entry))
		}
	}()

	params := mdns.DefaultParams(mdnsServiceName)
	params.Timeout = timeout
	params.Entries = entries

	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("cluster: mdns query: %w", err)
	}
	return results, nil
}

func entryToNode(entry *mdns.ServiceEntry) *DiscoveredNode {
	node := &DiscoveredNode{
		HTTPAddr: fmt.Sprintf("%s:%d", entry.Host, entry.Port),
	}
	for _, field := range entry.InfoFields {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "node_id":
			node.NodeID = v
		case "version":
			node.Version = v
		case "replication_port":
			fmt.Sscanf(v, "%d", &node.ReplicationPort)
		}
	}
	return node
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("cluster: invalid address %q", addr)
	}
	host := addr[:idx]
	var port int
	if _, err := fmt.Sscanf(addr[idx+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("cluster: invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

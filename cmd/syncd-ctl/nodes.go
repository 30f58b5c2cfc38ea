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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"syncd/pkg/cli"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Inspect and manage cluster node membership",
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every node the coordinator knows about",
	RunE:  runNodesList,
}

var nodesRemoveCmd = &cobra.Command{
	Use:   "remove <node-id>",
	Short: "Remove a node, cancelling any in-flight sessions addressed to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runNodesRemove,
}

func init() {
	nodesCmd.AddCommand(nodesListCmd)
	nodesCmd.AddCommand(nodesRemoveCmd)
}

type nodeDTO struct {
	NodeID        string   `json:"node_id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Port          int      `json:"port"`
	Capabilities  []string `json:"capabilities"`
	State         string   `json:"state"`
	RegisteredAt  string   `json:"registered_at"`
	LastHeartbeat string   `json:"last_heartbeat"`
}

func runNodesList(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)
	var resp struct {
		Nodes []nodeDTO `json:"nodes"`
	}
	if err := client.get("/nodes", &resp); err != nil {
		return err
	}

	table := cli.NewTable("NODE ID", "NAME", "ADDRESS", "STATE", "LAST HEARTBEAT")
	table.SetFormat(format())
	for _, n := range resp.Nodes {
		table.AddRow(n.NodeID, n.Name, fmt.Sprintf("%s:%d", n.Address, n.Port), n.State, n.LastHeartbeat)
	}
	table.Print()
	return nil
}

func runNodesRemove(cmd *cobra.Command, args []string) error {
	client := newAPIClient(coordAddr)
	nodeID := args[0]
	if err := client.delete("/nodes/"+nodeID, nil); err != nil {
		return err
	}
	cli.PrintSuccess("Removed node %s", nodeID)
	return nil
}

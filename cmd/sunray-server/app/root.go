// Package app wires the cobra command tree for the control-plane binary.
package app

import (
	"github.com/spf13/cobra"

	"github.com/sunrayhq/control-plane/internal/logger"
)

// NewRootCmd builds the root command. The only subcommand today is serve;
// the tree exists so additional operator commands (migrate, audit-prune,
// ...) have somewhere to live without reshaping main.go.
func NewRootCmd() *cobra.Command {
	logger.Initialize()

	root := &cobra.Command{
		Use:   "sunray-server",
		Short: "Sunray control-plane server",
		Long:  "sunray-server runs the control-plane REST API, worker RPC client, and background jobs for the Sunray zero-trust access platform.",
	}
	root.AddCommand(serveCmd)
	return root
}

// Command run-agent opens an interactive console against the same
// orchestration engine httpapi serves, printing a node_update line to the
// terminal after every agent-graph node execution (§6 "CLI (minimal)").
// Grounded on jhkimqd-chaos-utils/cmd/chaos-runner's
// rootCmd-with-PersistentFlags-plus-Execute shape, narrowed to a single
// command since this CLI has no scenario-file/report subcommands of its
// own.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"goa.design/apron-incident/internal/bootstrap"
	"goa.design/apron-incident/internal/config"
	"goa.design/apron-incident/runtime/agentgraph"
	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/session/memstore"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
)

var (
	scenarioTypeF string
	sessionIDF    string
)

var rootCmd = &cobra.Command{
	Use:   "run-agent",
	Short: "Interactive console for the apron-incident orchestration engine",
	Long: `run-agent opens a line-oriented prompt: each line you type is sent to the
engine as one user turn, and a node_update line is printed to stderr after
every agent-graph node execution. The line carries a subset of the SSE
node_update frame's fields: node, fsm_state, current_thought,
current_action and is_complete.`,
	RunE: runInteractive,
}

func init() {
	rootCmd.Flags().StringVar(&scenarioTypeF, "scenario-type", "", "scenario type for the first turn (auto-identified from the message when unset)")
	rootCmd.Flags().StringVar(&sessionIDF, "session-id", "cli-session", "session identifier for this console")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInteractive(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("run-agent: %w", err)
	}

	eng, err := bootstrap.BuildEngine(cfg, telemetry.NoOp())
	if err != nil {
		return fmt.Errorf("run-agent: %w", err)
	}

	ctx := context.Background()
	store := memstore.New()
	sess := state.New(sessionIDF, scenarioTypeF, time.Now())

	fmt.Fprintln(cmd.OutOrStdout(), "apron-incident console — type a message and press enter; Ctrl-D to exit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		message := scanner.Text()
		if message == "" {
			continue
		}

		token, err := store.Lock(ctx, sess.SessionID, session.DefaultLockTTL)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "session busy:", err)
			continue
		}

		eng.Graph.Run(ctx, sess, message, func(ev agentgraph.NodeEvent) {
			printNodeUpdate(cmd, ev)
		})

		if err := store.Put(ctx, sess, token); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "store error:", err)
		}
		_ = store.Unlock(ctx, sess.SessionID, token)

		switch {
		case sess.FinalAnswer != "":
			fmt.Fprintln(cmd.OutOrStdout(), "assistant:", sess.FinalAnswer)
		case sess.NextQuestion != "":
			fmt.Fprintln(cmd.OutOrStdout(), "assistant:", sess.NextQuestion)
		}
	}
	return scanner.Err()
}

// printNodeUpdate renders a subset of httpapi's SSE node_update frame
// (§6): node, fsm_state, current_thought, current_action and is_complete.
// It writes to stderr so it doesn't interleave with assistant replies on
// stdout.
func printNodeUpdate(cmd *cobra.Command, ev agentgraph.NodeEvent) {
	raw, err := json.Marshal(map[string]any{
		"node":            ev.Node,
		"fsm_state":       ev.Session.FSMState,
		"current_thought": ev.Session.CurrentThought,
		"current_action":  ev.Session.CurrentAction,
		"is_complete":     ev.Session.IsComplete,
	})
	if err != nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "event: node_update", string(raw))
}

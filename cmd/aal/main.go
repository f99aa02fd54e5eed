package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/ActionLedger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	ledgerURL string
	apiKey    string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aal",
	Short: "AI Action Ledger CLI",
	Long: `aal is the command-line interface for the AI Action Ledger.

It records agent actions as hash-chained events, inspects recorded
chains, and verifies their integrity against a ledger service.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.aal")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
		if apiKey == "" {
			apiKey = viper.GetString("api_key")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.aal/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authenticated endpoints")

	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(ledgerURL, apiKey)
}

// ── log ──────────────────────────────────────────────────────────────────────

var (
	logAgentID       string
	logInput         string
	logOutput        string
	logToolName      string
	logEnvironment   string
	logModelVersion  string
	logPromptVersion string
)

var logCmd = &cobra.Command{
	Use:   "log <action-type>",
	Short: "Record one action event on an agent's chain",
	Long: `Log appends a single event to an agent's hash chain.

Raw input and output values are hashed locally with SHA-256; only the
digests leave this machine:

  aal log tool_start --agent agent-7 --tool search --input "what is 2+2"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if logAgentID == "" {
			return fmt.Errorf("--agent is required")
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		sub := client.EventSubmission{
			AgentID:       logAgentID,
			ActionType:    args[0],
			ToolName:      logToolName,
			Environment:   logEnvironment,
			ModelVersion:  logModelVersion,
			PromptVersion: logPromptVersion,
		}
		if logInput != "" {
			sub.InputHash = client.HashContent(logInput)
		}
		if logOutput != "" {
			sub.OutputHash = client.HashContent(logOutput)
		}

		event, err := c.LogEvent(context.Background(), sub)
		if err != nil {
			return err
		}

		fmt.Printf("Event:    %s\n", event.EventID)
		fmt.Printf("Agent:    %s\n", event.AgentID)
		fmt.Printf("Sequence: %d\n", event.SequenceNumber)
		fmt.Printf("Link:     %s\n", event.LinkHash)
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logAgentID, "agent", "", "Agent ID (required)")
	logCmd.Flags().StringVar(&logInput, "input", "", "Raw input value; hashed locally, never transmitted")
	logCmd.Flags().StringVar(&logOutput, "output", "", "Raw output value; hashed locally, never transmitted")
	logCmd.Flags().StringVar(&logToolName, "tool", "", "Tool name")
	logCmd.Flags().StringVar(&logEnvironment, "env", "", "Environment tag (e.g. production)")
	logCmd.Flags().StringVar(&logModelVersion, "model", "", "Model version")
	logCmd.Flags().StringVar(&logPromptVersion, "prompt", "", "Prompt version")
}

// ── list ─────────────────────────────────────────────────────────────────────

var (
	listAgentID    string
	listActionType string
	listPage       int
	listPageSize   int
	listFormat     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded events, newest page first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		page, err := c.ListEvents(context.Background(), client.ListOptions{
			AgentID:    listAgentID,
			ActionType: listActionType,
			Page:       listPage,
			PageSize:   listPageSize,
		})
		if err != nil {
			return err
		}

		if listFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tSEQ\tACTION\tTOOL\tTIMESTAMP\tLINK")
		for _, e := range page.Events {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				e.AgentID, e.SequenceNumber, e.ActionType, e.ToolName,
				e.Timestamp.Format(time.RFC3339), shortHash(e.LinkHash))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("page %d of %d event(s) total\n", page.Page, page.Total)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listAgentID, "agent", "", "Filter by agent ID")
	listCmd.Flags().StringVar(&listActionType, "action", "", "Filter by action type")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number (1-based)")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 0, "Events per page (0 uses the server default)")
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <agent-id>",
	Short: "Verify the integrity of an agent's hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		res, err := c.VerifyChain(context.Background(), args[0])
		if err != nil {
			return err
		}

		if res.IsValid {
			fmt.Printf("chain VALID: agent %s, %d event(s) checked\n",
				res.AgentID, res.EventsChecked)
			return nil
		}

		fmt.Printf("chain INVALID: agent %s\n", res.AgentID)
		if res.FirstInvalidSequence != nil {
			fmt.Printf("first invalid sequence: %d\n", *res.FirstInvalidSequence)
		}
		os.Exit(1)
		return nil
	},
}

// ── head ─────────────────────────────────────────────────────────────────────

var headCmd = &cobra.Command{
	Use:   "head <agent-id>",
	Short: "Show an agent's chain tip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		head, err := c.Head(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Agent:    %s\n", head.AgentID)
		fmt.Printf("Sequence: %d\n", head.SequenceNumber)
		fmt.Printf("Link:     %s\n", head.LinkHash)
		return nil
	},
}

// ── agents ───────────────────────────────────────────────────────────────────

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents with recorded events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		agents, err := c.Agents(context.Background())
		if err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Println(a)
		}
		return nil
	},
}

// ── health ───────────────────────────────────────────────────────────────────

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the ledger service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Health(context.Background()); err != nil {
			return fmt.Errorf("ledger unreachable: %w", err)
		}
		fmt.Println("ok")
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aal version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aal", version)
	},
}

// shortHash abbreviates a link hash for table output.
func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}

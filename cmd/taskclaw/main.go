package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/gateway"
	"github.com/stellarlinkco/taskclaw/internal/store"
)

// Assistant is the conversational surface the CLI talks to (allows
// mocking in tests).
type Assistant interface {
	Ask(ctx context.Context, content string) string
	Shutdown() error
}

// AssistantFactory creates an Assistant instance
type AssistantFactory func(cfg *config.Config) (Assistant, error)

// DefaultAssistantFactory builds the full gateway behind the CLI.
func DefaultAssistantFactory(cfg *config.Config) (Assistant, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("API key not set. Run 'taskclaw onboard' or set TASKCLAW_API_KEY / ANTHROPIC_API_KEY")
	}
	return gateway.New(cfg)
}

// AgentOptions for running the assistant with custom dependencies
type AgentOptions struct {
	Factory AssistantFactory
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "taskclaw",
	Short: "taskclaw - conversational task assistant with reminders",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the assistant in single message or REPL mode",
	RunE:  runAgent,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + reminder scheduler + digest)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show taskclaw status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(agentCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runAgent is the command handler that uses default options
func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

// runAgentWithOptions runs the assistant with injectable dependencies for testing
func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.Factory
	if factory == nil {
		factory = DefaultAssistantFactory
	}

	assistant, err := factory(cfg)
	if err != nil {
		return err
	}
	defer assistant.Shutdown()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		if reply := assistant.Ask(ctx, messageFlag); reply != "" {
			fmt.Fprintln(stdout, reply)
		}
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "taskclaw agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if reply := assistant.Ask(ctx, input); reply != "" {
			fmt.Fprintln(stdout, reply)
		}
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'taskclaw onboard' or set TASKCLAW_API_KEY / ANTHROPIC_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	if err := os.MkdirAll(filepath.Join(cfgDir, "data"), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfgDir, "persona"), 0755); err != nil {
		return fmt.Errorf("create persona dir: %w", err)
	}
	writeIfNotExists(filepath.Join(cfgDir, "persona", "default.md"), defaultPersonaMD)

	fmt.Printf("Data directory ready: %s\n", filepath.Join(cfgDir, "data"))
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set TASKCLAW_API_KEY environment variable")
	fmt.Println("  3. Run 'taskclaw agent -m \"add a task: buy milk\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)
	fmt.Printf("Digest: enabled=%v\n", cfg.Digest.Enabled)

	dbPath := cfg.Store.DBPath
	fmt.Printf("Store: %s\n", dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("Tasks: store not created yet (run 'taskclaw agent')")
		return nil
	}

	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Printf("Tasks: error (%v)\n", err)
		return nil
	}
	defer db.Close()

	owner := cfg.Agent.Owner
	if owner == "" {
		owner = config.DefaultOwner
	}
	tasks, err := db.GetAll(owner)
	if err != nil {
		fmt.Printf("Tasks: error (%v)\n", err)
		return nil
	}
	open := 0
	for _, t := range tasks {
		if !t.IsCompleted {
			open++
		}
	}
	fmt.Printf("Tasks: %d total, %d open\n", len(tasks), open)

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultPersonaMD = `---
name: default
description: baseline voice for the task assistant
---
Be warm but brief. Confirm task changes plainly, surface deadlines the
user might be forgetting, and never pad replies with filler.
`

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jassist-go/internal/app"
	"jassist-go/internal/config"
	"jassist-go/internal/database"
	"jassist-go/internal/secrets"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env files and the config file over the defaults.
func loadConfig() (*config.Config, error) {
	if err := app.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

func passphrase() secrets.PassphraseFunc {
	return secrets.PromptPassphrase(os.Stdin, os.Stderr, "Secrets passphrase: ")
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "RunDownloads", "ClassifyBatch").
func newApp(operation string, dryRun bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, operation, app.Options{DryRun: dryRun, Passphrase: passphrase()})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:          "jassist",
	Short:        "Download, transcribe and classify voice notes",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if _, err := os.Stat(cfg.Classification.PromptsFile); errors.Is(err, os.ErrNotExist) {
			if err := config.WritePrompts(cfg.Classification.PromptsFile, config.DefaultPrompts()); err != nil {
				return fmt.Errorf("failed to write prompts: %w", err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Prompts:  %s\n", cfg.Classification.PromptsFile)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.NewDatabaseFromConfig(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// secrets command
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage sealed secrets",
}

func secretsStore() (secrets.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return secrets.NewStoreFromConfig(cfg.Secrets, passphrase())
}

var secretsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair protecting the secrets store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secretsStore()
		if err != nil {
			return err
		}
		p, err := passphrase()()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if err := store.Setup(p); err != nil {
			return err
		}
		fmt.Println("Secrets store initialized.")
		return nil
	},
}

var secretsSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Seal a secret (e.g. openai_api_key, gdrive_token.<user>)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromFile, _ := cmd.Flags().GetString("from-file")

		store, err := secretsStore()
		if err != nil {
			return err
		}

		var value string
		if fromFile != "" {
			data, err := os.ReadFile(fromFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", fromFile, err)
			}
			value = strings.TrimSpace(string(data))
		} else {
			value, err = readValue(os.Stdin, os.Stderr, fmt.Sprintf("Value for %s: ", args[0]))
			if err != nil {
				return fmt.Errorf("reading value: %w", err)
			}
		}
		if value == "" {
			return errors.New("refusing to store an empty secret")
		}

		if err := store.Set(args[0], value); err != nil {
			return err
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sealed secret names",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secretsStore()
		if err != nil {
			return err
		}
		names, err := store.Names()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No secrets stored.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

// readValue reads one line without echo from a terminal, or plainly from a pipe.
func readValue(in *os.File, out io.Writer, prompt string) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(out, prompt)
		defer fmt.Fprintln(out)
		b, err := term.ReadPassword(int(in.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory", false)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-22s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// secrets subcommands
	secretsCmd.AddCommand(secretsInitCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsSetCmd.Flags().String("from-file", "", "Read the value from a file (e.g. a drive token JSON)")
	secretsCmd.AddCommand(secretsListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}

// Package cli implements the pitchroom command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/httpapi"
	"github.com/apresai/pitchroom/internal/ingest"
	"github.com/apresai/pitchroom/internal/observability"
	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/session"
	"github.com/apresai/pitchroom/internal/store"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pitchroom",
	Short: "Pitch your startup to an AI investor and survive the meeting",
	RunE:  runPitch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pitchroom %s\n", Version)
	},
}

var pitchCmd = &cobra.Command{
	Use:   "pitch",
	Short: "Run an interactive pitch session in the terminal",
	RunE:  runPitch,
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the available investor personas",
	RunE:  runPersonas,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pitch HTTP API server",
	RunE:  runServe,
}

var (
	flagProvider   string
	flagPersona    string
	flagStartup    string
	flagDesc       string
	flagStartupDoc string
	flagLocale     string
	flagAddr       string
	flagNoAuth     bool
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pitchCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(serveCmd)

	for _, c := range []*cobra.Command{rootCmd, pitchCmd} {
		c.Flags().StringVarP(&flagProvider, "provider", "P", "", "Text provider: claude, gemini, nova (default: first configured)")
		c.Flags().StringVarP(&flagPersona, "persona", "p", "shark", "Investor persona: shark, visionary, skeptic, mentor")
		c.Flags().StringVarP(&flagStartup, "startup", "s", "", "Startup name")
		c.Flags().StringVarP(&flagDesc, "desc", "d", "", "One-line startup description")
		c.Flags().StringVarP(&flagStartupDoc, "startup-doc", "f", "", "Build the startup profile from a URL, PDF, or text file")
		c.Flags().StringVarP(&flagLocale, "locale", "l", "", "Meeting language (default English)")
	}

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :$PORT or :8080)")
	serveCmd.Flags().BoolVar(&flagNoAuth, "no-auth", false, "Disable API key auth even when a table is configured")
}

func Execute() error {
	return rootCmd.Execute()
}

var (
	personaNameStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#7D56F4"))

	personaRoleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575"))

	personaDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

func runPersonas(cmd *cobra.Command, args []string) error {
	fmt.Println("\nAvailable personas:")
	for _, p := range persona.All() {
		fmt.Printf("\n  %s  %s\n", personaNameStyle.Render(p.ID), personaRoleStyle.Render(p.Name+" — "+p.Role))
		fmt.Printf("  %s\n", personaDimStyle.Render(wrap(p.Personality, 76)))
	}
	fmt.Println()
	return nil
}

func wrap(s string, width int) string {
	words := strings.Fields(s)
	var b strings.Builder
	line := 0
	for i, w := range words {
		if line+len(w)+1 > width && line > 0 {
			b.WriteString("\n  ")
			line = 0
		} else if i > 0 {
			b.WriteString(" ")
			line++
		}
		b.WriteString(w)
		line += len(w)
	}
	return b.String()
}

// resolveStartup builds the startup profile from flags, ingesting a document
// when one is given.
func resolveStartup(ctx context.Context) (persona.Startup, error) {
	if flagStartupDoc != "" {
		startup, err := ingest.LoadStartup(ctx, flagStartupDoc)
		if err != nil {
			return persona.Startup{}, err
		}
		if flagStartup != "" {
			startup.Name = flagStartup
		}
		return startup, nil
	}
	if flagStartup == "" {
		return persona.Startup{}, fmt.Errorf("either --startup (-s) or --startup-doc (-f) is required")
	}
	return persona.Startup{Name: flagStartup, Description: flagDesc}, nil
}

// resolveProvider picks the provider: the flag, MODEL_PROVIDER, or the first
// configured one.
func resolveProvider(gw *gateway.Gateway) (string, error) {
	if flagProvider != "" {
		return flagProvider, nil
	}
	if p := os.Getenv("MODEL_PROVIDER"); p != "" {
		return p, nil
	}
	avail := gw.Available()
	for _, id := range gw.ProviderIDs() {
		if avail[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("no provider configured: set ANTHROPIC_API_KEY, GEMINI_API_KEY, or AWS credentials")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := observability.InitLogger()

	addr := flagAddr
	if addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		addr = ":" + port
	}

	gw := gateway.Default(log)

	var (
		snapStore session.SnapshotStore
		archiver  session.Archiver
		validator httpapi.KeyValidator
	)
	if table := os.Getenv("PITCH_TABLE"); table != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		ddb := store.New(dynamodb.NewFromConfig(awsCfg), table)
		snapStore = ddb
		if !flagNoAuth {
			validator = storeValidator{ddb}
		}
		if bucket := os.Getenv("PITCH_ARCHIVE_BUCKET"); bucket != "" {
			archiver = store.NewArchive(s3.NewFromConfig(awsCfg), bucket, os.Getenv("CDN_BASE_URL"))
		}
	} else {
		log.Warn("PITCH_TABLE not set, sessions live in memory only")
	}

	svc := session.NewService(gw, snapStore, archiver, log)
	srv := httpapi.NewServer(log, addr, svc, validator, Version)

	log.Info("Starting pitch API server", "addr", addr, "providers", gw.Available())
	return srv.ListenAndServe()
}

// storeValidator adapts the DynamoDB store to the httpapi auth interface.
type storeValidator struct {
	st *store.Store
}

func (v storeValidator) ValidateAPIKey(ctx context.Context, bearerToken string) (string, error) {
	result, err := v.st.ValidateAPIKey(ctx, bearerToken)
	if err != nil {
		return "", err
	}
	return result.UserID, nil
}

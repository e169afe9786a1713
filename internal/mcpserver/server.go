// Package mcpserver exposes pitch sessions as MCP tools over streamable HTTP,
// so agent frontends can run a full pitch meeting through tool calls.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/session"
	"github.com/apresai/pitchroom/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port          int
	TableName     string
	ArchiveBucket string
	CDNBaseURL    string
	AWSRegion     string
	SecretPrefix  string // e.g. "/pitchroom/mcp/"
}

// DefaultConfig returns a Config populated from environment variables.
func DefaultConfig() Config {
	return Config{
		Port:          8000,
		TableName:     envOr("PITCH_TABLE", "apresai-pitches-prod"),
		ArchiveBucket: envOr("PITCH_ARCHIVE_BUCKET", ""),
		CDNBaseURL:    envOr("CDN_BASE_URL", "https://pitches.apresai.dev"),
		AWSRegion:     envOr("AWS_REGION", "us-east-1"),
		SecretPrefix:  envOr("SECRET_PREFIX", "/pitchroom/mcp/"),
	}
}

// Server is the MCP server for pitch sessions.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	// Fetch secrets if running in AWS
	if cfg.SecretPrefix != "" {
		if err := loadSecrets(ctx, awsCfg, cfg.SecretPrefix, logger); err != nil {
			logger.Warn("Failed to load secrets from Secrets Manager, falling back to env vars",
				"error", err)
		}
	}

	if cfg.TableName == "" {
		return nil, fmt.Errorf("PITCH_TABLE environment variable is required")
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg)
	sessionStore := store.New(ddbClient, cfg.TableName)

	var archiver session.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = store.NewArchive(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, cfg.CDNBaseURL)
	}

	gw := gateway.Default(logger)
	svc := session.NewService(gw, sessionStore, archiver, logger)
	handlers := NewHandlers(svc, logger)

	mcpServer := server.NewMCPServer(
		"pitchroom",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleStartPitch)
	mcpServer.AddTool(tools[1], handlers.HandleSubmitTurn)
	mcpServer.AddTool(tools[2], handlers.HandleEndPitch)
	mcpServer.AddTool(tools[3], handlers.HandlePitchReport)
	mcpServer.AddTool(tools[4], handlers.HandleDeleteSession)
	mcpServer.AddTool(tools[5], handlers.HandleListSessions)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		handlers: handlers,
		log:      logger,
	}, nil
}

// Start runs the HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("Starting MCP server", "addr", addr)

	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true), // sessions are addressed by explicit session_id
	)
	return httpServer.Start(addr)
}

// loadSecrets fetches API keys from Secrets Manager and sets them as env vars.
func loadSecrets(ctx context.Context, cfg aws.Config, prefix string, logger *slog.Logger) error {
	client := secretsmanager.NewFromConfig(cfg)

	secrets := map[string]string{
		"ANTHROPIC_API_KEY": prefix + "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY":    prefix + "GEMINI_API_KEY",
	}

	for envVar, secretID := range secrets {
		// Skip if already set in environment
		if os.Getenv(envVar) != "" {
			continue
		}

		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

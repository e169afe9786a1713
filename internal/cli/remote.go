package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/pitchroom/internal/session"
)

var (
	flagRemoteAPIURL string
	flagRemoteAll    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your pitch sessions on a pitch API server",
	RunE:  runSessions,
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print the transcript and verdict of a remote pitch session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscript,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(transcriptCmd)
	for _, c := range []*cobra.Command{sessionsCmd, transcriptCmd} {
		c.Flags().StringVar(&flagRemoteAPIURL, "api-url", "https://pitches.apresai.dev", "Pitch API base URL")
	}
	sessionsCmd.Flags().BoolVar(&flagRemoteAll, "all", false, "List sessions of all owners (requires a server without auth)")
}

// --- Types ---

// sessionListing mirrors the listing shape the API returns: a snapshot with
// the transcript stripped.
type sessionListing struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	Status    string    `json:"status"`
	Persona   string    `json:"persona"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sessionListResponse struct {
	Sessions []sessionListing `json:"sessions"`
}

// --- Handlers ---

func runSessions(cmd *cobra.Command, args []string) error {
	apiKey, keySource, err := resolveAPIKey()
	if err != nil && !flagRemoteAll {
		return err
	}
	if apiKey != "" {
		fmt.Printf("API key: found (%s)\n", keySource)
	}

	var resp sessionListResponse
	err = remoteRetry(func() error {
		return getJSON(flagRemoteAPIURL+"/api/sessions", apiKey, &resp)
	})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions yet. Start one with: pitchroom pitch -s <startup>")
		return nil
	}

	fmt.Printf("\n%-28s %-24s %-10s %-5s %s\n", "ID", "TITLE", "STATUS", "SCORE", "UPDATED")
	for _, s := range resp.Sessions {
		title := s.Title
		if s.Pinned {
			title = "* " + title
		}
		if len(title) > 24 {
			title = title[:21] + "..."
		}
		fmt.Printf("%-28s %-24s %-10s %-5d %s\n",
			s.ID, title, s.Status, s.Score, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runTranscript(cmd *cobra.Command, args []string) error {
	apiKey, _, err := resolveAPIKey()
	if err != nil {
		apiKey = ""
	}

	var snap session.Snapshot
	err = remoteRetry(func() error {
		return getJSON(flagRemoteAPIURL+"/api/sessions/"+args[0], apiKey, &snap)
	})
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}

	fmt.Printf("\n%s — %s (%s, score %d)\n\n", snap.Title, snap.Persona.Name, snap.Status, snap.Score)
	for _, turn := range snap.Transcript {
		speaker := snap.Persona.Name
		if turn.Role == session.RoleFounder {
			speaker = "Founder"
		}
		if turn.Delta != nil {
			fmt.Printf("%s (%+d):\n", speaker, *turn.Delta)
		} else {
			fmt.Printf("%s:\n", speaker)
		}
		fmt.Printf("  %s\n\n", wrap(turn.Text, 76))
	}

	if snap.Report != nil {
		fmt.Printf("Verdict: %s (final score %d)\n%s\n", snap.Report.Decision, snap.Report.Score, wrap(snap.Report.Feedback, 76))
	}
	return nil
}

// --- API key resolution ---

func resolveAPIKey() (key, source string, err error) {
	// 1. Environment variable
	if k := os.Getenv("PITCHROOM_API_KEY"); k != "" {
		return k, "env:PITCHROOM_API_KEY", nil
	}

	// 2. Secrets file
	home, _ := os.UserHomeDir()
	if home != "" {
		secretPath := filepath.Join(home, ".secrets", "pitchroom-api-key")
		if data, err := os.ReadFile(secretPath); err == nil {
			k := strings.TrimSpace(string(data))
			if k != "" {
				return k, secretPath, nil
			}
		}
	}

	// 3. Config file
	if home != "" {
		configPath := filepath.Join(home, ".config", "pitchroom", "config.json")
		if data, err := os.ReadFile(configPath); err == nil {
			var cfg struct {
				APIKey string `json:"apiKey"`
			}
			if json.Unmarshal(data, &cfg) == nil && cfg.APIKey != "" {
				return cfg.APIKey, configPath, nil
			}
		}
	}

	return "", "", fmt.Errorf("API key not found — set PITCHROOM_API_KEY or create ~/.config/pitchroom/config.json")
}

// --- HTTP helpers ---

func getJSON(url, apiKey string, result interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// --- Retry ---

func remoteRetry(fn func() error) error {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			time.Sleep(backoffs[attempt])
		}
	}
	return lastErr
}

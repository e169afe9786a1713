package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/report"
	"github.com/apresai/pitchroom/internal/session"
)

// stdoutIsTTY reports whether the full-screen TUI can run. Piped or
// redirected output gets the line-based mode instead.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// runPlainPitch is the line-based session loop for non-TTY output. Answers
// are read from stdin one line at a time; "/end" walks out of the meeting.
func runPlainPitch(ctx context.Context, svc *session.Service, log *slog.Logger, providerID string, p persona.Persona, startup persona.Startup, locale string) error {
	result, err := svc.StartPitch(ctx, session.StartRequest{
		Provider:  providerID,
		PersonaID: p.ID,
		Startup:   startup,
		Locale:    locale,
	})
	if err != nil {
		return fmt.Errorf("start pitch: %w", err)
	}

	fmt.Printf("Pitching %s to %s via %s. Type your answers; /end walks out.\n\n", startup.Name, p.Name, providerID)
	fmt.Printf("[interest 50] %s: %s\n", p.Name, result.Opening)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	terminated := false
	for !terminated && scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/end" {
			if err := svc.EndPitch(ctx, "", result.SessionID); err != nil {
				return fmt.Errorf("end pitch: %w", err)
			}
			break
		}

		outcome, err := svc.SubmitTurn(ctx, "", result.SessionID, text)
		if err != nil {
			// Transport failures leave the session intact; the founder can
			// send the same answer again.
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("[interest %d, %+d] %s: %s\n", outcome.Score, outcome.Delta, p.Name, outcome.Reply)
		if outcome.Terminated {
			fmt.Printf("\nThe meeting is over (%s).\n", outcome.Reason)
			terminated = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	if !terminated {
		// stdin closed or /end
		if snap, err := svc.GetSession(ctx, "", result.SessionID); err == nil && snap.Status == session.StatusActive {
			if err := svc.EndPitch(ctx, "", result.SessionID); err != nil {
				return fmt.Errorf("end pitch: %w", err)
			}
		}
	}

	rep, err := svc.GenerateReport(ctx, "", result.SessionID)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	printPlainReport(rep)
	return nil
}

func printPlainReport(rep *report.Report) {
	fmt.Printf("\nVerdict: %s (final score %d)\n%s\n", rep.Decision, rep.Score, rep.Feedback)
	for _, s := range rep.Strengths {
		fmt.Printf("  + %s\n", s)
	}
	for _, w := range rep.Weaknesses {
		fmt.Printf("  - %s\n", w)
	}
}

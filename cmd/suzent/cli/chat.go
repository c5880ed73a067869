package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/cyzus/suzent-sub001/agent"
	"github.com/cyzus/suzent-sub001/session"
	"github.com/cyzus/suzent-sub001/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the memory-backed agent",
	Long: `Starts a terminal conversation with the agent. Each turn is recorded in
the session transcript, memories are retrieved into the system prompt, and
facts stated during the conversation are extracted and stored. The session
reset policy from the config applies between turns.`,
	Run: func(cmd *cobra.Command, args []string) {
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			fatalf("chat requires ANTHROPIC_API_KEY")
		}

		e := openEnv()
		defer e.close()
		mgr := e.newManager()

		sessions, err := session.NewStore(e.cfg.SessionDir())
		if err != nil {
			fatalf("Failed to open session store: %v", err)
		}
		lifecycle := session.NewLifecycle(session.Policy{
			DailyResetHour: e.cfg.Session.DailyResetHour,
			IdleTimeout:    e.cfg.IdleTimeout(),
			MaxTurns:       e.cfg.Session.MaxTurns,
		})

		client := anthropic.NewClient()
		eng := agent.New(&client, mgr, agent.NewRegistry(tools.Memory(mgr)...),
			agent.WithSessions(sessions, lifecycle))

		fmt.Println("Chatting as user", userID, "- Ctrl+D to quit.")
		ctx := context.Background()
		sessionID := ""
		sc := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !sc.Scan() {
				fmt.Println()
				return
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}

			out, err := eng.Run(ctx, &agent.Input{
				UserID:      userID,
				ChatID:      chatID,
				SessionID:   sessionID,
				UserMessage: line,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			sessionID = out.SessionID
			if out.ResetReason != "" {
				fmt.Printf("(session reset: %s)\n", out.ResetReason)
			}
			fmt.Println(out.Text)
		}
	},
}

func init() {
	RootCmd.AddCommand(chatCmd)
}

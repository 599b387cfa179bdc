package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell/internal/app"
	"github.com/inkwell-ai/inkwell/internal/config"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting inkwell: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	conversationID := uuid.New()
	fmt.Println("Inkwell ready. Type /help for commands, Ctrl+D to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye.")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			exit, newID := handleCommand(ctx, input, a, conversationID)
			if exit {
				break
			}
			conversationID = newID
			continue
		}

		reply, err := a.Assistant.HandleTurn(ctx, conversationID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("inkwell> %s\n", reply.Text)
		if reply.Artifact != nil {
			fmt.Printf("         [document %q, version %d]\n", reply.Artifact.Title, reply.Version)
		}
		if reply.SuggestedTitle != "" {
			fmt.Printf("         [conversation: %s]\n", reply.SuggestedTitle)
		}
		fmt.Println()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// handleCommand processes a slash command. Returns exit=true to leave
// the loop, and the (possibly new) conversation ID.
func handleCommand(ctx context.Context, input string, a *app.App, conversationID uuid.UUID) (exit bool, id uuid.UUID) {
	id = conversationID

	switch strings.Fields(input)[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     show this help")
		fmt.Println("  /new      start a new conversation")
		fmt.Println("  /docs     list this conversation's documents")
		fmt.Println("  /history  show this conversation's turns")
		fmt.Println("  /exit     quit")
		fmt.Println()

	case "/new":
		a.Assistant.Reset(conversationID)
		id = uuid.New()
		fmt.Println("Started a new conversation.")
		fmt.Println()

	case "/docs":
		docs, err := a.Artifacts.List(ctx, conversationID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		if len(docs) == 0 {
			fmt.Println("No documents yet.")
		}
		for _, d := range docs {
			fmt.Printf("  %s  %q (%d versions)\n", d.ID, d.Title, len(d.Versions))
		}
		fmt.Println()

	case "/history":
		for _, turn := range a.Assistant.History(conversationID) {
			fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
		}
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye.")
		return true, id

	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
		fmt.Println()
	}
	return false, id
}

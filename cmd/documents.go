package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell/internal/app"
	"github.com/inkwell-ai/inkwell/internal/artifact"
	"github.com/inkwell-ai/inkwell/internal/config"
)

var docsConversationID string

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect a conversation's documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a conversation's documents",
	RunE:  runDocumentsList,
}

var documentsShowCmd = &cobra.Command{
	Use:   "show [document-id]",
	Short: "Show a document's current content and version history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

func init() {
	documentsCmd.PersistentFlags().StringVar(&docsConversationID, "conversation", "", "conversation ID (required)")
	_ = documentsCmd.MarkPersistentFlagRequired("conversation")
	documentsCmd.AddCommand(documentsListCmd, documentsShowCmd)
	rootCmd.AddCommand(documentsCmd)
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, conversationID uuid.UUID) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conversationID, err := uuid.Parse(docsConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation ID %q: %w", docsConversationID, err)
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

	return fn(ctx, a, conversationID)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, conversationID uuid.UUID) error {
		docs, err := a.Artifacts.List(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		if len(docs) == 0 {
			fmt.Println("No documents in this conversation.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %q (%d versions)\n", d.ID, d.Title, len(d.Versions))
		}
		return nil
	})
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, conversationID uuid.UUID) error {
		doc, err := a.Artifacts.Get(ctx, conversationID, args[0])
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				return fmt.Errorf("no document %s in conversation %s", args[0], conversationID)
			}
			return fmt.Errorf("loading document: %w", err)
		}

		fmt.Printf("%s (version %d of %d)\n\n", doc.Title, doc.VersionNumber(), len(doc.Versions))
		if cur := doc.Current(); cur != nil {
			fmt.Println(cur.Content)
		}
		return nil
	})
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harun/coda/pkg/conversation"
	"github.com/harun/coda/pkg/planmode"
)

const systemPrompt = `You are Coda, a coding assistant working inside the user's
project directory. Use the available tools to read, search, modify and run
code. Break larger work into tasks on the task board, and delegate focused
exploration or planning to sub-agents. Be concise; prefer acting over
explaining what you would do.`

var chatSessionKey string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Each input runs a full tool-calling
round trip; the transcript carries across turns and is persisted so a
session can be resumed with --session.

Slash commands: /plan toggles plan mode, /exit quits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionKey, "session", "", "session key to resume")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	app, err := buildApp(true)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer func() { stop() }()

	sessionKey := chatSessionKey
	var transcript []conversation.Message
	if sessionKey != "" {
		transcript, err = app.History.Load(sessionKey)
		if err != nil {
			return fmt.Errorf("failed to resume session %s: %w", sessionKey, err)
		}
		fmt.Printf("Resumed session %s (%d messages)\n", sessionKey, len(transcript))
	} else {
		sessionKey = uuid.New().String()
		fmt.Printf("Session %s\n", sessionKey)
	}

	planActive := false
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if planActive {
			fmt.Print("(plan) > ")
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "/exit", "/quit":
			return nil
		case "/plan":
			planActive = !planActive
			if planActive {
				fmt.Println("Plan mode on: changes will be proposed, not applied.")
			} else {
				fmt.Println("Plan mode off.")
			}
			continue
		}

		var tools conversation.ToolRunner = app.Dispatcher
		var recorder *planmode.Recorder
		if planActive {
			recorder = planmode.NewRecorder()
			tools = planmode.Wrap(app.Dispatcher.View(nil), recorder)
		}

		session, err := conversation.NewSession(conversation.Config{
			Transport:    app.Transport,
			Tools:        tools,
			Model:        app.Config.Provider.Model,
			SystemPrompt: systemPrompt,
			Temperature:  app.Config.Provider.Temperature,
			MaxTokens:    app.Config.Provider.MaxTokens,
			MaxRounds:    app.Config.Session.MaxRounds,
			MaxRetries:   app.Config.Session.MaxRetries,
			SessionKey:   sessionKey,
			WorkingDir:   app.WorkspaceDir(),
			Interactive:  true,
			Plan:         planActive,
			History:      app.History,
			Logger:       app.Logger.Zerolog(),
			Preload:      transcript,
		})
		if err != nil {
			return err
		}

		app.Metrics.RecordSessionStart()
		result, err := session.Run(ctx, input)
		app.Metrics.RecordSessionRounds(session.Rounds())
		transcript = session.Messages()

		switch {
		case errors.Is(err, conversation.ErrCancelled) || errors.Is(err, context.Canceled):
			fmt.Println("\nInterrupted.")
			// Re-arm the signal context for the next turn.
			stop()
			ctx, stop = signal.NotifyContext(cmd.Context(), os.Interrupt)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		default:
			fmt.Println(result.Output)
			if recorder != nil && recorder.Len() > 0 {
				fmt.Println()
				fmt.Println(recorder.Render())
			}
		}
	}

	return scanner.Err()
}

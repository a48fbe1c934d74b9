package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/coda/pkg/conversation"
	"github.com/harun/coda/pkg/planmode"
)

var (
	runPlan  bool
	runModel string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a single prompt to completion",
	Long: `Run a single prompt through the tool-calling loop and print the
result. With --plan, mutating tools record proposed changes instead of
applying them, and the proposal is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runPlan, "plan", false, "propose changes without applying them")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the configured model")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	var input string
	if len(args) > 0 {
		input = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		input = strings.TrimSpace(string(data))
	}
	if input == "" {
		return fmt.Errorf("prompt is empty")
	}

	app, err := buildApp(true)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var tools conversation.ToolRunner = app.Dispatcher
	var recorder *planmode.Recorder
	if runPlan {
		recorder = planmode.NewRecorder()
		tools = planmode.Wrap(app.Dispatcher.View(nil), recorder)
	}

	model := app.Config.Provider.Model
	if runModel != "" {
		model = runModel
	}

	session, err := conversation.NewSession(conversation.Config{
		Transport:    app.Transport,
		Tools:        tools,
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  app.Config.Provider.Temperature,
		MaxTokens:    app.Config.Provider.MaxTokens,
		MaxRounds:    app.Config.Session.MaxRounds,
		MaxRetries:   app.Config.Session.MaxRetries,
		WorkingDir:   app.WorkspaceDir(),
		Interactive:  true,
		Plan:         runPlan,
		History:      app.History,
		Logger:       app.Logger.Zerolog(),
	})
	if err != nil {
		return err
	}

	app.Metrics.RecordSessionStart()
	result, err := session.Run(ctx, input)
	app.Metrics.RecordSessionRounds(session.Rounds())
	if err != nil {
		return err
	}

	if recorder != nil {
		fmt.Println(recorder.Render())
		return nil
	}

	fmt.Println(result.Output)
	return nil
}

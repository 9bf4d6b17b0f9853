package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/inference/engine/factory"
	"github.com/go-go-golems/shopwire/pkg/inference/session"
	"github.com/go-go-golems/shopwire/pkg/prompts"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/go-go-golems/shopwire/pkg/toolbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runSettings struct {
	SettingsFile  string
	PromptsFile   string
	PromptKey     string
	HistoryFile   string
	Message       string
	ApiType       string
	Engine        string
	Tools         bool
	CatalogFile   string
	MaxIterations int
	Output        string
	Verbose       bool
	SaveHistory   string
}

func newRunCommand() *cobra.Command {
	s := &runSettings{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one conversation turn (and its tool calls) and stream the answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd.Context(), s, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&s.SettingsFile, "settings", "", "Step settings YAML file")
	flags.StringVar(&s.PromptsFile, "prompts", "", "Prompts YAML file")
	flags.StringVar(&s.PromptKey, "prompt-key", "", "System prompt key (falls back to the default key)")
	flags.StringVar(&s.HistoryFile, "history", "", "Conversation history YAML file")
	flags.StringVarP(&s.Message, "message", "m", "", "User message appended to the history")
	flags.StringVar(&s.ApiType, "api-type", "", "Override the api type (claude, openai, anyscale, fireworks, mistral)")
	flags.StringVar(&s.Engine, "engine", "", "Override the model name")
	flags.BoolVar(&s.Tools, "tools", true, "Offer the shop tools to the model")
	flags.StringVar(&s.CatalogFile, "catalog", "", "Product catalog YAML file for the shop tools")
	flags.IntVar(&s.MaxIterations, "max-iterations", session.DefaultMaxIterations, "Maximum number of turns while tools are requested")
	flags.StringVar(&s.Output, "output", "text", "Event output (text, json)")
	flags.BoolVar(&s.Verbose, "verbose", false, "Verbose event router logging and full event metadata")
	flags.StringVar(&s.SaveHistory, "save-history", "", "Write the resulting conversation as JSON to this file")

	return cmd
}

func loadStepSettings(s *runSettings) (*settings.StepSettings, error) {
	stepSettings := settings.NewStepSettings()
	if s.SettingsFile != "" {
		var err error
		stepSettings, err = settings.NewStepSettingsFromFile(s.SettingsFile)
		if err != nil {
			return nil, err
		}
	}
	if s.ApiType != "" {
		apiType := types.ApiType(s.ApiType)
		stepSettings.Chat.ApiType = &apiType
	}
	if s.Engine != "" {
		engineName := s.Engine
		stepSettings.Chat.Engine = &engineName
	}
	return stepSettings, nil
}

func loadHistory(s *runSettings) (conversation.Conversation, error) {
	history := conversation.Conversation{}
	if s.HistoryFile != "" {
		var err error
		history, err = conversation.LoadHistoryFile(s.HistoryFile)
		if err != nil {
			return nil, err
		}
	}
	if s.Message != "" {
		history = append(history, conversation.NewTextMessage(conversation.RoleUser, s.Message))
	}
	if len(history) == 0 {
		return nil, errors.New("empty conversation, pass --history or --message")
	}
	return history, nil
}

func runTurn(ctx context.Context, s *runSettings, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stepSettings, err := loadStepSettings(s)
	if err != nil {
		return err
	}
	history, err := loadHistory(s)
	if err != nil {
		return err
	}

	var store prompts.Store
	if s.PromptsFile != "" {
		store, err = prompts.LoadYAMLFile(s.PromptsFile)
		if err != nil {
			return err
		}
	}

	routerOptions := []events.EventRouterOption{events.WithDumpWriter(w)}
	if s.Verbose {
		routerOptions = append(routerOptions, events.WithVerbose(true))
	}
	router, err := events.NewEventRouter(routerOptions...)
	if err != nil {
		return errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	switch s.Output {
	case "text":
		router.AddHandler("chat", "chat", events.StepPrinterFunc("", w))
	case "json":
		router.AddHandler("chat", "chat", router.DumpRawEvents)
	default:
		return errors.Errorf("unknown output %s", s.Output)
	}

	e, err := factory.NewEngineFromStepSettings(stepSettings, engine.WithSink(events.NewWatermillSink(router.Publisher, "chat")))
	if err != nil {
		return err
	}

	tb := toolbox.NewToolbox()
	options := []session.Option{session.WithPrompts(store, "")}
	if s.Tools {
		catalog := toolbox.DefaultCatalog()
		if s.CatalogFile != "" {
			catalog, err = toolbox.LoadCatalogFile(s.CatalogFile)
			if err != nil {
				return err
			}
		}
		if err := toolbox.RegisterShopTools(tb, catalog); err != nil {
			return err
		}
		options = append(options, session.WithTools(tb.Declarations()...))
	}
	sess := session.NewSession(e, options...)

	var final conversation.Conversation
	var result *engine.Result

	eg, ctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg.Go(func() error {
		defer cancel()
		return router.Run(runCtx)
	})

	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		var err error
		final, result, err = sess.RunToolLoop(runCtx, session.TurnRequest{
			History:         history,
			SystemPromptKey: s.PromptKey,
		}, tb, engine.Handlers{}, s.MaxIterations)
		return err
	})

	if err := eg.Wait(); err != nil {
		if pe, ok := engine.AsProviderError(err); ok && pe.IsAuthentication() {
			return errors.Wrap(err, "check the provider API key")
		}
		return err
	}

	if result != nil {
		log.Info().
			Str("finish_reason", result.FinishReason.String()).
			Int("messages", len(final)).
			Msg("conversation finished")
	}
	log.Debug().Str("transcript", final.Transcript()).Msg("final conversation")

	if s.SaveHistory != "" {
		b, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return errors.Wrap(err, "could not encode history")
		}
		if err := os.WriteFile(s.SaveHistory, b, 0o644); err != nil {
			return errors.Wrapf(err, "could not write %s", s.SaveHistory)
		}
		_, _ = fmt.Fprintf(os.Stderr, "history written to %s\n", s.SaveHistory)
	}

	return nil
}

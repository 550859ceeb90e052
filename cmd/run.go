package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zegnet/qandalf-agentic/internal/agent"
	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/live"
	"github.com/Zegnet/qandalf-agentic/internal/browser/network"
	"github.com/Zegnet/qandalf-agentic/internal/browser/static"
	"github.com/Zegnet/qandalf-agentic/internal/observability"
)

var (
	runWaitLoad bool
	runA11y     bool
	runA11yType string
	runEngine   string
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Index a page and print its interactive elements.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runIndex(ctx, args[0])
	},
}

func init() {
	runCmd.Flags().BoolVar(&runWaitLoad, "wait-load", true, "wait for the interactive-element count to stabilize")
	runCmd.Flags().BoolVar(&runA11y, "a11y", false, "also print the accessibility inspection")
	runCmd.Flags().StringVar(&runA11yType, "a11y-type", "", "restrict the accessibility inspection to one tag")
	runCmd.Flags().StringVar(&runEngine, "engine", "", "page engine override (static or live)")
	rootCmd.AddCommand(runCmd)
}

func runIndex(ctx context.Context, url string) error {
	log := observability.GetLogger()

	page, err := newPage(ctx, log)
	if err != nil {
		return err
	}

	sess := agent.NewSession(page, agent.Config{
		WaitInterval:      cfg.Agent.WaitInterval,
		WaitTimeout:       cfg.Agent.WaitTimeout,
		StablePolls:       cfg.Agent.StablePolls,
		HighlightDuration: cfg.Agent.HighlightDuration,
		MaxElements:       cfg.Agent.MaxElements,
	}, log)
	defer func() {
		if cerr := sess.Close(context.Background()); cerr != nil {
			log.Warn("Session close failed.", zap.Error(cerr))
		}
	}()

	out, err := sess.NavigateTo(ctx, url)
	if err != nil {
		return err
	}
	log.Debug("Navigation result.", zap.String("result", out))

	if runWaitLoad {
		status, err := sess.WaitForPageLoad(ctx)
		if err != nil {
			return err
		}
		log.Debug("Page load wait.", zap.String("result", status))
	}

	content, err := sess.GetPageContent(ctx)
	if err != nil {
		return err
	}
	fmt.Println(content)

	if runA11y {
		report, err := sess.InspectAccessibility(ctx, runA11yType)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(report)
	}
	return nil
}

// newPage builds the configured engine behind the shared Page interface.
func newPage(ctx context.Context, log *zap.Logger) (browser.Page, error) {
	engine := cfg.Browser.Engine
	if runEngine != "" {
		engine = runEngine
	}

	switch engine {
	case "live":
		return live.Launch(ctx, live.Config{
			Headless:          cfg.Browser.Headless,
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.Network.NavigationTimeout,
			PostLoadWait:      cfg.Network.PostLoadWait,
			MaxShadowDepth:    cfg.Browser.MaxShadowDepth,
		}, log)
	case "static":
		return static.New(static.Config{
			Network: network.Config{
				UserAgent:         cfg.Browser.UserAgent,
				RequestTimeout:    cfg.Network.RequestTimeout,
				IgnoreTLSErrors:   cfg.Browser.IgnoreTLSErrors,
				RequestsPerSecond: cfg.Network.RequestsPerSecond,
			},
			NavigationTimeout: cfg.Network.NavigationTimeout,
			PostLoadWait:      cfg.Network.PostLoadWait,
			MaxRedirects:      cfg.Browser.MaxRedirects,
			MaxShadowDepth:    cfg.Browser.MaxShadowDepth,
		}, log)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}

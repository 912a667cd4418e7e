// Package main asks a single question from the command line and prints the
// answer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/entrhq/askweb/pkg/browser"
	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
	"golang.org/x/term"
)

const version = "0.1.0"

var (
	accent   = lipgloss.Color("#FFB3BA")
	errColor = lipgloss.Color("203")
	mutedFg  = lipgloss.Color("245")
)

func main() {
	var (
		query       string
		configFile  string
		headless    bool
		copyAnswer  bool
		plain       bool
		showVersion bool
	)

	flag.StringVar(&query, "q", "", "Question to ask (remaining arguments are used when empty)")
	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&headless, "headless", true, "Run Chromium without a window")
	flag.BoolVar(&copyAnswer, "copy", false, "Copy the answer to the clipboard")
	flag.BoolVar(&plain, "plain", false, "Print the bare answer without styling")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: askweb [options] -q \"question\"\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("askweb v%s\n", version)
		return
	}

	if query == "" {
		query = strings.Join(flag.Args(), " ")
	}
	if strings.TrimSpace(query) == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	answer, err := ask(ctx, configFile, headless, query)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, renderError(err, plain))
		os.Exit(1)
	}

	fmt.Println(renderAnswer(query, answer, plain))

	if copyAnswer {
		if err := clipboard.WriteAll(answer); err != nil {
			fmt.Fprintf(os.Stderr, "could not copy answer: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(mutedFg).Render("copied to clipboard"))
	}
}

func ask(ctx context.Context, configFile string, headless bool, query string) (string, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return "", err
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cfg.Browser.Headless = headless
		}
	})
	if cfg.Logging.Verbosity != "" {
		logging.SetVerbosity(cfg.Logging.Verbosity)
	}

	log := logging.MustLogger("askweb")
	defer log.Close()

	pipeline, err := browser.NewPipeline(cfg, nil, log)
	if err != nil {
		return "", err
	}
	defer func() {
		if shutdownErr := pipeline.Manager.Shutdown(); shutdownErr != nil {
			log.Warnf("shutdown: %v", shutdownErr)
		}
	}()

	return pipeline.Searcher.Search(ctx, query)
}

func renderAnswer(query, answer string, plain bool) string {
	if plain {
		return answer
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(query)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(boxWidth())

	return lipgloss.JoinVertical(lipgloss.Left, title, box.Render(answer))
}

func renderError(err error, plain bool) string {
	msg := fmt.Sprintf("search failed (%s): %v", browser.ErrorKind(err), err)
	if plain {
		return msg
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errColor).
		Foreground(errColor).
		Padding(0, 1).
		Render(msg)
}

func boxWidth() int {
	const fallback = 80
	cols, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols < 40 {
		return fallback
	}
	return cols - 2
}

package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/multierr"

	"github.com/shuzhai/shuzhai-t/internal/config"
	"github.com/shuzhai/shuzhai-t/internal/logging"
	"github.com/shuzhai/shuzhai-t/internal/ui"
)

func main() {
	serverURL := flag.String("url", "", "Server URL (e.g., http://myserver:8080/api)")
	flag.StringVar(serverURL, "s", "", "Server URL (shorthand)")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.BoolVar(showHelp, "h", false, "Show help (shorthand)")
	debug := flag.Bool("debug", false, "Verbose logging")

	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
		if err := cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save server URL to config: %v\n", err)
		}
	}

	// Logs go to a file; stdout belongs to the TUI.
	logger, err := logging.New(cfg.Dir(), *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}

	app := ui.NewApp(cfg, logger.Logger)
	p := tea.NewProgram(app, tea.WithAltScreen())
	app.SetSend(p.Send)

	_, runErr := p.Run()
	app.Shutdown()
	if err := multierr.Append(runErr, logger.Close()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("shuzhai-t - Terminal UI client for the Shuzhai novel server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  shuzhai-t                   Start the TUI application")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -s, --url <url>        Set server URL (saved to config)")
	fmt.Println("  -debug                 Verbose logging")
	fmt.Println("  -h, --help             Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  shuzhai-t --url http://myserver:8080/api")
	fmt.Println()
	fmt.Println("Config: ~/.config/shuzhai-t/config.yaml")
}

package main

import (
	"fmt"
	"net/url"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/whosthere/whosthere/internal/client"
	"github.com/whosthere/whosthere/internal/tui"
)

func main() {
	app := cli.NewApp()
	app.Name = "whosthere"
	app.Usage = "terminal view of who is logged into this machine"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Value: "ws://127.0.0.1:8127/ws",
			Usage: "WebSocket URL of the whostherd daemon",
		},
		&cli.StringFlag{
			Name:  "token",
			Value: "",
			Usage: "auth token, if the daemon requires one",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	wsURL := c.String("url")
	token := c.String("token")

	ws := client.NewWSClient(wsURL, token)
	httpClient := client.NewHTTPClient(deriveHTTPBase(wsURL), token)

	m := tui.New(ws, httpClient)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err := p.Run()
	return err
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8127"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

// Command parley is the terminal chat client.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwhitney/parley/cmd/parley/ui"
	"github.com/mwhitney/parley/pkg/client"
)

var version = "dev" // set via ldflags

func main() {
	serverAddr := flag.String("server", "127.0.0.1:7777", "Server address (host:port)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parley %s\n", version)
		return
	}

	c, err := client.Dial(*serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *serverAddr, err)
	}
	defer c.Close()

	p := tea.NewProgram(ui.NewModel(c, *serverAddr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/sandeepkv93/trackd/internal/client"
	"github.com/sandeepkv93/trackd/internal/tui"
)

func main() {
	_ = godotenv.Load()

	addr := "http://localhost:8080"
	if v := strings.TrimSpace(os.Getenv("TRACKD_SERVER")); v != "" {
		addr = v
	}
	user := strings.TrimSpace(os.Getenv("TRACKD_USER"))
	if user == "" {
		user = os.Getenv("USER")
	}

	flag.StringVar(&addr, "server", addr, "trackd server base url")
	flag.StringVar(&user, "user", user, "principal to act as")
	flag.Parse()

	if user == "" {
		fmt.Fprintln(os.Stderr, "trackd-tui: a user is required (-user or TRACKD_USER)")
		os.Exit(1)
	}

	program := tea.NewProgram(tui.NewModel(client.New(addr, user)), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "trackd-tui failed: %v\n", err)
		os.Exit(1)
	}
}

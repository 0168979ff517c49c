package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/liftlog/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "liftlog server URL (e.g. https://liftlog.tail1234.ts.net)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("liftlog-mcp", Version)
		return
	}

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: liftlog-mcp -server <URL>\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s := mcp.New(mcp.NewHTTPClient(*serverURL), Version, log)
	log.Info("liftlog-mcp serving stdio", "server", *serverURL)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}

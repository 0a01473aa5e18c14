package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/docscan-mcp/internal/config"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/logging"
	"github.com/ironsheep/docscan-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("docscan-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Backend:    %s\n", imaging.Backend)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	envFile := flag.String("env", "", "path to a .env file (default ./.env when present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docscan-mcp: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for the MCP protocol
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "docscan-mcp: %v\n", err)
		os.Exit(1)
	}
	logger.Debugf("docscan-mcp %s (built %s, commit %s)", Version, BuildTime, GitCommit)

	server.Version = Version
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func printHelp() {
	fmt.Println("docscan-mcp - MCP server for document detection and rectification")
	fmt.Println()
	fmt.Println("Usage: docscan-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println("  -env FILE        Load environment from FILE")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  DOCSCAN_LOG_LEVEL=debug        Log level (trace, debug, info, warn, error)")
	fmt.Println("  DOCSCAN_LOG_FILE=path          Also log to a rotated file")
	fmt.Println("  DOCSCAN_DETECT_SCALE=0.25      Downscale factor before detection")
	fmt.Println("  DOCSCAN_FRAME_RATE=8           Live frames analysed per second")
	fmt.Println("  DOCSCAN_HOLD=250ms             Keep the last quad this long after a miss")
	fmt.Println("  DOCSCAN_ALPHA=0.35             Corner smoothing factor")
	fmt.Println("  DOCSCAN_PREVIEW_ROTATION=ccw   Turn for landscape frames in portrait previews")
	fmt.Println("  DOCSCAN_DISPLAY_ROTATION=ccw   Turn for photos displayed sideways")
	fmt.Println("  DOCSCAN_OVERLAY=outline        Overlay style (outline, corners, none)")
	fmt.Println("  DOCSCAN_OUTPUT_FORMAT=jpeg     Default rectified image format")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

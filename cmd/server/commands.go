// file: cmd/server/commands.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkoosis/goarpc/internal/config"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/rpcserver"
	"github.com/dkoosis/goarpc/internal/transport"
	"github.com/dkoosis/goarpc/internal/workerpool"
)

// Command represents a CLI command with its name, description, and
// implementation.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
}

// RegisterCommands returns the CLI's available commands.
func RegisterCommands() map[string]Command {
	return map[string]Command{
		"serve": {
			Name:        "serve",
			Description: "Start the example Arith JSON-RPC server",
			Run:         serveCommand,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Run:         versionCommand,
		},
		"help": {
			Name:        "help",
			Description: "Show help for commands",
			Run:         helpCommand,
		},
	}
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	debugMode := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("fs.Parse: failed to parse arguments: %w", err)
	}

	configFile := findConfigFile(*configPath)
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Printf("no usable config at %s (%v), running with defaults", configFile, err)
		cfg = config.New()
	}

	if *debugMode {
		logging.SetLevel(logging.LevelDebug)
	}

	logger := logging.GetLogger("server")

	registry, err := buildArithRegistry(logger)
	if err != nil {
		return fmt.Errorf("buildArithRegistry: %w", err)
	}

	pool := workerpool.New(cfg.Server.WorkerPoolSize)
	defer pool.Close()

	dispatcher := rpcserver.New(registry, pool, logger)
	srv := transport.NewServer(dispatcher, logger,
		transport.WithMaxMessageBytes(cfg.Server.MaxMessageBytes),
		transport.WithHighWaterMark(cfg.Server.HighWaterMark),
	)

	ln, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		return fmt.Errorf("net.Listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting Arith server '%s' on %s", cfg.Server.Name, cfg.GetServerAddress())
		errCh <- srv.Serve(ctx, ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("srv.Serve: %w", err)
		}
	case sig := <-sigCh:
		log.Printf("Received signal %s, shutting down...", sig)
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			log.Println("timed out waiting for listener to stop")
		}
	}

	log.Println("Server shutdown complete")
	return nil
}

func versionCommand(_ []string) error {
	printVersion()
	return nil
}

func helpCommand(args []string) error {
	fs := flag.NewFlagSet("help", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("fs.Parse: failed to parse arguments: %w", err)
	}

	cmds := RegisterCommands()
	cmdName := ""
	if fs.NArg() > 0 {
		cmdName = fs.Arg(0)
	}

	if cmdName != "" {
		cmd, ok := cmds[cmdName]
		if !ok {
			return fmt.Errorf("unknown command: %s", cmdName)
		}
		fmt.Printf("Command: %s\n", cmd.Name)
		fmt.Printf("Description: %s\n", cmd.Description)
		if cmdName == "serve" {
			fmt.Println("\nUsage:")
			fmt.Println("  goarpc-server serve [options]")
			fmt.Println("\nOptions:")
			fmt.Println("  -config string   Path to configuration file")
			fmt.Println("  -debug           Enable debug logging")
		}
		return nil
	}

	fmt.Println("goarpc-server - example JSON-RPC arithmetic server")
	fmt.Println("\nUsage:")
	fmt.Println("  goarpc-server [command] [options]")
	fmt.Println("\nAvailable Commands:")
	for _, cmd := range cmds {
		fmt.Printf("  %-10s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nUse 'goarpc-server help [command]' for more information about a command.")
	return nil
}

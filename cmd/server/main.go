// Package main implements the example arithmetic rpc server binary.
// file: cmd/server/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Version information (populated at build time).
var (
	version    = "dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[goarpc] ")

	printStartupInfo()

	commands := RegisterCommands()

	if len(os.Args) < 2 {
		if err := commands["help"].Run(nil); err != nil {
			log.Fatalf("main: error running help command: %v", err)
		}
		return
	}

	cmdName := os.Args[1]

	if cmdName == "-v" || cmdName == "--version" {
		printVersion()
		return
	}

	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", cmdName)
		if err := commands["help"].Run(nil); err != nil {
			log.Fatalf("main: error running help command: %v", err)
		}
		os.Exit(1)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		log.Fatalf("main: error running command: %v", err)
	}
}

func printStartupInfo() {
	execPath, err := os.Executable()
	if err == nil {
		log.Printf("Starting goarpc server from: %s", execPath)
	}
	log.Printf("goarpc server version %s (build: %s)", version, buildDate)
	log.Printf("Running on %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printVersion() {
	fmt.Printf("goarpc - example JSON-RPC arithmetic server\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", commitHash)
	fmt.Printf("Built:      %s\n", buildDate)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// findConfigFile searches standard locations for a config file when the
// caller hasn't specified one explicitly.
func findConfigFile(specifiedPath string) string {
	if specifiedPath != "" {
		if _, err := os.Stat(specifiedPath); err == nil {
			return specifiedPath
		}
		if !strings.Contains(specifiedPath, "/") && !strings.Contains(specifiedPath, "\\") {
			configsPath := filepath.Join("configs", specifiedPath)
			if _, err := os.Stat(configsPath); err == nil {
				return configsPath
			}
		}
	}

	standardPaths := []string{
		"config.yaml",
		"configs/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "goarpc", "config.yaml"),
		"/etc/goarpc/config.yaml",
	}

	for _, path := range standardPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	if specifiedPath != "" {
		return specifiedPath
	}
	return "configs/config.yaml"
}

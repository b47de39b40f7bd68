// Package main implements a minimal example client for the Arith service:
// dial a server, issue one Return call, print the result.
// file: cmd/client/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dkoosis/goarpc/internal/config"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/rpcclient"
	"github.com/dkoosis/goarpc/internal/transport"
)

func main() {
	addr := flag.String("addr", "", "server address (host:port); defaults to client config")
	method := flag.String("method", "Arith.Add", "method to call")
	timeout := flag.Duration("timeout", 5*time.Second, "call timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: goarpc-client [-addr host:port] [-method Arith.Add] <lhs> <rhs>")
		os.Exit(2)
	}
	lhs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		log.Fatalf("invalid lhs %q: %v", args[0], err)
	}
	rhs, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		log.Fatalf("invalid rhs %q: %v", args[1], err)
	}

	cfg := config.New()
	target := cfg.Client.Address
	if *addr != "" {
		target = *addr
	}

	logger := logging.GetLogger("client")

	t, err := transport.Dial(target, logger)
	if err != nil {
		log.Fatalf("transport.Dial %s: %v", target, err)
	}
	defer t.Close()

	rc := rpcclient.New(t, logger)
	go func() {
		if err := t.ReadLoop(rc.HandleMessage); err != nil {
			logger.Warn("read loop ended", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	if err := rc.SendCall(ctx, *method, []float64{lhs, rhs}, func(v json.RawMessage, isError, isTimeout bool) {
		defer close(done)
		if isTimeout {
			callErr = fmt.Errorf("call timed out")
			return
		}
		if isError {
			callErr = fmt.Errorf("server error: %s", string(v))
			return
		}
		result = v
	}); err != nil {
		log.Fatalf("SendCall: %v", err)
	}

	<-done
	if callErr != nil {
		log.Fatalf("%s(%v, %v): %v", *method, lhs, rhs, callErr)
	}
	fmt.Printf("%s(%v, %v) = %s\n", *method, lhs, rhs, string(result))
}

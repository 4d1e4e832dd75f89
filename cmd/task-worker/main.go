// Command task-worker runs a single measurement against a mirror URL and
// writes the resulting Record as JSON (C7). It is invoked once per Test by
// the worker manager inside a disposable container sharing the tunnel's
// network namespace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiwix/mirrors-qa/internal/measure"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: task-worker run <url> --output=<file> [flags]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	output := fs.String("output", "", "path to write the JSON result record to")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall request timeout")
	chunkSize := fs.Int("chunk-size", 64*1024, "read chunk size in bytes")
	retries := fs.Int("retries", 2, "number of retry attempts after the first")
	backoff := fs.Duration("backoff", time.Second, "linear backoff unit between retries")
	// The URL may come before the flags (run <url> --output=...); the flag
	// package stops at the first non-flag argument, so take it off first.
	args := os.Args[2:]
	var url string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		url, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if url == "" && fs.NArg() > 0 {
		url = fs.Arg(0)
	}

	if url == "" {
		fmt.Fprintln(os.Stderr, "missing required <url> argument")
		os.Exit(2)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "--output is required")
		os.Exit(2)
	}

	opts := measure.DefaultOptions(url)
	opts.Timeout = *timeout
	opts.ChunkSize = *chunkSize
	opts.Retries = *retries
	opts.Backoff = *backoff

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+10*time.Second)
	defer cancel()

	record := measure.Run(ctx, opts)
	if err := measure.WriteFile(*output, record); err != nil {
		fmt.Fprintf(os.Stderr, "write result record: %v\n", err)
		os.Exit(1)
	}
	if record.Status != measure.Succeeded {
		os.Exit(1)
	}
}

// ABOUTME: Help display for the memoforge CLI with commands, flags, and examples.
package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes the usage message.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "memoforge %s — LLM investment memo engine\n\n", ver)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  memoforge run [-type <memo type>] [-config <file>] [-verbose] <file>...")
	fmt.Fprintln(w, "  memoforge serve [-config <file>] [-bind <addr>]")
	fmt.Fprintln(w, "  memoforge types")
	fmt.Fprintln(w, "  memoforge version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  memoforge run -type short-searchfund cim.txt financials.txt")
	fmt.Fprintln(w, "  memoforge serve -bind 127.0.0.1:7790")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Environment: OPENAI_API_KEY %s\n", keyStatus("OPENAI_API_KEY", "MEMOFORGE_OPENAI_API_KEY"))
}

// keyStatus reports whether any of the given env vars is set.
func keyStatus(keys ...string) string {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return "(set)"
		}
	}
	return "(not set)"
}

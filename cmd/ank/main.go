// Command ank is the CLI client for the Ankaios Server, grounded on the
// a cobra root plus one file per verb but
// speaking the Request/Response envelope pkg/cliclient wraps instead of a
// generated gRPC service client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitUsage      = 1
	exitServer     = 2
	exitValidation = 3
)

var (
	Version = "dev"

	serverAddr string
	insecure   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "ank",
	Short:   "Command-line client for the Ankaios Server",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("ANK_SERVER", "localhost:8080"), "Server address")
	rootCmd.PersistentFlags().BoolVarP(&insecure, "insecure", "k", envBool("ANK_INSECURE"), "disable mTLS (ANK_INSECURE=true)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(deleteCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

// exitCode lets a command signal a specific process exit code while still
// using cobra's normal RunE error-returning flow.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string { return e.err.Error() }

func usageError(err error) error      { return &exitCode{exitUsage, err} }
func serverError(err error) error     { return &exitCode{exitServer, err} }
func validationError(err error) error { return &exitCode{exitValidation, err} }

func exitCodeFor(err error) int {
	if ec, ok := err.(*exitCode); ok {
		return ec.code
	}
	return exitUsage
}

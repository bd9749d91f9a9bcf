package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ankaios-project/ankaios-core/pkg/agent"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlloop"
	"github.com/ankaios-project/ankaios-core/pkg/log"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
	"github.com/ankaios-project/ankaios-core/pkg/security"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ank-agent",
	Short:   "Ankaios Agent: owns the workloads assigned to one node",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ank-agent version %s (%s)\n", Version, Commit))
	rootCmd.Flags().String("name", "", "this agent's name, must match its client certificate's CommonName (required)")
	rootCmd.Flags().String("server", "localhost:8080", "Server address")
	rootCmd.Flags().String("runtime", "containerd", "runtime tag this agent's workloads use")
	rootCmd.Flags().String("cert-dir", "", "directory holding this agent's certificate, key and CA cert (defaults to ~/.ankaios/certs/agent-<name>)")
	rootCmd.Flags().String("control-interface-dir", "", "base directory for Control Interface named pipes (empty disables it)")
	rootCmd.Flags().Int("retry-limit", controlloop.DefaultConfig().RetryLimit, "control loop create-retry limit before a workload is reported FAILED")
	rootCmd.Flags().Duration("retry-delay", controlloop.DefaultConfig().RetryDelay, "control loop create-retry delay")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
	_ = rootCmd.MarkFlagRequired("name")
}

func runAgent(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	name, _ := cmd.Flags().GetString("name")
	serverAddr, _ := cmd.Flags().GetString("server")
	runtimeTag, _ := cmd.Flags().GetString("runtime")
	certDir, _ := cmd.Flags().GetString("cert-dir")
	controlDir, _ := cmd.Flags().GetString("control-interface-dir")
	retryLimit, _ := cmd.Flags().GetInt("retry-limit")
	retryDelay, _ := cmd.Flags().GetDuration("retry-delay")

	if certDir == "" {
		dir, err := security.GetCertDir("agent", name)
		if err != nil {
			return err
		}
		certDir = dir
	}
	if !security.CertExists(certDir) {
		return fmt.Errorf("no certificate found at %s; provision this agent's mTLS identity before starting", certDir)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return fmt.Errorf("load agent certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return fmt.Errorf("load CA certificate: %w", err)
	}

	adaptor, err := runtime.Get(runtimeTag)
	if err != nil {
		return fmt.Errorf("resolve runtime %q: %w", runtimeTag, err)
	}

	a := agent.NewAgent(agent.Config{
		AgentName:  name,
		ServerAddr: serverAddr,
		Adaptor:    adaptor,
		ClientCert: *cert,
		CACert:     caCert,
		ControlLoop: controlloop.Config{
			RetryLimit: retryLimit,
			RetryDelay: retryDelay,
		},
		Logger:                   log.WithAgentName(name),
		ControlInterfaceBasePath: controlDir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.WithAgentName(name).Info().Msg("shutting down")
		cancel()
	}()

	return a.Run(ctx)
}

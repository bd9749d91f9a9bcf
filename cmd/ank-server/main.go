package main

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ankaios-project/ankaios-core/pkg/log"
	"github.com/ankaios-project/ankaios-core/pkg/metrics"
	_ "github.com/ankaios-project/ankaios-core/pkg/runtime" // registers the containerd adaptor via init()
	"github.com/ankaios-project/ankaios-core/pkg/security"
	"github.com/ankaios-project/ankaios-core/pkg/server"
	"github.com/ankaios-project/ankaios-core/pkg/transport"
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
	Use:     "ank-server",
	Short:   "Ankaios Server: the cluster's single source of desired state",
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ank-server version %s (%s)\n", Version, Commit))
	rootCmd.Flags().String("listen", ":8080", "address the Connect RPC listens on")
	rootCmd.Flags().String("metrics-listen", ":9090", "address the Prometheus /metrics and /health endpoints listen on")
	rootCmd.Flags().String("startup-manifest", "", "path to a YAML file of workloads to load on startup")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
	rootCmd.Flags().StringSlice("runtime", []string{"containerd"}, "runtime tags this cluster accepts in desired state")
}

func runServer(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	listenAddr, _ := cmd.Flags().GetString("listen")
	metricsAddr, _ := cmd.Flags().GetString("metrics-listen")
	manifestPath, _ := cmd.Flags().GetString("startup-manifest")
	if manifestPath == "" {
		manifestPath = os.Getenv("ANK_STARTUP_CONFIG")
	}
	runtimes, _ := cmd.Flags().GetStringSlice("runtime")

	metrics.SetVersion(Version)

	srv := server.New(runtimes)
	if manifestPath != "" {
		if err := srv.LoadManifest(manifestPath); err != nil {
			return fmt.Errorf("load startup manifest: %w", err)
		}
	}

	ca := security.NewCertAuthority()
	if err := ca.Initialize(); err != nil {
		return fmt.Errorf("initialize certificate authority: %w", err)
	}
	serverCert, err := ca.IssueServerCertificate([]string{"localhost"}, nil)
	if err != nil {
		return fmt.Errorf("issue server certificate: %w", err)
	}
	caCert, err := parseCACert(ca.GetRootCACert())
	if err != nil {
		return err
	}

	reconciler := server.NewReconciler(srv)
	reconciler.Start()
	defer reconciler.Stop()

	listener := transport.NewListener(srv, *serverCert, caCert)

	go serveMetrics(metricsAddr)

	log.WithComponent("server").Info().Str("addr", listenAddr).Msg("listening")

	errCh := make(chan error, 1)
	go func() { errCh <- listener.Serve(listenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.WithComponent("server").Info().Msg("shutting down")
		listener.Stop()
		return nil
	}
}

func parseCACert(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse root CA certificate: %w", err)
	}
	return cert, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithComponent("server").Warn().Err(err).Msg("metrics listener stopped")
	}
}

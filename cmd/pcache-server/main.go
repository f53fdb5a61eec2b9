package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pcache "github.com/siisee11/pmdfc-go"
	"github.com/siisee11/pmdfc-go/internal/config"
	"github.com/siisee11/pmdfc-go/internal/logging"
)

func main() {
	var (
		tcpPort    uint16
		ibPort     uint8
		mountPath  string
		rdmaMode   bool
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:   "pcache-server",
		Short: "Remote page cache server: bootstrap, RDMA transport, and dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(tcpPort, ibPort, mountPath, rdmaMode, verbose, configPath, cmd.Flags().Changed)
		},
	}

	root.Flags().Uint16VarP(&tcpPort, "tcp_port", "t", 0, "TCP bootstrap port")
	root.Flags().Uint8VarP(&ibPort, "ib_port", "i", 1, "InfiniBand HCA port")
	root.Flags().StringVarP(&mountPath, "path", "p", "", "PMem mount path (TCP-fallback data path)")
	root.Flags().BoolVarP(&rdmaMode, "rdma", "r", false, "enable RDMA mode")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.Flags().StringVar(&configPath, "config", "", "optional YAML config file; flags override its values")
	if err := root.MarkFlagRequired("tcp_port"); err != nil {
		panic(err)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(tcpPort uint16, ibPort uint8, mountPath string, rdmaMode, verbose bool, configPath string, flagSet func(name string) bool) error {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("pcache-server: init zap logger: %w", err)
	}
	defer zapLogger.Sync()
	startup := zapLogger.Sugar()

	cfg := config.DefaultConfig()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			startup.Errorw("failed to load config file", "path", configPath, "error", err)
			return err
		}
	}
	if tcpPort != 0 {
		cfg.TCPPort = tcpPort
	}
	if flagSet("ib_port") {
		cfg.IBPort = ibPort
	}
	if mountPath != "" {
		cfg.MountPath = mountPath
	}
	if flagSet("rdma") {
		cfg.RDMA = rdmaMode
	}

	logLevel := logging.LevelInfo
	if verbose {
		logLevel = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: logLevel, Format: "text", Output: os.Stderr})
	logging.SetDefault(logger)

	startup.Infow("starting pcache-server",
		"tcp_port", cfg.TCPPort, "ib_port", cfg.IBPort, "mount_path", cfg.MountPath, "rdma", cfg.RDMA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := pcache.CreateAndServe(ctx, cfg, &pcache.Options{Logger: logger})
	if err != nil {
		startup.Errorw("failed to start server", "error", err)
		return err
	}
	defer server.Close()

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])

			filename := fmt.Sprintf("pcache-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Process ID: %d\n\n", os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
		cancel()
	case <-server.Done():
		// A goroutine hit a provider-fatal error and cancelled the
		// rest of the server on its own (spec.md §7); no signal to
		// wait for.
	}

	done := make(chan error, 1)
	go func() { done <- server.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("server exited with error", "error", err)
			return err
		}
	case <-time.After(2 * time.Second):
		logger.Warn("shutdown timed out, exiting anyway")
	}
	return nil
}

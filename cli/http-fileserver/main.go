package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagernet/sing-fileserver/extensions/fileserver"
	"github.com/sagernet/sing-fileserver/extensions/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Flags struct {
	Root              string
	ConfigFile        string
	LogLevel          string
	Gzip              bool
	MaxConnections    int
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsListen     string
}

func main() {
	err := newCommand(new(Flags)).Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func newCommand(f *Flags) *cobra.Command {
	command := &cobra.Command{
		Use:   "http-fileserver",
		Short: "serve the files next to this program on port 8000",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, f)
		},
	}
	command.Flags().StringVarP(&f.Root, "root", "d", "", "Serve this directory instead of the one containing the executable.")
	command.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Use a configuration file.")
	command.Flags().StringVar(&f.LogLevel, "log-level", "", "Set the log level. [possible values: trace, debug, info, warn, error]")
	command.Flags().BoolVar(&f.Gzip, "gzip", false, "Compress responses for clients that accept gzip.")
	command.Flags().IntVar(&f.MaxConnections, "max-connections", 0, "Limit concurrently served connections, 0 for no limit.")
	command.Flags().DurationVar(&f.ReadHeaderTimeout, "read-header-timeout", 0, "Drop clients that do not send request headers in time, 0 to wait forever.")
	command.Flags().DurationVar(&f.IdleTimeout, "idle-timeout", 0, "Close idle keep-alive connections after this long, 0 to keep them.")
	command.Flags().DurationVar(&f.ShutdownTimeout, "shutdown-timeout", 0, "Let in-flight requests finish for this long on exit, 0 to exit at once.")
	command.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "Serve prometheus metrics at /metrics on this address.")
	return command
}

func newOptions(cmd *cobra.Command, f *Flags) (*fileserver.Options, error) {
	options := fileserver.DefaultOptions()
	if f.ConfigFile != "" {
		fileOptions, err := fileserver.ReadOptions(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		options = *fileOptions
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		options.Root = f.Root
	}
	if flags.Changed("log-level") {
		options.LogLevel = f.LogLevel
	}
	if flags.Changed("gzip") {
		options.Gzip = f.Gzip
	}
	if flags.Changed("max-connections") {
		options.MaxConnections = f.MaxConnections
	}
	if flags.Changed("read-header-timeout") {
		options.ReadHeaderTimeout = f.ReadHeaderTimeout
	}
	if flags.Changed("idle-timeout") {
		options.IdleTimeout = f.IdleTimeout
	}
	if flags.Changed("shutdown-timeout") {
		options.ShutdownTimeout = f.ShutdownTimeout
	}
	if flags.Changed("metrics-listen") {
		options.MetricsListen = f.MetricsListen
	}

	err := options.Validate()
	if err != nil {
		return nil, err
	}
	return &options, nil
}

func run(cmd *cobra.Command, f *Flags) {
	options, err := newOptions(cmd, f)
	if err == nil {
		err = log.SetLevel(options.LogLevel)
	}
	if err != nil {
		logrus.StandardLogger().Log(logrus.FatalLevel, err, "\n\n")
		cmd.Help()
		os.Exit(1)
	}

	server, err := fileserver.New(options.Config, log.NewLogger("http"))
	if err != nil {
		logrus.Fatal(err)
	}
	err = server.Start()
	if err != nil {
		logrus.Fatal(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Serving at", server.URL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = server.Wait(ctx)
	if err != nil {
		logrus.Fatal(err)
	}
}

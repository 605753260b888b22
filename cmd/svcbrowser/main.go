package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/horockey/svcbrowser"
	"github.com/horockey/svcbrowser/internal/gateway/remote_regtypes/http_remote_regtypes"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().
		Timestamp().
		Str("scope", "svcbrowser").
		Logger()

	cmd := &cobra.Command{
		Use:   "svcbrowser",
		Short: "Aggregated DNS-SD service browser",
	}

	cmd.AddCommand(serveCmd(logger))
	cmd.AddCommand(listCmd(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fang.Execute(ctx, cmd); err != nil {
		cancel()
		os.Exit(1) //nolint: gocritic
	}
}

func serveCmd(logger zerolog.Logger) *cobra.Command {
	var (
		domain           string
		httpAddr         string
		badgerDir        string
		descriptionsFile string
		iface            string
		verbose          bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse the network and serve the visible set over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !verbose {
				logger = logger.Level(zerolog.InfoLevel)
			}

			opts := svcbrowser.Options{
				svcbrowser.WithLogger(logger),
				svcbrowser.WithDomain(domain),
				svcbrowser.WithHTTPAddr(httpAddr),
			}
			if badgerDir != "" {
				opts = append(opts, svcbrowser.WithBadgerDir(badgerDir))
			}
			if descriptionsFile != "" {
				opts = append(opts, svcbrowser.WithDescriptionsFile(descriptionsFile))
			}
			if iface != "" {
				opts = append(opts, svcbrowser.WithInterface(iface))
			}

			br, err := svcbrowser.NewBrowser(opts...)
			if err != nil {
				return fmt.Errorf("creating browser: %w", err)
			}
			defer br.Close()

			unsubscribe := br.Subscribe(func(vis []svcbrowser.AggregateEntry) {
				logger.Info().
					Int("count", len(vis)).
					Strs("regtypes", lo.Map(vis, func(el svcbrowser.AggregateEntry, _ int) string {
						return el.RegType()
					})).
					Msg("visible set changed")
			})
			defer unsubscribe()

			unsubscribeErrs := br.SubscribeErrors(func(err error) {
				logger.Error().Err(err).Send()
			})
			defer unsubscribeErrs()

			if err := br.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("running browser: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "local", "Browsing domain")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "0.0.0.0:7070", "HTTP listen address")
	cmd.Flags().StringVar(&badgerDir, "badger-dir", "", "Keep descriptions catalog in badger db under this dir")
	cmd.Flags().StringVar(&descriptionsFile, "descriptions", "", "YAML file with registration type descriptions")
	cmd.Flags().StringVar(&iface, "iface", "", "Browse on this network interface only")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log record level flow")

	return cmd
}

func listCmd(logger zerolog.Logger) *cobra.Command {
	var (
		remote  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print visible set of a running node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw := http_remote_regtypes.New(timeout, logger.Level(zerolog.WarnLevel))

			vis, err := gw.GetVisibleSet(cmd.Context(), remote)
			if err != nil {
				return fmt.Errorf("getting visible set: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0) //nolint: mnd
			fmt.Fprintln(w, "TYPE\tCOUNT\tDESCRIPTION")
			for _, rt := range vis {
				fmt.Fprintf(w, "%s\t%d\t%s\n", rt.RegType, rt.Count, rt.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "http://127.0.0.1:7070", "Base URL of the node")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout") //nolint: mnd

	return cmd
}

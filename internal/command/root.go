// Package command wires the tokenbank CLI.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile = ""
	format     = formatMarkdown
	outputFile = ""
)

const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

var formats = []string{formatMarkdown, formatJSON}

// RootCommand sets up and returns the root command.
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tokenbank",
		Short:         "Token bank and NFT market client with EIP-2612 permit signing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(formats, format) {
				return errors.Errorf("unknown format %q, expected one of %v", format, formats)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		balanceCmd(),
		tokenCmd(),
		approveCmd(),
		transferCmd(),
		bankCmd(),
		permitCmd(),
		nftCmd(),
		eventsCmd(),
		serveCmd(),
		versionCmd(),
	)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "the .env file to load")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", formatMarkdown, "report format: markdown or json")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write the report to this file instead of stdout")

	return rootCmd
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		e := permit.Classify(err)
		logrus.WithFields(logrus.Fields{"kind": e.Kind, "code": e.Code}).Debugf("%+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", e.Message)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// output is where reports go: the --output file, or the command's stdout.
func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outputFile == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create output file")
	}
	return f, f.Close, nil
}

// report writes markdown as rendered, or v as indented JSON.
func report(cmd *cobra.Command, markdown []byte, v interface{}) error {
	w, done, err := output(cmd)
	if err != nil {
		return err
	}

	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(v)
	} else {
		_, err = fmt.Fprintln(w, string(markdown))
	}
	if err != nil {
		_ = done()
		return errors.Wrap(err, "failed to write report")
	}
	if err := done(); err != nil {
		return err
	}
	if outputFile != "" {
		logrus.Infof("Report written to %s", outputFile)
	}
	return nil
}

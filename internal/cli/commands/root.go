package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uadiscover",
		Short: "Discover the custom data types of an OPC UA server",
		Long: color.CyanString(`uadiscover - OPC UA custom data type discovery

uadiscover browses the type dictionaries of an OPC UA server and registers
every custom structure and enumeration it declares, so values of those types
can be decoded without generated code.

Sources:
  • a live server session (--endpoint opc.tcp://host:4840)
  • an address space snapshot (--snapshot plant.yaml)`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewDiscoverCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the uadiscover version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			if noColor(cmd) {
				titleColor.DisableColor()
			}
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "uadiscover version: ")
			fmt.Fprintln(out, Version)
			titleColor.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)
			titleColor.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)
			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command until it returns or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func noColor(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-color")
	return v || color.NoColor
}

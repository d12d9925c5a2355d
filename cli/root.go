package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"organizer/client"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Timeout time.Duration
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

const defaultServer = "http://localhost:5000"

// NewRootCommand creates the root command of the organizer CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "organizer",
		Short: "Organize items and folders shared by every connected client",
		Long: `Command line client for the organizer API.

Every command loads the current state, applies its change locally and sends
it to the server. Use watch to follow changes made by other clients live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Timeout <= 0 {
				return fmt.Errorf("invalid timeout %s: must be positive", opts.Timeout)
			}
			if opts.Verbose {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	server := os.Getenv("ORGANIZER_URL")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "organizer API base URL (env ORGANIZER_URL)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", client.DefaultTimeout, "request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewToggleCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// session is a loaded engine bound to one command invocation.
type session struct {
	engine *client.Engine
	http   *client.HTTP
	out    *OutputFormatter
}

func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, engineOpts client.Options) (*session, error) {
	out := newFormatter(opts, cmd)
	if engineOpts.OnError == nil {
		engineOpts.OnError = func(err error) {
			out.VerboseLog("request failed, state reloaded: %v", err)
		}
	}
	h := client.NewHTTP(opts.Server, opts.Timeout)
	e := client.NewEngine(h, engineOpts)
	if err := e.Load(ctx); err != nil {
		return nil, out.Fail("connect", WrapExitError(ExitCommandError, "unable to reach "+opts.Server, err))
	}
	return &session{engine: e, http: h, out: out}, nil
}

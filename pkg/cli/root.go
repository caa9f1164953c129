// Package cli builds the pagewire command line. A program that defines
// pages wraps them in a root command:
//
//	func main() {
//	    os.Exit(cli.Main(cli.Options{
//	        Register: func(r *router.Router) {
//	            r.Page("/hello", "Hello", hello)
//	        },
//	    }))
//	}
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagewire"
	"github.com/vango-dev/pagewire/internal/config"
	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/router"
)

// Options configures the command tree.
type Options struct {
	// Name is the binary name shown in help. Default: "pagewire".
	Name string

	// Register adds the program's pages to the router.
	Register func(r *router.Router)

	// AppOptions are passed to pagewire.New by the run command.
	AppOptions []pagewire.Option

	// Version, Commit and Date are reported by the version command.
	Version string
	Commit  string
	Date    string
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "pagewire"
	}
	if o.Version == "" {
		o.Version = pagewire.Version
	}
	if o.Commit == "" {
		o.Commit = "none"
	}
	if o.Date == "" {
		o.Date = "unknown"
	}
	return o
}

// Error output formats selected with --error-format.
const (
	errorFormatText    = "text"
	errorFormatCompact = "compact"
	errorFormatJSON    = "json"
)

type rootFlags struct {
	configPath  string
	noColor     bool
	errorFormat string
}

// NewRootCommand returns the root command with run, routes, config,
// errors and version attached.
func NewRootCommand(opts Options) *cobra.Command {
	root, _ := newRoot(opts)
	return root
}

func newRoot(opts Options) (*cobra.Command, *rootFlags) {
	opts = opts.withDefaults()
	flags := &rootFlags{}
	configPath := &flags.configPath

	root := &cobra.Command{
		Use:   opts.Name,
		Short: "Serve server-driven pages through a pagewire relay",
		Long: `pagewire connects this process to a relay and serves its pages.

The relay forwards browser sessions; every interaction reruns the page's
Go handler and streams the resulting widgets back.

Configuration is read from pagewire.toml and PAGEWIRE_* environment
variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.noColor {
				errors.DisableColors()
			} else {
				errors.EnableColors()
			}
			switch flags.errorFormat {
			case errorFormatText, errorFormatCompact, errorFormatJSON:
				return nil
			}
			return errors.New(errors.CodeUnknownFormat).
				WithDetail(fmt.Sprintf("--error-format %q: use text, compact or json.", flags.errorFormat))
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(configPath, "config", "c", config.ConfigFileName, "Path to the configuration file")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&flags.errorFormat, "error-format", errorFormatText, "Error output format: text, compact or json")

	root.AddCommand(
		runCmd(opts, configPath),
		routesCmd(opts),
		configCmd(configPath),
		errorsCmd(),
		versionCmd(opts),
	)
	return root, flags
}

// Main runs the command tree against os.Args and returns the exit code.
func Main(opts Options) int {
	root, flags := newRoot(opts)
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err, flags.errorFormat)
		return 1
	}
	return 0
}

// printError writes err in the requested format. Unknown formats fall
// back to text.
func printError(w io.Writer, err error, format string) {
	switch format {
	case errorFormatCompact:
		fmt.Fprintln(w, asError(err).FormatCompact())
	case errorFormatJSON:
		fmt.Fprintln(w, asError(err).FormatJSON())
	default:
		errors.Fprint(w, err)
	}
}

// asError returns the *Error in err's chain, or a CLI error carrying
// err's text.
func asError(err error) *errors.Error {
	if e, ok := errors.As(err); ok {
		return e
	}
	return errors.Newf(errors.CategoryCLI, "%v", err)
}

func success(w io.Writer, format string, args ...any) {
	mark := "✓"
	if errors.ColorsEnabled() {
		mark = "\033[32m✓\033[0m"
	}
	fmt.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// loadConfig reads path, tolerating a missing file when it is the
// default name so env-only setups work.
func loadConfig(path string) (*config.Config, error) {
	if path == config.ConfigFileName && !config.Exists(path) {
		path = ""
	}
	return config.Load(path)
}

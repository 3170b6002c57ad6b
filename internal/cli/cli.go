package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/ksred/revchain/internal/migration"
)

// ErrPendingRevisions is returned by check when the database is behind head
var ErrPendingRevisions = errors.New("database has pending revisions")

// Env is what every command runs against. It is built after parsing, once
// the config file named on the command line has been loaded.
type Env struct {
	Ctx    context.Context
	Runner *migration.Runner
	Logger zerolog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// CLI is the command line interface of revchain.
type CLI struct {
	Current   Current   `kong:"cmd,help='Show the current revision of the database.'"`
	Heads     Heads     `kong:"cmd,help='Show the head revision.'"`
	History   History   `kong:"cmd,help='List recorded upgrades, downgrades and stamps.'"`
	Show      Show      `kong:"cmd,help='Show a revision and the SQL its upgrade runs.'"`
	Upgrade   Upgrade   `kong:"cmd,help='Upgrade to a later revision.'"`
	Downgrade Downgrade `kong:"cmd,help='Revert to a previous revision.'"`
	Stamp     Stamp     `kong:"cmd,help='Set the revision marker without running migrations.'"`
	Check     Check     `kong:"cmd,help='Exit non-zero if any revision is pending.'"`

	ConfigFile string           `kong:"name='config',short='c',help='Path to the revchain configuration file.'"`
	LogLevel   string           `kong:"help='Override the configured log level (debug, info, warn, error).'"`
	Version    kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(version string, stdout, stderr io.Writer) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("revchain"),
		kong.Description("Apply and revert schema revisions."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Execute runs the parsed command.
func (c *CLI) Execute(env *Env) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	if env.Ctx == nil {
		env.Ctx = context.Background()
	}

	return c.kctx.Run(env)
}

// Offline reports whether the parsed command can run without a database:
// SQL rendering of an explicit from:to range.
func (c *CLI) Offline() bool {
	switch c.Command() {
	case "upgrade":
		return c.Upgrade.SQL && strings.Contains(c.Upgrade.Target, ":")
	case "downgrade":
		return c.Downgrade.SQL && strings.Contains(c.Downgrade.Target, ":")
	}
	return false
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ksred/revchain/internal/migration"
)

// Current shows the revision the database is at.
type Current struct {
	Verbose bool `short:"v" help:"Include the revision message."`
}

// Run the current command.
func (c *Current) Run(env *Env) error {
	current, err := env.Runner.Current(env.Ctx)
	if err != nil {
		return err
	}

	registry := env.Runner.Registry()
	line := displayRevision(current)
	switch {
	case !registry.Contains(current):
		line += " (unknown)"
	case current != "" && current == registry.Head():
		line += " (head)"
	}

	if rev, ok := registry.Get(current); ok && c.Verbose && current != "" {
		line += " " + rev.Message
	}

	_, err = fmt.Fprintln(env.Stdout, line)
	return err
}

// Heads shows the newest revision of the chain.
type Heads struct{}

// Run the heads command.
func (c *Heads) Run(env *Env) error {
	registry := env.Runner.Registry()
	head := registry.Head()
	if head == "" {
		_, err := fmt.Fprintln(env.Stdout, "no revisions")
		return err
	}

	rev, _ := registry.Get(head)
	_, err := fmt.Fprintf(env.Stdout, "%s (head) %s\n", head, rev.Message)
	return err
}

// History lists recorded marker changes, newest first.
type History struct {
	Limit int `short:"n" default:"20" help:"Maximum number of entries to show."`
}

// Run the history command.
func (c *History) Run(env *Env) error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	entries, err := env.Runner.History(env.Ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(env.Stdout, "no history")
		return err
	}

	data := make([][]string, 0, len(entries))
	for _, e := range entries {
		data = append(data, []string{
			e.AppliedAt.Local().Format(time.DateTime),
			e.Direction,
			displayRevision(e.FromRevision),
			displayRevision(e.ToRevision),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			e.RunID,
		})
	}

	return renderTable([]string{"Applied At", "Direction", "From", "To", "Duration", "Run"}, data, env.Stdout)
}

// Show describes one revision.
type Show struct {
	Revision string `arg:"" help:"Revision id, unique prefix, or relative form like head-1."`
}

// Run the show command.
func (c *Show) Run(env *Env) error {
	registry := env.Runner.Registry()

	current, err := env.Runner.Current(env.Ctx)
	if err != nil {
		return err
	}

	id, err := registry.Resolve(c.Revision, current)
	if err != nil {
		return err
	}
	if id == "" {
		_, err := fmt.Fprintln(env.Stdout, "Rev: base")
		return err
	}

	rev, _ := registry.Get(id)
	position, _ := registry.Position(id)

	applied := "unknown"
	if registry.Contains(current) {
		currentPos, _ := registry.Position(current)
		applied = strconv.FormatBool(position <= currentPos)
	}

	data := [][]string{
		{"Rev", rev.ID},
		{"Parent", displayRevision(rev.DownRevision)},
		{"Position", strconv.Itoa(position)},
		{"Applied", applied},
		{"Message", rev.Message},
	}
	if !rev.CreatedAt.IsZero() {
		data = append(data, []string{"Create Date", rev.CreatedAt.Format(time.DateTime)})
	}
	if err := renderTable([]string{"Field", "Value"}, data, env.Stdout); err != nil {
		return err
	}

	lines, err := env.Runner.SQL(env.Ctx, migration.Up, displayRevision(rev.DownRevision)+":"+rev.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout)
	return printSQL(env.Stdout, lines)
}

// Upgrade applies revisions up to a target.
type Upgrade struct {
	Target string `arg:"" optional:"" default:"head" help:"Target revision (default: head)."`
	SQL    bool   `name:"sql" help:"Print the SQL instead of running it. The target may be a from:to range."`
}

// Run the upgrade command.
func (c *Upgrade) Run(env *Env) error {
	return migrate(env, migration.Up, c.Target, c.SQL)
}

// Downgrade reverts revisions down to a target.
type Downgrade struct {
	Target string `arg:"" help:"Target revision, for example -1 or base."`
	SQL    bool   `name:"sql" help:"Print the SQL instead of running it. The target may be a from:to range."`
}

// Run the downgrade command.
func (c *Downgrade) Run(env *Env) error {
	return migrate(env, migration.Down, c.Target, c.SQL)
}

func migrate(env *Env, direction migration.Direction, target string, sql bool) error {
	if sql {
		lines, err := env.Runner.SQL(env.Ctx, direction, target)
		if err != nil {
			return err
		}
		return printSQL(env.Stdout, lines)
	}

	var (
		res *migration.Result
		err error
	)
	if direction == migration.Up {
		res, err = env.Runner.Upgrade(env.Ctx, target)
	} else {
		res, err = env.Runner.Downgrade(env.Ctx, target)
	}
	if err != nil {
		return err
	}

	if len(res.Applied) == 0 {
		_, err = fmt.Fprintf(env.Stdout, "Already at %s, nothing to do\n", displayRevision(res.To))
		return err
	}
	_, err = fmt.Fprintf(env.Stdout, "Ran %d %s(s) from %s to %s in %s\n",
		len(res.Applied), direction, displayRevision(res.From), displayRevision(res.To), res.Duration.Round(time.Millisecond))
	return err
}

// Stamp writes the revision marker without running any operation.
type Stamp struct {
	Target string `arg:"" help:"Revision to record as current."`
}

// Run the stamp command.
func (c *Stamp) Run(env *Env) error {
	res, err := env.Runner.Stamp(env.Ctx, c.Target)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.Stdout, "Stamped %s -> %s\n", displayRevision(res.From), displayRevision(res.To))
	return err
}

// Check fails when the database is not at head.
type Check struct{}

// Run the check command.
func (c *Check) Run(env *Env) error {
	status, err := env.Runner.Status(env.Ctx)
	if err != nil {
		return err
	}

	if status.UpToDate {
		_, err := fmt.Fprintf(env.Stdout, "No pending revisions, database is at %s\n", displayRevision(status.Current))
		return err
	}

	data := make([][]string, 0, len(status.Pending))
	for _, rev := range status.Pending {
		data = append(data, []string{rev.ID, displayRevision(rev.DownRevision), rev.Message})
	}
	if err := renderTable([]string{"Pending", "Parent", "Message"}, data, env.Stdout); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d behind head %s", ErrPendingRevisions, len(status.Pending), displayRevision(status.Head))
}

// printSQL writes the statements as a runnable script
func printSQL(w io.Writer, lines []string) error {
	for _, line := range lines {
		var err error
		if strings.HasPrefix(line, "--") {
			_, err = fmt.Fprintf(w, "\n%s\n\n", line)
		} else {
			_, err = fmt.Fprintf(w, "%s;\n\n", line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func displayRevision(id string) string {
	if id == "" {
		return migration.Base
	}
	return id
}

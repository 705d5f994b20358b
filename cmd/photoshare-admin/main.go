package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ssd-technologies/photoshare/internal/app"
	"github.com/ssd-technologies/photoshare/internal/config"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

const usage = "Usage: photoshare-admin <users|delete-user|sweep-orphans|status> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "users":
		err = cmdUsers(os.Args[2:], os.Stdout)
	case "delete-user":
		err = cmdDeleteUser(os.Args[2:], os.Stdout)
	case "sweep-orphans":
		err = cmdSweepOrphans(os.Args[2:], os.Stdout)
	case "status":
		err = cmdStatus(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s\n", os.Args[1], usage)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	dataDir    string
}

func newFlagSet(name string, c *commonFlags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVarP(&c.configPath, "config", "c", "", "path to YAML config file (default: $PHOTOSHARE_CONFIG)")
	flagSet.StringVar(&c.dataDir, "data-dir", "", "directory for the database and uploads")
	return flagSet
}

// openApp loads the configuration and wires the services. Admin commands log
// warnings and errors only.
func openApp(c commonFlags) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.dataDir != "" {
		cfg.SetDataDir(c.dataDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return app.New(cfg, logger)
}

// cmdUsers lists every account.
func cmdUsers(args []string, out io.Writer) error {
	var c commonFlags
	flagSet := newFlagSet("users", &c)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.Catalog.ListUsers(context.Background())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, humanize.Time(time.Unix(u.CreatedAt, 0)))
	}
	return tw.Flush()
}

// cmdDeleteUser removes an account with everything it owns.
func cmdDeleteUser(args []string, out io.Writer) error {
	var c commonFlags
	flagSet := newFlagSet("delete-user", &c)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: photoshare-admin delete-user <username>")
	}
	username := flagSet.Arg(0)

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	u, err := a.DB.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return err
	}
	if err := a.Catalog.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted user %s (id %d)\n", u.Username, u.ID)
	return nil
}

// cmdSweepOrphans removes upload files no photo refers to.
func cmdSweepOrphans(args []string, out io.Writer) error {
	var c commonFlags
	var grace time.Duration
	flagSet := newFlagSet("sweep-orphans", &c)
	flagSet.DurationVar(&grace, "grace", 0, "minimum file age (default: workers.orphan_grace)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if grace <= 0 {
		grace = a.Config.Workers.OrphanGrace
	}
	n, err := a.Photos.SweepOrphans(context.Background(), grace)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d orphan file(s) older than %s\n", n, grace)
	return nil
}

// cmdStatus prints a summary of the store.
func cmdStatus(args []string, out io.Writer) error {
	var c commonFlags
	flagSet := newFlagSet("status", &c)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.Catalog.ListUsers(context.Background())
	if err != nil {
		return err
	}
	entries, err := a.Files.List()
	if err != nil {
		return err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}

	if a.DB.Driver() == storage.DriverPostgres {
		fmt.Fprintf(out, "Database:  %s\n", a.DB.Driver())
	} else {
		fmt.Fprintf(out, "Database:  %s (%s)\n", a.Config.Storage.DSN, a.DB.Driver())
	}
	fmt.Fprintf(out, "Uploads:   %s\n", a.Files.Root())
	fmt.Fprintf(out, "Users:     %d\n", len(users))
	fmt.Fprintf(out, "Files:     %d (%s)\n", len(entries), humanize.IBytes(uint64(total)))
	return nil
}

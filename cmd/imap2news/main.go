// Command imap2news moves mail from IMAP mailboxes into a news spool,
// filing each message under the newsgroups its list addresses map to.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nhle/imap2news/internal/article"
	"github.com/nhle/imap2news/internal/credential"
	"github.com/nhle/imap2news/internal/logging"
	"github.com/nhle/imap2news/internal/model"
	"github.com/nhle/imap2news/internal/route"
	"github.com/nhle/imap2news/internal/source/email"
	"github.com/nhle/imap2news/internal/spool"
	"github.com/nhle/imap2news/internal/store"
	"github.com/nhle/imap2news/internal/transfer"
)

const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliFlags struct {
	configPath string
	login      bool
	logout     bool
	history    int
}

func newFlagSet(cf *cliFlags, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("imap2news", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: imap2news [flags] [mailbox...]\n\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&cf.configPath, "config", "c", model.DefaultConfigPath(), "configuration file")
	fs.BoolVar(&cf.login, "login", false, "prompt for the IMAP password, store it in the keyring and exit")
	fs.BoolVar(&cf.logout, "logout", false, "remove the IMAP password from the keyring and exit")
	fs.IntVar(&cf.history, "history", 0, "print the `N` most recent journal entries and exit")

	fs.StringP("server", "s", "", "IMAP server host name")
	fs.IntP("port", "p", 0, "IMAP server port (default 993, or the credential file's port)")
	fs.StringP("user", "u", "", "IMAP login")
	fs.String("tls", "tls", "connection security: tls, starttls or insecure")
	fs.String("credentials-file", "", "netrc-style credential file (default ~/.netrc)")
	fs.String("config-dir", "", "configuration directory (default ~/.config/imap2news)")
	fs.StringP("mapping-file", "m", "", "address to newsgroup mapping file (default <config-dir>/groups)")
	fs.String("spool-dir", "", "news spool directory (default /var/spool/news)")
	fs.String("incoming-dir", "", "delivery directory relative to the spool (default in.coming)")
	fs.String("hostname", "", "host name for Path and Message-Id headers")
	fs.StringP("trash", "t", "", "copy messages to this mailbox before deleting them")
	fs.String("always-to", "", "treat this address as an extra To recipient of every message")
	fs.String("journal", "", "sqlite transfer journal")

	fs.BoolP("dry-run", "n", false, "show what would be done without changing anything")
	fs.BoolP("reject", "r", false, "delete routed messages without delivering them")
	fs.BoolP("copy-only", "k", false, "deliver messages but keep them in the mailbox")
	fs.BoolP("expunge", "x", false, "expunge each mailbox after processing it")
	fs.BoolP("verbose", "v", false, "log every routed message")
	fs.BoolP("quiet", "q", false, "only log warnings and errors")
	fs.String("log-format", "text", "log format: text or json")

	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cf cliFlags
	fs := newFlagSet(&cf, stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	v := viper.New()
	if err := model.BindFlags(v, fs); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	cfg, err := model.LoadConfig(v, cf.configPath, fs.Changed("config"))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	if fs.NArg() > 0 {
		cfg.Mailboxes = fs.Args()
	}

	log := logging.New(stderr, logging.Options{
		Verbose: cfg.Verbose,
		Quiet:   cfg.Quiet,
		Format:  cfg.LogFormat,
	})

	switch {
	case cf.login:
		err = login(cfg)
	case cf.logout:
		err = logout(cfg)
	case cf.history > 0:
		err = history(ctx, cfg, cf.history, stdout)
	default:
		err = transferMail(ctx, cfg, log, stdout)
	}
	if err != nil {
		log.WithError(err).Error("imap2news failed")
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if model.IsConfigError(err) {
		return exitConfig
	}
	return exitFatal
}

// transferMail performs one run over every configured mailbox. Local
// configuration is checked completely before the server is contacted.
func transferMail(ctx context.Context, cfg *model.Config, log *logrus.Logger, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	router, err := route.LoadMap(cfg.MappingFile)
	if err != nil {
		return &model.ConfigError{Key: "mapping_file", Message: err.Error()}
	}
	log.WithFields(logrus.Fields{
		"file":      cfg.MappingFile,
		"addresses": router.Len(),
	}).Debug("Loaded group mapping")

	creds, err := credential.Lookup(cfg.CredentialsFile, cfg.Server, cfg.User)
	if err != nil {
		return err
	}
	if err := cfg.ApplyCredentialPort(creds.Port); err != nil {
		return err
	}

	var journal store.Journal
	if cfg.Journal != "" {
		s, err := store.NewSQLiteStore(cfg.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer s.Close()
		journal = s
	}

	client, err := email.Dial(ctx, email.Config{
		Host:     cfg.Server,
		Port:     cfg.PortString(),
		Username: creds.Login,
		Password: creds.Password,
		TLS:      email.TLSMode(cfg.TLS),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Debug("Logout failed")
		}
	}()
	log.WithFields(logrus.Fields{
		"server": cfg.Server,
		"port":   cfg.Port,
		"user":   creds.Login,
	}).Debug("Logged in")

	opts := transfer.Options{
		DryRun:   cfg.DryRun,
		Reject:   cfg.Reject,
		CopyOnly: cfg.CopyOnly,
		Expunge:  cfg.Expunge,
		Verbose:  cfg.Verbose,
		Trash:    cfg.Trash,
		AlwaysTo: cfg.AlwaysTo,
	}
	writer := spool.NewWriter(cfg.IncomingPath(), spool.WithDryRun(cfg.DryRun))

	sessionOpts := []transfer.Option{transfer.WithLogger(log)}
	if journal != nil {
		sessionOpts = append(sessionOpts, transfer.WithJournal(journal))
	}
	session := transfer.NewSession(
		client, router, article.NewNormalizer(cfg.Hostname), writer, opts, sessionOpts...,
	)

	result, err := session.Run(ctx, cfg.Mailboxes)
	fmt.Fprintln(stdout, result.Summary(opts))
	if n := result.SkippedMailboxes(); n > 0 {
		log.WithField("mailboxes", n).Warn("Some mailboxes were skipped")
	}
	return err
}

// login asks for the IMAP password and stores it in the keyring, where
// Lookup finds it when the credential file has no entry.
func login(cfg *model.Config) error {
	if err := requireAccount(cfg); err != nil {
		return err
	}

	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Password for %s@%s", cfg.User, cfg.Server)).
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	return credential.Set(credential.KeyFor(cfg.Server, cfg.User), password)
}

// logout forgets the password stored by login.
func logout(cfg *model.Config) error {
	if err := requireAccount(cfg); err != nil {
		return err
	}
	return credential.Delete(credential.KeyFor(cfg.Server, cfg.User))
}

func requireAccount(cfg *model.Config) error {
	if cfg.Server == "" {
		return &model.ConfigError{Key: "server", Message: "not set"}
	}
	if cfg.User == "" {
		return &model.ConfigError{Key: "user", Message: "not set"}
	}
	return nil
}

// history prints the most recent journal entries.
func history(ctx context.Context, cfg *model.Config, n int, stdout io.Writer) error {
	if cfg.Journal == "" {
		return &model.ConfigError{Key: "journal", Message: "not set"}
	}

	s, err := store.NewSQLiteStore(cfg.Journal)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer s.Close()

	transfers, err := s.RecentTransfers(ctx, n)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DELIVERED\tSOURCE\tDELETED\tMESSAGE-ID\tNEWSGROUPS\tFILE")
	for _, t := range transfers {
		deleted := "no"
		if t.Deleted {
			deleted = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s:%d\t%s\t%s\t%s\t%s\n",
			t.DeliveredAt.Local().Format("2006-01-02 15:04:05"),
			t.Mailbox, t.Seq, deleted, t.MessageID, t.Newsgroups, t.SpoolPath,
		)
	}
	return tw.Flush()
}

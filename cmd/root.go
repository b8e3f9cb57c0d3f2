package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/illarion/fincrypt/internal/audit"
	"github.com/illarion/fincrypt/internal/config"
	"github.com/illarion/fincrypt/internal/logging"
	"github.com/illarion/fincrypt/internal/passphrase"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// skipSetup marks commands that run without loading the configuration.
const skipSetup = "skip-setup"

// app holds the state shared by one command invocation.
type app struct {
	v         *viper.Viper
	cfgFile   string
	verbose   bool
	debug     bool
	noKeyring bool

	cfg      *config.Config
	log      logging.Logger
	audit    audit.Logger
	resolver *passphrase.Resolver
}

// NewRootCmd builds the fincrypt command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "fincrypt",
		Short: "Passphrase-protected encrypted record store",
		Long: `fincrypt keeps records in a single encrypted container file.

The container is decrypted into a private working copy for the duration of a
command and re-encrypted with AES-256-GCM under an Argon2id key when the
command finishes. The working copy is overwritten and removed afterwards.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.finish,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.fincrypt.yaml)")
	pf.StringP("file", "f", config.DefaultContainer, "path to the encrypted container")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "print informational messages")
	pf.BoolVar(&a.debug, "debug", false, "print debug messages")
	pf.BoolVar(&a.noKeyring, "no-keyring", false, "never read the passphrase from the OS keyring")
	pf.Bool("audit", false, "record session events in the audit log")
	pf.String("audit-file", "", "audit log file path")
	pf.String("work-dir", "", "directory for decrypted working copies (default is the system temp dir)")

	bindFlagOrPanic(a.v, pf, "store.path", "file")
	bindFlagOrPanic(a.v, pf, "store.work_dir", "work-dir")
	bindFlagOrPanic(a.v, pf, "audit.enabled", "audit")
	bindFlagOrPanic(a.v, pf, "audit.file", "audit-file")

	root.AddCommand(
		a.initCmd(),
		a.putCmd(),
		a.getCmd(),
		a.lsCmd(),
		a.rmCmd(),
		a.diffCmd(),
		a.passwdCmd(),
		a.compactCmd(),
		a.statusCmd(),
		a.verifyCmd(),
		a.keyringCmd(),
		a.configCmd(),
		a.auditCmd(),
	)
	return root
}

func bindFlagOrPanic(v *viper.Viper, flags *pflag.FlagSet, configKey, flagName string) {
	if err := v.BindPFlag(configKey, flags.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.log = logging.Logger{
		Verbose: a.verbose,
		Debug:   a.debug,
		Out:     cmd.ErrOrStderr(),
		Err:     cmd.ErrOrStderr(),
	}
	if cmd.Annotations[skipSetup] != "" {
		return nil
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.noKeyring {
		cfg.Keyring.Enabled = false
	}
	a.cfg = cfg
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debugf("using config file %s", used)
	}

	a.audit, err = audit.NewLogger(cfg.AuditConfig())
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	a.resolver = passphrase.NewResolver(cfg.Keyring.Enabled)
	a.resolver.Prompter.Out = cmd.ErrOrStderr()
	return nil
}

func (a *app) finish(*cobra.Command, []string) error {
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}

func (a *app) storeOptions() store.Options {
	opts := a.cfg.StoreOptions()
	opts.Logger = a.log
	opts.Audit = a.audit
	return opts
}

var (
	activeMu sync.Mutex
	active   = make(map[*store.Store]struct{})
)

func track(s *store.Store) {
	activeMu.Lock()
	defer activeMu.Unlock()
	active[s] = struct{}{}
}

func untrack(s *store.Store) {
	activeMu.Lock()
	defer activeMu.Unlock()
	delete(active, s)
}

// Abort tears down every open session without saving. It is called from the
// signal handler so no plaintext working copy outlives the process.
func Abort() {
	activeMu.Lock()
	defer activeMu.Unlock()
	for s := range active {
		if err := s.Abort(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cleanup failed: %v\n", err)
		}
		delete(active, s)
	}
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		return HandleError(root.ErrOrStderr(), err)
	}
	return 0
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

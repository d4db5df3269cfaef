package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/bundlepress/internal/ledger"
	"github.com/fulmenhq/bundlepress/internal/progress"
	"github.com/fulmenhq/bundlepress/internal/storage"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/spf13/cobra"
)

// flagKeys maps command flags to config keys. Commands bind only the flags
// they declare.
var flagKeys = map[string]string{
	"env":              "env",
	"keypair":          "keypair",
	"cache-name":       "cache_name",
	"cache-dir":        "cache_dir",
	"number":           "total_items",
	"storage":          "storage.backend",
	"ledger":           "ledger.backend",
	"max-attempts":     "upload.max_attempts",
	"mutable":          "upload.mutable",
	"retain-authority": "upload.retain_authority",
}

// loadConfig merges defaults, config file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	configFile, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// session holds the config and progress store shared by the phase commands.
type session struct {
	cfg   *config.RunConfig
	store *progress.Store
}

// openSession loads config and opens (or creates) the progress document.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store := progress.NewStore(cfg.CacheDir, cfg.DocumentName(), cfg.Env)
	doc, err := store.Open()
	if err != nil {
		return nil, err
	}
	logger.Debug("progress document opened",
		logger.String("path", store.Path()), logger.Int("items", len(doc.Items)))
	if cfg.Ledger.Backend == config.LedgerMemory && doc.HasProgram() {
		if err := store.Update(forgetProgram); err != nil {
			return nil, err
		}
	}
	return &session{cfg: cfg, store: store}, nil
}

// forgetProgram unbinds a dry-run document from the program of an earlier
// process. Content links survive; every item must be committed again.
func forgetProgram(d *progress.Document) {
	logger.Info("dropping program from an earlier dry run", logger.String("program", d.Program.Identity))
	d.Program = progress.Program{}
	d.Authority = ""
	d.PublishedAddress = ""
	for k, r := range d.Items {
		r.Committed = false
		d.Items[k] = r
	}
}

// document returns a copy of the working document's top-level fields and
// counts, taken under the store lock.
func (s *session) document() (progress.Document, progress.Counts) {
	var (
		doc    progress.Document
		counts progress.Counts
	)
	_ = s.store.View(func(d *progress.Document) {
		doc = *d
		doc.Items = nil
		counts = d.Counts()
	})
	return doc, counts
}

// ledgerClient builds the ledger client selected by config. The memory
// backend keeps its state for the lifetime of this process only.
func (s *session) ledgerClient() (ledger.Client, error) {
	switch s.cfg.Ledger.Backend {
	case config.LedgerMemory:
		logger.Warn("using the in-process ledger; nothing is recorded remotely")
		doc, _ := s.document()
		return ledger.NewMemory(doc.Authority), nil
	case config.LedgerRPC:
		credential, err := ledger.LoadCredential(s.cfg.CredentialPath)
		if err != nil {
			return nil, &config.ConfigError{Key: "keypair", Message: err.Error()}
		}
		fetcher := fetch.NewRealHTTPFetcher(fetch.NewClient(s.cfg.Ledger.Timeout))
		return ledger.NewRPCClient(s.cfg.Ledger.RPCURL, credential, fetcher), nil
	default:
		return nil, &config.ConfigError{Key: "ledger.backend", Message: fmt.Sprintf("unsupported ledger backend %q", s.cfg.Ledger.Backend)}
	}
}

func (s *session) uploader() (storage.Uploader, error) {
	fetcher := fetch.NewRealHTTPFetcher(fetch.NewClient(s.cfg.Storage.Timeout))
	return storage.New(s.cfg.Storage, s.cfg.Env, fetcher)
}

// contentFetcher reads stored content during verification.
func (s *session) contentFetcher() fetch.HTTPFetcher {
	return fetch.NewRealHTTPFetcher(fetch.NewClient(s.cfg.Storage.Timeout))
}

// requireProgram fails when the run has no program yet.
func (s *session) requireProgram() error {
	doc, _ := s.document()
	if !doc.HasProgram() {
		return &config.ConfigError{Key: "program", Message: fmt.Sprintf("no program recorded in %s; run upload first", s.store.Path())}
	}
	return nil
}

// rerun formats the command line that resumes a phase.
func (s *session) rerun(args ...string) string {
	parts := append([]string{"bundlepress"}, args...)
	parts = append(parts, "-e", s.cfg.Env, "-c", s.cfg.CacheName)
	if s.cfg.Ledger.Backend == config.LedgerMemory {
		parts = append(parts, "--ledger", config.LedgerMemory)
	}
	return strings.Join(parts, " ")
}

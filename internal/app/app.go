package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pdm-go/internal/blob"
	"pdm-go/internal/config"
	"pdm-go/internal/encryption"
	"pdm-go/internal/guard"
	"pdm-go/internal/identity"
	"pdm-go/internal/journal"
	"pdm-go/internal/pdm"
	"pdm-go/internal/record"
)

// PDMApp is the application layer between the CLI and the pdm.Service.
// It constructs all components from config, resolves the acting identity,
// and journals every invocation locally. The caller must call Close when
// done.
type PDMApp struct {
	cfg       *config.Config
	service   *pdm.Service
	journal   *journal.Journal
	encryptor pdm.Encryptor
	identity  identity.Identity
	op        *Operation
	logFile   *os.File

	actor         pdm.Actor
	actorResolved bool
}

// NewPDMApp creates a fully wired PDMApp from the given config.
// operation identifies the CLI command being run (e.g. "Checkout").
func NewPDMApp(cfg *config.Config, operation string) (*PDMApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	coreLogger := &slogAdapter{l: logger}

	store, err := record.NewGitStore(cfg.Repo, coreLogger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating record store: %w", err)
	}

	g, err := guard.NewGuardFromConfig(cfg.Guard, cfg.Repo.WorkDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating guard: %w", err)
	}

	if len(cfg.Blobstores) == 0 {
		logFile.Close()
		return nil, fmt.Errorf("no blob stores configured")
	}
	blobs, err := blob.NewBlobStoreFromConfig(context.Background(), cfg.Blobstores[0])
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	// The service encrypts only when encryption is switched on; the
	// encryptor itself stays available for key setup and unlocking.
	var svcEncryptor pdm.Encryptor
	if cfg.Encryption.Enabled {
		svcEncryptor = enc
	}

	scheme := pdm.DefaultNameScheme()
	if cfg.Repo.PartNumberWidth > 0 {
		scheme.PartNumberWidth = cfg.Repo.PartNumberWidth
	}
	if cfg.Repo.RevisionSep != "" {
		scheme.RevisionSep = cfg.Repo.RevisionSep
	}

	svc := pdm.NewService(store, g, blobs, svcEncryptor, coreLogger,
		pdm.RealClock{}, pdm.NewULIDGenerator(), scheme, cfg.Repo.ConflictRetries)

	var jnl *journal.Journal
	if cfg.Journal.Type != "none" {
		dataDir := cfg.Journal.DataDir
		if dataDir == "" {
			dataDir = filepath.Join(cfg.BaseDir, "journal")
		}
		jnl, err = journal.Open(filepath.Join(dataDir, "journal.db"))
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("opening journal: %w", err)
		}
	}

	id, err := identity.Resolve(cfg.Identity)
	if err != nil {
		if jnl != nil {
			jnl.Close()
		}
		logFile.Close()
		return nil, err
	}

	return &PDMApp{
		cfg:       cfg,
		service:   svc,
		journal:   jnl,
		encryptor: enc,
		identity:  id,
		op:        NewOperation(operation, id.User),
		logFile:   logFile,
	}, nil
}

// Service exposes the orchestration service for the CLI.
func (a *PDMApp) Service() *pdm.Service { return a.service }

// Actor returns the acting identity with its resolved role. A role carried
// by a token is trusted as-is; otherwise the shared roles record is
// authoritative. Resolved once per invocation.
func (a *PDMApp) Actor(ctx context.Context) (pdm.Actor, error) {
	if a.actorResolved {
		return a.actor, nil
	}
	actor := pdm.Actor{Name: a.identity.User}
	if a.identity.Role != "" {
		role, err := pdm.ParseRole(a.identity.Role)
		if err != nil {
			return pdm.Actor{}, fmt.Errorf("token role: %w", err)
		}
		actor.Role = role
	} else {
		role, err := a.service.ResolveRole(ctx, a.identity.User)
		if err != nil {
			return pdm.Actor{}, fmt.Errorf("resolving role: %w", err)
		}
		actor.Role = role
	}
	a.actor = actor
	a.actorResolved = true
	return actor, nil
}

// Unlock unlocks the configured private key for reading encrypted content.
func (a *PDMApp) Unlock(passphrase string) (pdm.DecryptionContext, error) {
	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys are not set up: run `pdm keys init`")
	}
	return a.encryptor.Unlock(passphrase)
}

// EncryptionEnabled reports whether new content is stored encrypted.
func (a *PDMApp) EncryptionEnabled() bool { return a.cfg.Encryption.Enabled }

// Run executes fn and records its outcome in the operation journal entry.
// target names what the operation acted on (a filename, part, or user).
func (a *PDMApp) Run(target string, fn func(ctx context.Context) error) error {
	a.op.Target = target
	err := fn(context.Background())
	if err != nil {
		a.op.Status = "error"
		a.op.ErrorKind = pdm.ErrorKind(err)
	}
	return err
}

// History lists recent journal entries, newest first.
func (a *PDMApp) History(limit int) ([]journal.Entry, error) {
	if a.journal == nil {
		return nil, fmt.Errorf("journal is disabled")
	}
	return a.journal.List(limit)
}

// Close writes the journal entry and releases resources.
func (a *PDMApp) Close() error {
	var firstErr error

	if a.journal != nil {
		err := a.journal.Record(journal.Entry{
			ID:         a.op.ID,
			Operation:  a.op.Operation,
			Actor:      a.op.Actor,
			Target:     a.op.Target,
			Status:     a.op.Status,
			ErrorKind:  a.op.ErrorKind,
			StartedAt:  a.op.StartedAt,
			FinishedAt: time.Now().UTC(),
		})
		if err != nil {
			firstErr = err
		}
		if err := a.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

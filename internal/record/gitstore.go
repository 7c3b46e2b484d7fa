package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"pdm-go/internal/config"
	"pdm-go/internal/pdm"
)

const remoteName = "origin"

// recordsDir is the repository directory holding the record documents.
const recordsDir = "records"

// GitStore implements pdm.RecordStore on a git working copy.
//
// Load fetches the remote and hard-resets the worktree to the remote head:
// any local commit still present at that point is one whose push was
// rejected, and its changes are recomputed from fresh state anyway. Save
// writes the changeset, commits it as one attributed commit, and pushes;
// a non-fast-forward rejection surfaces as pdm.ErrConflict, never as an
// automatic merge. The push rejection is what gives every caller
// optimistic concurrency over the shared records.
type GitStore struct {
	dir          string
	url          string
	branch       string
	authorDomain string
	logger       pdm.Logger
}

var _ pdm.RecordStore = (*GitStore)(nil)

// NewGitStore creates a GitStore for the configured repository. The working
// copy is materialized lazily on first use.
func NewGitStore(cfg config.RepoConfig, logger pdm.Logger) (*GitStore, error) {
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("repo remote_url is not configured")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("repo work_dir is not configured")
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	domain := cfg.AuthorDomain
	if domain == "" {
		domain = "pdm.local"
	}
	if logger == nil {
		logger = pdm.NewNopLogger()
	}
	return &GitStore{
		dir:          cfg.WorkDir,
		url:          cfg.RemoteURL,
		branch:       branch,
		authorDomain: domain,
		logger:       logger,
	}, nil
}

// open returns the working-copy repository, materializing it on first use.
func (s *GitStore) open(ctx context.Context) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("opening working copy at %s: %v: %w", s.dir, err, pdm.ErrRepositoryCorrupt)
	}
	return s.bootstrap(ctx)
}

// bootstrap clones the remote, or initializes a fresh working copy when the
// remote exists but holds no commits yet.
func (s *GitStore) bootstrap(ctx context.Context) (*git.Repository, error) {
	s.logger.Info("cloning record repository", "url", s.url, "dir", s.dir)
	repo, err := git.PlainCloneContext(ctx, s.dir, false, &git.CloneOptions{
		URL:           s.url,
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil, fmt.Errorf("cloning %s: %v: %w", s.url, err, pdm.ErrSync)
	}

	// Empty remote: initialize locally and wire up the remote. The first
	// Save publishes the initial commit.
	repo, err = git.PlainInit(s.dir, false)
	if err != nil {
		return nil, fmt.Errorf("initializing working copy: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(s.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("setting HEAD to %s: %w", s.branch, err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{s.url},
	})
	if err != nil {
		return nil, fmt.Errorf("configuring remote: %w", err)
	}
	return repo, nil
}

// sync brings the working copy to the remote head. Stale reads are
// forbidden, so any failure to reach the remote is pdm.ErrSync.
func (s *GitStore) sync(ctx context.Context, repo *git.Repository) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remoteName})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		// Nothing published yet; the empty worktree is the truth.
		return nil
	default:
		return fmt.Errorf("fetching from %s: %v: %w", s.url, err, pdm.ErrSync)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, s.branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving remote head: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); err != nil {
		return fmt.Errorf("resetting to remote head: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}
	return nil
}

// Load syncs with the remote and decodes each requested record. A record
// with no backing file leaves its destination untouched: zero values are
// the first-use bootstrap.
func (s *GitStore) Load(ctx context.Context, records map[string]any) error {
	repo, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := s.sync(ctx, repo); err != nil {
		return err
	}
	for key, target := range records {
		data, err := os.ReadFile(filepath.Join(s.dir, recordsDir, key+".json"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading record %s: %w", key, err)
		}
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("decoding record %s: %w", key, err)
		}
	}
	return nil
}

// ReadFile returns raw tracked-file bytes relative to the working copy
// root. It does not re-sync; callers Load first in the same guarded
// operation.
func (s *GitStore) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return nil, &pdm.NotFoundError{What: "file", Name: path}
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Save writes the changeset, commits it as one commit attributed to attr,
// and pushes. A push rejected because the remote advanced is
// pdm.ErrConflict; the caller must re-Load, recompute, and re-Save. The
// local commit left behind by a rejected push is discarded by the next
// sync.
func (s *GitStore) Save(ctx context.Context, attr pdm.Attribution, cs pdm.Changeset) error {
	repo, err := s.open(ctx)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}

	for key, doc := range cs.Records {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", key, err)
		}
		rel := recordsDir + "/" + key + ".json"
		if err := s.writeTracked(wt, rel, append(data, '\n')); err != nil {
			return err
		}
	}
	for name, data := range cs.Files {
		if err := s.writeTracked(wt, pdm.FilesDir+"/"+name, data); err != nil {
			return err
		}
	}
	for _, name := range cs.Removals {
		if _, err := wt.Remove(pdm.FilesDir + "/" + name); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}

	// Empty commits are allowed so every save stays one audit entry even
	// when the serialized documents happen to be byte-identical.
	_, err = wt.Commit(fmt.Sprintf("%s: %s", attr.User, attr.Summary), &git.CommitOptions{
		Author: &object.Signature{
			Name:  attr.User,
			Email: attr.User + "@" + s.authorDomain,
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return fmt.Errorf("committing: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", s.branch, s.branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refspec},
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case pushRejected(err):
		return fmt.Errorf("pushing %q: %w", attr.Summary, pdm.ErrConflict)
	default:
		return fmt.Errorf("pushing to %s: %v: %w", s.url, err, pdm.ErrSync)
	}
}

// writeTracked writes a file under the working copy and stages it.
func (s *GitStore) writeTracked(wt *git.Worktree, rel string, data []byte) error {
	abs := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(rel), err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	return nil
}

// pushRejected reports whether a push error means the remote advanced past
// our base commit. go-git reports this per-ref as a non-fast-forward
// update.
func pushRejected(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first")
}

// History returns recent commits touching path, newest first. An empty
// path covers the whole store. Paths may name a file or a directory
// prefix.
func (s *GitStore) History(_ context.Context, path string, limit int) ([]pdm.CommitInfo, error) {
	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening working copy: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving head: %v: %w", err, pdm.ErrRepositoryCorrupt)
	}

	opts := &git.LogOptions{From: head.Hash()}
	if path != "" {
		opts.PathFilter = func(p string) bool {
			return p == path || strings.HasPrefix(p, path+"/")
		}
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer iter.Close()

	var commits []pdm.CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return errStopIteration
		}
		commits = append(commits, pdm.CommitInfo{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return commits, nil
}

var errStopIteration = errors.New("stop iteration")

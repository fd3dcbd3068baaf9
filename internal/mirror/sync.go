// Package mirror keeps a local copy of the stickerpicker web UI in step with
// its upstream git repository.
//
// Every served tree is an immutable snapshot: a git worktree of one commit
// under snapshots/. The "current" symlink names the snapshot being served and
// is replaced with a single rename, so a reader resolving a path through it
// sees either the old commit or the new one and never a mix. Replaced
// snapshots are kept for a grace period so in-flight reads can finish.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrSyncNetwork       = errors.New("mirror network error")
	ErrSyncDiverged      = errors.New("mirror upstream diverged")
	ErrSyncFilesystem    = errors.New("mirror filesystem error")
	ErrRefreshInProgress = errors.New("mirror refresh already in progress")
	ErrNotInitialized    = errors.New("mirror not initialized")
)

const (
	remoteName   = "origin"
	repoDir      = "repo"
	snapshotsDir = "snapshots"
	currentLink  = "current"
)

// Snapshot is one materialized commit.
type Snapshot struct {
	Commit    string    `json:"commit"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	Current     *Snapshot `json:"current"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastResult  string    `json:"last_result,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Retired     int       `json:"retired_snapshots"`
}

type Options struct {
	RepoURL string
	Branch  string
	// Root holds the clone and snapshots. A fresh temp dir when empty.
	Root string
	// SnapshotGrace is how long a replaced snapshot stays on disk.
	SnapshotGrace time.Duration
	// OnUpdate is called after a new snapshot becomes current.
	OnUpdate func(prev, next Snapshot)
}

type retired struct {
	snap Snapshot
	at   time.Time
}

type Synchronizer struct {
	url      string
	branch   string
	root     string
	grace    time.Duration
	onUpdate func(prev, next Snapshot)
	now      func() time.Time
	logger   *log.Entry

	repo    *Repository
	current atomic.Pointer[Snapshot]

	// refreshMu serializes Initialize, Refresh and Close; retired is only
	// touched while it is held.
	refreshMu sync.Mutex
	retired   []retired

	statusMu    sync.Mutex
	lastRefresh time.Time
	lastResult  string
	lastErr     error
}

func New(opts Options) *Synchronizer {
	return &Synchronizer{
		url:      opts.RepoURL,
		branch:   opts.Branch,
		root:     opts.Root,
		grace:    opts.SnapshotGrace,
		onUpdate: opts.OnUpdate,
		now:      time.Now,
		logger:   log.WithField("component", "mirror"),
	}
}

// Initialize clones upstream and publishes its branch head. The server must
// not start serving until this succeeds.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.repo != nil {
		return errors.New("mirror already initialized")
	}
	if s.root == "" {
		root, err := os.MkdirTemp("", "stickerpicker-mirror-*")
		if err != nil {
			return fsErr("create root", err)
		}
		s.root = root
	}
	if err := os.MkdirAll(filepath.Join(s.root, snapshotsDir), 0o755); err != nil {
		return fsErr("create snapshots dir", err)
	}

	s.logger.WithFields(log.Fields{"url": s.url, "branch": s.branch}).Info("cloning repository")
	repo, err := Clone(ctx, s.url, s.branch, filepath.Join(s.root, repoDir))
	if err != nil {
		return netErr("clone", err)
	}

	head, err := repo.ResolveCommit(ctx, s.branchRef())
	if err != nil {
		return fsErr("resolve head", err)
	}
	s.repo = repo

	snap, err := s.materialize(ctx, head)
	if err != nil {
		return err
	}
	if err := s.publish(snap); err != nil {
		return err
	}
	s.logger.WithField("commit", head).Info("mirror ready")
	return nil
}

// Refresh brings the served tree up to the upstream branch head if that is a
// fast-forward. On any error the previously published snapshot stays current.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if !s.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()

	if s.repo == nil {
		return ErrNotInitialized
	}

	result, err := s.refresh(ctx)
	s.statusMu.Lock()
	s.lastRefresh = s.now()
	s.lastResult = result
	s.lastErr = err
	s.statusMu.Unlock()
	return err
}

func (s *Synchronizer) refresh(ctx context.Context) (string, error) {
	s.reclaim(ctx, false)
	s.logger.Info("updating repository")

	if err := s.repo.SetRemoteURL(ctx, remoteName, s.url); err != nil {
		return "error", fsErr("set remote url", err)
	}
	if err := s.repo.Fetch(ctx, remoteName, s.branch); err != nil {
		return "error", netErr("fetch", err)
	}

	analysis, err := s.analyze(ctx)
	if err != nil {
		return "error", err
	}

	switch analysis.Kind {
	case UpToDate:
		// a previous run may have moved the branch but failed to publish
		if cur := s.current.Load(); cur != nil && cur.Commit != analysis.Local {
			snap, err := s.materialize(ctx, analysis.Local)
			if err != nil {
				return "error", err
			}
			if err := s.publish(snap); err != nil {
				return "error", err
			}
		}
		return analysis.Kind.String(), nil

	case FastForward:
		snap, err := s.materialize(ctx, analysis.Target)
		if err != nil {
			return "error", err
		}
		if err := s.repo.UpdateRef(ctx, s.branchRef(), analysis.Target, analysis.Local, "fast-forward"); err != nil {
			s.discard(ctx, snap)
			return "error", fsErr("update branch", err)
		}
		if err := s.publish(snap); err != nil {
			return "error", err
		}
		s.logger.WithFields(log.Fields{"from": analysis.Local, "to": analysis.Target}).Info("fast-forwarded mirror")
		return analysis.Kind.String(), nil

	default:
		return analysis.Kind.String(), fmt.Errorf("%w: local %s, upstream %s", ErrSyncDiverged, analysis.Local, analysis.Target)
	}
}

func (s *Synchronizer) analyze(ctx context.Context) (MergeAnalysis, error) {
	local, err := s.repo.ResolveCommit(ctx, s.branchRef())
	if err != nil {
		return MergeAnalysis{}, fsErr("resolve local head", err)
	}
	fetched, err := s.repo.ResolveCommit(ctx, "FETCH_HEAD")
	if err != nil {
		return MergeAnalysis{}, fsErr("resolve fetched head", err)
	}
	if local == fetched {
		return Analyze(local, fetched, true, true), nil
	}

	fetchedInLocal, err := s.repo.IsAncestor(ctx, fetched, local)
	if err != nil {
		return MergeAnalysis{}, fsErr("merge-base", err)
	}
	localInFetched, err := s.repo.IsAncestor(ctx, local, fetched)
	if err != nil {
		return MergeAnalysis{}, fsErr("merge-base", err)
	}
	return Analyze(local, fetched, fetchedInLocal, localInFetched), nil
}

// materialize checks commit out into a new snapshot directory. Nothing reads
// the directory until publish points current at it.
func (s *Synchronizer) materialize(ctx context.Context, commit string) (Snapshot, error) {
	name := fmt.Sprintf("%s-%s", shortCommit(commit), uuid.NewString()[:8])
	dir := filepath.Join(s.root, snapshotsDir, name)
	if err := s.repo.AddWorktree(ctx, dir, commit); err != nil {
		_ = os.RemoveAll(dir)
		return Snapshot{}, fsErr("checkout snapshot", err)
	}
	return Snapshot{Commit: commit, Dir: dir, CreatedAt: s.now()}, nil
}

// publish swaps the current symlink to snap and retires the previous one.
func (s *Synchronizer) publish(snap Snapshot) error {
	rel, err := filepath.Rel(s.root, snap.Dir)
	if err != nil {
		return fsErr("relative snapshot path", err)
	}
	if err := renameio.Symlink(rel, filepath.Join(s.root, currentLink)); err != nil {
		s.discard(context.Background(), snap)
		return fsErr("swap current", err)
	}

	next := snap
	prev := s.current.Swap(&next)
	if prev != nil {
		s.retired = append(s.retired, retired{snap: *prev, at: s.now()})
		if s.onUpdate != nil {
			s.onUpdate(*prev, next)
		}
	}
	return nil
}

// reclaim removes retired snapshots older than the grace period, or all of
// them when force is set.
func (s *Synchronizer) reclaim(ctx context.Context, force bool) {
	kept := s.retired[:0]
	for _, r := range s.retired {
		if !force && s.now().Sub(r.at) < s.grace {
			kept = append(kept, r)
			continue
		}
		s.discard(ctx, r.snap)
	}
	s.retired = kept
}

func (s *Synchronizer) discard(ctx context.Context, snap Snapshot) {
	if err := s.repo.RemoveWorktree(ctx, snap.Dir); err != nil {
		s.logger.WithError(err).WithField("dir", snap.Dir).Warn("failed to remove snapshot")
	}
}

// Current returns the snapshot being served, or nil before Initialize.
func (s *Synchronizer) Current() *Snapshot {
	return s.current.Load()
}

// CurrentDir is the stable path of the served tree. It resolves through the
// current symlink, so it always names the latest published snapshot.
func (s *Synchronizer) CurrentDir() string {
	return filepath.Join(s.root, currentLink)
}

func (s *Synchronizer) Status() Status {
	s.statusMu.Lock()
	st := Status{
		Current:     s.current.Load(),
		LastRefresh: s.lastRefresh,
		LastResult:  s.lastResult,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.statusMu.Unlock()

	if s.refreshMu.TryLock() {
		st.Retired = len(s.retired)
		s.refreshMu.Unlock()
	}
	return st
}

// Close removes the clone and every snapshot. Call it at process exit.
func (s *Synchronizer) Close() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.retired = nil
	if s.root == "" {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fsErr("remove root", err)
	}
	return nil
}

func (s *Synchronizer) branchRef() string {
	return "refs/heads/" + s.branch
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func netErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSyncNetwork, op, err)
}

func fsErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSyncFilesystem, op, err)
}

package core

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/ignorematch"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/peerid"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/wire"
)

// FolderState is the per-folder lifecycle in §4.10/§5: idle -> scanning ->
// syncing -> (idle | error | conflict) -> ... `paused` is tracked
// separately since it's an orthogonal attribute, not a state in this chain.
type FolderState int

const (
	FolderIdle FolderState = iota
	FolderScanning
	FolderSyncing
	FolderErrorState
	FolderConflictState
)

func (s FolderState) String() string {
	switch s {
	case FolderScanning:
		return "scanning"
	case FolderSyncing:
		return "syncing"
	case FolderErrorState:
		return "error"
	case FolderConflictState:
		return "conflict"
	default:
		return "idle"
	}
}

// ActionKind is the outcome plan derivation assigns to one (peer, path).
type ActionKind int

const (
	ActionDownload ActionKind = iota
	ActionUpload
	ActionDeleteLocal
	ActionNeedsConflict
)

func (k ActionKind) String() string {
	switch k {
	case ActionUpload:
		return "upload"
	case ActionDeleteLocal:
		return "delete_local"
	case ActionNeedsConflict:
		return "conflict"
	default:
		return "download"
	}
}

// Action is one planned step against one peer for one relative path,
// derived by derivePlan and either enqueued on the TransferScheduler or
// recorded as a pending conflict.
type Action struct {
	Kind         ActionKind
	Peer         peerid.PeerID
	RelativePath string
}

// FolderStatus is the snapshot returned by the status() operation.
type FolderStatus struct {
	FolderID         string
	State            FolderState
	Paused           bool
	PausedByPolicy   bool
	LastCycleAt      time.Time
	LastError        string
	PendingConflicts int
}

// FileLister is the subset of a PeerSession the orchestrator needs to
// fetch one peer's view of a folder. wire.Session satisfies it directly.
type FileLister interface {
	SendFileListRequest(ctx context.Context, req wire.FileListRequest) error
	Next(ctx context.Context) (wire.Message, error)
}

const fileListTimeout = 30 * time.Second

// folderRuntime is the mutable bookkeeping the orchestrator keeps per
// folder across cycles: current state, whatever PolicyGate last decided,
// and the conflicts awaiting resolve_conflict.
type folderRuntime struct {
	mu             stdsync.Mutex
	state          FolderState
	pausedByPolicy bool
	running        bool
	lastCycleAt    time.Time
	lastErr        error
	conflicts      map[string]*Conflict
}

func newFolderRuntime() *folderRuntime {
	return &folderRuntime{conflicts: make(map[string]*Conflict)}
}

// SyncOrchestrator derives and executes transfer plans for every
// configured folder against every paired, connected peer, per §4.10. It
// owns no I/O of its own beyond what SnapshotStore/TombstoneStore/
// ConflictResolver/TransferScheduler already expose; its job is purely
// the set-difference plan derivation and the public control operations.
type SyncOrchestrator struct {
	logger     *slog.Logger
	snapshots  *SnapshotStore
	tombstones *TombstoneStore
	conflicts  *ConflictResolver
	transfers  *TransferScheduler
	policy     *PolicyGate
	envFunc    func() Environment

	mu       stdsync.Mutex
	folders  map[string]*config.ResolvedFolder
	matchers map[string]*ignorematch.Matcher
	runtimes map[string]*folderRuntime
	listers  map[string]FileLister
}

// NewSyncOrchestrator wires the components a sync cycle needs. envFunc
// reports the current battery/network signals PolicyGate consults; pass
// nil to always report an unconstrained Environment (e.g. in tests).
func NewSyncOrchestrator(
	snapshots *SnapshotStore, tombstones *TombstoneStore, conflicts *ConflictResolver,
	transfers *TransferScheduler, policy *PolicyGate, envFunc func() Environment, logger *slog.Logger,
) *SyncOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncOrchestrator{
		logger:     logger,
		snapshots:  snapshots,
		tombstones: tombstones,
		conflicts:  conflicts,
		transfers:  transfers,
		policy:     policy,
		envFunc:    envFunc,
		folders:    make(map[string]*config.ResolvedFolder),
		matchers:   make(map[string]*ignorematch.Matcher),
		runtimes:   make(map[string]*folderRuntime),
		listers:    make(map[string]FileLister),
	}
}

// RegisterFolder makes f eligible for SyncNow/status/etc, building its
// ignore matcher from its resolved patterns.
func (o *SyncOrchestrator) RegisterFolder(f *config.ResolvedFolder) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := f.ID.String()
	o.folders[id] = f
	o.matchers[id] = ignorematch.New(f.Path, f.IgnorePatterns, o.logger)

	if _, ok := o.runtimes[id]; !ok {
		o.runtimes[id] = newFolderRuntime()
	}
}

// RegisterPeerSession attaches the session used to request peerID's file
// list. Transfer scheduling uses a separate TransferSession registered
// directly on the TransferScheduler.
func (o *SyncOrchestrator) RegisterPeerSession(peerID string, lister FileLister) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.listers[peerID] = lister
}

func (o *SyncOrchestrator) runtimeFor(folderID string) *folderRuntime {
	o.mu.Lock()
	defer o.mu.Unlock()

	rt, ok := o.runtimes[folderID]
	if !ok {
		rt = newFolderRuntime()
		o.runtimes[folderID] = rt
	}

	return rt
}

// SyncNow runs one plan-derivation-and-execute cycle. folderID empty runs
// every registered folder. A folder already mid-cycle coalesces the call
// into a no-op rather than queuing a second concurrent cycle, per §5's
// "at most one SyncOrchestrator plan executing at a time" rule.
func (o *SyncOrchestrator) SyncNow(ctx context.Context, folderID string) error {
	targets, err := o.resolveTargets(folderID)
	if err != nil {
		return err
	}

	var combined error

	for _, rf := range targets {
		if cycleErr := o.runCycle(ctx, rf); cycleErr != nil {
			combined = multierr.Append(combined, cycleErr)
		}
	}

	return combined
}

func (o *SyncOrchestrator) resolveTargets(folderID string) ([]*config.ResolvedFolder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if folderID != "" {
		rf, ok := o.folders[folderID]
		if !ok {
			return nil, NewSyncError(KindNotFound, "no such folder "+folderID, nil)
		}

		return []*config.ResolvedFolder{rf}, nil
	}

	all := make([]*config.ResolvedFolder, 0, len(o.folders))
	for _, rf := range o.folders {
		all = append(all, rf)
	}

	return all, nil
}

func (o *SyncOrchestrator) runCycle(ctx context.Context, rf *config.ResolvedFolder) error {
	folderID := rf.ID.String()
	rt := o.runtimeFor(folderID)

	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()

		return nil
	}

	rt.running = true
	rt.state = FolderScanning
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.running = false
		rt.mu.Unlock()
	}()

	env := Environment{}
	if o.envFunc != nil {
		env = o.envFunc()
	}

	if !o.policy.Allow(rf, time.Now(), env) {
		rt.mu.Lock()
		rt.pausedByPolicy = true
		rt.mu.Unlock()

		return nil
	}

	rt.mu.Lock()
	rt.pausedByPolicy = false
	rt.state = FolderSyncing
	rt.mu.Unlock()

	o.mu.Lock()
	matcher := o.matchers[folderID]
	o.mu.Unlock()

	cycleID := uuid.NewString()
	local := o.snapshots.List(folderID)

	var combined error

	sawConflict := false

	for _, peer := range rf.Peers {
		o.mu.Lock()
		lister := o.listers[peer.String()]
		o.mu.Unlock()

		if lister == nil {
			continue
		}

		remote, err := o.requestFileList(ctx, lister, folderID)
		if err != nil {
			combined = multierr.Append(combined, err)

			continue
		}

		actions := o.derivePlan(rf, matcher, local, remote, peer)

		for _, a := range actions {
			if a.Kind == ActionNeedsConflict {
				sawConflict = true

				continue
			}

			if err := o.enqueueAction(rf, peer, a); err != nil {
				combined = multierr.Append(combined, err)
			}
		}
	}

	o.logger.Info("sync cycle complete",
		slog.String("folder", folderID), slog.String("cycle_id", cycleID))

	rt.mu.Lock()
	rt.lastCycleAt = time.Now()
	rt.lastErr = combined

	switch {
	case sawConflict:
		rt.state = FolderConflictState
	case combined != nil:
		rt.state = FolderErrorState
	default:
		rt.state = FolderIdle
	}

	rt.mu.Unlock()

	return combined
}

// requestFileList sends request-file-list and awaits the matching
// response within the §5 30s file-list-request timeout.
func (o *SyncOrchestrator) requestFileList(ctx context.Context, lister FileLister, folderID string) ([]wire.FileEntry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fileListTimeout)
	defer cancel()

	if err := lister.SendFileListRequest(reqCtx, wire.FileListRequest{FolderID: folderID}); err != nil {
		return nil, NewSyncError(KindNetwork, "sending file list request", err).WithRetryable(true)
	}

	msg, err := lister.Next(reqCtx)
	if err != nil {
		return nil, NewSyncError(KindNetwork, "awaiting file list response", err).WithRetryable(true)
	}

	if msg.Error != nil {
		return nil, NewSyncError(KindNetwork, "peer reported error: "+msg.Error.Message, nil).WithRetryable(msg.Error.Retryable)
	}

	if msg.FileListResponse == nil || msg.FileListResponse.FolderID != folderID {
		return nil, NewSyncError(KindProtocolViolation, "expected file-list-response for "+folderID, nil)
	}

	return msg.FileListResponse.Files, nil
}

// derivePlan implements the §4.10 set-difference algorithm: for every path
// appearing locally or remotely (excluding ignored paths), decide
// download/upload/delete_local/conflict.
func (o *SyncOrchestrator) derivePlan(
	rf *config.ResolvedFolder, matcher *ignorematch.Matcher, local []SnapshotEntry, remote []wire.FileEntry, peer peerid.PeerID,
) []Action {
	localByPath := make(map[string]SnapshotEntry, len(local))
	for _, e := range local {
		localByPath[e.RelativePath] = e
	}

	remoteByPath := make(map[string]wire.FileEntry, len(remote))
	for _, e := range remote {
		remoteByPath[e.RelativePath] = e
	}

	paths := make(map[string]struct{}, len(local)+len(remote))
	for p := range localByPath {
		paths[p] = struct{}{}
	}

	for p := range remoteByPath {
		paths[p] = struct{}{}
	}

	var actions []Action

	for p := range paths {
		if matcher.Match(p, false).Ignored {
			continue
		}

		l, inL := localByPath[p]
		r, inR := remoteByPath[p]

		switch {
		case inR && !inL:
			if rf.Mode == config.ModeSendReceive || rf.Mode == config.ModeReceiveOnly {
				actions = append(actions, Action{Kind: ActionDownload, Peer: peer, RelativePath: p})
			}
		case inL && !inR:
			if a, ok := o.planLocalOnly(rf, peer, p, l); ok {
				actions = append(actions, a)
			}
		case inL && inR:
			if a, ok := o.planBothSides(rf, peer, p, l, r); ok {
				actions = append(actions, a)
			}
		}
	}

	return actions
}

// planLocalOnly decides the action for a path present locally but absent
// from the peer's view. A folder that is not send-receive gets no action.
// Otherwise: upload unless the peer has reported deleting it more recently
// than our own edit, in which case delete_local follows the peer's deletion.
func (o *SyncOrchestrator) planLocalOnly(rf *config.ResolvedFolder, peer peerid.PeerID, p string, l SnapshotEntry) (Action, bool) {
	if rf.Mode != config.ModeSendReceive {
		return Action{}, false
	}

	deletedAt, hasTombstone := o.tombstones.Get(rf.ID.String(), p, peer.String())
	if !hasTombstone || deletedAt.Before(l.Mtime) {
		return Action{Kind: ActionUpload, Peer: peer, RelativePath: p}, true
	}

	return Action{Kind: ActionDeleteLocal, Peer: peer, RelativePath: p}, true
}

// planBothSides decides the action for a path both sides know about:
// nothing if the content already matches, otherwise consult
// ConflictResolver for a clear winner or a genuine conflict.
func (o *SyncOrchestrator) planBothSides(rf *config.ResolvedFolder, peer peerid.PeerID, p string, l SnapshotEntry, r wire.FileEntry) (Action, bool) {
	remoteHash, err := parseDigestHex(r.Hash)
	if err != nil {
		o.logger.Warn("peer reported malformed hash, treating as conflict",
			slog.String("folder", rf.ID.String()), slog.String("path", p))

		return Action{Kind: ActionNeedsConflict, Peer: peer, RelativePath: p}, true
	}

	if remoteHash == l.ContentHash {
		return Action{}, false
	}

	detection := o.conflicts.Detect(rf.ID.String(), p,
		FileVersion{ContentHash: l.ContentHash, Mtime: l.Mtime},
		FileVersion{ContentHash: remoteHash, Mtime: r.ModifiedAt, DeviceName: peer.String()})

	switch {
	case detection.Match:
		return Action{}, false
	case detection.ClearWinner:
		if detection.ClearWinnerIsLocal {
			return Action{Kind: ActionUpload, Peer: peer, RelativePath: p}, true
		}

		return Action{Kind: ActionDownload, Peer: peer, RelativePath: p}, true
	default:
		rt := o.runtimeFor(rf.ID.String())

		rt.mu.Lock()
		rt.conflicts[detection.Conflict.ConflictID] = detection.Conflict
		rt.mu.Unlock()

		return Action{Kind: ActionNeedsConflict, Peer: peer, RelativePath: p}, true
	}
}

func (o *SyncOrchestrator) enqueueAction(rf *config.ResolvedFolder, peer peerid.PeerID, a Action) error {
	direction := TransferDownload
	if a.Kind == ActionUpload {
		direction = TransferUpload
	}

	if a.Kind == ActionDeleteLocal {
		return o.snapshots.Remove(context.Background(), rf.ID.String(), a.RelativePath)
	}

	hash, _ := o.snapshots.KnownHash(rf.ID.String(), a.RelativePath)

	return o.transfers.Enqueue(&TransferTask{
		TransferID:   uuid.NewString(),
		Direction:    direction,
		FolderID:     rf.ID.String(),
		RelativePath: a.RelativePath,
		PeerID:       peer.String(),
		LocalPath:    rf.Path + string('/') + a.RelativePath,
		ExpectedHash: hash,
	})
}

// Snapshots exposes the orchestrator's SnapshotStore so the daemon's
// filesystem watcher can write local changes through to it directly,
// without the orchestrator brokering every Put/Remove call.
func (o *SyncOrchestrator) Snapshots() *SnapshotStore {
	return o.snapshots
}

// PendingConflicts returns every unresolved Conflict across every
// registered folder (or just folderID, if non-empty), for the
// conflicts-list operation of the local control surface.
func (o *SyncOrchestrator) PendingConflicts(folderID string) ([]Conflict, error) {
	targets, err := o.resolveTargets(folderID)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict

	for _, rf := range targets {
		rt := o.runtimeFor(rf.ID.String())

		rt.mu.Lock()
		for _, c := range rt.conflicts {
			conflicts = append(conflicts, *c)
		}
		rt.mu.Unlock()
	}

	return conflicts, nil
}

// Pause marks folderID as user-paused; empty pauses every registered
// folder.
func (o *SyncOrchestrator) Pause(folderID string) error {
	return o.setPaused(folderID, true)
}

// Resume clears a user pause on folderID; empty resumes every folder.
func (o *SyncOrchestrator) Resume(folderID string) error {
	return o.setPaused(folderID, false)
}

func (o *SyncOrchestrator) setPaused(folderID string, paused bool) error {
	targets, err := o.resolveTargets(folderID)
	if err != nil {
		return err
	}

	for _, rf := range targets {
		rf.Paused = paused
	}

	return nil
}

// ResolveConflict applies resolution to a pending conflict, wherever it's
// tracked. remoteData is the peer's bytes for the conflicting path. remote
// fetch is the control surface's responsibility (it already has a
// TransferSession handle to the relevant peer); the orchestrator only
// owns conflict bookkeeping and the filesystem-level resolution itself.
func (o *SyncOrchestrator) ResolveConflict(conflictID string, resolution ResolutionKind, remoteData []byte) (ResolveOutcome, error) {
	o.mu.Lock()
	folders := make([]*config.ResolvedFolder, 0, len(o.folders))
	for _, rf := range o.folders {
		folders = append(folders, rf)
	}
	o.mu.Unlock()

	for _, rf := range folders {
		rt := o.runtimeFor(rf.ID.String())

		rt.mu.Lock()
		c, ok := rt.conflicts[conflictID]
		rt.mu.Unlock()

		if !ok {
			continue
		}

		localPath := rf.Path + string('/') + c.RelativePath

		outcome, err := o.conflicts.Resolve(c, resolution, localPath, remoteData)
		if err != nil {
			return ResolveOutcome{}, err
		}

		if outcome.Done {
			rt.mu.Lock()
			delete(rt.conflicts, conflictID)

			if len(rt.conflicts) == 0 && rt.state == FolderConflictState {
				rt.state = FolderIdle
			}

			rt.mu.Unlock()
		}

		return outcome, nil
	}

	return ResolveOutcome{}, NewSyncError(KindNotFound, "no such conflict "+conflictID, nil)
}

// Status reports folderID's current snapshot. folderID must be registered.
func (o *SyncOrchestrator) Status(folderID string) (FolderStatus, error) {
	o.mu.Lock()
	rf, ok := o.folders[folderID]
	o.mu.Unlock()

	if !ok {
		return FolderStatus{}, NewSyncError(KindNotFound, "no such folder "+folderID, nil)
	}

	rt := o.runtimeFor(folderID)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	status := FolderStatus{
		FolderID:         folderID,
		State:            rt.state,
		Paused:           rf.Paused,
		PausedByPolicy:   rt.pausedByPolicy,
		LastCycleAt:      rt.lastCycleAt,
		PendingConflicts: len(rt.conflicts),
	}

	if rt.lastErr != nil {
		status.LastError = rt.lastErr.Error()
	}

	return status, nil
}

// StatusAll reports every registered folder's status, for the no-folderId
// form of the status() operation.
func (o *SyncOrchestrator) StatusAll() []FolderStatus {
	o.mu.Lock()
	ids := make([]string, 0, len(o.folders))
	for id := range o.folders {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	statuses := make([]FolderStatus, 0, len(ids))

	for _, id := range ids {
		if s, err := o.Status(id); err == nil {
			statuses = append(statuses, s)
		}
	}

	return statuses
}

// RefreshIgnore rebuilds folderID's ignore matcher from its current
// resolved patterns, for when ignore presets or per-folder patterns
// change without a full daemon restart.
func (o *SyncOrchestrator) RefreshIgnore(folderID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rf, ok := o.folders[folderID]
	if !ok {
		return NewSyncError(KindNotFound, "no such folder "+folderID, nil)
	}

	o.matchers[folderID] = ignorematch.New(rf.Path, rf.IgnorePatterns, o.logger)

	return nil
}

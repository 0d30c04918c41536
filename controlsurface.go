package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/core"
)

// controlSocketPath is where the daemon listens for local control-surface
// connections: one Unix domain socket per data directory, so only this
// machine's own user can reach a running daemon.
func controlSocketPath(dataDir string) string {
	return filepath.Join(dataDir, "control.sock")
}

// controlSocketURL is the ws:// URL every CLI subcommand dials. The host
// portion is meaningless — the custom DialContext below routes to the
// Unix socket regardless — but websocket.Dial still requires a
// well-formed URL.
const controlSocketURL = "ws://control/ws"

// ctlRequest is one local-control-surface call, per the public operations
// sync_now/pause/resume/resolve_conflict/status/refresh_ignore.
type ctlRequest struct {
	Op         string `json:"op"`
	FolderID   string `json:"folder_id,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Follow     bool   `json:"follow,omitempty"`
}

// ctlResponse is the daemon's reply. Status/Conflicts are populated only
// for the operations that return data.
type ctlResponse struct {
	OK        bool               `json:"ok"`
	Error     string             `json:"error,omitempty"`
	Status    []core.FolderStatus `json:"status,omitempty"`
	Conflicts []core.Conflict    `json:"conflicts,omitempty"`
}

// errControlUnavailable wraps any failure to reach a running daemon, so
// callers can map it to exit code 2 (transport/bridge unavailable).
type errControlUnavailable struct{ cause error }

func (e *errControlUnavailable) Error() string {
	return fmt.Sprintf("no running daemon reachable: %v", e.cause)
}

func (e *errControlUnavailable) Unwrap() error { return e.cause }

func isControlUnavailable(err error) bool {
	var target *errControlUnavailable

	return errors.As(err, &target)
}

// controlBroadcaster fans out one status snapshot to every subscribed
// "status --follow" connection.
type controlBroadcaster struct {
	mu   stdsync.Mutex
	subs map[chan []core.FolderStatus]struct{}
}

func newControlBroadcaster() *controlBroadcaster {
	return &controlBroadcaster{subs: make(map[chan []core.FolderStatus]struct{})}
}

func (b *controlBroadcaster) subscribe() chan []core.FolderStatus {
	ch := make(chan []core.FolderStatus, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

func (b *controlBroadcaster) unsubscribe(ch chan []core.FolderStatus) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *controlBroadcaster) publish(status []core.FolderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// controlServer is the daemon side of the local control surface: a
// websocket endpoint over a Unix socket, one connection per CLI
// invocation, dispatching each request straight onto the orchestrator.
type controlServer struct {
	orch    *core.SyncOrchestrator
	cfgPath string
	logger  *slog.Logger
	bcast   *controlBroadcaster
	srv     *http.Server
	ln      net.Listener
}

func newControlServer(orch *core.SyncOrchestrator, cfgPath string, logger *slog.Logger) *controlServer {
	return &controlServer{orch: orch, cfgPath: cfgPath, logger: logger, bcast: newControlBroadcaster()}
}

// Serve starts accepting control connections on sockPath, removing any
// stale socket file left behind by a crashed prior daemon. It returns
// once ctx is done.
func (s *controlServer) Serve(ctx context.Context, sockPath string) error {
	os.Remove(sockPath)

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listening on control socket: %w", err)
	}

	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConn)
	s.srv = &http.Server{Handler: mux}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.srv.Close()
		os.Remove(sockPath)

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (s *controlServer) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("control connection rejected", slog.Any("error", err))

		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var req ctlRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		return
	}

	if req.Op == "status" && req.Follow {
		s.streamStatus(ctx, conn, req.FolderID)

		return
	}

	resp := s.dispatch(ctx, req)

	if err := wsjson.Write(ctx, conn, resp); err != nil {
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *controlServer) streamStatus(ctx context.Context, conn *websocket.Conn, folderID string) {
	ch := s.bcast.subscribe()
	defer s.bcast.unsubscribe(ch)

	if err := wsjson.Write(ctx, conn, ctlResponse{OK: true, Status: s.filterStatus(s.orch.StatusAll(), folderID)}); err != nil {
		return
	}

	for {
		select {
		case status := <-ch:
			if err := wsjson.Write(ctx, conn, ctlResponse{OK: true, Status: s.filterStatus(status, folderID)}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *controlServer) filterStatus(all []core.FolderStatus, folderID string) []core.FolderStatus {
	if folderID == "" {
		return all
	}

	for _, st := range all {
		if st.FolderID == folderID {
			return []core.FolderStatus{st}
		}
	}

	return nil
}

// PublishStatus lets the sync loop push a fresh snapshot to every
// "status --follow" subscriber after each cycle.
func (s *controlServer) PublishStatus() {
	if s.bcast == nil {
		return
	}

	s.bcast.publish(s.orch.StatusAll())
}

func (s *controlServer) dispatch(ctx context.Context, req ctlRequest) ctlResponse {
	switch req.Op {
	case "status":
		return ctlResponse{OK: true, Status: s.filterStatus(s.orch.StatusAll(), req.FolderID)}

	case "conflicts":
		conflicts, err := s.orch.PendingConflicts(req.FolderID)
		if err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true, Conflicts: conflicts}

	case "sync_now":
		if err := s.orch.SyncNow(ctx, req.FolderID); err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true}

	case "pause":
		if err := s.orch.Pause(req.FolderID); err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true}

	case "resume":
		if err := s.orch.Resume(req.FolderID); err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true}

	case "resolve_conflict":
		resolution := parseResolution(req.Resolution)
		if _, err := s.orch.ResolveConflict(req.ConflictID, resolution, nil); err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true}

	case "refresh_ignore":
		if err := s.orch.RefreshIgnore(req.FolderID); err != nil {
			return ctlResponse{Error: err.Error()}
		}

		return ctlResponse{OK: true}

	default:
		return ctlResponse{Error: "unknown operation " + req.Op}
	}
}

func parseResolution(s string) core.ResolutionKind {
	switch s {
	case "local":
		return core.ResolutionLocal
	case "remote":
		return core.ResolutionRemote
	case "both":
		return core.ResolutionBoth
	case "manual":
		return core.ResolutionManual
	default:
		return core.ResolutionNone
	}
}

const controlDialTimeout = 3 * time.Second

// callControl dials the running daemon's control socket and performs one
// request/response round trip. Every non-"status --follow" CLI command
// uses this.
func callControl(ctx context.Context, dataDir string, req ctlRequest) (ctlResponse, error) {
	conn, err := dialControl(ctx, dataDir)
	if err != nil {
		return ctlResponse{}, err
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		return ctlResponse{}, &errControlUnavailable{cause: err}
	}

	var resp ctlResponse
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return ctlResponse{}, &errControlUnavailable{cause: err}
	}

	conn.Close(websocket.StatusNormalClosure, "")

	if resp.Error != "" {
		return resp, fmt.Errorf("%s", resp.Error)
	}

	return resp, nil
}

// streamControl dials the daemon and returns every status push until ctx
// is done or the connection drops, for "status --follow".
func streamControl(ctx context.Context, dataDir string, folderID string, onStatus func(ctlResponse)) error {
	conn, err := dialControl(ctx, dataDir)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, ctlRequest{Op: "status", FolderID: folderID, Follow: true}); err != nil {
		return &errControlUnavailable{cause: err}
	}

	for {
		var resp ctlResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return &errControlUnavailable{cause: err}
		}

		onStatus(resp)
	}
}

func dialControl(ctx context.Context, dataDir string) (*websocket.Conn, error) {
	sockPath := controlSocketPath(dataDir)

	dialCtx, cancel := context.WithTimeout(ctx, controlDialTimeout)
	defer cancel()

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer

				return d.DialContext(ctx, "unix", sockPath)
			},
		},
	}

	conn, _, err := websocket.Dial(dialCtx, controlSocketURL, &websocket.DialOptions{HTTPClient: httpClient})
	if err != nil {
		return nil, &errControlUnavailable{cause: err}
	}

	return conn, nil
}

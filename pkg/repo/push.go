package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
	"github.com/odvcencio/pocket/pkg/remote"
)

// Dialer opens a transport; remote.Dial is the default.
type Dialer func(url string, opts remote.Options) (remote.Transport, error)

// PushOptions describes a push of the current branch.
type PushOptions struct {
	Remote      string // default: "origin" or the only configured remote
	Credentials *remote.Credentials
	Timeout     time.Duration // per HTTP request; the ctx bounds the whole push
	Dial        Dialer
}

// PushResult describes a completed push.
type PushResult struct {
	Remote   string
	Branch   string
	Old      object.Hash // remote value before the push, "" if it was new
	New      object.Hash
	Objects  int // objects uploaded
	UpToDate bool
}

// Summary is a one-line description for the user.
func (r *PushResult) Summary() string {
	switch {
	case r.UpToDate:
		return fmt.Sprintf("Everything up-to-date (%s/%s at %s)", r.Remote, r.Branch, r.New.Short())
	case r.Old == "":
		return fmt.Sprintf("Pushed new branch %s to %s at %s (%d objects)", r.Branch, r.Remote, r.New.Short(), r.Objects)
	default:
		return fmt.Sprintf("Pushed %s to %s: %s -> %s (%d objects)", r.Branch, r.Remote, r.Old.Short(), r.New.Short(), r.Objects)
	}
}

const (
	maxChunkObjects = 2000
	maxChunkBytes   = 32 << 20
)

// Push sends the current branch to a remote.
//
// The remote tip is negotiated first; if it is not an ancestor of HEAD the
// push fails with NonFastForward before anything is transferred. Objects
// the remote lacks are uploaded, then the remote ref is moved with a
// compare-and-swap against the negotiated tip. The remote-tracking ref is
// updated only after the remote accepts. Force pushes are not supported.
func (r *Repo) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	const op = "push"
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	name, url, err := r.resolveRemote(cfg, strings.TrimSpace(opts.Remote))
	if err != nil {
		return nil, fail(op, KindNoRemoteConfigured, err)
	}

	release, err := r.lock(op)
	if err != nil {
		return nil, err
	}
	defer release()

	branchRef, head, err := r.headState()
	if err != nil {
		return nil, wrap(op, err)
	}
	branch, ok := strings.CutPrefix(branchRef, "refs/heads/")
	if !ok {
		return nil, fail(op, KindInvalidArgument, fmt.Errorf("HEAD is detached at %s", branchRef))
	}
	if head == "" {
		return nil, fail(op, KindUnbornBranch, fmt.Errorf("branch %s", branch))
	}

	dial := opts.Dial
	if dial == nil {
		dial = remote.Dial
	}
	tr, err := dial(url, remote.Options{
		Credentials: opts.Credentials,
		Timeout:     opts.Timeout,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	defer tr.Close()

	log := r.logger.With("op", op, "remote", name, "branch", branch)
	res := &PushResult{Remote: name, Branch: branch, New: head}

	remoteTip, err := tr.Negotiate(ctx, branchRef)
	if err != nil && !errors.Is(err, remote.ErrNoSuchRef) {
		return nil, wrap(op, err)
	}
	res.Old = remoteTip

	trackingRef := refs.RemoteTrackingName(name, branch)
	tracking, err := r.Refs.Lookup(trackingRef)
	if err != nil {
		return nil, wrap(op, err)
	}

	if remoteTip == head {
		res.UpToDate = true
		r.updateTracking(trackingRef, tracking, head, log)
		return res, nil
	}
	if remoteTip != "" {
		if !r.Store.Has(remoteTip) {
			return nil, fail(op, KindNonFastForward, fmt.Errorf("remote %s is at unknown commit %s", branch, remoteTip.Short()))
		}
		ff, err := r.Store.IsAncestor(remoteTip, head)
		if err != nil {
			return nil, wrap(op, err)
		}
		if !ff {
			return nil, fail(op, KindNonFastForward, fmt.Errorf("remote %s at %s is not an ancestor of %s", branch, remoteTip.Short(), head.Short()))
		}
	}

	stops := []object.Hash{remoteTip}
	if tracking != "" && tracking != remoteTip {
		has, err := remoteHasCommit(ctx, r.Store, tr, remoteTip, tracking)
		if err != nil {
			return nil, wrap(op, err)
		}
		if has {
			stops = append(stops, tracking)
		} else {
			log.Debug("remote-tracking ref not on remote", "ref", trackingRef, "hash", tracking.Short())
		}
	}
	recs, err := remote.CollectObjectsForPush(r.Store, []object.Hash{head}, stops)
	if err != nil {
		return nil, wrap(op, err)
	}
	recs, err = filterPresent(ctx, tr, recs)
	if err != nil {
		return nil, wrap(op, err)
	}
	log.Debug("sending objects", "objects", len(recs))
	sent, err := sendChunked(ctx, tr, recs)
	if err != nil {
		return nil, wrap(op, err)
	}
	res.Objects = sent

	if err := tr.UpdateRef(ctx, branchRef, remoteTip, head); err != nil {
		return nil, wrap(op, err)
	}
	r.updateTracking(trackingRef, tracking, head, log)
	log.Info("pushed", "old", remoteTip.Short(), "new", head.Short(), "objects", sent)
	return res, nil
}

// updateTracking moves the remote-tracking ref after the remote accepted.
// The remote is authoritative, so failures are only logged.
func (r *Repo) updateTracking(ref string, old, new object.Hash, log *slog.Logger) {
	if old == new {
		return
	}
	err := r.Refs.Update(ref, new, old, "push")
	if err != nil && !errors.Is(err, refs.ErrRefUpdatedButReflogAppendFailed) {
		log.Warn("update remote-tracking ref", "ref", ref, "error", err)
	}
}

// remoteHasCommit reports whether the remote still holds c. The remote
// may have been reset since the tracking ref was recorded.
func remoteHasCommit(ctx context.Context, store *object.Store, tr remote.Transport, remoteTip, c object.Hash) (bool, error) {
	if remoteTip != "" {
		ok, err := store.IsAncestor(c, remoteTip)
		if err != nil || ok {
			return ok, err
		}
	}
	have, err := tr.HasObjects(ctx, []object.Hash{c})
	if err != nil {
		return false, err
	}
	return have[c], nil
}

// filterPresent drops records the remote already has, keeping order.
func filterPresent(ctx context.Context, tr remote.Transport, recs []remote.ObjectRecord) ([]remote.ObjectRecord, error) {
	if len(recs) == 0 {
		return recs, nil
	}
	hashes := make([]object.Hash, len(recs))
	for i, rec := range recs {
		hashes[i] = rec.Hash
	}
	have, err := tr.HasObjects(ctx, hashes)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if !have[rec.Hash] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// sendChunked uploads records in bounded batches.
func sendChunked(ctx context.Context, tr remote.Transport, recs []remote.ObjectRecord) (int, error) {
	chunk := make([]remote.ObjectRecord, 0, min(len(recs), maxChunkObjects))
	chunkBytes := 0
	sent := 0

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := tr.SendObjects(ctx, chunk); err != nil {
			return err
		}
		sent += len(chunk)
		chunk = chunk[:0]
		chunkBytes = 0
		return nil
	}

	for _, rec := range recs {
		recBytes := len(rec.Data) + 128
		if len(chunk) > 0 && (len(chunk) >= maxChunkObjects || chunkBytes+recBytes > maxChunkBytes) {
			if err := flush(); err != nil {
				return sent, err
			}
		}
		chunk = append(chunk, rec)
		chunkBytes += recBytes
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}

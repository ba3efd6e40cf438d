package artifact

import (
	"errors"
	"testing"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
)

type recorder struct {
	sent      []string
	sentBases []int64
	resyncs   []string
	remotes   []RemoteUpdate
	conflicts []Conflict
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		SendUpdate: func(content string, base int64, _ string) error {
			r.sent = append(r.sent, content)
			r.sentBases = append(r.sentBases, base)
			return nil
		},
		RequestResync: func(id string) { r.resyncs = append(r.resyncs, id) },
		OnRemote:      func(u RemoteUpdate) { r.remotes = append(r.remotes, u) },
		OnConflict:    func(c Conflict) { r.conflicts = append(r.conflicts, c) },
	}
}

func newTestChannel(r *recorder) *Channel {
	return NewChannel(collab.Artifact{
		ID:      "a1",
		Kind:    collab.ArtifactKindDocument,
		Version: 1,
		Content: "base",
	}, "self", r.hooks())
}

func TestSubmitAtCurrentVersion(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	if err := ch.SubmitUpdate("draft", 1, "typing"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := ch.Version(); got != 2 {
		t.Fatalf("effective version = %d, want currentVersion+1", got)
	}
	if ch.ConfirmedVersion() != 1 {
		t.Fatalf("confirmed version moved before acknowledgement: %d", ch.ConfirmedVersion())
	}
	if ch.Content() != "draft" {
		t.Fatalf("optimistic content = %q", ch.Content())
	}
	if len(rec.conflicts) != 0 {
		t.Fatalf("conflict fired on clean submit: %+v", rec.conflicts)
	}
	if len(rec.sent) != 1 || rec.sentBases[0] != 1 {
		t.Fatalf("sent=%v bases=%v", rec.sent, rec.sentBases)
	}
}

func TestOwnAcknowledgementPromotesTentative(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	_ = ch.SubmitUpdate("draft", 1, "typing")
	ch.ApplyRemote(RemoteUpdate{ArtifactID: "a1", Version: 2, AuthorID: "self", Content: "draft"})

	if ch.ConfirmedVersion() != 2 || ch.Content() != "draft" {
		t.Fatalf("ack not promoted: v=%d content=%q", ch.ConfirmedVersion(), ch.Content())
	}
	if len(rec.remotes) != 0 {
		t.Fatalf("own echo emitted as remote update: %+v", rec.remotes)
	}
	hist := ch.History()
	if len(hist) != 1 || hist[0].Version != 2 || hist[0].AuthorID != "self" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRemoteNextVersionApplies(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	ch.ApplyRemote(RemoteUpdate{ArtifactID: "a1", Version: 2, AuthorID: "peer", Content: "theirs"})

	if ch.ConfirmedVersion() != 2 || ch.Content() != "theirs" {
		t.Fatalf("remote update not applied: v=%d content=%q", ch.ConfirmedVersion(), ch.Content())
	}
	if len(rec.remotes) != 1 || rec.remotes[0].AuthorID != "peer" {
		t.Fatalf("remotes = %+v", rec.remotes)
	}
	if len(rec.conflicts) != 0 {
		t.Fatalf("conflicts = %+v", rec.conflicts)
	}
}

func TestStaleSubmitIsConflictBeforeSend(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)
	ch.ApplyRemote(RemoteUpdate{Version: 2, AuthorID: "peer", Content: "theirs"})

	err := ch.SubmitUpdate("mine", 1, "late edit")
	if !errors.Is(err, collab.ErrStaleBase) {
		t.Fatalf("error = %v, want ErrStaleBase", err)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("stale update was sent: %v", rec.sent)
	}
	if len(rec.conflicts) != 1 {
		t.Fatalf("conflicts = %+v", rec.conflicts)
	}
	got := rec.conflicts[0]
	if got.LocalContent != "mine" || got.RemoteContent != "theirs" {
		t.Fatalf("conflict payloads = %+v", got)
	}
	if ch.Content() != "theirs" {
		t.Fatalf("stored content changed on conflict: %q", ch.Content())
	}
}

func TestInboundStaleVersionIsConflict(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)
	ch.ApplyRemote(RemoteUpdate{Version: 2, AuthorID: "peer", Content: "v2"})

	ch.ApplyRemote(RemoteUpdate{Version: 2, AuthorID: "other", Content: "also v2"})

	if len(rec.conflicts) != 1 {
		t.Fatalf("conflicts = %+v", rec.conflicts)
	}
	if ch.Content() != "v2" || ch.ConfirmedVersion() != 2 {
		t.Fatalf("stale inbound frame mutated state: v=%d content=%q", ch.ConfirmedVersion(), ch.Content())
	}
}

func TestConcurrentEditorsSameBase(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	_ = ch.SubmitUpdate("mine", 1, "")
	ch.ApplyRemote(RemoteUpdate{Version: 2, AuthorID: "peer", Content: "theirs"})

	if len(rec.conflicts) != 1 {
		t.Fatalf("conflicts = %+v", rec.conflicts)
	}
	got := rec.conflicts[0]
	if got.LocalContent != "mine" || got.LocalBaseVersion != 1 {
		t.Fatalf("local side of conflict = %+v", got)
	}
	if got.RemoteContent != "theirs" || got.RemoteVersion != 2 {
		t.Fatalf("remote side of conflict = %+v", got)
	}
	// Remote is authoritative at current+1; the overlay rolls back.
	if ch.Content() != "theirs" || ch.ConfirmedVersion() != 2 {
		t.Fatalf("rollback: v=%d content=%q", ch.ConfirmedVersion(), ch.Content())
	}
}

func TestVersionGapRequestsResync(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	ch.ApplyRemote(RemoteUpdate{Version: 5, AuthorID: "peer", Content: "far ahead"})

	if len(rec.resyncs) != 1 || rec.resyncs[0] != "a1" {
		t.Fatalf("resyncs = %v", rec.resyncs)
	}
	if !ch.Stale() {
		t.Fatal("channel should be stale after a gap")
	}
	if ch.ConfirmedVersion() != 1 {
		t.Fatalf("gap frame applied: v=%d", ch.ConfirmedVersion())
	}

	// Frames and submissions are suspended until reset.
	ch.ApplyRemote(RemoteUpdate{Version: 2, AuthorID: "peer", Content: "late"})
	if len(rec.remotes) != 0 {
		t.Fatalf("remote applied while stale: %+v", rec.remotes)
	}
	if err := ch.SubmitUpdate("x", 1, ""); !errors.Is(err, ErrResyncPending) {
		t.Fatalf("submit while stale = %v", err)
	}

	ch.Reset(collab.Artifact{ID: "a1", Version: 5, Content: "synced"})
	if ch.Stale() || ch.ConfirmedVersion() != 5 || ch.Content() != "synced" {
		t.Fatalf("reset: stale=%v v=%d content=%q", ch.Stale(), ch.ConfirmedVersion(), ch.Content())
	}
}

func TestCommentsAppendOnly(t *testing.T) {
	rec := &recorder{}
	ch := newTestChannel(rec)

	c, err := ch.AddComment(collab.Comment{ID: "c1", AuthorID: "u1", Content: "hm", StartIndex: 0, EndIndex: 4})
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if c.ArtifactID != "a1" {
		t.Fatalf("comment artifact id = %q", c.ArtifactID)
	}
	if _, err := ch.AddComment(collab.Comment{Content: "bad span", StartIndex: 9, EndIndex: 2}); !errors.Is(err, collab.ErrCommentSpan) {
		t.Fatalf("span error = %v", err)
	}

	if !ch.ResolveComment("c1", "u2", time.Now()) {
		t.Fatal("resolve known comment failed")
	}
	if ch.ResolveComment("missing", "u2", time.Now()) {
		t.Fatal("resolve unknown comment succeeded")
	}

	comments := ch.Comments()
	if len(comments) != 1 || !comments[0].Resolved || comments[0].ResolvedBy != "u2" {
		t.Fatalf("comments = %+v", comments)
	}
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/gateway"
)

type fakeActivityStore struct {
	getProjectChannel func(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error)
}

func (f *fakeActivityStore) GetProjectChannel(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
	return f.getProjectChannel(ctx, projectID, kind)
}

func TestActivityPostsToActivityChannel(t *testing.T) {
	t.Parallel()

	var posted string
	fanout := NewFanout(nil, &fakePoster{
		postMessage: func(_ context.Context, channelID string, _ gateway.Message) (string, error) {
			posted = channelID
			return "msg-1", nil
		},
	})
	a := NewActivity(nil, &fakeActivityStore{
		getProjectChannel: func(_ context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			if kind != correlation.KindActivity {
				t.Fatalf("resolved kind %q, want activity", kind)
			}
			return correlation.ProjectChannelLink{ProjectID: projectID, ChannelID: "chan-act"}, nil
		},
	}, fanout)

	outcome := a.Post(context.Background(), "proj-1", Message{Content: "done"})
	if !outcome.IsOk() {
		t.Fatalf("outcome %+v, want ok", outcome)
	}
	if posted != "chan-act" {
		t.Fatalf("posted to %q, want chan-act", posted)
	}
}

func TestActivityPostToResolvesRequestedKind(t *testing.T) {
	t.Parallel()

	var posted string
	fanout := NewFanout(nil, &fakePoster{
		postMessage: func(_ context.Context, channelID string, _ gateway.Message) (string, error) {
			posted = channelID
			return "msg-1", nil
		},
	})
	a := NewActivity(nil, &fakeActivityStore{
		getProjectChannel: func(_ context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			if kind != correlation.KindFiles {
				t.Fatalf("resolved kind %q, want files", kind)
			}
			return correlation.ProjectChannelLink{ProjectID: projectID, ChannelID: "chan-files"}, nil
		},
	}, fanout)

	outcome := a.PostTo(context.Background(), "proj-1", correlation.KindFiles, Message{Content: "uploaded"})
	if !outcome.IsOk() {
		t.Fatalf("outcome %+v, want ok", outcome)
	}
	if posted != "chan-files" {
		t.Fatalf("posted to %q, want chan-files", posted)
	}
}

func TestActivitySkipsUnsyncedProject(t *testing.T) {
	t.Parallel()

	a := NewActivity(nil, &fakeActivityStore{
		getProjectChannel: func(context.Context, string, correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			return correlation.ProjectChannelLink{}, correlation.ErrChannelLinkNotFound
		},
	}, NewFanout(nil, &fakePoster{}))

	outcome := a.Post(context.Background(), "proj-1", Message{Content: "done"})
	if outcome.Status != StatusSkipped {
		t.Fatalf("outcome %+v, want skipped", outcome)
	}
}

func TestActivitySkipsArchivedProject(t *testing.T) {
	t.Parallel()

	a := NewActivity(nil, &fakeActivityStore{
		getProjectChannel: func(context.Context, string, correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			return correlation.ProjectChannelLink{ChannelID: "chan-act", Archived: true}, nil
		},
	}, NewFanout(nil, &fakePoster{}))

	outcome := a.Post(context.Background(), "proj-1", Message{Content: "done"})
	if outcome.Status != StatusSkipped {
		t.Fatalf("outcome %+v, want skipped", outcome)
	}
}

func TestActivityLookupFailureIsWarning(t *testing.T) {
	t.Parallel()

	a := NewActivity(nil, &fakeActivityStore{
		getProjectChannel: func(context.Context, string, correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			return correlation.ProjectChannelLink{}, errors.New("store down")
		},
	}, NewFanout(nil, &fakePoster{}))

	outcome := a.Post(context.Background(), "proj-1", Message{Content: "done"})
	if outcome.Status != StatusWarning {
		t.Fatalf("outcome %+v, want warning", outcome)
	}
}

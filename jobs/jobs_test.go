package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/synodriver/aria2link/aria2"
)

type fakeRPC struct {
	mu        sync.Mutex
	calls     []aria2.Call
	multis    [][]aria2.Call
	call      func(c aria2.Call) (json.RawMessage, error)
	multicall func(calls []aria2.Call) ([]json.RawMessage, error)
}

func (f *fakeRPC) Call(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	c := aria2.NewCall(method, params...)
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.call(c)
}

func (f *fakeRPC) MultiCall(_ context.Context, calls ...aria2.Call) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.multis = append(f.multis, calls)
	f.mu.Unlock()
	return f.multicall(calls)
}

func (f *fakeRPC) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls) + len(f.multis)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	n.messages = append(n.messages, msg)
	n.mu.Unlock()
	return nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestGetJobsFlattensInOrder(t *testing.T) {
	rpc := &fakeRPC{multicall: func(calls []aria2.Call) ([]json.RawMessage, error) {
		return []json.RawMessage{
			raw(`[{"gid":"A","status":"active"},{"gid":"B","status":"active"}]`),
			raw(`[{"gid":"C","status":"waiting"}]`),
		}, nil
	}}
	m := NewManager(Static(rpc))

	jobs, err := m.GetJobs(context.Background())
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}
	var gids []string
	for _, j := range jobs {
		gids = append(gids, j.Gid)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(gids, want) {
		t.Fatalf("gids = %v, want %v", gids, want)
	}

	want := []aria2.Call{aria2.NewCall("tellActive"), aria2.NewCall("tellWaiting", 0, 25)}
	if len(rpc.multis) != 1 || !reflect.DeepEqual(rpc.multis[0], want) {
		t.Fatalf("multicall = %+v, want %+v", rpc.multis, want)
	}
}

func TestGetJobsRejectsUnknownStatus(t *testing.T) {
	rpc := &fakeRPC{multicall: func([]aria2.Call) ([]json.RawMessage, error) {
		return []json.RawMessage{raw(`[{"gid":"A","status":"zombie"}]`), raw(`[]`)}, nil
	}}
	_, err := NewManager(Static(rpc)).GetJobs(context.Background())
	if !errors.Is(err, aria2.ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

func TestBulkOperationsShortCircuit(t *testing.T) {
	rpc := &fakeRPC{}
	m := NewManager(Static(rpc))
	ctx := context.Background()

	m.PauseJobs(ctx)
	m.StartJobs(ctx)
	m.RemoveJobs(ctx)
	if n := rpc.requests(); n != 0 {
		t.Fatalf("empty gid lists issued %d requests", n)
	}
}

func TestBulkOperationsUseMulticall(t *testing.T) {
	rpc := &fakeRPC{multicall: func(calls []aria2.Call) ([]json.RawMessage, error) {
		if calls[0].Method == "remove" {
			return nil, &aria2.MultiCallFault{Index: 1, Message: "GID g2 is not found"}
		}
		out := make([]json.RawMessage, len(calls))
		for i := range calls {
			out[i] = raw(`"OK"`)
		}
		return out, nil
	}}
	m := NewManager(Static(rpc))
	ctx := context.Background()

	m.StartJobs(ctx, "g1", "g2")
	m.PauseJobs(ctx, "g1")
	m.RemoveJobs(ctx, "g1", "g2")

	want := [][]aria2.Call{
		{aria2.NewCall("unpause", "g1"), aria2.NewCall("unpause", "g2")},
		{aria2.NewCall("pause", "g1")},
		{aria2.NewCall("remove", "g1"), aria2.NewCall("remove", "g2")},
	}
	if !reflect.DeepEqual(rpc.multis, want) {
		t.Fatalf("multicalls = %+v", rpc.multis)
	}
}

func TestAddUrisNotifiesOnFailure(t *testing.T) {
	rpc := &fakeRPC{multicall: func(calls []aria2.Call) ([]json.RawMessage, error) {
		return nil, &aria2.MultiCallFault{Index: 0, Message: "No URI to download."}
	}}
	notes := &recordingNotifier{}
	m := NewManager(Static(rpc), WithNotifier(notes))

	_, err := m.AddUris(context.Background(), "http://a/x", "http://b/y")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := []string{"No URI to download."}; !reflect.DeepEqual(notes.messages, want) {
		t.Fatalf("notifications = %v, want %v", notes.messages, want)
	}
	if n := rpc.requests(); n != 1 {
		t.Fatalf("got %d requests, want 1 (no retry)", n)
	}
}

func TestAddUrisBuildsOneMulticall(t *testing.T) {
	rpc := &fakeRPC{multicall: func(calls []aria2.Call) ([]json.RawMessage, error) {
		out := make([]json.RawMessage, len(calls))
		for i := range calls {
			out[i] = raw(`"gid` + string(rune('1'+i)) + `"`)
		}
		return out, nil
	}}
	notes := &recordingNotifier{}
	m := NewManager(Static(rpc), WithNotifier(notes))
	hash := "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"

	gids, err := m.AddUris(context.Background(), "http://a/x", " ", hash)
	if err != nil {
		t.Fatalf("AddUris: %v", err)
	}
	if want := []string{"gid1", "gid2"}; !reflect.DeepEqual(gids, want) {
		t.Fatalf("gids = %v", gids)
	}
	want := []aria2.Call{
		aria2.NewCall("addUri", []string{"http://a/x"}),
		aria2.NewCall("addUri", []string{"magnet:?xt=urn:btih:" + hash}),
	}
	if len(rpc.multis) != 1 || !reflect.DeepEqual(rpc.multis[0], want) {
		t.Fatalf("multicall = %+v", rpc.multis)
	}
	if len(notes.messages) != 0 {
		t.Fatalf("unexpected notifications %v", notes.messages)
	}
}

func TestAddUriRetriesOnce(t *testing.T) {
	attempts := 0
	rpc := &fakeRPC{call: func(c aria2.Call) (json.RawMessage, error) {
		attempts++
		if attempts == 1 {
			return nil, &aria2.TransportError{StatusCode: 502}
		}
		return raw(`"2089b05ecca3d829"`), nil
	}}
	notes := &recordingNotifier{}
	m := NewManager(Static(rpc), WithNotifier(notes), WithRetryDelay(time.Millisecond))

	gid, err := m.AddUri(context.Background(), "http://a/file.iso", "file.iso", &aria2.DownloadOptions{Out: "file.iso"})
	if err != nil || gid != "2089b05ecca3d829" {
		t.Fatalf("AddUri = %q, %v", gid, err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if want := []string{"Start downloading file.iso using Aria2"}; !reflect.DeepEqual(notes.messages, want) {
		t.Fatalf("notifications = %v", notes.messages)
	}
	if opts := rpc.calls[0].Params[1].(*aria2.DownloadOptions); opts.Out != "file.iso" {
		t.Fatalf("options = %+v", opts)
	}
}

func TestAddUriGivesUpAfterRetry(t *testing.T) {
	rpc := &fakeRPC{call: func(aria2.Call) (json.RawMessage, error) {
		return nil, &aria2.RPCError{Code: 1, Message: "Unauthorized"}
	}}
	notes := &recordingNotifier{}
	m := NewManager(Static(rpc), WithNotifier(notes), WithRetryDelay(time.Millisecond))

	if _, err := m.AddUri(context.Background(), "http://a/x", "", nil); err == nil {
		t.Fatal("expected error")
	}
	if n := rpc.requests(); n != 2 {
		t.Fatalf("got %d attempts, want 2", n)
	}
	if want := []string{"Unauthorized"}; !reflect.DeepEqual(notes.messages, want) {
		t.Fatalf("notifications = %v", notes.messages)
	}
}

func TestGetNumJobs(t *testing.T) {
	rpc := &fakeRPC{call: func(c aria2.Call) (json.RawMessage, error) {
		if c.Method != "tellActive" {
			t.Errorf("method = %q", c.Method)
		}
		return raw(`[{"gid":"a"},{"gid":"b"},{"gid":"c"}]`), nil
	}}
	n, err := NewManager(Static(rpc)).GetNumJobs(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("GetNumJobs = %d, %v", n, err)
	}
}

func TestWatchBadge(t *testing.T) {
	rpc := &fakeRPC{call: func(aria2.Call) (json.RawMessage, error) {
		return raw(`[{"gid":"a"}]`), nil
	}}
	m := NewManager(Static(rpc))
	ctx, cancel := context.WithCancel(context.Background())
	counts := make(chan int, 8)

	done := make(chan error, 1)
	go func() {
		done <- m.WatchBadge(ctx, 5*time.Millisecond, BadgeFunc(func(n int) {
			select {
			case counts <- n:
			default:
			}
		}))
	}()
	for i := 0; i < 2; i++ {
		select {
		case n := <-counts:
			if n != 1 {
				t.Fatalf("badge = %d", n)
			}
		case <-time.After(time.Second):
			t.Fatal("badge not updated")
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("WatchBadge returned %v", err)
	}
}

func TestWatchBadgeRejectsNonPositiveInterval(t *testing.T) {
	rpc := &fakeRPC{call: func(aria2.Call) (json.RawMessage, error) {
		t.Error("polled with an invalid interval")
		return raw(`[]`), nil
	}}
	m := NewManager(Static(rpc))
	for _, interval := range []time.Duration{0, -time.Second} {
		err := m.WatchBadge(context.Background(), interval, BadgeFunc(func(int) {
			t.Error("badge set with an invalid interval")
		}))
		if err == nil {
			t.Fatalf("WatchBadge(%s) succeeded", interval)
		}
	}
}

func TestAugmentLink(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a.iso":                "https://example.com/a.iso",
		"c12fe1c06bba254a9dc9f519b335aa7c1367a88a": "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a",
		"C12FE1C06BBA254A9DC9F519B335AA7C1367A88A": "C12FE1C06BBA254A9DC9F519B335AA7C1367A88A",
		"  d41d8cd98f00b204e9800998ecf8427e ":      "magnet:?xt=urn:md5:d41d8cd98f00b204e9800998ecf8427e",
		"D41D8CD98F00B204E9800998ECF8427E":         "magnet:?xt=urn:md5:D41D8CD98F00B204E9800998ECF8427E",
		"ftp://example.com/a":                      "ftp://example.com/a",
		"not-a-hash":                               "not-a-hash",

		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855": "magnet:?xt=urn:btmh:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855": "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855",
	}
	for in, want := range tests {
		if got := AugmentLink(in); got != want {
			t.Errorf("AugmentLink(%q) = %q, want %q", in, got, want)
		}
	}
}

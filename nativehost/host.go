package nativehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/synodriver/aria2link/aria2"
	"github.com/synodriver/aria2link/jobs"
)

// Jobs is the set of operations exposed to the extension. *jobs.Manager
// implements it.
type Jobs interface {
	GetJobs(ctx context.Context) ([]aria2.Job, error)
	AddUris(ctx context.Context, uris ...string) ([]string, error)
	AddUri(ctx context.Context, link, fileName string, opts *aria2.DownloadOptions) (string, error)
	StartJobs(ctx context.Context, gids ...string)
	PauseJobs(ctx context.Context, gids ...string)
	RemoveJobs(ctx context.Context, gids ...string)
	GetNumJobs(ctx context.Context) (int, error)
}

type addUrisParams struct {
	Uris []string `json:"uris"`
}

type addUriParams struct {
	Link     string                 `json:"link"`
	FileName string                 `json:"fileName"`
	Options  *aria2.DownloadOptions `json:"options,omitempty"`
}

type gidsParams struct {
	Gids []string `json:"gids"`
}

// Host bridges extension requests to Jobs.
type Host struct {
	jobs Jobs
	in   io.Reader
	out  *Writer
	log  *slog.Logger
}

func NewHost(jobs Jobs, in io.Reader, out *Writer, log *slog.Logger) *Host {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Host{jobs: jobs, in: in, out: out, log: log.With("component", "nativehost")}
}

// Run answers requests one at a time until the input ends (nil error) or
// ctx is done.
func (h *Host) Run(ctx context.Context) error {
	type frame struct {
		data []byte
		err  error
	}
	frames := make(chan frame)
	go func() {
		for {
			data, err := ReadMessage(h.in)
			select {
			case frames <- frame{data, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			if errors.Is(f.err, io.EOF) {
				return nil
			}
			if f.err != nil {
				return f.err
			}
			if err := h.out.Send(h.handle(ctx, f.data)); err != nil {
				return err
			}
		}
	}
}

func (h *Host) handle(ctx context.Context, data []byte) Response {
	req, err := ParseRequest(data)
	if err != nil {
		return errorResponse(0, fmt.Errorf("invalid request: %w", err))
	}
	h.log.Debug("request", "id", req.ID, "method", req.Method)
	result, err := h.dispatch(ctx, req)
	if err != nil {
		h.log.Debug("request failed", "id", req.ID, "method", req.Method, "err", err)
		return errorResponse(req.ID, err)
	}
	return successResponse(req.ID, result)
}

func (h *Host) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case "ping":
		return "pong", nil

	case "getJobs":
		return h.jobs.GetJobs(ctx)

	case "getNumJobs":
		return h.jobs.GetNumJobs(ctx)

	case "addUris":
		var p addUrisParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return h.jobs.AddUris(ctx, p.Uris...)

	case "addUri":
		var p addUriParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		link := strings.TrimSpace(p.Link)
		if link == "" {
			return nil, errors.New("link is required")
		}
		return h.jobs.AddUri(ctx, jobs.AugmentLink(link), p.FileName, p.Options)

	case "startJobs", "pauseJobs", "removeJobs":
		var p gidsParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		switch req.Method {
		case "startJobs":
			h.jobs.StartJobs(ctx, p.Gids...)
		case "pauseJobs":
			h.jobs.PauseJobs(ctx, p.Gids...)
		default:
			h.jobs.RemoveJobs(ctx, p.Gids...)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown method: %s", req.Method)
}

func decodeParams(req *Request, v any) error {
	if len(req.Message) == 0 {
		return fmt.Errorf("invalid %s params: missing message", req.Method)
	}
	if err := json.Unmarshal(req.Message, v); err != nil {
		return fmt.Errorf("invalid %s params: %w", req.Method, err)
	}
	return nil
}

package project

// Package project drives a code project through the service:
// upload, poll until the remote job finishes, download, extract and
// optionally delete it. Each step is a signed call made through the api package.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"jscrambler-client/internal/api"
	"jscrambler-client/internal/archive"
	"jscrambler-client/internal/config"
)

// DefaultPollInterval is the wait between two status requests.
const DefaultPollInterval = 3 * time.Second

// API is the signed transport used by the workflow. *api.Client implements it.
type API interface {
	Get(ctx context.Context, path string, params map[string]any) ([]byte, error)
	Post(ctx context.Context, path string, params map[string]any) ([]byte, error)
	Delete(ctx context.Context, path string, params map[string]any) ([]byte, error)
}

// History records project outcomes. *store.Store implements it.
type History interface {
	RecordUpload(id string, files int, dest string) error
	MarkCompleted(id string) error
	MarkFailed(id string, message string) error
	MarkDeleted(id string) error
}

// Options tune the workflow.
type Options struct {
	PollInterval time.Duration // defaults to DefaultPollInterval
	PollTimeout  time.Duration // 0 waits until the job finishes or ctx is done
	TempDir      string        // scratch archives, defaults to os.TempDir()
}

// Client runs project workflows against the service.
type Client struct {
	api    API
	opts   Options
	logger *slog.Logger

	// Optional collaborators.
	History  History
	Observer Observer

	state State
}

// New creates a workflow client on top of a signed API transport.
func New(apiClient API, opts Options, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:    apiClient,
		opts:   opts,
		logger: logger,
		state:  StateCreated,
	}
}

// NewFromConfig builds the signed API client and the workflow from cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	apiClient := api.NewClient(cfg.Endpoint(), cfg.Credentials(), cfg.HTTPTimeoutDuration(), logger)
	return New(apiClient, Options{
		PollInterval: cfg.PollIntervalDuration(),
		PollTimeout:  cfg.PollTimeoutDuration(),
	}, logger)
}

// State returns the last state the workflow entered.
func (c *Client) State() State {
	return c.state
}

// Upload packages files into a scratch archive, sends it with params and returns
// the id the service assigned. The scratch archive is always removed.
func (c *Client) Upload(ctx context.Context, files []string, params map[string]any) (string, error) {
	return c.upload(ctx, files, params, "")
}

func (c *Client) upload(ctx context.Context, files []string, params map[string]any, dest string) (string, error) {
	c.setState(StateUploading, "")

	tmp := archive.NewTempArchive(c.opts.TempDir)
	defer func() {
		if err := tmp.Remove(); err != nil {
			c.logger.Warn("Failed to remove scratch archive", "path", tmp.Path, "error", err)
		}
	}()

	added, err := archive.Zip(files, tmp.Path)
	if err != nil {
		return "", c.fail("", err)
	}
	c.logger.Info("Packaged sources", "files", added, "archive", tmp.Path)

	req := make(map[string]any, len(params)+1)
	for k, v := range params {
		req[k] = v
	}
	req["files"] = []string{tmp.Path}

	body, err := c.api.Post(ctx, "/code.json", req)
	if err != nil {
		return "", c.fail("", fmt.Errorf("uploading project: %w", err))
	}

	id, err := api.DecodeUpload(body)
	if err != nil {
		return "", c.fail("", err)
	}
	c.logger.Info("Project uploaded", "project_id", id)

	if c.History != nil {
		if err := c.History.RecordUpload(id, added, dest); err != nil {
			c.logger.Warn("Failed to record project", "project_id", id, "error", err)
		}
	}
	return id, nil
}

// Poll requests the project status until the remote job reaches a terminal state.
// It returns nil on success, *api.RemoteJobError when the job failed and
// *api.UnexpectedResponseError when the status has no recognizable shape.
// The loop ends early when ctx is done or the configured poll timeout elapses.
func (c *Client) Poll(ctx context.Context, projectID string) error {
	if c.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.PollTimeout)
		defer cancel()
	}

	c.setState(StatePolling, projectID)
	path := "/code/" + projectID + ".json"

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for attempt := 1; ; attempt++ {
		body, err := c.api.Get(ctx, path, nil)
		if err != nil {
			return c.fail(projectID, fmt.Errorf("polling project %s: %w", projectID, err))
		}

		status, err := api.DecodeStatus(body)
		if err != nil {
			return c.fail(projectID, err)
		}

		switch status.Kind {
		case api.StatusSucceeded:
			c.logger.Info("Project ready", "project_id", projectID, "attempts", attempt)
			c.recordCompleted(projectID)
			return nil
		case api.StatusFailed:
			jobErr := &api.RemoteJobError{ProjectID: projectID, ErrorID: status.ErrorID, Message: status.ErrorMessage}
			if c.History != nil {
				if err := c.History.MarkFailed(projectID, status.ErrorMessage); err != nil {
					c.logger.Warn("Failed to record project failure", "project_id", projectID, "error", err)
				}
			}
			return c.fail(projectID, jobErr)
		case api.StatusMalformed:
			return c.fail(projectID, &api.UnexpectedResponseError{Body: status.Raw})
		case api.StatusPending:
			c.logger.Debug("Project still running", "project_id", projectID, "attempt", attempt)
		default:
			return c.fail(projectID, fmt.Errorf("unhandled status kind %v", status.Kind))
		}

		timer.Reset(c.opts.PollInterval)
		select {
		case <-ctx.Done():
			return c.fail(projectID, fmt.Errorf("polling project %s: %w", projectID, ctx.Err()))
		case <-timer.C:
		}
	}
}

// Download waits for the project to finish and returns its archive, or the single
// source file identified by sourceID when it is not empty.
func (c *Client) Download(ctx context.Context, projectID, sourceID string) ([]byte, error) {
	if err := c.Poll(ctx, projectID); err != nil {
		return nil, err
	}

	c.setState(StateDownloading, projectID)
	path := "/code/" + projectID
	if sourceID != "" {
		path += "/" + sourceID
	} else {
		path += ".zip"
	}

	body, err := c.api.Get(ctx, path, nil)
	if err != nil {
		return nil, c.fail(projectID, fmt.Errorf("downloading project %s: %w", projectID, err))
	}
	if err := api.CheckDownload(body); err != nil {
		return nil, c.fail(projectID, err)
	}
	c.logger.Info("Project downloaded", "project_id", projectID, "bytes", len(body))
	return body, nil
}

// Extract unpacks a downloaded project archive into dest.
func (c *Client) Extract(projectID string, data []byte, dest string) error {
	c.setState(StateExtracting, projectID)
	if err := archive.Unzip(data, dest, archive.NewTempArchive(c.opts.TempDir)); err != nil {
		return c.fail(projectID, fmt.Errorf("extracting project %s: %w", projectID, err))
	}
	c.logger.Info("Project written", "project_id", projectID, "dest", dest)
	return nil
}

// Delete removes the project from the service.
func (c *Client) Delete(ctx context.Context, projectID string) error {
	c.setState(StateDeleting, projectID)

	body, err := c.api.Delete(ctx, "/code/"+projectID+".zip", nil)
	if err != nil {
		return c.fail(projectID, fmt.Errorf("deleting project %s: %w", projectID, err))
	}
	if err := api.CheckResponse(body); err != nil {
		return c.fail(projectID, err)
	}

	c.logger.Info("Project deleted", "project_id", projectID)
	if c.History != nil {
		if err := c.History.MarkDeleted(projectID); err != nil {
			c.logger.Warn("Failed to record project deletion", "project_id", projectID, "error", err)
		}
	}
	return nil
}

// Info lists the projects of the account.
func (c *Client) Info(ctx context.Context) ([]api.ProjectInfo, error) {
	body, err := c.api.Get(ctx, "/code.json", nil)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return api.DecodeProjects(body)
}

// Process validates cfg and runs the whole workflow: upload the expanded
// sources, wait for the job, extract the result into cfg.FilesDest and, when
// cfg.DeleteProject is set, delete the project. The first failure stops it.
func (c *Client) Process(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return c.fail("", err)
	}
	files, err := cfg.ExpandSources()
	if err != nil {
		return c.fail("", err)
	}
	c.logger.Info("Resolved sources", "patterns", len(cfg.FilesSrc), "files", len(files))

	projectID, err := c.upload(ctx, files, cfg.Params, cfg.FilesDest)
	if err != nil {
		return err
	}

	data, err := c.Download(ctx, projectID, "")
	if err != nil {
		return err
	}

	if err := c.Extract(projectID, data, cfg.FilesDest); err != nil {
		return err
	}

	if cfg.DeleteProject {
		if err := c.Delete(ctx, projectID); err != nil {
			return err
		}
	}

	c.setState(StateDone, projectID)
	return nil
}

func (c *Client) recordCompleted(projectID string) {
	if c.History == nil {
		return
	}
	if err := c.History.MarkCompleted(projectID); err != nil {
		c.logger.Warn("Failed to record project completion", "project_id", projectID, "error", err)
	}
}

func (c *Client) setState(s State, projectID string) {
	c.state = s
	if c.Observer != nil {
		c.Observer.OnStateChange(s, projectID)
	}
}

func (c *Client) fail(projectID string, err error) error {
	step := c.state
	c.setState(StateFailed, projectID)
	attrs := []any{"state", step.String(), "error", err}
	if projectID != "" {
		attrs = append(attrs, "project_id", projectID)
	}
	// The caller reports the returned error.
	if !errors.Is(err, context.Canceled) {
		c.logger.Debug("Project workflow failed", attrs...)
	}
	return err
}

// WriteSource stores a single downloaded source file at path.
func WriteSource(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

package polza

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/metrics"
)

var (
	ErrMissingAPIKey    = errors.New("polza: api key is required")
	ErrUnknownModel     = errors.New("polza: unknown model")
	ErrSubmissionFailed = errors.New("polza: submission failed")
	ErrProviderFailure  = errors.New("polza: provider reported failure")
	ErrTimedOut         = errors.New("polza: timed out waiting for result")
	ErrDownloadFailed   = errors.New("polza: asset download failed")
)

const (
	defaultBaseURL  = "https://api.polza.ai/api/v1"
	defaultStrength = 0.7
	// apiCallTimeout bounds submit calls and caps poll calls; downloads use the
	// policy's DownloadTimeout instead.
	apiCallTimeout = 60 * time.Second
)

// Options configures the Polza generation client.
type Options struct {
	APIKey      string
	BaseURL     string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	Metrics     *metrics.Metrics
	ImagePolicy Policy
	VideoPolicy Policy
}

// Client submits generation jobs, polls them to completion and downloads the
// produced asset. It keeps no state between calls.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	logger      *infra.Logger
	metrics     *metrics.Metrics
	imagePolicy Policy
	videoPolicy Policy
}

// Request describes one generation.
type Request struct {
	ModelKey  string
	Prompt    string
	SourceURL string
	Strength  float64
}

// Job is a submitted generation. It is immutable after submission.
type Job struct {
	ID          string
	Kind        domain.JobKind
	ModelKey    string
	ModelID     string
	Prompt      string
	SourceURL   string
	SubmittedAt time.Time
}

type OutcomeStatus string

const (
	OutcomeReady    OutcomeStatus = "ready"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeTimedOut OutcomeStatus = "timed_out"
)

// Outcome is the single result of a job. Asset is set only when Ready.
type Outcome struct {
	Status   OutcomeStatus
	Asset    *domain.Asset
	Err      error
	Attempts int
}

func (o Outcome) Ready() bool {
	return o.Status == OutcomeReady && o.Asset != nil
}

type submitResponse struct {
	RequestID string `json:"requestId"`
	ID        string `json:"id"`
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      logger,
		metrics:     opts.Metrics,
		imagePolicy: opts.ImagePolicy.withDefaults(domain.JobKindImage),
		videoPolicy: opts.VideoPolicy.withDefaults(domain.JobKindVideo),
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// PolicyFor returns the configured polling policy for kind.
func (c *Client) PolicyFor(kind domain.JobKind) Policy {
	if kind == domain.JobKindVideo {
		return c.videoPolicy
	}
	return c.imagePolicy
}

// Run submits req and waits for its outcome using the policy for the model's kind.
func (c *Client) Run(ctx context.Context, req Request) Outcome {
	job, err := c.Submit(ctx, req)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Err: err}
	}
	return c.Await(ctx, job, c.PolicyFor(job.Kind))
}

// Submit creates a provider job. Submission is never retried.
func (c *Client) Submit(ctx context.Context, req Request) (*Job, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	model, ok := LookupModel(req.ModelKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.ModelKey)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("polza: prompt is required")
	}
	strength := req.Strength
	if strength <= 0 {
		strength = defaultStrength
	}
	sourceURL := strings.TrimSpace(req.SourceURL)

	body, err := json.Marshal(buildPayload(model, prompt, sourceURL, strength))
	if err != nil {
		return nil, fmt.Errorf("polza: encode request: %w", err)
	}
	endpoint := c.baseURL + "/" + collection(model.Kind) + "/generations"
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("polza: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSubmissionFailed, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d: %s", ErrSubmissionFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSubmissionFailed, err)
	}
	jobID := strings.TrimSpace(decoded.RequestID)
	if jobID == "" {
		jobID = strings.TrimSpace(decoded.ID)
	}
	if jobID == "" {
		return nil, fmt.Errorf("%w: response carried no job id", ErrSubmissionFailed)
	}

	c.logger.Info().
		Str("job_id", jobID).
		Str("model", model.Key).
		Str("kind", string(model.Kind)).
		Msg("polza: job submitted")
	return &Job{
		ID:          jobID,
		Kind:        model.Kind,
		ModelKey:    model.Key,
		ModelID:     model.ID,
		Prompt:      prompt,
		SourceURL:   sourceURL,
		SubmittedAt: time.Now(),
	}, nil
}

// Await polls job until it yields an asset, fails, or exhausts the policy.
// Each attempt sleeps first; unreadable or non-2xx responses only consume budget.
func (c *Client) Await(ctx context.Context, job *Job, policy Policy) Outcome {
	policy = policy.withDefaults(job.Kind)
	started := time.Now()
	outcome := c.await(ctx, job, policy)
	c.metrics.ObserveGeneration(string(job.Kind), job.ModelKey, string(outcome.Status), outcome.Attempts, time.Since(started))
	return outcome
}

func (c *Client) await(ctx context.Context, job *Job, policy Policy) Outcome {
	endpoint := c.baseURL + "/" + collection(job.Kind) + "/" + url.PathEscape(job.ID)
	pollCtx, cancel := context.WithTimeout(ctx, policy.Budget())
	defer cancel()
	timer := time.NewTimer(policy.Interval)
	defer timer.Stop()

	attempt := 0
	for attempt < policy.MaxAttempts {
		if attempt > 0 {
			timer.Reset(policy.Interval)
		}
		select {
		case <-ctx.Done():
			return Outcome{Status: OutcomeFailed, Err: ctx.Err(), Attempts: attempt}
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return Outcome{Status: OutcomeFailed, Err: err, Attempts: attempt}
			}
			return c.timedOut(job, attempt)
		case <-timer.C:
		}
		attempt++

		res, ok := c.poll(pollCtx, endpoint, job, attempt, policy)
		if !ok {
			continue
		}
		if res.URL != "" {
			c.logger.Info().Str("job_id", job.ID).Int("attempt", attempt).Msg("polza: result ready")
			asset, err := c.download(ctx, res.URL, policy.DownloadTimeout)
			if err != nil {
				return Outcome{Status: OutcomeFailed, Err: err, Attempts: attempt}
			}
			return Outcome{Status: OutcomeReady, Asset: asset, Attempts: attempt}
		}
		if res.Failed {
			c.logger.Warn().Str("job_id", job.ID).Int("attempt", attempt).Str("detail", res.Detail).Msg("polza: provider failure")
			return Outcome{Status: OutcomeFailed, Err: fmt.Errorf("%w: %s", ErrProviderFailure, res.Detail), Attempts: attempt}
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: OutcomeFailed, Err: err, Attempts: attempt}
	}
	return c.timedOut(job, attempt)
}

func (c *Client) timedOut(job *Job, attempts int) Outcome {
	c.logger.Warn().Str("job_id", job.ID).Int("attempts", attempts).Msg("polza: poll budget exhausted")
	return Outcome{Status: OutcomeTimedOut, Err: ErrTimedOut, Attempts: attempts}
}

func (c *Client) poll(ctx context.Context, endpoint string, job *Job, attempt int, policy Policy) (pollResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, policy.PollTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pollResult{}, false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("polza: poll transport error")
		return pollResult{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Str("job_id", job.ID).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("polza: poll skipped")
		return pollResult{}, false
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pollResult{}, false
	}
	res, err := decodeResult(job.Kind, raw, policy.IsFailure)
	if err != nil {
		c.logger.Debug().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("polza: undecodable poll response")
		return pollResult{}, false
	}
	return res, true
}

func (c *Client) download(ctx context.Context, assetURL string, timeout time.Duration) (*domain.Asset, error) {
	parsed, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("%w: invalid asset url %q", ErrDownloadFailed, assetURL)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrDownloadFailed, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}
	return &domain.Asset{
		Kind:      domain.AssetKindFromContentType(resp.Header.Get("Content-Type")),
		Data:      data,
		SourceURL: parsed.String(),
	}, nil
}

func collection(kind domain.JobKind) string {
	if kind == domain.JobKindVideo {
		return "videos"
	}
	return "images"
}

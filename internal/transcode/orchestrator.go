// Package transcode submits HLS ladder jobs to AWS Elemental MediaConvert and
// reports their status.
package transcode

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"go.uber.org/zap"
)

// State is a transcoder job state.
type State string

const (
	StateSubmitted   State = "SUBMITTED"
	StateProgressing State = "PROGRESSING"
	StateComplete    State = "COMPLETE"
	StateError       State = "ERROR"
	StateCanceled    State = "CANCELED"
)

// Terminal reports whether no further state change is expected.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateCanceled
}

// JobStatus is the polled status of one job.
type JobStatus struct {
	State   State
	Message string
}

// JobSubmissionError is returned for malformed input or a rejected CreateJob. Not retriable.
type JobSubmissionError struct {
	SourceURI string
	Reason    string
	Err       error
}

func (e *JobSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit transcode job for %s: %s: %v", e.SourceURI, e.Reason, e.Err)
	}
	return fmt.Sprintf("submit transcode job for %s: %s", e.SourceURI, e.Reason)
}

func (e *JobSubmissionError) Unwrap() error { return e.Err }

// API is the subset of the MediaConvert client the orchestrator uses.
type API interface {
	CreateJob(ctx context.Context, params *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
	GetJob(ctx context.Context, params *mediaconvert.GetJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.GetJobOutput, error)
}

// Config holds MediaConvert job configuration.
type Config struct {
	RoleARN string
	Queue   string
	Ladder  []Rendition
}

// Orchestrator submits and polls transcode jobs.
type Orchestrator struct {
	api    API
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a MediaConvert client. endpoint is the account-specific endpoint, if any.
func NewClient(awsCfg aws.Config, endpoint string) *mediaconvert.Client {
	return mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// New creates an orchestrator. An empty ladder uses DefaultLadder.
func New(api API, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = DefaultLadder
	}
	return &Orchestrator{api: api, cfg: cfg, logger: logger}
}

// Labels returns the configured rendition labels.
func (o *Orchestrator) Labels() []string {
	return Labels(o.cfg.Ladder)
}

// SubmitJob creates a job that transcodes sourceURI into an HLS ladder under outputPrefix.
// Both arguments must be scheme://bucket/key URIs.
func (o *Orchestrator) SubmitJob(ctx context.Context, sourceURI, outputPrefix string) (string, error) {
	if err := validateURI(sourceURI); err != nil {
		return "", &JobSubmissionError{SourceURI: sourceURI, Reason: "malformed input uri", Err: err}
	}
	if err := validateURI(outputPrefix); err != nil {
		return "", &JobSubmissionError{SourceURI: sourceURI, Reason: "malformed output prefix", Err: err}
	}
	destination := outputPrefix
	if !strings.HasSuffix(destination, "/") {
		destination += "/"
	}

	input := &mediaconvert.CreateJobInput{
		Role:     aws.String(o.cfg.RoleARN),
		Settings: jobSettings(sourceURI, destination, o.cfg.Ladder),
	}
	if o.cfg.Queue != "" {
		input.Queue = aws.String(o.cfg.Queue)
	}
	out, err := o.api.CreateJob(ctx, input)
	if err != nil {
		return "", &JobSubmissionError{SourceURI: sourceURI, Reason: "rejected by transcoder", Err: err}
	}
	if out == nil || out.Job == nil || aws.ToString(out.Job.Id) == "" {
		return "", &JobSubmissionError{SourceURI: sourceURI, Reason: "transcoder returned no job id"}
	}
	jobID := aws.ToString(out.Job.Id)
	o.logger.Info("transcode job submitted",
		zap.String("job_id", jobID),
		zap.String("source", sourceURI),
		zap.String("destination", destination),
	)
	return jobID, nil
}

// GetJobStatus returns the current state of jobID. Errors are transport or API failures.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	out, err := o.api.GetJob(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return JobStatus{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if out == nil || out.Job == nil {
		return JobStatus{}, fmt.Errorf("get job %s: empty response", jobID)
	}
	st := JobStatus{State: fromJobStatus(out.Job.Status)}
	if msg := aws.ToString(out.Job.ErrorMessage); msg != "" {
		st.Message = msg
	}
	return st, nil
}

func fromJobStatus(s types.JobStatus) State {
	switch s {
	case types.JobStatusSubmitted:
		return StateSubmitted
	case types.JobStatusProgressing:
		return StateProgressing
	case types.JobStatusComplete:
		return StateComplete
	case types.JobStatusError:
		return StateError
	case types.JobStatusCanceled:
		return StateCanceled
	}
	return State(s)
}

func validateURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("%q is not scheme://bucket/key", raw)
	}
	return nil
}

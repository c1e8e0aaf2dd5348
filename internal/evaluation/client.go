// Package evaluation drives the external evaluation service: it enqueues
// jobs, polls their status while they run and finishes the quiz when they end.
package evaluation

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/mind-engage/quizdesk/internal/remote"
)

// Evaluator is the subset of the evaluation service this package needs.
type Evaluator interface {
	Status(ctx context.Context, quizID string) (Progress, error)
	Evaluate(ctx context.Context, quizID string) error
	Stop(ctx context.Context, quizID string) error
}

type Client struct {
	rc *remote.Client
}

var _ Evaluator = (*Client)(nil)

func NewClient(cfg remote.Config) *Client { return &Client{rc: remote.New(cfg)} }

func (c *Client) Status(ctx context.Context, quizID string) (Progress, error) {
	var p Progress
	err := c.rc.JSON(ctx, "eval status", http.MethodGet, "/api/eval/evaluation/status/"+url.PathEscape(quizID), nil, &p)
	if err != nil {
		return Progress{}, err
	}
	p.JobStatus = ParseStatus(string(p.JobStatus))
	return p, nil
}

func (c *Client) Evaluate(ctx context.Context, quizID string) error {
	body := map[string]string{"quiz_id": quizID}
	return c.rc.JSON(ctx, "eval enqueue", http.MethodPost, "/api/eval/evaluation/evaluate", body, nil)
}

func (c *Client) Stop(ctx context.Context, quizID string) error {
	return c.rc.JSON(ctx, "eval stop", http.MethodPost, "/api/eval/workers/jobs/stop/"+url.PathEscape(quizID), nil, nil)
}

// isNoJob is true when the service answered that it has nothing running.
func isNoJob(err error) bool {
	var he *remote.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusNotFound
}

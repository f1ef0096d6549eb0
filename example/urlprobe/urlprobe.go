package urlprobe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/logwirehq/logwire"
)

func init() {
	logwire.RegisterJob(New)
}

const probeTimeout = 10 * time.Second

// Probe fetches the URL in each item's payload and fails on anything but a
// 2xx answer. It is the demo job of the pipeline: enqueue a few flaky
// endpoints and watch the failures flow through the routing document.
type Probe struct {
	client *http.Client
}

func New() *Probe {
	return &Probe{
		client: &http.Client{Timeout: probeTimeout},
	}
}

func (p *Probe) Name() string { return "urlprobe" }

func (p *Probe) Process(ctx context.Context, item logwire.Item) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Payload, nil)
	if err != nil {
		return errors.Wrapf(err, "invalid probe url %q", item.Payload)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "cannot probe %s", item.Payload)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("probe %s answered %s", item.Payload, resp.Status)
	}

	return nil
}

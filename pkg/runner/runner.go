// Package runner drives the sequential build, sign and submit loop.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/order"
	"github.com/uhyunpark/clobexec/pkg/stats"
	"github.com/uhyunpark/clobexec/pkg/storage"
	"github.com/uhyunpark/clobexec/pkg/submit"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// Kind classifies a per-order failure by what has to be fixed.
type Kind string

const (
	KindNone      Kind = ""
	KindAuth      Kind = "auth"      // header or signature computation
	KindBusiness  Kind = "business"  // order parameters
	KindTransport Kind = "transport" // network; retry later
	KindBuild     Kind = "build"
	KindSigning   Kind = "signing"
	KindUnknown   Kind = "unknown"
)

// Classify maps any error from one iteration to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		rej  *submit.Rejection
		terr *submit.TransportError
		berr *order.BuildError
		serr *order.SigningError
		herr *auth.HeaderError
	)
	switch {
	case errors.As(err, &rej):
		if rej.Kind == submit.KindAuth {
			return KindAuth
		}
		return KindBusiness
	case errors.As(err, &terr):
		return KindTransport
	case errors.As(err, &berr):
		return KindBuild
	case errors.As(err, &serr):
		return KindSigning
	case errors.As(err, &herr):
		return KindAuth
	default:
		return KindUnknown
	}
}

// Settings control the loop.
type Settings struct {
	Iterations             int
	Delay                  time.Duration
	Warmup                 int
	MaxConsecutiveFailures int
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Pipeline  *order.Pipeline
	Submitter *submit.Submitter
	Journal   storage.Journal // nil: in-memory
	Clock     util.Clock      // nil: wall clock
	Logger    *zap.Logger
}

// Outcome is the result of one iteration.
type Outcome struct {
	Index      int
	OrderID    string
	Status     int
	Kind       Kind
	Err        error
	Body       []byte // response body, verbatim
	BodySHA256 string // digest of the request body
	Sample     stats.Sample
	Posted     bool
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Outcomes []Outcome
	Summary  stats.Summary
	Accepted int
	Failed   int
	Halted   bool
}

// Runner submits one order at a time. Not safe for concurrent Run calls.
type Runner struct {
	pipeline  *order.Pipeline
	submitter *submit.Submitter
	journal   storage.Journal
	clock     util.Clock
	logger    *zap.Logger
	settings  Settings
}

func New(deps Deps, settings Settings) (*Runner, error) {
	if deps.Pipeline == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("runner needs a pipeline and a submitter")
	}
	if settings.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", settings.Iterations)
	}
	if deps.Journal == nil {
		deps.Journal = storage.NewMemJournal()
	}
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		pipeline:  deps.Pipeline,
		submitter: deps.Submitter,
		journal:   deps.Journal,
		clock:     deps.Clock,
		logger:    deps.Logger,
		settings:  settings,
	}, nil
}

// Journal returns the receipt journal the runner writes to.
func (r *Runner) Journal() storage.Journal { return r.journal }

// Close releases the journal.
func (r *Runner) Close() error { return r.journal.Close() }

// Run submits req Iterations times. Per-order failures are reported in the
// Report and do not stop the loop unless MaxConsecutiveFailures is reached.
// The returned error is non-nil only when ctx ends the run early.
func (r *Runner) Run(ctx context.Context, req order.Request) (*Report, error) {
	collector := stats.NewCollector(r.settings.Warmup)
	report := &Report{RunID: uuid.NewString()}

	r.logger.Info("run_started",
		zap.String("run_id", report.RunID),
		zap.String("token_id", req.TokenID.Dec()),
		zap.String("side", req.Side.String()),
		zap.String("price", req.Price.String()),
		zap.String("size", req.Size.String()),
		zap.Int("iterations", r.settings.Iterations),
	)

	consecutive := 0
	for i := 1; i <= r.settings.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return r.finish(report, collector), err
		}

		out := r.once(ctx, i, req)
		report.Outcomes = append(report.Outcomes, out)
		if out.Posted {
			collector.Record(out.Sample)
		}
		r.record(report.RunID, req, out)

		if out.Err != nil {
			report.Failed++
			consecutive++
			if limit := r.settings.MaxConsecutiveFailures; limit > 0 && consecutive >= limit {
				report.Halted = true
				r.logger.Warn("run_halted", zap.Int("consecutive_failures", consecutive))
				break
			}
		} else {
			report.Accepted++
			consecutive = 0
		}

		if i < r.settings.Iterations {
			if err := util.Sleep(ctx, r.clock, r.settings.Delay); err != nil {
				return r.finish(report, collector), err
			}
		}
	}
	return r.finish(report, collector), nil
}

func (r *Runner) once(ctx context.Context, index int, req order.Request) Outcome {
	out := Outcome{Index: index}
	start := time.Now()

	unsigned, err := r.pipeline.Build(req)
	out.Sample.Build = time.Since(start)
	if err != nil {
		return r.fail(out, err)
	}

	signStart := time.Now()
	signed, err := r.pipeline.Sign(unsigned)
	out.Sample.Sign = time.Since(signStart)
	if err != nil {
		return r.fail(out, err)
	}

	body, err := r.pipeline.Encode(signed)
	if err != nil {
		return r.fail(out, err)
	}
	digest := sha256.Sum256(body)
	out.BodySHA256 = hex.EncodeToString(digest[:])
	r.logger.Debug("order_body", zap.Int("index", index), zap.String("sha256", out.BodySHA256))

	res, err := r.submitter.Submit(ctx, body)
	out.Sample.Total = time.Since(start)

	var (
		rej  *submit.Rejection
		terr *submit.TransportError
	)
	switch {
	case err == nil:
		out.Posted = true
		out.Status = res.Status
		out.OrderID = res.OrderID
		out.Body = res.Body
		out.Sample.Post = res.Post
		r.logger.Info("order_submitted",
			zap.Int("index", index),
			zap.Int("status", res.Status),
			zap.String("order_id", res.OrderID),
			zap.Duration("post", res.Post),
			zap.Duration("total", out.Sample.Total),
		)
		return out
	case errors.As(err, &rej):
		out.Posted = true
		out.Status = rej.Status
		out.Body = rej.Body
		out.Sample.Post = rej.Post
	case errors.As(err, &terr):
		out.Sample.Post = terr.Post
	}
	return r.fail(out, err)
}

func (r *Runner) fail(out Outcome, err error) Outcome {
	out.Err = err
	out.Kind = Classify(err)
	r.logger.Warn("order_failed",
		zap.Int("index", out.Index),
		zap.String("kind", string(out.Kind)),
		zap.Int("status", out.Status),
		zap.ByteString("body", out.Body),
		zap.Error(err),
	)
	return out
}

func (r *Runner) record(runID string, req order.Request, out Outcome) {
	rc := storage.Receipt{
		RunID:      runID,
		Index:      out.Index,
		At:         r.clock.Now(),
		TokenID:    req.TokenID.Dec(),
		Side:       req.Side.String(),
		Price:      req.Price.String(),
		Size:       req.Size.String(),
		Status:     out.Status,
		OrderID:    out.OrderID,
		Kind:       string(out.Kind),
		BodySHA256: out.BodySHA256,
		Build:      out.Sample.Build,
		Sign:       out.Sample.Sign,
		Post:       out.Sample.Post,
		Total:      out.Sample.Total,
	}
	if out.Err != nil {
		rc.Error = out.Err.Error()
	}
	if err := r.journal.Append(rc); err != nil {
		r.logger.Warn("journal_append_failed", zap.Int("index", out.Index), zap.Error(err))
	}
}

func (r *Runner) finish(report *Report, c *stats.Collector) *Report {
	report.Summary = c.Summary()
	r.logger.Info("run_finished",
		zap.String("run_id", report.RunID),
		zap.Int("accepted", report.Accepted),
		zap.Int("failed", report.Failed),
		zap.Bool("halted", report.Halted),
		zap.String("summary", report.Summary.String()),
	)
	return report
}

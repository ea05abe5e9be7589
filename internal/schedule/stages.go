package schedule

import (
	"context"
	"time"

	"github.com/sells-group/tender-intel/internal/dedup"
	"github.com/sells-group/tender-intel/internal/digest"
	"github.com/sells-group/tender-intel/internal/discovery"
	"github.com/sells-group/tender-intel/internal/evaluate"
	"github.com/sells-group/tender-intel/internal/feedback"
	"github.com/sells-group/tender-intel/internal/ingest"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/normalize"
)

// Pipeline holds the stage implementations wired from config.
type Pipeline struct {
	Discoverer   *discovery.Discoverer
	Ingester     *ingest.Runner
	Normalizer   *normalize.Normalizer
	Deduplicator *dedup.Deduplicator
	Evaluator    *evaluate.Evaluator
	Digest       *digest.Compiler
	Learner      *feedback.Learner
}

// Stages adapts every non-nil component into a stage, in pipeline order.
func (p *Pipeline) Stages(loc *time.Location) []Stage {
	var out []Stage
	if p.Discoverer != nil {
		out = append(out, NewStage(StageDiscovery, Weekly, loc, func(ctx context.Context) (*model.StageResult, error) {
			rep, err := p.Discoverer.Run(ctx)
			if err != nil {
				return nil, err
			}
			return rep.StageResult(), nil
		}))
	}
	if p.Ingester != nil {
		out = append(out, NewStage(StageIngest, Daily, loc, func(ctx context.Context) (*model.StageResult, error) {
			res, err := p.Ingester.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &model.StageResult{
				ItemsProcessed: len(res.Sources),
				NewItems:       res.NewCaptures,
				Failures:       res.Failed,
				Detail:         map[string]any{"duplicates": res.Duplicates},
			}, nil
		}))
	}
	if p.Normalizer != nil {
		out = append(out, NewStage(StageNormalize, Daily, loc, func(ctx context.Context) (*model.StageResult, error) {
			res, err := p.Normalizer.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &model.StageResult{
				ItemsProcessed: res.Processed,
				NewItems:       res.Created,
				Failures:       res.Failed,
				Detail: map[string]any{
					"updated": res.Updated,
					"closed":  res.Closed,
					"skipped": res.Skipped,
				},
			}, nil
		}))
	}
	if p.Deduplicator != nil {
		out = append(out, NewStage(StageDedup, Daily, loc, func(ctx context.Context) (*model.StageResult, error) {
			res, err := p.Deduplicator.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &model.StageResult{
				ItemsProcessed: res.Compared,
				Detail: map[string]any{
					"clusters":         res.Clusters,
					"marked_duplicate": res.MarkedDuplicate,
				},
			}, nil
		}))
	}
	if p.Evaluator != nil {
		out = append(out, NewStage(StageEvaluate, Daily, loc, func(ctx context.Context) (*model.StageResult, error) {
			res, err := p.Evaluator.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &model.StageResult{
				ItemsProcessed: res.Evaluated + len(res.Errors),
				NewItems:       res.Evaluated,
				Failures:       len(res.Errors),
				Detail: map[string]any{
					"profile_version": res.ProfileVersion,
					"labels":          res.Labels,
				},
			}, nil
		}))
	}
	if p.Digest != nil {
		out = append(out, NewStage(StageDigest, Daily, loc, func(ctx context.Context) (*model.StageResult, error) {
			res, err := p.Digest.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &model.StageResult{
				ItemsProcessed: len(res.Digest.TenderIDs()),
				NewItems:       res.Digest.Stats.NewTendersTotal,
				Failures:       len(res.Failed),
				Detail: map[string]any{
					"date":      res.Digest.Date,
					"delivered": res.Delivered,
				},
			}, nil
		}))
	}
	if p.Learner != nil {
		out = append(out, NewStage(StageFeedback, Weekly, loc, p.runFeedback).WithDue(p.Learner.Due))
	}
	return out
}

func (p *Pipeline) runFeedback(ctx context.Context) (*model.StageResult, error) {
	rep, err := p.Learner.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &model.StageResult{
		ItemsProcessed: rep.Accuracy.Sample,
		NewItems:       len(rep.Recommendations),
		Detail: map[string]any{
			"report_id": rep.ID,
			"f1":        rep.Accuracy.F1,
		},
	}, nil
}

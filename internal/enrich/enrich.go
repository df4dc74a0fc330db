// Package enrich attaches AI explanations to scan findings after the scanner exits.
package enrich

import (
	"context"

	"github.com/25smoking/Pallas/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers 同时在途的 AI 请求数量上限
const DefaultWorkers = 8

// Explainer 为单条漏洞生成解释与修复建议
type Explainer interface {
	Explain(ctx context.Context, f core.Finding) (core.AIAnnotation, error)
}

// ExplainerFunc adapts a function to Explainer.
type ExplainerFunc func(ctx context.Context, f core.Finding) (core.AIAnnotation, error)

func (fn ExplainerFunc) Explain(ctx context.Context, f core.Finding) (core.AIAnnotation, error) {
	return fn(ctx, f)
}

type Coordinator struct {
	explainer Explainer
	workers   int
	log       *zap.SugaredLogger
}

type Option func(*Coordinator)

// WithWorkers sets the fan-out width. Values below 1 fall back to DefaultWorkers.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCoordinator(explainer Explainer, opts ...Option) *Coordinator {
	c := &Coordinator{
		explainer: explainer,
		workers:   DefaultWorkers,
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workers returns the configured fan-out width.
func (c *Coordinator) Workers() int {
	return c.workers
}

// Enrich 并发请求每条结果的 AI 解释并原地写回。
// 单条失败只会让该条得到空注释，不会中断整体流程。
func (c *Coordinator) Enrich(ctx context.Context, findings []core.Finding) {
	if len(findings) == 0 {
		return
	}
	if c.explainer == nil {
		Clear(findings)
		return
	}

	var g errgroup.Group
	g.SetLimit(c.workers)

	for i := range findings {
		g.Go(func() error {
			f := findings[i]
			ann, err := core.SafeCall("AI 解释", func() (core.AIAnnotation, error) {
				return c.explainer.Explain(ctx, f)
			})
			if err != nil {
				c.log.Debugf("AI 解释失败 [%s]: %v", f.Name(), err)
				ann = core.AIAnnotation{}
			}
			findings[i].AI = ann
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, f := range findings {
		if f.AI.Empty() {
			failed++
		}
	}
	c.log.Infof("AI 解释完成: %d 条结果, %d 条无可用解释", len(findings), failed)
}

// Clear 关闭 AI 时为每条结果写入空注释，保证所有消费者看到一致的结构
func Clear(findings []core.Finding) {
	for i := range findings {
		findings[i].AI = core.AIAnnotation{}
	}
}

package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/llm"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/logger"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// ErrLLMUnavailable 重试预算耗尽或遇到不可重试的调用错误
var ErrLLMUnavailable = errors.New("llm unavailable")

// Outcome 单个聚类的合成结果：Draft 非空表示成功，否则 Reason 给出拒绝原因
type Outcome struct {
	Draft   *model.ThemeDraft
	Reason  model.Reason
	Detail  string
	Lenient bool
	Calls   int
}

// Unavailable 本次合成是否因 LLM 不可用而失败
func (o Outcome) Unavailable() bool {
	return o.Draft == nil && o.Reason == model.ReasonSynthesisUnavailable
}

func rejected(reason model.Reason, format string, args ...any) Outcome {
	return Outcome{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Synthesizer 聚类 -> 零或一个主题草稿
type Synthesizer interface {
	Synthesize(ctx context.Context, c *model.Cluster) Outcome
}

// New 根据配置选择单次调用或多步合成
func New(cfg config.SynthesisConfig, completer llm.Completer, limiter *rate.Limiter) Synthesizer {
	r := &retrier{
		completer:  completer,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay(),
		timeout:    cfg.CallTimeout(),
	}
	if cfg.Mode == "multi_step" {
		return &MultiStep{cfg: cfg, r: r}
	}
	return &SingleCall{cfg: cfg, r: r}
}

// retrier 对单次 LLM 调用施加超时、限流和指数退避重试
type retrier struct {
	completer  llm.Completer
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// complete 只重试瞬时错误，返回实际调用次数
func (r *retrier) complete(ctx context.Context, log *logrus.Entry, system, user string) (string, int, error) {
	var lastErr error
	calls := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", calls, err
			}
		}

		callCtx := ctx
		cancel := func() {}
		if r.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		calls++
		out, err := r.completer.Complete(callCtx, system, user)
		cancel()
		if err == nil {
			return out, calls, nil
		}

		// 服务可达但无内容，交给解码按格式错误处理
		if errors.Is(err, llm.ErrEmptyResponse) {
			log.Warn("LLM 返回空内容")
			return "", calls, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", calls, ctx.Err()
		}
		if !llm.IsTransient(err) {
			return "", calls, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.baseDelay * time.Duration(1<<attempt)
		log.Warnf("LLM 调用失败 (第 %d 次)，%s 后重试: %v", calls, delay, err)
		select {
		case <-ctx.Done():
			return "", calls, ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", calls, fmt.Errorf("%w after %d calls: %v", ErrLLMUnavailable, calls, lastErr)
}

func clusterLog(c *model.Cluster) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{"component": "synth", "cluster_id": c.ID})
}

// SingleCall 一次调用产出完整主题
type SingleCall struct {
	cfg config.SynthesisConfig
	r   *retrier
}

// Synthesize implements Synthesizer
func (s *SingleCall) Synthesize(ctx context.Context, c *model.Cluster) Outcome {
	log := clusterLog(c)
	system, user := BuildPrompt(c, s.cfg.SampleSize)

	raw, calls, err := s.r.complete(ctx, log, system, user)
	if err != nil {
		out := rejected(model.ReasonSynthesisUnavailable, "%v", err)
		out.Calls = calls
		return out
	}

	var out Outcome
	switch res := Decode(raw).(type) {
	case ParseFailure:
		out = rejected(res.Reason, "%v", res.Err)
	case ParseSuccess:
		if res.Lenient {
			log.Warn("LLM 输出非严格 JSON，已使用宽松解码")
		}
		out = buildDraft(c, res.Draft, nil)
		out.Lenient = res.Lenient
	}
	out.Calls = calls
	return out
}

// buildDraft 校验引用完整性并组装草稿，引用 ID 必须来自聚类成员
func buildDraft(c *model.Cluster, d RawDraft, quoteIDs []string) Outcome {
	members := model.NewIndex(c.Members)
	found, missing := members.Resolve(d.SupportingFindingIDs)
	if len(missing) > 0 {
		return rejected(model.ReasonInvalidReference, "unknown finding ids %v", missing)
	}
	if _, missing := members.Resolve(quoteIDs); len(missing) > 0 {
		return rejected(model.ReasonInvalidReference, "unknown quote finding ids %v", missing)
	}

	return Outcome{Draft: &model.ThemeDraft{
		ClusterID:            c.ID,
		Kind:                 c.Kind(),
		Title:                d.Title,
		Statement:            d.Statement,
		Classification:       model.Classification(d.Classification),
		SupportingFindingIDs: d.SupportingFindingIDs,
		QuoteSourceIDs:       quoteIDs,
		EntityIDs:            model.EntitySet(found),
	}}
}

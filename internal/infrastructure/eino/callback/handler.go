package callback

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/metrics"
)

type startTimeKey struct{}

// usage 一次调用的 Token 拆分
type usage struct {
	prompt     int
	completion int
}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}
			if input != nil {
				attrs = append(attrs, attribute.Int("llm.messages", len(input.Messages)))
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.chat_model", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			finish(ctx, modelNameFromOutput(output), usageFromOutput(output), nil)
			return ctx
		},

		// 流式输出必须读完并关闭，否则会阻塞上游
		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()

				var (
					total     usage
					modelName string
					err       error
				)
				for {
					frame, recvErr := output.Recv()
					if errors.Is(recvErr, io.EOF) {
						break
					}
					if recvErr != nil {
						err = recvErr
						break
					}
					if name := modelNameFromOutput(frame); name != "" {
						modelName = name
					}
					// 只有最后一帧携带累计用量，取最大值
					if u := usageFromOutput(frame); u.prompt+u.completion > total.prompt+total.completion {
						total = u
					}
				}
				finish(ctx, modelName, total, err)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			finish(ctx, "", usage{}, err)
			return ctx
		},
	}
}

// finish 记录 Token 拆分并结束 OnStart 打开的 span
func finish(ctx context.Context, modelName string, u usage, err error) {
	if u.prompt > 0 || u.completion > 0 {
		metrics.LLMChatModelTokens.WithLabelValues(modelName, "prompt").Add(float64(u.prompt))
		metrics.LLMChatModelTokens.WithLabelValues(modelName, "completion").Add(float64(u.completion))
	}

	logger.Debug(ctx, "chat model call finished",
		"model", modelName,
		"prompt_tokens", u.prompt,
		"completion_tokens", u.completion,
		"duration_ms", int64(elapsedSeconds(ctx)*1000),
		"failed", err != nil,
	)

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", u.prompt),
		attribute.Int("llm.completion_tokens", u.completion),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func elapsedSeconds(ctx context.Context) float64 {
	v := ctx.Value(startTimeKey{})
	start, ok := v.(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func usageFromOutput(out *model.CallbackOutput) usage {
	if out == nil || out.TokenUsage == nil {
		return usage{}
	}
	return usage{prompt: out.TokenUsage.PromptTokens, completion: out.TokenUsage.CompletionTokens}
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}

package callback

import (
	"context"
	"testing"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	dto "github.com/prometheus/client_model/go"

	"content-ai-api/pkg/metrics"
)

func tokens(t *testing.T, modelName, kind string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.LLMChatModelTokens.WithLabelValues(modelName, kind).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func output(modelName string, prompt, completion int) *model.CallbackOutput {
	return &model.CallbackOutput{
		Config:     &model.Config{Model: modelName},
		TokenUsage: &model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}
}

func TestChatModelHandlerRecordsTokenSplit(t *testing.T) {
	h := newChatModelCallbackHandler()
	info := &einocb.RunInfo{Name: "chat", Type: "OpenAI"}

	ctx := h.OnStart(context.Background(), info, &model.CallbackInput{
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Config:   &model.Config{Model: "unit-sync"},
	})
	if elapsedSeconds(ctx) < 0 {
		t.Fatal("start time not recorded")
	}
	h.OnEnd(ctx, info, output("unit-sync", 11, 5))

	if got := tokens(t, "unit-sync", "prompt"); got != 11 {
		t.Errorf("prompt tokens = %v", got)
	}
	if got := tokens(t, "unit-sync", "completion"); got != 5 {
		t.Errorf("completion tokens = %v", got)
	}
}

func TestChatModelHandlerDrainsStreamOutput(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := h.OnStart(context.Background(), nil, &model.CallbackInput{Config: &model.Config{Model: "unit-stream"}})

	sr, sw := schema.Pipe[*model.CallbackOutput](4)
	sw.Send(&model.CallbackOutput{Config: &model.Config{Model: "unit-stream"}}, nil)
	sw.Send(output("unit-stream", 7, 3), nil)
	sw.Close()

	h.OnEndWithStreamOutput(ctx, nil, sr)

	deadline := time.Now().Add(2 * time.Second)
	for tokens(t, "unit-stream", "completion") != 3 {
		if time.Now().After(deadline) {
			t.Fatal("stream usage was not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := tokens(t, "unit-stream", "prompt"); got != 7 {
		t.Errorf("prompt tokens = %v", got)
	}
}

func TestUsageFromOutputHandlesNil(t *testing.T) {
	if u := usageFromOutput(nil); u != (usage{}) {
		t.Errorf("usage = %+v", u)
	}
	if name := modelNameFromInput(&model.CallbackInput{}); name != "" {
		t.Errorf("model = %q", name)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"content-ai-api/internal/application/prompt"
	"content-ai-api/internal/application/validation"
	"content-ai-api/internal/interfaces/http/dto"
)

func newPromptCmd() *cobra.Command {
	var (
		file         string
		minWordCount int
	)

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Validate a generation request and print the rendered prompt without calling a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			out, err := renderPrompt(cmd.Context(), in, minWordCount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "request JSON file (- for stdin)")
	cmd.Flags().IntVar(&minWordCount, "min-word-count", validation.DefaultMinWordCount, "minimum accepted word_count")
	return cmd
}

// renderPrompt 走与 HTTP 相同的校验与模板，只是不调用模型
func renderPrompt(ctx context.Context, in io.Reader, minWordCount int) (string, error) {
	var req dto.GenerateRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request json: %w", err)
	}
	norm, err := validation.New(minWordCount).Validate(req.ToEntity())
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	msgs, err := prompt.NewBuilder(prompt.NewRegistry()).Build(ctx, norm)
	if err != nil {
		return "", err
	}
	return prompt.Render(msgs), nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DescribeImage returns the key elements of the image at the given URL.
// The description feeds the generation prompt; errors propagate so the
// pipeline can drop the image path and continue.
func (g *Generator) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.RecheckModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "List the key elements of this image: main subjects, notable objects, any readable text, and the overall scene. Be concise.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: g.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("image description returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

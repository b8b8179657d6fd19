// Package gemini implements the generation collaborator against the Google
// Gemini API. The relay treats it as an opaque text-completion service; all
// reply shaping happens downstream.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"warmline/internal/session"
)

// Config holds the Gemini connection settings.
type Config struct {
	APIKey string
	Model  string
}

// Client wraps the genai SDK as a relay.Generator.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Generate requests a completion for the given system instruction and turns.
// maxOutputTokens is a generous hint; the shaper owns final length.
func (c *Client) Generate(ctx context.Context, system string, turns []session.Turn, maxOutputTokens int32) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Text, genaiRole(turn.Role)))
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.9),
		TopP:              genai.Ptr[float32](0.95),
		MaxOutputTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return text, nil
}

// genaiRole maps a session role onto the API's Role type. Everything that is
// not the assistant speaks as the user.
func genaiRole(r session.Role) genai.Role {
	if r == session.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

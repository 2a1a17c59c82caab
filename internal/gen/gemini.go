// Package gen wraps the stateless generate-content API used for the
// companion copy: suggestions, reflections, task breakdowns and
// categorization. One request, one response, no session state.
package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the generate-content REST endpoint.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	// BaseURL overrides the production endpoint (tests).
	BaseURL string
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// NewClient builds a client with a conservative request timeout.
func NewClient(apiKey, model string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type schema struct {
	Type       string             `json:"type"`
	Properties map[string]*schema `json:"properties,omitempty"`
	Items      *schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt, system string, cfg *generationConfig) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("gen: api key missing")
	}
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", base, c.Model)

	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	}
	if system != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gen: status=%d body=%s", resp.StatusCode, string(b))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", err
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gen: empty candidates")
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}

// Breakdown splits a task into 3-5 small encouraging steps.
func (c *Client) Breakdown(ctx context.Context, taskTitle string) ([]string, error) {
	prompt := fmt.Sprintf(`Break down the task %q into 3-5 small, manageable, and encouraging steps. Be concise.`, taskTitle)
	cfg := &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema: &schema{
			Type: "OBJECT",
			Properties: map[string]*schema{
				"steps": {Type: "ARRAY", Items: &schema{Type: "STRING"}},
			},
			Required: []string{"steps"},
		},
	}
	text, err := c.generate(ctx, prompt, "", cfg)
	if err != nil {
		return nil, err
	}
	var out struct {
		Steps []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("gen: breakdown response: %w", err)
	}
	return out.Steps, nil
}

// Categorize assigns a zone and energy level to a task title. Callers treat
// failures as other/low.
func (c *Client) Categorize(ctx context.Context, title string) (zone, energy string, err error) {
	prompt := fmt.Sprintf(`Categorize the task %q into a Zone (self, work, home, social, other) and Energy Level (low, high).`, title)
	cfg := &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema: &schema{
			Type: "OBJECT",
			Properties: map[string]*schema{
				"zone":   {Type: "STRING", Enum: []string{"self", "work", "home", "social", "other"}},
				"energy": {Type: "STRING", Enum: []string{"low", "high"}},
			},
			Required: []string{"zone", "energy"},
		},
	}
	text, err := c.generate(ctx, prompt, "", cfg)
	if err != nil {
		return "", "", err
	}
	var out struct {
		Zone   string `json:"zone"`
		Energy string `json:"energy"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", "", fmt.Errorf("gen: categorize response: %w", err)
	}
	return out.Zone, out.Energy, nil
}

// DailyReflection writes a short kind reflection over finished and pending
// task titles.
func (c *Client) DailyReflection(ctx context.Context, completed, pending []string) (string, error) {
	done := strings.Join(completed, ", ")
	if done == "" {
		done = "None yet"
	}
	open := strings.Join(pending, ", ")
	if open == "" {
		open = "None"
	}
	prompt := fmt.Sprintf(`Reflect on this user's garden of tasks today.
Finished: %s
Still Growing: %s
Write a 3-sentence poetic reflection. Be extremely kind. Focus on the effort and the beauty of small progress. Avoid making them feel bad about what isn't done. Use garden metaphors.`, done, open)
	return c.generate(ctx, prompt, "", nil)
}

// KindSuggestion proposes which pending task to pick up first.
func (c *Client) KindSuggestion(ctx context.Context, pending []string) (string, error) {
	var prompt string
	if len(pending) > 0 {
		prompt = fmt.Sprintf("I have these tasks: %s. Give me one short sentence of warm encouragement and suggest which one I should do first to feel good.", strings.Join(pending, ", "))
	} else {
		prompt = "I have no tasks right now. Give me a very short, warm message about resting or finding something small to grow today."
	}
	system := "You are SmartDo, a kind and supportive productivity companion. You hate dread and love small progress. Keep responses under 20 words."
	return c.generate(ctx, prompt, system, nil)
}

// WateringTip gives one tiny way to start a task the user is stuck on.
func (c *Client) WateringTip(ctx context.Context, taskTitle string) (string, error) {
	prompt := fmt.Sprintf(`The user is stuck on %q. Give them one tiny "watering tip" - a specific, very easy way to start right now that takes less than 2 minutes. Be warm.`, taskTitle)
	return c.generate(ctx, prompt, "", nil)
}

// Package analyze serializes task history into closed-form features,
// delegates summarization to an LLM collaborator and renders the result
// into the fixed productivity report.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

const analysisPrompt = `You are a productivity analyst. Study the task history below and return observations.

Rules:
1. Base every observation on the data, no speculation
2. Keep each entry to one sentence
3. patterns describe what the user actually does; suggestions are concrete next steps

Return strict JSON object:
{"patterns":["..."],"suggestions":["..."]}

Task history:
%s`

// Summary is the collaborator's structured result.
type Summary struct {
	Patterns    []string `json:"patterns"`
	Suggestions []string `json:"suggestions"`
}

type Summarizer interface {
	Summarize(ctx context.Context, payload string) (*Summary, error)
}

// feature is the closed-form per-task record handed to the collaborator.
type feature struct {
	Task            string  `json:"task"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority"`
	Category        string  `json:"category,omitempty"`
	Deadline        string  `json:"deadline,omitempty"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     string  `json:"completed_at,omitempty"`
	CompletionHours float64 `json:"completion_hours,omitempty"`
}

type Service struct {
	summarizer Summarizer
}

func NewService(s Summarizer) *Service {
	return &Service{summarizer: s}
}

// Analyze builds the feature payload, asks the collaborator for patterns
// and suggestions, and renders the fixed two-section report.
func (s *Service) Analyze(ctx context.Context, tasks []task.Task) (string, error) {
	payload, err := Serialize(tasks)
	if err != nil {
		return "", err
	}
	sum, err := s.summarizer.Summarize(ctx, payload)
	if err != nil {
		return "", err
	}
	return Render(sum), nil
}

// Serialize flattens the tasks into one feature record per line.
func Serialize(tasks []task.Task) (string, error) {
	var sb strings.Builder
	for _, t := range tasks {
		f := feature{
			Task:      t.Text,
			Status:    "pending",
			Priority:  string(t.Priority),
			Category:  t.Category,
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		}
		if t.IsCompleted {
			f.Status = "completed"
		}
		if t.DueDate != nil {
			f.Deadline = t.DueDate.Format(time.RFC3339)
		}
		if t.CompletedAt != nil {
			f.CompletedAt = t.CompletedAt.Format(time.RFC3339)
			f.CompletionHours = t.CompletedAt.Sub(t.CreatedAt).Hours()
		}
		line, err := json.Marshal(f)
		if err != nil {
			return "", fmt.Errorf("serialize task %s: %w", t.ID, err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Render produces the fixed report layout: patterns first, suggestions after.
func Render(sum *Summary) string {
	var sb strings.Builder
	sb.WriteString("Here's what I noticed about your productivity:\n\n")
	sb.WriteString("Patterns:\n")
	if len(sum.Patterns) == 0 {
		sb.WriteString("- Nothing stands out yet.\n")
	}
	for _, p := range sum.Patterns {
		sb.WriteString("- " + p + "\n")
	}
	sb.WriteString("\nSuggestions:\n")
	if len(sum.Suggestions) == 0 {
		sb.WriteString("- Keep going as you are.\n")
	}
	for _, s := range sum.Suggestions {
		sb.WriteString("- " + s + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// llmSummarizer calls a chat-completions endpoint directly and expects
// strict JSON back.
type llmSummarizer struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewSummarizer(cfg *config.Config) Summarizer {
	return &llmSummarizer{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    cfg.Provider.BaseURL,
		model:      cfg.Agent.Model,
		maxTokens:  cfg.Agent.MaxTokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *llmSummarizer) Summarize(ctx context.Context, payload string) (*Summary, error) {
	content, err := c.complete(ctx, fmt.Sprintf(analysisPrompt, payload))
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	var out Summary
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("parse analysis result: %w", err)
	}
	return &out, nil
}

func (c *llmSummarizer) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing analysis api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing analysis base url")
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":  c.maxTokens,
		"temperature": 0.3,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("analysis model http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty analysis response")
	}
	return decoded.Choices[0].Message.Content, nil
}

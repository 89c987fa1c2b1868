package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/yukikurage/circuit/internal/models"
)

type AIService struct {
	client  *openai.Client
	timeout time.Duration
}

// GeneratedTask is a suggestion returned to the client; it is never persisted directly.
type GeneratedTask struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Priority       models.Priority `json:"priority"`
	DueDate        *time.Time      `json:"due_date"`
	EstimatedHours float64         `json:"estimated_hours"`
	Checklist      []string        `json:"checklist"`
}

func NewAIService(apiKey string, timeout time.Duration) *AIService {
	return &AIService{
		client:  openai.NewClient(apiKey),
		timeout: timeout,
	}
}

// GenerateTasksFromText analyzes text and extracts tasks using OpenAI GPT
func (s *AIService) GenerateTasksFromText(ctx context.Context, text string) ([]GeneratedTask, error) {
	if s.client == nil {
		return nil, fmt.Errorf("OpenAI client not initialized")
	}

	currentTime := time.Now().Format("2006-01-02 15:04:05")
	prompt := fmt.Sprintf(`You are a project assistant. Extract concrete, actionable tasks from the text below.

Current time: %s

Text:
%s

Reply with a JSON array of tasks in this shape:
[
  {
    "title": "short task title",
    "description": "what has to be done",
    "priority": "one of low, medium, high, urgent",
    "due_date": "deadline in ISO8601 (e.g. 2025-10-28T23:59:59Z), or null when none is stated",
    "estimated_hours": 0,
    "checklist": ["optional concrete steps"]
  }
]

Rules:
- Return [] when the text contains no task
- Convert relative deadlines ("tomorrow", "next week") to absolute dates
- due_date must be an ISO8601 string or null
- Return JSON only, without any prose or code fences`, currentTime, text)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.3,
		},
	)

	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)

	var tasks []GeneratedTask
	if err := json.Unmarshal([]byte(content), &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w (response: %s)", err, content)
	}

	return tasks, nil
}

// stripCodeFence removes a ```json fence the model sometimes adds despite the prompt.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

package backend

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"QuizMaster/internal/config"
)

// NewClient returns a chat-completions client for the configured
// OpenAI-compatible backend.
func NewClient(cfg config.Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return openai.NewClientWithConfig(clientCfg)
}

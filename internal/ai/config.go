package ai

import (
	"time"

	"talkbot/internal/config"
)

const defaultManagerPrompt = `You talk to another AI assistant on my behalf.

Goal:
I will tell you what I want to achieve (my purpose). Work with the assistant and keep
giving it instructions until the purpose is achieved at the highest quality you can reach.

How to work:
- Keep talking to the assistant until you are confident the purpose is met.
- Split large work into small tasks. Hand out one task at a time and evaluate each answer
  before handing out the next one.
- You are the assistant's reviewer and manager. Push back on weak answers.
- Ask me (HUMAN) only when you truly need information that only I have.

Input format:
Human> a message from me
AI> an answer from the assistant

Output format:
Always answer by calling the talk_to_ai function, never with plain text.
- metadata.continue: true while the conversation should go on, false when you are done.
- payload.to: "AI" to instruct the assistant, "HUMAN" to talk to me.
- payload.message: the message itself.

When the purpose is achieved, call talk_to_ai with continue set to false.`

const legacyManagerPrompt = `You talk to another AI assistant on my behalf until my purpose is achieved.

Always call the talk_to_ai function. Set continue to true while more work is needed and
to false when the purpose is achieved. Put your instructions for the assistant in the
message content next to the call.`

const summaryPrompt = `Human> Summarize the whole conversation as a report for me.
Do your best to help me achieve the purpose I gave you at the start.
Write it in Markdown and start with the heading "# Conversation summary".`

// ManagerSettings derives the manager agent settings from the config.
func ManagerSettings(cfg *config.Config) Settings {
	prompt := cfg.Dialogue.SystemPrompt
	if prompt == "" {
		prompt = defaultManagerPrompt
		if cfg.Dialogue.Schema == config.SchemaFlat {
			prompt = legacyManagerPrompt
		}
	}
	return Settings{
		Model:        cfg.AI.ManagerModel,
		SystemPrompt: prompt,
		Temperature:  cfg.AI.Temperature,
		MaxTokens:    cfg.AI.MaxResponseTokens,
		Timeout:      time.Duration(cfg.AI.APITimeout) * time.Second,
	}
}

// WorkerSettings derives the worker agent settings from the config. The
// worker gets no system prompt; it answers tasks as a plain assistant.
func WorkerSettings(cfg *config.Config) Settings {
	return Settings{
		Model:       cfg.AI.WorkerModel,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxResponseTokens,
		Timeout:     time.Duration(cfg.AI.APITimeout) * time.Second,
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const storytellerSystemPrompt = `You are a dramatic storyteller for a village werewolf game. When a player dies, you tell a short atmospheric story about their fate. Keep it to 2-3 sentences. Be gothic and dramatic, and never reveal anyone's role.`

// Storyteller narrates deaths into the game chat.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

// globalStoryteller is nil when no provider is configured (feature disabled).
var globalStoryteller Storyteller

// storiesInFlight lets shutdown and tests wait for pending narrations.
var storiesInFlight sync.WaitGroup

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"What the village has seen so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about the last death."),
	}

	var fullText strings.Builder
	opts := append(append([]llms.CallOption{}, s.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.StorytellerTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.StorytellerTemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
			log.Printf("Storyteller: temperature=%.2f", f)
		} else {
			log.Printf("Storyteller: invalid temperature %q: %v", cfg.StorytellerTemperature, err)
		}
	}

	if cfg.StorytellerThinking != "" {
		mode := llms.ThinkingMode(cfg.StorytellerThinking)
		switch mode {
		case llms.ThinkingModeNone, llms.ThinkingModeLow, llms.ThinkingModeMedium, llms.ThinkingModeHigh, llms.ThinkingModeAuto:
			opts = append(opts, llms.WithThinkingMode(mode))
			log.Printf("Storyteller: thinking=%s", mode)
		default:
			log.Printf("Storyteller: invalid thinking %q (valid: none, low, medium, high, auto)", cfg.StorytellerThinking)
		}
	}

	return opts
}

// storytellerHTTPClient is the client LLM providers talk through. With
// request logging on, provider traffic lands in requests.log next to the API's.
func storytellerHTTPClient() *http.Client {
	if appLogger == nil || !appLogger.logRequests {
		return http.DefaultClient
	}
	return &http.Client{Transport: &LoggingRoundTripper{Transport: http.DefaultTransport, Logger: appLogger}}
}

// newStorytellerModel builds the LLM client for the configured provider.
// A nil model with a nil error means the storyteller is disabled.
func newStorytellerModel(cfg AppConfig) (llms.Model, error) {
	model := cfg.StorytellerModel
	client := storytellerHTTPClient()
	switch cfg.StorytellerProvider {
	case "":
		return nil, nil
	case "ollama":
		return ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.StorytellerOllamaURL), ollama.WithHTTPClient(client))
	case "openai":
		return openai.New(openai.WithModel(model), openai.WithHTTPClient(client))
	case "claude":
		return anthropic.New(anthropic.WithModel(model), anthropic.WithHTTPClient(client))
	case "gemini":
		return googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		return openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
			openai.WithHTTPClient(client),
		)
	case "openai-compatible":
		if cfg.StorytellerURL == "" {
			return nil, fmt.Errorf("storyteller_url is required for openai-compatible provider")
		}
		opts := []openai.Option{openai.WithModel(model), openai.WithBaseURL(cfg.StorytellerURL), openai.WithHTTPClient(client)}
		if cfg.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.StorytellerAPIKey))
		}
		return openai.New(opts...)
	}
	return nil, fmt.Errorf("unknown storyteller provider %q", cfg.StorytellerProvider)
}

// initStoryteller sets up the global storyteller from config.
func initStoryteller(cfg AppConfig) {
	llm, err := newStorytellerModel(cfg)
	if err != nil {
		log.Printf("Storyteller: failed to init %s (%s): %v", cfg.StorytellerProvider, cfg.StorytellerModel, err)
		return
	}
	if llm == nil {
		log.Printf("Storyteller: disabled (set storyteller_provider to enable)")
		return
	}
	globalStoryteller = &llmStoryteller{llm: llm, systemPrompt: storytellerSystemPrompt, callOpts: buildCallOpts(cfg)}
	log.Printf("Storyteller: %s model=%s", cfg.StorytellerProvider, cfg.StorytellerModel)
}

// storyFor returns an after-commit effect that narrates a death into the
// global chat. The story is generated outside any transaction and posted by
// its own mutation once complete.
func storyFor(game Game, victim, cause string) func() {
	return func() {
		teller := globalStoryteller
		if teller == nil {
			return
		}
		storiesInFlight.Add(1)
		go func() {
			defer storiesInFlight.Done()
			tellStory(teller, game.ID, fmt.Sprintf("Turn %d: %s was %s.", game.TurnNumber, victim, cause))
		}()
	}
}

func tellStory(teller Storyteller, gameID, latest string) {
	history, err := storyHistory(db, gameID)
	if err != nil {
		logError("tellStory: fetch history", err)
		return
	}
	history = append(history, latest)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	story, err := teller.Tell(ctx, history, nil)
	if err != nil {
		log.Printf("tellStory: storyteller error: %v", err)
		return
	}
	story = strings.TrimSpace(story)
	if story == "" {
		return
	}

	err = runMutation("tellStory", func(m *mutation) error {
		if err := m.postMessage(gameID, ChannelGlobal, storytellerSenderName, story); err != nil {
			return err
		}
		m.broadcast(gameID)
		return nil
	})
	if err == nil {
		log.Printf("Storyteller: told a story for game %s", gameID)
	}
}

// storyHistory is the public record so far: system and storyteller lines in the global channel.
func storyHistory(q sqlx.Queryer, gameID string) ([]string, error) {
	var lines []string
	err := sqlx.Select(q, &lines, `SELECT content FROM chat_message
		WHERE game_id = ? AND channel = ? AND sender_id = ''
		ORDER BY timestamp, rowid`, gameID, ChannelGlobal)
	return lines, err
}

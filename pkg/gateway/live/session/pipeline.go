package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voicewire/voicerelay/pkg/core/llm"
	"github.com/voicewire/voicerelay/pkg/core/types"
	"github.com/voicewire/voicerelay/pkg/core/voice/tts"
	"github.com/voicewire/voicerelay/pkg/gateway/live/protocol"
)

const (
	chatSystemPrompt = "You are a helpful voice assistant. Keep replies short and conversational. Do not emit markdown. Expand numbers, symbols, and abbreviations for speech."

	newsSummaryPromptFmt = "Rewrite this tech headline as one short spoken sentence. Reply with the sentence only.\nHeadline: %s"

	newsIntroLine = "Here are the latest tech headlines."
	newsEmptyLine = "Nothing new on the front page right now."
	newsOutroLine = "That's the roundup for now."

	apologyText = "Sorry, I ran into an issue with that request. Please try again."
)

// newsTriggerTerms mark an utterance as a headline request, matched
// case-insensitively as substrings.
var newsTriggerTerms = []string{"news", "headlines", "latest updates", "top stories"}

type TTSConfig struct {
	Voice      string
	Style      string
	Format     string
	SampleRate int
}

type TTSContext interface {
	SendText(text string, isFinal bool) error
	Audio() <-chan []byte
	Done() <-chan struct{}
	Err() error
	Close() error
}

type TTSProvider interface {
	NewContext(ctx context.Context, cfg TTSConfig) (TTSContext, error)
}

type TTSProviderAdapter struct {
	Provider tts.Provider
}

func (a TTSProviderAdapter) NewContext(ctx context.Context, cfg TTSConfig) (TTSContext, error) {
	if a.Provider == nil {
		return nil, fmt.Errorf("tts provider is nil")
	}
	sc, err := a.Provider.NewStreamingContext(ctx, tts.SynthesizeOptions{
		Voice:      cfg.Voice,
		Style:      cfg.Style,
		Format:     cfg.Format,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

type NewsFetcher interface {
	Fetch(ctx context.Context, limit int, randomize bool) ([]types.Story, error)
}

type conversationHistory interface {
	AppendUser(text string)
	AppendAssistant(text string)
	Prompt() string
}

// responsePipeline runs one user utterance through generation and
// synthesis, emitting events through the session's outbound funnel.
// Providers are resolved lazily so credentials supplied after connect
// still apply to legs that have not opened yet.
type responsePipeline struct {
	getLLM  func(ctx context.Context) (llm.Provider, error)
	getTTS  func() (TTSProvider, error)
	news    NewsFetcher
	history conversationHistory
	cfg     Config
	logger  *slog.Logger
	emit    func(v any) error
}

func isNewsRequest(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, term := range newsTriggerTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// run processes one committed utterance. The user turn is recorded
// before generation starts so a failed round still shows up in
// history as something the user said.
func (p *responsePipeline) run(ctx context.Context, utterance string) {
	p.history.AppendUser(utterance)

	if p.news != nil && isNewsRequest(utterance) {
		p.runNews(ctx)
		return
	}
	p.runChat(ctx)
}

func (p *responsePipeline) runChat(ctx context.Context) {
	provider, err := p.getLLM(ctx)
	if err != nil {
		p.failTurn(ctx, "language model unavailable", err)
		return
	}

	stream, err := provider.GenerateStream(ctx, p.history.Prompt(), llm.GenerateOptions{
		Model:        p.cfg.LLMModel,
		SystemPrompt: chatSystemPrompt,
	})
	if err != nil {
		p.failTurn(ctx, "language model request failed", err)
		return
	}
	defer stream.Close()

	var reply strings.Builder
	for chunk := range stream.Chunks() {
		reply.WriteString(chunk)
		if err := p.emit(protocol.ServerLLMChunk{Type: protocol.TypeLLMChunk, Text: chunk}); err != nil {
			return
		}
	}
	if err := stream.Err(); err != nil {
		p.failTurn(ctx, "language model stream failed", err)
		return
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		p.failTurn(ctx, "language model returned no text", nil)
		return
	}
	if err := p.emit(protocol.ServerLLMEnd{Type: protocol.TypeLLMEnd}); err != nil {
		return
	}
	p.history.AppendAssistant(text)

	if err := p.speak(ctx, text); err != nil {
		p.logger.Warn("tts leg failed", "error", err)
		_ = p.emit(protocol.ServerError{Type: protocol.TypeError, Text: "speech synthesis failed"})
	}
}

func (p *responsePipeline) runNews(ctx context.Context) {
	limit := p.cfg.NewsLimit
	if limit <= 0 {
		limit = 5
	}
	stories, err := p.news.Fetch(ctx, limit, true)
	if err != nil {
		p.failTurn(ctx, "could not fetch headlines", err)
		return
	}
	lines := make([]string, 0, len(stories)+2)
	lines = append(lines, newsIntroLine)
	if len(stories) == 0 {
		// An empty feed is not a failure; say so and move on.
		lines = append(lines, newsEmptyLine)
	}
	for _, story := range stories {
		lines = append(lines, p.summarizeHeadline(ctx, story.Title))
	}
	lines = append(lines, newsOutroLine)

	for _, line := range lines {
		if err := p.emit(protocol.ServerLLMChunk{Type: protocol.TypeLLMChunk, Text: line + "\n"}); err != nil {
			return
		}
	}
	if err := p.emit(protocol.ServerLLMEnd{Type: protocol.TypeLLMEnd}); err != nil {
		return
	}

	text := strings.Join(lines, "\n")
	p.history.AppendAssistant(text)

	if err := p.speak(ctx, text); err != nil {
		p.logger.Warn("tts leg failed", "error", err)
		_ = p.emit(protocol.ServerError{Type: protocol.TypeError, Text: "speech synthesis failed"})
	}
}

// summarizeHeadline asks the model for a one-sentence spoken version
// of a headline, falling back to the raw title when generation fails.
func (p *responsePipeline) summarizeHeadline(ctx context.Context, title string) string {
	provider, err := p.getLLM(ctx)
	if err != nil {
		return title
	}
	summary, err := provider.Generate(ctx, fmt.Sprintf(newsSummaryPromptFmt, title), llm.GenerateOptions{
		Model:           p.cfg.LLMModel,
		MaxOutputTokens: 80,
	})
	if err != nil {
		p.logger.Warn("headline summary failed", "title", title, "error", err)
		return title
	}
	summary = strings.TrimSpace(strings.ReplaceAll(summary, "\n", " "))
	if summary == "" {
		return title
	}
	return summary
}

// failTurn reports a turn failure to the client and makes a
// best-effort attempt to speak an apology so voice-only clients hear
// something went wrong.
func (p *responsePipeline) failTurn(ctx context.Context, text string, cause error) {
	if cause != nil {
		p.logger.Warn("turn failed", "reason", text, "error", cause)
	} else {
		p.logger.Warn("turn failed", "reason", text)
	}
	if err := p.emit(protocol.ServerError{Type: protocol.TypeError, Text: text}); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err := p.speak(ctx, apologyText); err != nil {
		p.logger.Warn("apology synthesis failed", "error", err)
	}
}

// speak synthesizes text and emits audio chunks followed by the
// end-of-audio marker. On failure nothing marks the audio stream
// complete; the caller decides what to tell the client.
func (p *responsePipeline) speak(ctx context.Context, text string) error {
	provider, err := p.getTTS()
	if err != nil {
		return err
	}

	ttsCtx, err := provider.NewContext(ctx, TTSConfig{
		Voice:      p.cfg.TTSVoice,
		Format:     p.cfg.TTSFormat,
		SampleRate: p.cfg.TTSSampleRate,
	})
	if err != nil {
		return err
	}
	defer ttsCtx.Close()

	if err := ttsCtx.SendText(text, true); err != nil {
		return err
	}

	for {
		select {
		case chunk, ok := <-ttsCtx.Audio():
			if !ok {
				if err := ttsCtx.Err(); err != nil {
					return err
				}
				return p.emit(protocol.ServerEndOfAudio{Type: protocol.TypeEndOfAudio})
			}
			if len(chunk) == 0 {
				continue
			}
			frame := protocol.ServerAudioChunk{
				Type: protocol.TypeAudioChunk,
				Data: base64.StdEncoding.EncodeToString(chunk),
			}
			if err := p.emit(frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// encodeEvent marshals an outbound event once, at enqueue time.
func encodeEvent(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode outbound event: %w", err)
	}
	return payload, nil
}

package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/keshon/heartline/internal/ai"
	"github.com/rs/zerolog"
)

type stubProvider struct {
	reply string
	err   error
	calls int
}

func (s *stubProvider) Generate(_ context.Context, _ []ai.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestHeuristicTone(t *testing.T) {
	h := NewHeuristic()
	tests := []struct {
		name string
		text string
		sign int
	}{
		{"positive", "haha that was awesome, thank you", 1},
		{"negative", "ugh this is boring and annoying", -1},
		{"neutral", "i went to the store today", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := h.Classify(context.Background(), tt.text, nil)
			switch {
			case tt.sign > 0 && in.ToneSentiment <= 0:
				t.Errorf("expected positive tone, got %v", in.ToneSentiment)
			case tt.sign < 0 && in.ToneSentiment >= 0:
				t.Errorf("expected negative tone, got %v", in.ToneSentiment)
			case tt.sign == 0 && in.ToneSentiment != 0:
				t.Errorf("expected neutral tone, got %v", in.ToneSentiment)
			}
		})
	}
}

func TestHeuristicGenuineMoment(t *testing.T) {
	h := NewHeuristic()
	in, _ := h.Classify(context.Background(), "I've never told anyone this but I trust you", nil)
	if !in.GenuineMoment || in.GenuineCategory != CategoryVulnerability {
		t.Errorf("expected vulnerability moment, got %+v", in)
	}
	in, _ = h.Classify(context.Background(), "thanks", nil)
	if in.GenuineMoment {
		t.Error("expected casual thanks to not be a genuine moment")
	}
}

func TestHeuristicResolvedTopic(t *testing.T) {
	h := NewHeuristic()
	in, _ := h.Classify(context.Background(), "good news, my job interview went great!", nil)
	if in.ResolvedTopic != "job interview" {
		t.Errorf("expected resolved topic 'job interview', got %q", in.ResolvedTopic)
	}
}

func TestLLMParsesReply(t *testing.T) {
	p := &stubProvider{reply: "Here you go: {\"genuine_moment\":true,\"genuine_category\":\"gratitude\",\"genuine_confidence\":0.9,\"tone_sentiment\":0.7,\"open_loop\":{\"topic\":\"exam\",\"category\":\"pending_event\",\"salience\":0.6}}"}
	l := NewLLM(p, 100, zerolog.Nop())
	in, err := l.Classify(context.Background(), "thank you so much for yesterday", []string{"a", "b", "c", "d", "e", "f"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !in.GenuineMoment || in.GenuineCategory != CategoryGratitude {
		t.Errorf("unexpected intent %+v", in)
	}
	if in.OpenLoop == nil || in.OpenLoop.Topic != "exam" {
		t.Errorf("expected open loop suggestion, got %+v", in.OpenLoop)
	}
}

func TestLLMMalformedReplyIsNotRetried(t *testing.T) {
	p := &stubProvider{reply: "I cannot help with that"}
	l := NewLLM(p, 100, zerolog.Nop())
	if _, err := l.Classify(context.Background(), "hi there friend", nil); err == nil {
		t.Error("expected error for reply without json")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestSafeFallsBack(t *testing.T) {
	failing := Func(func(context.Context, string, []string) (Intent, error) {
		return Intent{}, errors.New("timeout")
	})

	s := Safe(failing, nil, zerolog.Nop())
	in, err := s.Classify(context.Background(), "I love this", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if in != Neutral() {
		t.Errorf("expected neutral intent, got %+v", in)
	}

	s = Safe(failing, NewHeuristic(), zerolog.Nop())
	in, _ = s.Classify(context.Background(), "haha that was awesome", nil)
	if in.ToneSentiment <= 0 {
		t.Errorf("expected heuristic fallback tone, got %v", in.ToneSentiment)
	}
}

func TestSafeClampsOutOfRange(t *testing.T) {
	wild := Func(func(context.Context, string, []string) (Intent, error) {
		return Intent{ToneSentiment: 4, ToneIntensity: -2, GenuineCategory: "x", OpenLoop: &LoopSuggestion{}}, nil
	})
	in, _ := Safe(wild, nil, zerolog.Nop()).Classify(context.Background(), "x", nil)
	if in.ToneSentiment != 1 || in.ToneIntensity != 0 || in.GenuineCategory != "" || in.OpenLoop != nil {
		t.Errorf("expected sanitized intent, got %+v", in)
	}
}

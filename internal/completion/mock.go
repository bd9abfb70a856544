package completion

import (
	"context"
	"fmt"
)

// MockClient returns fixed well-formed replies for local runs without an API key.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

const (
	mockCharacterLine = "こんにちは！今日はどんな一日になりそうですか？"
	mockOptions       = "1. 「すごく楽しみだよ、一緒に過ごせて嬉しい！」 #v-good\n" +
		"2. 「まあまあかな、よろしくね」 #good\n" +
		"3. 「別に、普通だけど」 #bad\n" +
		"4. 「話しかけないでくれる？」 #v-bad"
)

func (c *MockClient) Complete(ctx context.Context, prompt string, persona Persona) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	switch persona.Kind {
	case CharacterPersona.Kind:
		return mockCharacterLine, nil
	case OptionsPersona.Kind:
		return mockOptions, nil
	case DialoguePersona.Kind:
		return "メッセージ: " + mockCharacterLine + "\n" + mockOptions, nil
	default:
		return "", fmt.Errorf("mock completion: unknown persona %q", persona.Kind)
	}
}

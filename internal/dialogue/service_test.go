package dialogue

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/completion"
	"github.com/Newrona-pi/textgame-chatapp/internal/geocode"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/prompt"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/reliability"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

const wellFormed = "メッセージ: やっほー、今日も元気？\n" +
	"1. 「元気だよ、会えて嬉しい！」 #v-good\n" +
	"2. 「まあまあかな」 #good\n" +
	"3. 「別に」 #bad\n" +
	"4. 「話しかけないで」 #v-bad"

type call struct {
	prompt  string
	persona completion.Persona
}

type fakeClient struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	panic   any
	calls   []call
}

func (f *fakeClient) Complete(ctx context.Context, p string, persona completion.Persona) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{prompt: p, persona: persona})
	f.mu.Unlock()
	if f.panic != nil {
		panic(f.panic)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.replies[persona.Kind], nil
}

type stubResolver struct{ addr geocode.Address }

func (r stubResolver) Resolve(context.Context, float64, float64) geocode.Address { return r.addr }

func newTestService(t *testing.T, client completion.Client, shuffle Shuffler) *Service {
	t.Helper()
	roster := character.NewRoster(
		character.Character{ID: "mano", Name: "真乃", Age: "16", Personality: "おっとりした", Tone: "敬語", Setting: "アイドル", Gender: "女性"},
		character.Character{ID: "meguru", Name: "めぐる", Age: "16", Personality: "元気な", Tone: "タメ口", Setting: "アイドル", CharacterImageURL: "/img/meguru.png"},
	)
	b, err := situation.NewBuilder("Asia/Tokyo", stubResolver{addr: geocode.Address{Prefecture: "東京都", City: "目黒区"}})
	require.NoError(t, err)
	b = b.WithClock(func() time.Time { return time.Date(2024, 10, 1, 3, 0, 0, 0, time.UTC) })

	if shuffle == nil {
		shuffle = func(int, func(i, j int)) {}
	}
	return NewService(roster, b, prompt.MustComposer(), client, Options{
		DefaultCharacterID: "mano",
		DefaultAffection:   50,
		Shuffle:            shuffle,
		Logger:             zerolog.Nop(),
		Metrics:            observability.NewMetrics("dialogue_test"),
	})
}

func ptr[T any](v T) *T { return &v }

func TestStartReturnsParsedDialogue(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": wellFormed}}
	svc := newTestService(t, client, nil)

	res := svc.Start(context.Background(), protocol.DialogueRequest{CharacterID: "mano", Lat: ptr(35.63), Lon: ptr(139.70)})
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "やっほー、今日も元気？", res.Message)
	require.Len(t, res.Options, 4)
	assert.True(t, res.Response().Success)

	require.Len(t, client.calls, 1)
	assert.Equal(t, completion.DialoguePersona, client.calls[0].persona)
	assert.Contains(t, client.calls[0].prompt, "現在地: 東京都 目黒区")
	assert.Contains(t, client.calls[0].prompt, "好感度: 50/100")
	assert.Contains(t, client.calls[0].prompt, "秋")
}

func TestUnknownCharacter(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": wellFormed}}
	svc := newTestService(t, client, nil)

	for _, run := range []func(context.Context, protocol.DialogueRequest) Result{svc.Start, svc.Next, svc.CharacterMessage, svc.Options} {
		res := run(context.Background(), protocol.DialogueRequest{
			CharacterID:      "unknown_x",
			UserChoice:       ptr("はい"),
			CharacterMessage: "こんにちは",
		})
		assert.Equal(t, MsgCharacterNotFound, res.Message)
		assert.Equal(t, OutcomeCharacterNotFound, res.Outcome)
		assert.NotNil(t, res.Options)
		assert.Empty(t, res.Options)
		assert.ErrorIs(t, res.Err, character.ErrNotFound)
	}
	assert.Empty(t, client.calls)
}

func TestDefaultCharacter(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": wellFormed}}
	svc := newTestService(t, client, nil)

	res := svc.Start(context.Background(), protocol.DialogueRequest{})
	assert.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].prompt, "あなたは真乃という")
}

func TestNextRequiresUserChoice(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": wellFormed}}
	svc := newTestService(t, client, nil)

	res := svc.Next(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	assert.Equal(t, OutcomeInvalidRequest, res.Outcome)
	assert.False(t, res.Response().Success)
	assert.Empty(t, client.calls)

	res = svc.Next(context.Background(), protocol.DialogueRequest{
		CharacterID:         "meguru",
		UserChoice:          ptr("一緒に帰ろう"),
		ConversationHistory: []protocol.Turn{{User: "おはよう", Character: "おはよー！"}},
		AffectionLevel:      ptr(90),
	})
	assert.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, client.calls, 1)
	p := client.calls[0].prompt
	assert.Contains(t, p, "ユーザーは「一緒に帰ろう」を選びました。")
	assert.Contains(t, p, "ユーザー: おはよう\nめぐる: おはよー！")
	assert.Contains(t, p, "好感度: 90/100")
}

func TestUpstreamFailure(t *testing.T) {
	upstream := &completion.APIError{Status: 429, Message: "rate limited"}
	client := &fakeClient{err: upstream}
	svc := newTestService(t, client, nil)

	res := svc.Start(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	assert.Equal(t, OutcomeUpstreamFailure, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Message, "初期会話生成エラー: "))
	assert.Empty(t, res.Options)
	assert.Equal(t, reliability.CodeRateLimited, reliability.Classify(res.Err))

	res = svc.Next(context.Background(), protocol.DialogueRequest{CharacterID: "mano", UserChoice: ptr("")})
	assert.True(t, strings.HasPrefix(res.Message, "次の会話生成エラー: "))
	assert.False(t, res.Response().Success)
}

func TestPanicIsRecovered(t *testing.T) {
	client := &fakeClient{panic: "nil map"}
	svc := newTestService(t, client, nil)

	var res Result
	require.NotPanics(t, func() {
		res = svc.CharacterMessage(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	})
	assert.Equal(t, OutcomeInternalError, res.Outcome)
	assert.Contains(t, res.Message, "nil map")
	assert.Empty(t, res.Options)
}

func TestPartialParse(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": "メッセージ: ん？\n1. 「なに？」 #good\n2. 「いや」"}}
	svc := newTestService(t, client, nil)

	res := svc.Start(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	assert.Equal(t, OutcomePartialParse, res.Outcome)
	assert.Equal(t, []protocol.Option{{Text: "なに？", Type: protocol.TagGood}}, res.Options)
	assert.True(t, res.Response().Success)

	client.replies["dialogue"] = "ただの台詞"
	res = svc.Start(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	assert.Equal(t, OutcomePartialParse, res.Outcome)
	assert.Equal(t, "ただの台詞", res.Message)
	assert.Empty(t, res.Options)
}

func TestTwoPhaseFlow(t *testing.T) {
	client := &fakeClient{replies: map[string]string{
		"character": "メッセージ: 今日はどこ行く？",
		"options":   "1. 「公園！」 #v-good\n2. 「どこでも」 #good\n3. 「家」 #bad\n4. 「一人で行く」 #v-bad",
	}}
	svc := newTestService(t, client, nil)

	line := svc.CharacterMessage(context.Background(), protocol.DialogueRequest{CharacterID: "mano", UserChoice: ptr("")})
	assert.Equal(t, OutcomeOK, line.Outcome)
	assert.Equal(t, "今日はどこ行く？", line.Message)
	assert.Empty(t, line.Options)

	opts := svc.Options(context.Background(), protocol.DialogueRequest{CharacterID: "mano", CharacterMessage: line.Message})
	assert.Equal(t, OutcomeOK, opts.Outcome)
	assert.Len(t, opts.Options, 4)

	require.Len(t, client.calls, 2)
	assert.Equal(t, completion.CharacterPersona, client.calls[0].persona)
	assert.Contains(t, client.calls[0].prompt, "最初の台詞")
	assert.Equal(t, completion.OptionsPersona, client.calls[1].persona)
	assert.Contains(t, client.calls[1].prompt, "「今日はどこ行く？」")
	assert.Contains(t, client.calls[1].prompt, "質問です")
}

func TestOptionsFallsBackToHistory(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"options": "1. 「うん」 #good"}}
	svc := newTestService(t, client, nil)

	res := svc.Options(context.Background(), protocol.DialogueRequest{
		CharacterID:         "mano",
		ConversationHistory: []protocol.Turn{{User: "a", Character: "b"}, {User: "c", Character: "最後の台詞"}},
	})
	assert.Equal(t, OutcomePartialParse, res.Outcome)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].prompt, "「最後の台詞」")

	res = svc.Options(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
	assert.Equal(t, OutcomeInvalidRequest, res.Outcome)
	assert.Len(t, client.calls, 1)
}

func TestAffectionIsClamped(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"character": "…"}}
	svc := newTestService(t, client, nil)

	svc.CharacterMessage(context.Background(), protocol.DialogueRequest{CharacterID: "mano", AffectionLevel: ptr(400)})
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].prompt, "好感度: 100/100")
}

func TestShuffleCoversAllPermutationsUniformly(t *testing.T) {
	client := &fakeClient{replies: map[string]string{"dialogue": wellFormed}}
	svc := newTestService(t, client, NewShuffler(rand.New(rand.NewPCG(1, 2))))

	const trials = 24000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		res := svc.Start(context.Background(), protocol.DialogueRequest{CharacterID: "mano"})
		require.Len(t, res.Options, 4)
		var key strings.Builder
		for _, o := range res.Options {
			key.WriteString(string(o.Type))
			key.WriteByte(',')
		}
		counts[key.String()]++
	}

	require.Len(t, counts, 24)
	for perm, n := range counts {
		assert.InDelta(t, trials/24, n, 300, perm)
	}
}

func TestRoster(t *testing.T) {
	svc := newTestService(t, &fakeClient{}, nil)

	profiles := svc.Roster()
	require.Len(t, profiles, 2)
	assert.Equal(t, "mano", profiles[0].ID)
	assert.Equal(t, "/img/meguru.png", profiles[1].CharacterImageURL)

	p, err := svc.Character("meguru")
	require.NoError(t, err)
	assert.Equal(t, "めぐる", p.Name)

	_, err = svc.Character("nobody")
	assert.True(t, errors.Is(err, character.ErrNotFound))
}

// Package dialogue orchestrates one dialogue request: character lookup,
// situation, prompt, completion and parsing. Its operations never fail;
// problems are reported through Result.Outcome.
package dialogue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/completion"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/prompt"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/reliability"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeCharacterNotFound Outcome = "character_not_found"
	OutcomeUpstreamFailure   Outcome = "upstream_failure"
	OutcomePartialParse      Outcome = "partial_parse"
	OutcomeInvalidRequest    Outcome = "invalid_request"
	OutcomeInternalError     Outcome = "internal_error"
)

// Operation names, used as metric labels and log fields.
const (
	OpStart            = "start"
	OpNext             = "next"
	OpCharacterMessage = "character"
	OpOptions          = "options"
)

const (
	MsgCharacterNotFound    = "キャラクターが見つかりません。"
	MsgUserChoiceMissing    = "user_choice is required"
	MsgCharacterLineMissing = "character_message is required"
)

var errorPrefix = map[string]string{
	OpStart:            "初期会話生成エラー",
	OpNext:             "次の会話生成エラー",
	OpCharacterMessage: "キャラクター発言生成エラー",
	OpOptions:          "選択肢生成エラー",
}

// Result is what every dialogue operation returns. Message always holds text
// fit for display, including for failures.
type Result struct {
	Message string
	Options []protocol.Option
	Outcome Outcome
	Err     error
}

// Succeeded reports whether generation produced usable output.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeOK || r.Outcome == OutcomePartialParse
}

func (r Result) Response() protocol.DialogueResponse {
	opts := r.Options
	if opts == nil {
		opts = []protocol.Option{}
	}
	return protocol.DialogueResponse{
		Success: r.Succeeded(),
		Message: r.Message,
		Options: opts,
		Outcome: string(r.Outcome),
	}
}

// Shuffler permutes n elements through swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// NewShuffler returns a Shuffler drawing from rng. rng must not be shared
// across goroutines.
func NewShuffler(rng *rand.Rand) Shuffler {
	return rng.Shuffle
}

type Options struct {
	// DefaultCharacterID and DefaultAffection fill in requests that omit them.
	DefaultCharacterID string
	DefaultAffection   int
	Shuffle            Shuffler
	Logger             zerolog.Logger
	Metrics            *observability.Metrics
}

type Service struct {
	roster     *character.Roster
	situations *situation.Builder
	composer   *prompt.Composer
	client     completion.Client

	defaultCharacterID string
	defaultAffection   int
	shuffle            Shuffler
	log                zerolog.Logger
	metrics            *observability.Metrics
}

func NewService(
	roster *character.Roster,
	situations *situation.Builder,
	composer *prompt.Composer,
	client completion.Client,
	opts Options,
) *Service {
	if opts.Shuffle == nil {
		opts.Shuffle = rand.Shuffle
	}
	if strings.TrimSpace(opts.DefaultCharacterID) == "" {
		opts.DefaultCharacterID = "mano"
	}
	return &Service{
		roster:             roster,
		situations:         situations,
		composer:           composer,
		client:             client,
		defaultCharacterID: opts.DefaultCharacterID,
		defaultAffection:   affection.Clamp(opts.DefaultAffection),
		shuffle:            opts.Shuffle,
		log:                opts.Logger.With().Str("component", "dialogue").Logger(),
		metrics:            opts.Metrics,
	}
}

// Start generates the opening message and its options in one completion.
func (s *Service) Start(ctx context.Context, req protocol.DialogueRequest) Result {
	req.UserChoice = nil
	req.ConversationHistory = nil
	return s.run(ctx, OpStart, req, s.generateDialogue)
}

// Next continues the conversation after the user picked req.UserChoice.
func (s *Service) Next(ctx context.Context, req protocol.DialogueRequest) Result {
	if req.UserChoice == nil {
		s.metrics.ObserveOutcome(OpNext, string(OutcomeInvalidRequest))
		return Result{Message: MsgUserChoiceMissing, Options: []protocol.Option{}, Outcome: OutcomeInvalidRequest}
	}
	return s.run(ctx, OpNext, req, s.generateDialogue)
}

// CharacterMessage generates only the character's next line. An empty user
// choice means the conversation is starting.
func (s *Service) CharacterMessage(ctx context.Context, req protocol.DialogueRequest) Result {
	return s.run(ctx, OpCharacterMessage, req, s.generateCharacterLine)
}

// Options generates only the reply candidates to req.CharacterMessage, or to
// the last character line of the history when none is given.
func (s *Service) Options(ctx context.Context, req protocol.DialogueRequest) Result {
	if strings.TrimSpace(req.CharacterMessage) == "" {
		if n := len(req.ConversationHistory); n > 0 {
			req.CharacterMessage = req.ConversationHistory[n-1].Character
		}
	}
	if strings.TrimSpace(req.CharacterMessage) == "" {
		s.metrics.ObserveOutcome(OpOptions, string(OutcomeInvalidRequest))
		return Result{Message: MsgCharacterLineMissing, Options: []protocol.Option{}, Outcome: OutcomeInvalidRequest}
	}
	return s.run(ctx, OpOptions, req, s.generateOptions)
}

// Roster lists the public profiles of every loaded character.
func (s *Service) Roster() []character.Profile {
	chars := s.roster.List()
	out := make([]character.Profile, 0, len(chars))
	for _, c := range chars {
		out = append(out, c.Profile())
	}
	return out
}

func (s *Service) Character(id string) (character.Profile, error) {
	c, err := s.roster.Get(id)
	if err != nil {
		return character.Profile{}, err
	}
	return c.Profile(), nil
}

type generateFunc func(ctx context.Context, in prompt.Input) (string, []protocol.Option, bool, error)

func (s *Service) run(ctx context.Context, op string, req protocol.DialogueRequest, gen generateFunc) (res Result) {
	start := time.Now()
	log := s.log.With().Str("op", op).Str("character_id", req.CharacterID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("dialogue generation panicked")
			res = Result{
				Message: fmt.Sprintf("%s: %v", errorPrefix[op], r),
				Options: []protocol.Option{},
				Outcome: OutcomeInternalError,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
		s.metrics.ObserveOutcome(op, string(res.Outcome))
		s.metrics.ObserveStage(observability.StageDialogueTotal, time.Since(start))
	}()

	id := strings.TrimSpace(req.CharacterID)
	if id == "" {
		id = s.defaultCharacterID
	}
	char, err := s.roster.Get(id)
	if err != nil {
		log.Info().Str("character_id", id).Msg("unknown character")
		return Result{Message: MsgCharacterNotFound, Options: []protocol.Option{}, Outcome: OutcomeCharacterNotFound, Err: err}
	}

	level := s.defaultAffection
	if req.AffectionLevel != nil {
		level = affection.Clamp(*req.AffectionLevel)
	}

	ctxStart := time.Now()
	sit := s.situations.Build(ctx, req.Coordinates())
	s.metrics.ObserveStage(observability.StageContextBuild, time.Since(ctxStart))

	in := prompt.Input{
		Character:        char,
		Situation:        sit,
		Affection:        level,
		History:          req.ConversationHistory,
		UserChoice:       req.Choice(),
		CharacterMessage: req.CharacterMessage,
	}

	msg, opts, wantOptions, err := gen(ctx, in)
	if err != nil {
		log.Warn().
			Err(err).
			Str("code", reliability.Classify(err)).
			Bool("retryable", reliability.Retryable(err)).
			Msg("dialogue generation failed")
		return Result{
			Message: fmt.Sprintf("%s: %v", errorPrefix[op], err),
			Options: []protocol.Option{},
			Outcome: OutcomeUpstreamFailure,
			Err:     err,
		}
	}

	s.shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })

	outcome := OutcomeOK
	if wantOptions {
		s.metrics.ObserveParsedOptions(len(opts))
		if len(opts) < MaxOptions {
			outcome = OutcomePartialParse
			log.Info().Int("options", len(opts)).Msg("fewer options than requested")
		}
	}
	return Result{Message: msg, Options: opts, Outcome: outcome}
}

func (s *Service) generateDialogue(ctx context.Context, in prompt.Input) (string, []protocol.Option, bool, error) {
	text, err := s.complete(ctx, observability.StageDialogueCompletion, completion.DialoguePersona, in, s.composer.Dialogue)
	if err != nil {
		return "", nil, true, err
	}
	msg, opts := ParseFull(text)
	return msg, opts, true, nil
}

func (s *Service) generateCharacterLine(ctx context.Context, in prompt.Input) (string, []protocol.Option, bool, error) {
	text, err := s.complete(ctx, observability.StageCharacterCompletion, completion.CharacterPersona, in, s.composer.CharacterMessage)
	if err != nil {
		return "", nil, false, err
	}
	return CleanMessage(text), []protocol.Option{}, false, nil
}

func (s *Service) generateOptions(ctx context.Context, in prompt.Input) (string, []protocol.Option, bool, error) {
	text, err := s.complete(ctx, observability.StageOptionsCompletion, completion.OptionsPersona, in, s.composer.Options)
	if err != nil {
		return "", nil, true, err
	}
	return in.CharacterMessage, ParseOptions(text), true, nil
}

func (s *Service) complete(
	ctx context.Context,
	stage string,
	persona completion.Persona,
	in prompt.Input,
	render func(prompt.Input) (string, error),
) (string, error) {
	p, err := render(in)
	if err != nil {
		return "", err
	}
	start := time.Now()
	text, err := s.client.Complete(ctx, p, persona)
	s.metrics.ObserveStage(stage, time.Since(start))
	return text, err
}

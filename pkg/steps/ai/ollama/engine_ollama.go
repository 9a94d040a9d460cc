package ollama

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/inference/engine"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/rs/zerolog/log"
)

// OllamaEngine pipes a flattened prompt into a local `ollama run <model>`
// process and returns its standard output.
type OllamaEngine struct {
	config *engine.Config
}

var _ engine.Engine = (*OllamaEngine)(nil)

func NewOllamaEngine(options ...engine.Option) (*OllamaEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &OllamaEngine{config: config}, nil
}

// Command returns the argv run for cfg.
func (e *OllamaEngine) Command(cfg settings.ProviderConfig) []string {
	if len(e.config.Command) > 0 {
		return e.config.Command
	}
	model := cfg.Model
	if model == "" {
		model = settings.DefaultModel(types.ProviderOllama)
	}
	return []string{"ollama", "run", model}
}

func (e *OllamaEngine) Send(ctx context.Context, history conversation.History, cfg settings.ProviderConfig) (string, error) {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = settings.DefaultSystemPrompt
	}
	prompt := conversation.FlattenPrompt(systemPrompt, history, conversation.DefaultPromptStyle)

	argv := e.Command(cfg)
	command := strings.Join(argv, " ")
	log.Debug().Str("command", command).Int("prompt_len", len(prompt)).Msg("Running ollama")

	// #nosec G204 -- argv is the configured ollama invocation, not user chat input.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	engine.TapRequest(ctx, types.ProviderOllama.String(), prompt)
	err := cmd.Run()
	errOutput := strings.TrimSpace(stderr.String())
	tapOutput := stdout.String()
	if errOutput != "" {
		tapOutput = stderr.String()
	}
	engine.TapResponse(ctx, types.ProviderOllama.String(), exitCode(cmd, err), tapOutput)
	if err != nil || errOutput != "" {
		return "", &errdefs.SubprocessError{Command: command, Stderr: errOutput, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// exitCode returns the exit status of a finished command, or -1 when it
// could not be started.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

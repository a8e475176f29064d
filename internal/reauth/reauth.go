// Package reauth recovers an invalidated vendor session by handing off to
// an external login helper.
package reauth

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Strategy re-establishes a session for a login id. Implementations are
// best-effort; the run terminates regardless of the outcome.
type Strategy interface {
	Recover(ctx context.Context, loginID string) error
}

// HelperOptions locate the external re-login helper.
type HelperOptions struct {
	Command string // interpreter, e.g. "python"
	Script  string // helper script path
}

// Helper shells out to the configured login script, surfacing its output
// for the operator.
type Helper struct {
	opts   HelperOptions
	logger zerolog.Logger
}

// NewHelper constructs the exec-based strategy.
func NewHelper(opts HelperOptions, logger zerolog.Logger) *Helper {
	return &Helper{opts: opts, logger: logger.With().Str("component", "reauth").Logger()}
}

// Recover runs `<command> <script> --login_id <loginID>` to completion.
func (h *Helper) Recover(ctx context.Context, loginID string) error {
	if h.opts.Script == "" {
		return fmt.Errorf("reauth.script 未配置, 无法自动重新登录")
	}
	command := h.opts.Command
	if command == "" {
		command = "python"
	}

	cmd := exec.CommandContext(ctx, command, h.opts.Script, "--login_id", loginID)
	output, err := cmd.CombinedOutput()
	if err != nil {
		h.logger.Error().Err(err).Str("output", string(output)).Msg("重新登录脚本执行失败")
		return fmt.Errorf("run reauth helper: %w", err)
	}

	h.logger.Info().Str("output", string(output)).Msg("重新登录脚本执行完成")
	return nil
}

// Noop does nothing; used when no helper is configured and in tests.
type Noop struct{}

// Recover implements Strategy.
func (Noop) Recover(context.Context, string) error { return nil }

var (
	_ Strategy = (*Helper)(nil)
	_ Strategy = Noop{}
)

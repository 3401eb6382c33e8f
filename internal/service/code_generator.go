package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/metrics"
)

// DefaultCodeMaxAttempts bounds the draws made for one tracking code
const DefaultCodeMaxAttempts = 20

const codeSpace = 1_000_000

type codeChecker interface {
	ExistsByTrackingCode(ctx context.Context, code string) (bool, error)
}

// CodeGenerator draws PRT-###### codes that are not yet held by any profile.
// It is safe for concurrent use. The existence check is advisory; the store's
// unique constraint is the final word and callers retry on ErrTrackingCodeTaken.
type CodeGenerator struct {
	checker     codeChecker
	maxAttempts int
	draw        func() int
	logger      *slog.Logger
}

// NewCodeGenerator creates a generator that gives up after maxAttempts draws
func NewCodeGenerator(checker codeChecker, maxAttempts int, logger *slog.Logger) *CodeGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultCodeMaxAttempts
	}
	return &CodeGenerator{
		checker:     checker,
		maxAttempts: maxAttempts,
		draw:        func() int { return rand.IntN(codeSpace) },
		logger:      logger,
	}
}

// FormatCode renders n as a tracking code
func FormatCode(n int) string {
	return fmt.Sprintf("%s-%06d", domain.TrackingCodePrefix, n)
}

// MaxAttempts returns the draw budget
func (g *CodeGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a code that no profile held at the time of the check
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code := FormatCode(g.draw())
		exists, err := g.checker.ExistsByTrackingCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check tracking code: %w", err)
		}
		if !exists {
			metrics.ObserveCodeGeneration(attempt, false)
			return code, nil
		}
		g.logger.Debug("tracking code collision", slog.String("code", code), slog.Int("attempt", attempt))
	}

	metrics.ObserveCodeGeneration(g.maxAttempts, true)
	g.logger.Error("tracking code generation exhausted", slog.Int("max_attempts", g.maxAttempts))
	return "", domain.ErrCodeGenerationExhausted
}

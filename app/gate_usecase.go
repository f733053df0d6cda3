package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/vcs"
)

// OnCommitAttempt runs the commit gate for command. A nil decision means
// the command is not a commit and nothing ran. The error only reports a
// gate log write failure; the decision is valid regardless.
func (uc *QualityUseCase) OnCommitAttempt(ctx context.Context, command string) (*domain.GateDecision, error) {
	decision, err := uc.gate.OnCommitAttempt(ctx, command)
	if decision != nil && uc.Blocks(decision) {
		uc.logger.Debug("commit blocked by policy", zap.String("policy", uc.cfg.Gate.Policy))
	}
	return decision, err
}

// Blocks reports whether decision must stop the commit. Under the warn
// policy a BLOCK is reported but the commit proceeds.
func (uc *QualityUseCase) Blocks(decision *domain.GateDecision) bool {
	if decision == nil || decision.Allowed() {
		return false
	}
	return domain.GatePolicy(uc.cfg.Gate.Policy) != domain.PolicyWarn
}

// gateFiles lists the quality stream's files: the whole project before a
// commit, the files HEAD changed after one.
func (uc *QualityUseCase) gateFiles(_ context.Context, mode domain.GateMode) ([]string, error) {
	if mode == domain.GateModePostCommit {
		repo, err := vcs.Open(uc.cfg.Root())
		if err != nil {
			return nil, fmt.Errorf("post-commit gate needs a git repository: %w", err)
		}
		files, err := repo.ChangedPythonFiles()
		if err != nil {
			return nil, err
		}
		kept := files[:0]
		for _, f := range files {
			if !uc.files.Excluded(f) {
				kept = append(kept, f)
			}
		}
		return kept, nil
	}
	return uc.files.CollectPythonFiles([]string{uc.cfg.Root()})
}

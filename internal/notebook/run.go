package notebook

import (
	"context"
	"fmt"
	"strings"

	"ntropiq/pkg/ntropiqtypes"
)

// CodeOutput wraps an analysis of code in the block shown under a code cell.
func CodeOutput(analysis, language, code string) string {
	return fmt.Sprintf("# Code Analysis Results\n\n%s\n\n## Code Execution\n```%s\n%s\n```\n\n"+
		"*Note: This is a code analysis. In a production environment, this code would be executed in a secure sandbox.*",
		analysis, language, code)
}

// ErrorOutput is recorded as the output of a cell whose run failed.
func ErrorOutput(kind ntropiqtypes.CellKind, detail string) string {
	subject := "code"
	if kind == ntropiqtypes.CellPrompt {
		subject = "query"
	}
	return fmt.Sprintf(`# Execution Error

I encountered an error while processing your %s. Please try again or rephrase your request.

## Troubleshooting Tips:
- Ensure your query is clear and specific
- Check for any syntax errors in code cells
- Verify your internet connection
- Try a simpler version of your request

**Error details**: %s`, subject, detail)
}

// Run sends a cell to its collaborator and records the result as the cell's output.
// Blank cells and output cells are ignored. Collaborator failures become an error
// block in the output; the returned error reports only lookup and persistence failures.
func (s *Session) Run(ctx context.Context, id string) error {
	s.turn.Lock()
	defer s.turn.Unlock()
	return s.runLocked(ctx, id)
}

// RunAndAdvance runs a cell, then moves the cursor to the next cell, appending a new
// prompt cell when the run cell was last.
func (s *Session) RunAndAdvance(ctx context.Context, id string) error {
	s.turn.Lock()
	defer s.turn.Unlock()
	if err := s.runLocked(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		// Deleted while running.
		return nil
	}
	if i+1 < len(s.rec.Cells) {
		s.active = s.rec.Cells[i+1].ID
		return nil
	}
	_, err := s.insertAtLocked(ctx, ntropiqtypes.CellPrompt, len(s.rec.Cells))
	return err
}

// runLocked requires s.turn.
func (s *Session) runLocked(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrCellNotFound
	}
	cell := s.rec.Cells[i]
	if strings.TrimSpace(cell.Content) == "" || cell.Kind == ntropiqtypes.CellOutput {
		s.mu.Unlock()
		return nil
	}
	s.rec.Cells[i].IsRunning = true
	if err := s.persistLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	epoch, notebookID := s.epoch, s.rec.ID
	s.mu.Unlock()

	s.logger.Debug("Running cell", "notebook", notebookID, "cell", id, "kind", cell.Kind)
	output := s.dispatch(ctx, cell)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || notebookID != s.rec.ID {
		s.logger.Debug("Dropping stale cell output", "notebook", notebookID, "cell", id)
		return nil
	}
	i = s.indexLocked(id)
	if i < 0 {
		return nil
	}
	s.rec.Cells[i].IsRunning = false
	s.rec.Cells[i].Output = &output
	return s.persistLocked(ctx)
}

func (s *Session) dispatch(ctx context.Context, cell ntropiqtypes.Cell) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	var result ntropiqtypes.Result
	switch cell.Kind {
	case ntropiqtypes.CellPrompt:
		result = s.cfg.Insights.GenerateInsights(ctx, cell.Content)
	case ntropiqtypes.CellCode:
		result = s.cfg.Analyzer.AnalyzeCode(ctx, cell.Content, s.cfg.Language)
	}
	if !result.OK() {
		s.logger.Error("Cell run failed", "cell", cell.ID, "error", result.Err, "retryable", result.Err.Retryable())
		return ErrorOutput(cell.Kind, result.Err.Error())
	}
	if cell.Kind == ntropiqtypes.CellCode {
		return CodeOutput(result.Text, s.cfg.Language, cell.Content)
	}
	return result.Text
}

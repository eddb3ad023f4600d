package advisor

import (
	"context"

	"marine_leads_backend/platform/logger"
)

// ChainAdvisor consults the rules first and the model only when the rules
// are not confident enough. The more confident diagnosis wins.
type ChainAdvisor struct {
	rules     Advisor
	model     Advisor
	threshold float64
	log       *logger.Logger
}

// NewChainAdvisor creates a chain. model may be nil.
func NewChainAdvisor(rules, model Advisor, threshold float64, log *logger.Logger) *ChainAdvisor {
	return &ChainAdvisor{rules: rules, model: model, threshold: threshold, log: log}
}

// Diagnose implements Advisor.
func (c *ChainAdvisor) Diagnose(ctx context.Context, p Problem) (Diagnosis, error) {
	first, err := c.rules.Diagnose(ctx, p)
	if err != nil {
		return Diagnosis{}, err
	}
	// A confident rules verdict is final, including "cannot be corrected".
	if c.model == nil || first.Confidence >= c.threshold {
		return first, nil
	}

	second, err := c.model.Diagnose(ctx, p)
	if err != nil {
		c.log.Warn("advisor: model unavailable, using rules diagnosis", "operation", p.Operation, "error", err)
		return first, nil
	}
	second.Confidence = clampConfidence(second.Confidence)
	if second.Confidence > first.Confidence {
		return second, nil
	}
	return first, nil
}

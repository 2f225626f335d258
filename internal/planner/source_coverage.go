package planner

import (
	"regexp"
	"strings"

	"github.com/northflow/agentcore/internal/run"
)

// Source-coverage patterns, grounded on original_source/app/core/source_coverage.py.
var (
	numberClaimPattern = regexp.MustCompile(`(?i)\b\d[\d\s,.]*(?:%|€|EUR|USD|\$|M€|k€|millions?|milliards?|tonnes?|kg|km)\b`)
	dateClaimPattern   = regexp.MustCompile(`(?i)\b(?:\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}|(?:janvier|février|mars|avril|mai|juin|juillet|août|septembre|octobre|novembre|décembre)\s+\d{4})\b`)
	inlineCitationPattern = regexp.MustCompile(`(?i)\[(?:Source|Réf|source|ref)[^\]]*\]|\[\d+\]`)
	disclaimerPresentPattern = regexp.MustCompile(`(?i)(?:à confirmer|à vérifier|sous réserve|non vérifié|sans source)`)
)

const (
	reactiveCoverageDisclaimer = "\n\n---\n*Les données factuelles mentionnées ci-dessus " +
		"sont issues du contexte disponible. Veuillez vérifier les chiffres et dates " +
		"auprès de vos sources officielles.*"
	paragraphCoverageDisclaimer = "\n\n---\n*Certaines informations factuelles dans cette réponse " +
		"n'ont pas pu être associées à une source documentaire. Les passages concernés " +
		"sont à vérifier.*"
)

// countClaims counts factual-looking patterns (numbers with units/currency,
// dates) in text.
func countClaims(text string) int {
	return len(numberClaimPattern.FindAllString(text, -1)) + len(dateClaimPattern.FindAllString(text, -1))
}

// reactiveCoverageDisclaimerFor implements the reactive-profile heuristic:
// a cheap regex scan run on every reactive response, since reactive runs
// never generate a Plan and so can never reach the paragraph-level analysis
// below. Returns "" when no disclaimer is warranted.
func reactiveCoverageDisclaimerFor(text string, citationsCount int) string {
	if countClaims(text) == 0 || citationsCount > 0 || disclaimerPresentPattern.MatchString(text) {
		return ""
	}
	return reactiveCoverageDisclaimer
}

// paragraphCoverageDisclaimerFor implements the balanced/pro/exec analysis:
// any paragraph with a factual claim but neither an inline citation marker
// nor an existing disclaimer phrase triggers one shared disclaimer.
func paragraphCoverageDisclaimerFor(text string) string {
	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" || countClaims(para) == 0 {
			continue
		}
		if inlineCitationPattern.MatchString(para) || disclaimerPresentPattern.MatchString(para) {
			continue
		}
		return paragraphCoverageDisclaimer
	}
	return ""
}

// hasStep reports whether plan names action among its steps.
func (p *Plan) hasStep(action StepAction) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Steps {
		if s.Action == action {
			return true
		}
	}
	return false
}

// sourceCoverageDisclaimer decides whether finalText needs a source-coverage
// disclaimer appended, per SPEC_FULL.md §4.4's two-tier design: reactive
// runs always run the cheap heuristic (they have no plan to gate on);
// balanced/pro/exec runs only run the paragraph analysis when the plan
// explicitly called for ensure_source_coverage. Returns "" when the text
// needs no disclaimer.
func sourceCoverageDisclaimer(profile run.Profile, plan *Plan, text string, citationsCount int) string {
	if profile == run.ProfileReactive {
		return reactiveCoverageDisclaimerFor(text, citationsCount)
	}
	if plan.hasStep(ActionEnsureSourceCoverage) {
		return paragraphCoverageDisclaimerFor(text)
	}
	return ""
}

package pipeline

import (
	"fmt"
	"regexp"
)

// Result is one of the five outcomes an agent step can report (spec.md
// §4.D / §6 agent invocation contract).
type Result string

const (
	ResultPass Result = "PASS"
	ResultFix  Result = "FIX"
	ResultFail Result = "FAIL"
	ResultSkip Result = "SKIP"
	ResultStop Result = "STOP"
)

var validResults = map[Result]bool{
	ResultPass: true, ResultFix: true, ResultFail: true, ResultSkip: true, ResultStop: true,
}

// resultTagRE matches the single required result line an agent writes into
// its result file: "<result>PASS</result>" and so on.
var resultTagRE = regexp.MustCompile(`<result>(PASS|FIX|FAIL|SKIP|STOP)</result>`)

// ParseResultTag extracts the result tag from an agent's result file
// contents. It is an error for the tag to be missing or malformed — an
// agent that exits 0 without a parseable result is an output-missing
// failure (exit code 59 reserved range, spec.md §6).
func ParseResultTag(contents string) (Result, error) {
	m := resultTagRE.FindStringSubmatch(contents)
	if m == nil {
		return "", fmt.Errorf("pipeline: no <result> tag found in agent output")
	}
	r := Result(m[1])
	if !validResults[r] {
		return "", fmt.Errorf("pipeline: unrecognized result %q", m[1])
	}
	return r, nil
}

// Reserved agent-internal failure exit codes (spec.md §6): these signal the
// agent runtime itself broke down, as opposed to a reported step result.
const (
	ExitAgentInit        = 56
	ExitAgentPrereq      = 57
	ExitAgentReady       = 58
	ExitAgentOutputMiss  = 59
	ExitAgentValidation  = 60
	ExitAgentViolation   = 61
	ExitAgentTimeout     = 62
	ExitAgentMaxIterations = 63
)

// IsAgentInternalFailure reports whether code falls in the reserved
// agent-internal failure range.
func IsAgentInternalFailure(code int) bool {
	return code >= ExitAgentInit && code <= ExitAgentMaxIterations
}

package analyze

import "github.com/jaxxstorm/dnstiming/internal/model"

type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "SUCCESS"
	OutcomeLookupFailure OutcomeKind = "LOOKUP_FAILURE"
	OutcomeTimeout       OutcomeKind = "TIMEOUT"
	OutcomeTransport     OutcomeKind = "TRANSPORT"
	OutcomeCanceled      OutcomeKind = "CANCELED"
)

type Outcome struct {
	Kind    OutcomeKind
	Summary string
	Hints   []string
}

var defaultHints = map[OutcomeKind][]string{
	OutcomeLookupFailure: {"check the resolver chain with --resolver", "retry with --strategy platform"},
	OutcomeTimeout:       {"raise --timeout", "verify the target is reachable on the resolved address"},
	OutcomeTransport:     {"verify the target serves TLS on that port"},
}

func Diagnose(outcome Outcome) model.Failure {
	hints := outcome.Hints
	if len(hints) == 0 {
		hints = defaultHints[outcome.Kind]
	}
	return model.Failure{
		Classification: string(outcome.Kind),
		Summary:        outcome.Summary,
		Hints:          hints,
	}
}

func Failed(f model.Failure) bool {
	return f.Classification != "" && f.Classification != string(OutcomeSuccess)
}

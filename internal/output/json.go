package output

import (
	"encoding/json"
	"io"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
)

// JSONFormatter emits the canonical outcome verbatim
type JSONFormatter struct{}

func (f *JSONFormatter) Format(o *outcome.CanonicalFinalOutcome, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

package dirty

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rendis/stratagem/pkg/schema"
)

// signatureFields is the canonical content of a step for dirty comparison.
// Result counts and visual positions are deliberately excluded: neither is
// persisted step content, so neither may flip the unsaved state.
type signatureFields struct {
	Kind           schema.StepKind `json:"kind"`
	DisplayName    string          `json:"display_name"`
	SearchName     string          `json:"search_name"`
	Operator       schema.Operator `json:"operator"`
	Parameters     map[string]any  `json:"parameters,omitempty"`
	PrimaryInput   string          `json:"primary_input"`
	SecondaryInput string          `json:"secondary_input"`
	RecordType     string          `json:"record_type"`
}

// StepSignature computes the content signature of a step. Two steps with the
// same signature are indistinguishable to the persistence layer.
func StepSignature(s *schema.Step) string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(signatureFields{
		Kind:           s.Kind(),
		DisplayName:    s.DisplayName,
		SearchName:     s.SearchName,
		Operator:       s.Operator,
		Parameters:     s.Parameters,
		PrimaryInput:   s.PrimaryInput,
		SecondaryInput: s.SecondaryInput,
		RecordType:     s.RecordType,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Signatures computes the signature map for every step in the strategy.
func Signatures(st *schema.Strategy) map[string]string {
	if st == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(st.Steps))
	for id, s := range st.Steps {
		out[id] = StepSignature(s)
	}
	return out
}

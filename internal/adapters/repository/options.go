package repository

import "github.com/okian/foresight/internal/domain/model"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithAttestationCapacity pre-sizes the attestation tables for bulk loads.
func WithAttestationCapacity(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.attestations = make(map[string]model.Attestation, n)
			s.attestationIDs = make([]string, 0, n)
			s.scores = make(map[string]model.AttestationScore, n)
		}
	}
}

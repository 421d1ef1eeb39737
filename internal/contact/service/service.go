// Package service wires the submission gate to the mail dispatcher.
package service

import (
	"context"

	"folio/internal/challenge"
	"folio/internal/contact/models"
	rlmodels "folio/internal/ratelimit/models"
	dErrors "folio/pkg/domain-errors"
)

// Gate decides whether a raw submission may be delivered.
type Gate interface {
	Accept(ctx context.Context, raw models.RawSubmission, key rlmodels.ClientKey) (*models.Submission, error)
}

// Sender delivers an accepted submission.
type Sender interface {
	Send(ctx context.Context, sub *models.Submission) (*models.Delivery, error)
}

type Service struct {
	gate   Gate
	sender Sender
	issuer *challenge.Issuer
}

func New(gate Gate, sender Sender, issuer *challenge.Issuer) (*Service, error) {
	if gate == nil || sender == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "gate and sender are required")
	}
	if issuer == nil {
		issuer = challenge.NewIssuer()
	}
	return &Service{gate: gate, sender: sender, issuer: issuer}, nil
}

// Submit gates raw and, once accepted, hands it to the sender.
func (s *Service) Submit(ctx context.Context, raw models.RawSubmission, key rlmodels.ClientKey) (*models.Delivery, error) {
	sub, err := s.gate.Accept(ctx, raw, key)
	if err != nil {
		return nil, err
	}
	return s.sender.Send(ctx, sub)
}

// IssueChallenge returns a fresh page-load challenge.
func (s *Service) IssueChallenge(fingerprintLength int) challenge.Challenge {
	return s.issuer.Issue(fingerprintLength)
}

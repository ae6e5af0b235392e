// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ledger is the append-only ballot ledger. It admits at most one
// ballot per voter and links every ballot into a hash chain.
package ledger

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/keylock"
	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidCandidate = errors.New("invalid candidate")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrNotEligible      = errors.New("not eligible to vote")
	ErrTransient        = errors.New("ledger temporarily unavailable")
)

// GenesisHash is the previous-hash of the first ballot.
var GenesisHash = strings.Repeat("0", sha256.Size*2)

// Vote is the sealed content of a ballot. The nonce makes two ballots for
// the same candidate seal to unrelated payloads.
type Vote struct {
	CandidateID string `json:"candidate_id"`
	Nonce       string `json:"nonce"`
}

// Receipt is handed to the voter after a committed cast.
type Receipt struct {
	ID          string    `json:"receipt"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Config holds the retry policy for storage contention.
type Config struct {
	Retries int
	Backoff time.Duration
}

type Service struct {
	repo          *repository.Repository
	candidates    *candidates.Service
	sealer        Sealer
	commitmentKey []byte
	cfg           Config
	locks         *keylock.Locker
	now           func() time.Time
	metrics       *metrics.Metrics
	onAppend      func()
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records cast outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAppendHook calls fn after every committed ballot. fn learns nothing
// about the ballot and must not block.
func WithAppendHook(fn func()) Option {
	return func(s *Service) { s.onAppend = fn }
}

// NewService creates the ledger. commitmentKey keys the voter commitments
// and must be at most 64 bytes.
func NewService(repo *repository.Repository, cands *candidates.Service, sealer Sealer, commitmentKey []byte, cfg Config, opts ...Option) (*Service, error) {
	if len(commitmentKey) == 0 || len(commitmentKey) > blake2b.Size {
		return nil, fmt.Errorf("commitment key must be 1 to %d bytes, got %d", blake2b.Size, len(commitmentKey))
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 20 * time.Millisecond
	}
	s := &Service{
		repo:          repo,
		candidates:    cands,
		sealer:        sealer,
		commitmentKey: commitmentKey,
		cfg:           cfg,
		locks:         keylock.New(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Commitment derives the opaque per-voter tag stored with a ballot.
func (s *Service) Commitment(identifier string) string {
	mac, _ := blake2b.New256(s.commitmentKey) // key length checked in NewService
	mac.Write([]byte(identifier))
	return hex.EncodeToString(mac.Sum(nil))
}

// CastVote records the principal's choice and returns a receipt. The first
// committed cast for a voter wins; every later or concurrent attempt gets
// ErrAlreadyVoted. ErrTransient means nothing was recorded and the call may
// be retried.
func (s *Service) CastVote(ctx context.Context, p *models.Principal, candidateID string) (*Receipt, error) {
	start := time.Now()
	receipt, err := s.castVote(ctx, p, candidateID)
	s.metrics.ObserveCast(start, rejectionReason(err))
	return receipt, err
}

func (s *Service) castVote(ctx context.Context, p *models.Principal, candidateID string) (*Receipt, error) {
	if err := s.checkEligible(ctx, p); err != nil {
		return nil, err
	}

	if _, err := s.candidates.Get(ctx, candidateID); err != nil {
		if errors.Is(err, candidates.ErrNotFound) {
			return nil, ErrInvalidCandidate
		}
		return nil, err
	}

	commitment := s.Commitment(p.Subject)
	unlock, err := s.locks.Lock(ctx, commitment)
	if err != nil {
		// Nothing was written, so the caller may retry.
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer unlock()

	payload, err := s.seal(candidateID)
	if err != nil {
		return nil, err
	}

	var ballot *models.Ballot
	backoff := retry.WithMaxRetries(uint64(max(s.cfg.Retries, 0)), retry.NewExponential(s.cfg.Backoff)) //nolint:gosec // clamped to non-negative
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := s.append(ctx, commitment, payload)
		switch {
		case err == nil:
			ballot = b
			return nil
		case errors.Is(err, ErrAlreadyVoted):
			return err
		case database.IsUniqueViolation(err):
			if strings.Contains(err.Error(), "ballots.commitment") {
				return ErrAlreadyVoted
			}
			// Receipt or sequence collision; retry with a fresh receipt.
			return retry.RetryableError(err)
		case database.IsTransient(err):
			slog.Warn("ledger_contention", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			slog.Warn("vote_rejected", "reason", "already_voted")
			return nil, ErrAlreadyVoted
		}
		if database.IsTransient(err) || database.IsUniqueViolation(err) {
			slog.Error("vote_failed", "reason", "transient", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrTransient, err) //nolint:errorlint // storage error is informational only
		}
		return nil, fmt.Errorf("failed to append ballot: %w", err)
	}

	slog.Info("vote_cast")
	if s.onAppend != nil {
		s.onAppend()
	}
	return &Receipt{ID: ballot.Receipt, SubmittedAt: ballot.SubmittedAt}, nil
}

// append writes one ballot inside an IMMEDIATE transaction, so reading the
// chain head and inserting the new link cannot interleave with another
// writer.
func (s *Service) append(ctx context.Context, commitment string, payload []byte) (*models.Ballot, error) {
	receipt, err := newReceiptID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt: %w", err)
	}

	var ballot *models.Ballot
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		exists, err := tx.CommitmentExists(ctx, commitment)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyVoted
		}

		last, err := tx.LastBallot(ctx)
		if err != nil {
			return err
		}
		seq, prev := int64(1), GenesisHash
		if last != nil {
			seq, prev = last.Seq+1, last.Hash
		}

		b := &models.Ballot{
			Seq:         seq,
			Receipt:     receipt,
			Commitment:  commitment,
			Payload:     payload,
			SubmittedAt: s.now().UTC().Truncate(time.Microsecond),
			PrevHash:    prev,
		}
		b.Hash = chainHash(b)

		if err := tx.InsertBallot(ctx, b); err != nil {
			return err
		}
		ballot = b
		return nil
	})
	return ballot, err
}

// HasVoted reports whether a ballot exists for the principal.
func (s *Service) HasVoted(ctx context.Context, p *models.Principal) (bool, error) {
	if !p.IsVoter() {
		return false, ErrNotEligible
	}
	voted, err := s.repo.CommitmentExists(ctx, s.Commitment(p.Subject))
	if err != nil {
		return false, fmt.Errorf("failed to look up ballot: %w", err)
	}
	return voted, nil
}

// ReceiptFor returns the receipt of the principal's ballot, or nil when the
// principal has not voted. A client that lost the response to CastVote uses
// it to recover the receipt.
func (s *Service) ReceiptFor(ctx context.Context, p *models.Principal) (*Receipt, error) {
	if !p.IsVoter() {
		return nil, ErrNotEligible
	}
	id, at, err := s.repo.ReceiptByCommitment(ctx, s.Commitment(p.Subject))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up receipt: %w", err)
	}
	return &Receipt{ID: id, SubmittedAt: at.UTC()}, nil
}

// Open unseals a ballot payload.
func (s *Service) Open(b *models.Ballot) (*Vote, error) {
	plain, err := s.sealer.Open(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to open ballot %d: %w", b.Seq, err)
	}
	var v Vote
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("failed to decode ballot %d: %w", b.Seq, err)
	}
	return &v, nil
}

func (s *Service) checkEligible(ctx context.Context, p *models.Principal) error {
	if !p.IsVoter() {
		return ErrNotEligible
	}
	voter, err := s.repo.GetVoter(ctx, p.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotEligible
		}
		return fmt.Errorf("failed to get voter: %w", err)
	}
	if !voter.Verified {
		return ErrNotEligible
	}
	return nil
}

func (s *Service) seal(candidateID string) ([]byte, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	plain, err := json.Marshal(Vote{CandidateID: candidateID, Nonce: hex.EncodeToString(nonce)})
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to seal ballot: %w", err)
	}
	return sealed, nil
}

// chainHash covers every stored column except the hash itself. Variable
// length fields are length-prefixed.
func chainHash(b *models.Ballot) string {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Seq)) //nolint:gosec // sequence numbers are positive
	h.Write(buf[:])

	for _, part := range [][]byte{
		[]byte(b.Receipt),
		[]byte(b.Commitment),
		b.Payload,
		[]byte(b.SubmittedAt.UTC().Format(time.RFC3339Nano)),
		[]byte(b.PrevHash),
	} {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(part))) //nolint:gosec // field lengths are small
		h.Write(buf[:4])
		h.Write(part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrInvalidCandidate):
		return "invalid_candidate"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "error"
}

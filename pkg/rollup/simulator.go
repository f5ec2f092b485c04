package rollup

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type simPermission struct {
	members []Member
	active  bool
}

type simDelegation struct {
	validator    solana.PublicKey
	delegated    bool
	undelegating bool
}

// Simulator is an in-process Service. Requests stay unconfirmed until the
// matching Confirm call, unless AutoConfirm is set.
type Simulator struct {
	mu          sync.Mutex
	permissions map[solana.PublicKey]*simPermission
	delegations map[solana.PublicKey]*simDelegation
	failNext    error

	// AutoConfirm confirms every request as soon as it is accepted.
	AutoConfirm bool
}

func NewSimulator() *Simulator {
	return &Simulator{
		permissions: make(map[solana.PublicKey]*simPermission),
		delegations: make(map[solana.PublicKey]*simDelegation),
	}
}

// FailNext makes the next request or query return err.
func (s *Simulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Simulator) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func newSignature() solana.Signature {
	var sig solana.Signature
	_, _ = rand.Read(sig[:])
	return sig
}

func (s *Simulator) CreatePermission(ctx context.Context, req PermissionRequest) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return solana.Signature{}, err
	}
	s.permissions[req.PermissionedAccount] = &simPermission{
		members: append([]Member(nil), req.Members...),
		active:  s.AutoConfirm,
	}
	return newSignature(), nil
}

func (s *Simulator) PermissionStatus(ctx context.Context, account solana.PublicKey) (PermissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return PermissionStatus{}, err
	}
	p, ok := s.permissions[account]
	if !ok {
		return PermissionStatus{}, nil
	}
	return PermissionStatus{Exists: true, Active: p.active}, nil
}

// ConfirmPermission marks the permission of account active.
func (s *Simulator) ConfirmPermission(account solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[account]
	if !ok {
		return fmt.Errorf("no permission requested for %s", account)
	}
	p.active = true
	return nil
}

// Members returns the member set last submitted for account.
func (s *Simulator) Members(account solana.PublicKey) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[account]
	if !ok {
		return nil
	}
	return append([]Member(nil), p.members...)
}

func (s *Simulator) Delegate(ctx context.Context, req DelegationRequest) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return solana.Signature{}, err
	}
	if d, ok := s.delegations[req.Account]; ok && (d.delegated || d.undelegating) {
		return solana.Signature{}, fmt.Errorf("account %s is already delegated", req.Account)
	}
	s.delegations[req.Account] = &simDelegation{
		validator: req.Validator,
		delegated: s.AutoConfirm,
	}
	return newSignature(), nil
}

func (s *Simulator) DelegationStatus(ctx context.Context, account solana.PublicKey) (DelegationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return DelegationStatus{}, err
	}
	d, ok := s.delegations[account]
	if !ok || !d.delegated {
		return DelegationStatus{}, nil
	}
	return DelegationStatus{IsDelegated: true, Validator: d.validator}, nil
}

// ConfirmDelegation makes the router report account as delegated.
func (s *Simulator) ConfirmDelegation(account solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegations[account]
	if !ok {
		return fmt.Errorf("no delegation requested for %s", account)
	}
	d.delegated = true
	return nil
}

func (s *Simulator) Undelegate(ctx context.Context, account solana.PublicKey, payer solana.PublicKey) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return solana.Signature{}, err
	}
	d, ok := s.delegations[account]
	if !ok || !d.delegated {
		return solana.Signature{}, fmt.Errorf("account %s is not delegated", account)
	}
	d.undelegating = true
	if s.AutoConfirm {
		delete(s.delegations, account)
	}
	return newSignature(), nil
}

// ConfirmUndelegation returns account to the base layer.
func (s *Simulator) ConfirmUndelegation(account solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegations[account]
	if !ok || !d.undelegating {
		return fmt.Errorf("no undelegation requested for %s", account)
	}
	delete(s.delegations, account)
	return nil
}

// Package access decides whether an account may touch a resource.
//
// A resource is reachable by an account iff the account is in the ownership set of the
// student the resource ultimately belongs to. Unknown resources and resources owned by
// someone else are rejected with the same core.ErrUnauthorized.
package access

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

type Kind string

const (
	KindStudent    Kind = "student"
	KindClass      Kind = "class"
	KindSubmission Kind = "submission"
	KindProject    Kind = "project"
	KindQuestion   Kind = "question"
)

// Ref points at a resource guarded by student ownership.
type Ref struct {
	Kind Kind
	ID   int
}

func (r Ref) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

func Student(id int) Ref    { return Ref{Kind: KindStudent, ID: id} }
func Class(id int) Ref      { return Ref{Kind: KindClass, ID: id} }
func Submission(id int) Ref { return Ref{Kind: KindSubmission, ID: id} }
func Project(id int) Ref    { return Ref{Kind: KindProject, ID: id} }
func Question(id int) Ref   { return Ref{Kind: KindQuestion, ID: id} }

var (
	ErrNotFound    = errors.New("account or student not found")
	ErrUnknownKind = errors.New("unknown resource kind")
)

type (
	Repository interface {
		// Owns reports whether the account owns the student behind ref.
		// With lock, the matching ownership row is share-locked until exec's transaction ends.
		Owns(ctx context.Context, accountID int, ref Ref, lock bool, exec ...core.DBExecutor) (bool, error)
		// AddOwner reports false when the pair already existed.
		AddOwner(ctx context.Context, accountID, studentID int, exec ...core.DBExecutor) (bool, error)
		// RemoveOwner reports false when there was nothing to remove.
		RemoveOwner(ctx context.Context, accountID, studentID int, exec ...core.DBExecutor) (bool, error)
		ListOwners(ctx context.Context, studentID int, exec ...core.DBExecutor) ([]int, error)
	}

	Gate struct {
		repo Repository
		tx   core.Transactor
	}
)

func NewGate(repo Repository, tx core.Transactor) *Gate {
	return &Gate{repo: repo, tx: tx}
}

func validKind(k Kind) bool {
	switch k {
	case KindStudent, KindClass, KindSubmission, KindProject, KindQuestion:
		return true
	}
	return false
}

// Authorize returns nil iff the account owns the resource at the time of the call.
func (g *Gate) Authorize(ctx context.Context, accountID int, ref Ref) error {
	if !validKind(ref.Kind) {
		return errors.Wrap(ErrUnknownKind, string(ref.Kind))
	}
	ok, err := g.repo.Owns(ctx, accountID, ref, false)
	if err != nil {
		return errors.Wrapf(err, "checking ownership of %s", ref)
	}
	if !ok {
		return core.ErrUnauthorized
	}
	return nil
}

// Guard runs fn in a transaction that first checks, and share-locks, the account's ownership
// of the resource. A concurrent ownership removal waits until fn's transaction ends, so fn never
// acts on a grant that was already gone.
func (g *Gate) Guard(ctx context.Context, accountID int, ref Ref, fn func(exec core.DBExecutor) error) error {
	if !validKind(ref.Kind) {
		return errors.Wrap(ErrUnknownKind, string(ref.Kind))
	}
	return g.tx.InTx(ctx, func(exec core.DBExecutor) error {
		ok, err := g.repo.Owns(ctx, accountID, ref, true, exec)
		if err != nil {
			return errors.Wrapf(err, "checking ownership of %s", ref)
		}
		if !ok {
			return core.ErrUnauthorized
		}
		return fn(exec)
	})
}

func (g *Gate) AddOwner(ctx context.Context, accountID, studentID int) (bool, error) {
	return g.repo.AddOwner(ctx, accountID, studentID)
}

func (g *Gate) RemoveOwner(ctx context.Context, accountID, studentID int) (bool, error) {
	return g.repo.RemoveOwner(ctx, accountID, studentID)
}

func (g *Gate) Owners(ctx context.Context, studentID int) ([]int, error) {
	return g.repo.ListOwners(ctx, studentID)
}

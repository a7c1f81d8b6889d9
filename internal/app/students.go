package app

import (
	"context"
	"fmt"

	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/domain"
)

func ensureStudent(ctx context.Context, dir StudentDirectory, studentID int64) error {
	if studentID <= 0 {
		return domain.ErrInvalidID
	}
	ok, err := dir.Exists(ctx, studentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrStudentNotFound, studentID)
	}
	return nil
}

// studentIDOf maps the principal's subject (an email) to a student id.
func studentIDOf(ctx context.Context, dir StudentDirectory, actor auth.Principal) (int64, error) {
	return dir.FindIDByEmail(ctx, actor.Subject)
}

// requireOwner fails with ErrNotOwner unless the principal is studentID.
func requireOwner(ctx context.Context, dir StudentDirectory, actor auth.Principal, studentID int64) error {
	own, err := studentIDOf(ctx, dir, actor)
	if err != nil {
		return err
	}
	if own != studentID {
		return fmt.Errorf("%w: %s is not student %d", domain.ErrNotOwner, actor.Subject, studentID)
	}
	return nil
}

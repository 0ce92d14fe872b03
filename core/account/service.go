package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/codeabode/backend/core"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrUsernameExists     = errors.New("an account with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Account, error)
		UsernameExists(ctx context.Context, username string, exec ...core.DBExecutor) (bool, error)
		UpdatePassword(ctx context.Context, id int, hash []byte, updatedAt time.Time, exec ...core.DBExecutor) error
		UpdateEmail(ctx context.Context, id int, email string, updatedAt time.Time, exec ...core.DBExecutor) error
	}

	// TokenRevoker expires every live session token of an account.
	TokenRevoker interface {
		RevokeAll(ctx context.Context, accountID int, exec ...core.DBExecutor) (int64, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, na NewAccount) (Account, error)
		GetByID(ctx context.Context, id int) (Account, error)
		GetByUsername(ctx context.Context, username string) (Account, error)
		Authenticate(ctx context.Context, creds Credentials) (Account, error)
		ChangePassword(ctx context.Context, pc PasswordChange) (int64, error)
		ResetPassword(ctx context.Context, username, pwd string) (int64, error)
		SetEmail(ctx context.Context, id int, eu EmailUpdate) (Account, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		sessions TokenRevoker
		mailSvc  core.EmailService
		hashCost int
		// compared against when the username is unknown so both paths cost
		// one bcrypt comparison at the configured cost
		dummyHash []byte
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, repo Repository, tx core.Transactor, sessions TokenRevoker, mailSvc core.EmailService) *Service {
	var dummy Account
	if err := dummy.SetPassword("not-a-real-password", conf.PasswordHashCost); err != nil {
		panic(errors.Wrap(err, "hashing dummy password"))
	}
	return &Service{
		repo:      repo,
		tx:        tx,
		sessions:  sessions,
		mailSvc:   mailSvc,
		hashCost:  conf.PasswordHashCost,
		dummyHash: dummy.PasswordHash,
	}
}

func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	exists, err := svc.repo.UsernameExists(ctx, na.Username)
	if err != nil {
		return Account{}, errors.Wrap(err, "checking username uniqueness")
	}
	if exists {
		return Account{}, core.NewValidationError(ErrUsernameExists, core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
	}

	now := NowFunc().UTC()
	acc := Account{
		Username:  na.Username,
		Name:      na.Name,
		Email:     na.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acc.SetPassword(na.Password, svc.hashCost); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateAccount(ctx, acc)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, username string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Username: core.CleanString(username, true /* lower */)})
}

// Authenticate returns the account matching creds, or ErrInvalidCredentials.
// Unknown usernames and wrong passwords cannot be told apart, not even by timing.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	acc, err := svc.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			_ = bcrypt.CompareHashAndPassword(svc.dummyHash, []byte(creds.Password))
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account by username")
	}
	if err := acc.CheckPassword(creds.Password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

// ChangePassword sets a new password after checking the current one,
// and expires every live session of the account in the same transaction.
func (svc *Service) ChangePassword(ctx context.Context, pc PasswordChange) (int64, error) {
	acc, err := svc.Authenticate(ctx, Credentials{Username: pc.Username, Password: pc.Password})
	if err != nil {
		return 0, err
	}
	revoked, err := svc.setPassword(ctx, acc, pc.NewPassword)
	if err != nil {
		return 0, err
	}
	svc.notifyPasswordChanged(acc)
	return revoked, nil
}

// ResetPassword is the administrative reset: no current password is needed.
func (svc *Service) ResetPassword(ctx context.Context, username, pwd string) (int64, error) {
	acc, err := svc.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	revoked, err := svc.setPassword(ctx, acc, pwd)
	if err != nil {
		return 0, err
	}
	svc.notifyPasswordChanged(acc)
	return revoked, nil
}

func (svc *Service) setPassword(ctx context.Context, acc Account, pwd string) (int64, error) {
	if err := acc.SetPassword(pwd, svc.hashCost); err != nil {
		return 0, errors.Wrap(err, "hashing password")
	}

	var revoked int64
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.UpdatePassword(ctx, acc.ID, acc.PasswordHash, NowFunc().UTC(), exec); err != nil {
			return errors.Wrap(err, "updating password")
		}
		n, err := svc.sessions.RevokeAll(ctx, acc.ID, exec)
		if err != nil {
			return errors.Wrap(err, "revoking tokens")
		}
		revoked = n
		return nil
	})
	return revoked, err
}

func (svc *Service) SetEmail(ctx context.Context, id int, eu EmailUpdate) (Account, error) {
	if err := svc.repo.UpdateEmail(ctx, id, eu.Email, NowFunc().UTC()); err != nil {
		return Account{}, errors.Wrap(err, "updating email")
	}
	return svc.GetByID(ctx, id)
}

func (svc *Service) notifyPasswordChanged(acc Account) {
	if acc.Email == "" || svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "Your password was changed",
		TemplateName: "password_changed",
		TemplateData: map[string]interface{}{
			"Name":      acc.Name,
			"Username":  acc.Username,
			"ChangedAt": NowFunc().UTC().Format(time.RFC1123),
		},
	})
}

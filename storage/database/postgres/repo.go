// Package pgrepos implements the core repositories on PostgreSQL, with sqlx and squirrel.
//
// Every check that an account owns the student behind a resource is evaluated inside the same
// statement that acts on the resource.
package pgrepos

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/codeabode/backend/core"
)

// postgres error codes
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ownedStudent is true when the account bound to the given placeholder owns the student column.
func ownedStudent(studentCol, accountParam string) string {
	return "EXISTS (SELECT 1 FROM student_owners so WHERE so.student_id = " + studentCol + " AND so.account_id = " + accountParam + ")"
}

type baseRepo struct {
	exec core.DBExecutor
}

func (repo baseRepo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func pqCode(err error) string {
	if pqErr, ok := err.(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

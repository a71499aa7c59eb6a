package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
)

// Classify maps pgx errors to resilience error kinds. SQLSTATE codes are
// checked first; anything pgx cannot explain falls through to
// resilience.Classify.
func Classify(err error) resilience.ErrorKind {
	if err == nil {
		return resilience.KindUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connectErr):
		return resilience.KindConnection
	case pgconn.Timeout(err):
		return resilience.KindTimeout
	case pgconn.SafeToRetry(err):
		return resilience.KindConnection
	}
	return resilience.Classify(err)
}

func classifyCode(code string) resilience.ErrorKind {
	switch code {
	case "57P01", "57P02", "57P03", "53300":
		return resilience.KindUnavailable
	case "57014":
		return resilience.KindTimeout
	case "40001", "40P01", "55P03":
		return resilience.KindSerialization
	}

	switch {
	case strings.HasPrefix(code, "08"):
		return resilience.KindConnection
	case strings.HasPrefix(code, "53"):
		return resilience.KindUnavailable
	case strings.HasPrefix(code, "23"):
		return resilience.KindConstraint
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "42"):
		return resilience.KindValidation
	}
	return resilience.KindUnknown
}

// infrastructural reports whether err says something about the pool or
// the server rather than the statement.
func infrastructural(err error) bool {
	switch Classify(err) {
	case resilience.KindConnection, resilience.KindTimeout, resilience.KindUnavailable:
		return true
	}
	return false
}

package postgres

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/court-registry/internal/core/domain"
	"github.com/kirillkom/court-registry/internal/infrastructure/resilience"
)

func classifyPostgresError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if class, ok := resilience.ClassifyContext(err); ok {
		return class
	}
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		return resilience.Ignored
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isTransientSQLState(pgErr.Code) {
			return resilience.Transient
		}
		return resilience.Permanent
	}

	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return resilience.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient
	}
	return resilience.Permanent
}

// isTransientSQLState covers connection exceptions, serialization and
// deadlock failures, and server shutdown or overload.
func isTransientSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", "40P01", "57P01", "57P02", "57P03", "53300":
		return true
	default:
		return false
	}
}

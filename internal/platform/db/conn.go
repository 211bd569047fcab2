package db

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const DBConnKey contextKey = "db_conn"

// Queryable is the subset of pgx shared by pools, pooled connections and
// transactions. Repositories run every statement through it.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ErrPoolTimeout is returned when no connection frees up within the
// configured pool timeout.
var ErrPoolTimeout = errors.New("timed out waiting for a database connection")

// Acquirer is satisfied by *pgxpool.Pool.
type Acquirer interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
}

// ConnMiddleware acquires one pooled connection per request, stores it on the
// request context and releases it when the handler returns, on every exit path.
// Requests for which skip returns true do not hold a connection.
func ConnMiddleware(pool Acquirer, timeout time.Duration, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			ctx := c.Request().Context()
			conn, err := acquire(ctx, pool, timeout)
			if err != nil {
				return err
			}
			defer conn.Release()

			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("db", conn)

			return next(c)
		}
	}
}

func acquire(ctx context.Context, pool Acquirer, timeout time.Duration) (*pgxpool.Conn, error) {
	acqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := pool.Acquire(acqCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "database busy").SetInternal(ErrPoolTimeout)
		}
		return nil, err
	}
	return conn, nil
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// Resolve returns the request-scoped connection when one is attached to ctx,
// otherwise the fallback (normally the pool itself).
func Resolve(ctx context.Context, fallback Queryable) Queryable {
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return fallback
}

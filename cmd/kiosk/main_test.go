package main

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"booth-kiosk/internal/cart"
	"booth-kiosk/internal/payment"
	"booth-kiosk/internal/session"
	"booth-kiosk/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd("test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseItems(t *testing.T) {
	t.Run("Builds cart", func(t *testing.T) {
		c, err := parseItems([]string{"p-1:1000:2", "p-2:500:3", "p-1:1000"})
		require.NoError(t, err)
		assert.Equal(t, 3, c.Quantity("p-1"))
		assert.Equal(t, 3, c.Quantity("p-2"))
		assert.Equal(t, int64(4500), c.Total())
		assert.Equal(t, 6, c.ItemCount())
	})

	for _, bad := range []string{"", "p-1", ":100", "p-1:abc", "p-1:-5", "p-1:100:0", "p-1:100:x", "a:1:2:3"} {
		t.Run("Rejects "+bad, func(t *testing.T) {
			_, err := parseItems([]string{bad})
			assert.ErrorIs(t, err, errBadItem)
		})
	}
}

func TestParseStock(t *testing.T) {
	stock, err := parseStock([]string{"p-1:4", "p-2:0"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p-1": 4, "p-2": 0}, stock)

	_, err = parseStock([]string{"p-1"})
	assert.ErrorIs(t, err, errBadStock)
}

func TestParseMethod(t *testing.T) {
	tests := map[string]payment.Method{
		"qr":         payment.MethodCodeScan,
		"QR":         payment.MethodCodeScan,
		"code-scan":  payment.MethodCodeScan,
		"student":    payment.MethodIdentifier,
		"identifier": payment.MethodIdentifier,
	}
	for in, want := range tests {
		got, err := parseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseMethod("cash")
	assert.ErrorIs(t, err, errUnknownMethod)
}

func TestClock(t *testing.T) {
	assert.Equal(t, "3:00", clock(180))
	assert.Equal(t, "0:59", clock(59))
	assert.Equal(t, "0:00", clock(-3))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "kiosk test\n", out)
}

func TestValidateStudentCmd(t *testing.T) {
	out, err := execute(t, "validate-student", "2314")
	require.NoError(t, err)
	assert.Equal(t, "grade 2, room 3, number 14\n", out)

	_, err = execute(t, "validate-student", "0099")
	assert.ErrorIs(t, err, payment.ErrInvalidGrade)
}

func TestWhoamiCmd(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("kiosk-secret"))
		require.NoError(t, err)
		return tok
	}

	t.Run("Valid", func(t *testing.T) {
		tok := sign(jwt.MapClaims{
			"booth_id": "booth-7",
			"name":     "Canteen",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})
		out, err := execute(t, "whoami", "--token", tok)
		require.NoError(t, err)
		assert.Contains(t, out, "booth: booth-7")
		assert.Contains(t, out, "name: Canteen")
		assert.NotContains(t, out, "warning")
	})

	t.Run("Expired", func(t *testing.T) {
		tok := sign(jwt.MapClaims{
			"booth_id": "booth-7",
			"exp":      time.Now().Add(-time.Hour).Unix(),
		})
		out, err := execute(t, "whoami", "--token", tok)
		require.NoError(t, err)
		assert.Contains(t, out, "warning: token has expired")
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := execute(t, "whoami", "--token", "not-a-jwt")
		assert.Error(t, err)
	})
}

func payEnv(t *testing.T, backend *testutil.Backend) {
	t.Helper()
	t.Setenv("API_BASE_URL", backend.URL())
	t.Setenv("API_RATE_LIMIT", "0")
	t.Setenv("APP_ENV", "test")
	t.Setenv("KIOSK_TOKEN", "")
	t.Setenv("JOURNAL_DSN", "")
	t.Setenv("RECONNECT_BASE_DELAY", "10ms")
	t.Setenv("RECONNECT_MAX_DELAY", "20ms")
}

// pushWhenOpen sends frame to requestID once the kiosk has opened its socket.
func pushWhenOpen(t *testing.T, backend *testutil.Backend, requestID string, frame map[string]string) {
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if backend.OpenSockets(requestID) > 0 {
				_ = backend.Push(requestID, frame)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestPayCmd_QRCompleted(t *testing.T) {
	backend := testutil.NewBackend(t)
	payEnv(t, backend)

	// order is ord-1, the payment request that follows is req-2
	pushWhenOpen(t, backend, "req-2", map[string]string{"status": "COMPLETED"})

	out, err := execute(t, "pay", "--item", "p-1:1000:2", "--item", "p-2:500:3", "--method", "qr")
	require.NoError(t, err)

	assert.Contains(t, out, "order ord-1: 5 items, total 3,500")
	assert.Contains(t, out, "scan this code: qr:req-2")
	assert.Contains(t, out, "-> confirmation for order ord-1")
	assert.Contains(t, out, "paid: order ord-1")

	orders := backend.Calls("/orders")
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Body["items"], 2)
}

func TestPayCmd_StudentExpired(t *testing.T) {
	backend := testutil.NewBackend(t)
	payEnv(t, backend)

	pushWhenOpen(t, backend, "req-2", map[string]string{"status": "EXPIRED"})

	out, err := execute(t, "pay", "--item", "p-1:1000", "--method", "student", "--student", "2314")
	assert.ErrorIs(t, err, errNotPaid)
	assert.ErrorContains(t, err, string(session.StateExpired))

	calls := backend.Calls("/payments/student-id")
	require.Len(t, calls, 1)
	assert.Equal(t, "2314", calls[0].Body["studentId"])
	assert.Len(t, backend.Calls("/orders/ord-1/cancel"), 1)
	assert.Contains(t, out, "-> back to products")
}

func TestPayCmd_CreationErrorCancelsOrder(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.OnStudentPayment = func(orderID, studentID string) testutil.Reply {
		return testutil.ErrorReply(http.StatusNotFound, payment.CodeUserNotFound)
	}
	payEnv(t, backend)

	out, err := execute(t, "pay", "--item", "p-1:1000", "--method", "student", "--student", "2314")
	assert.ErrorIs(t, err, errNotPaid)
	assert.ErrorContains(t, err, string(session.StateCreateFailed))

	assert.Len(t, backend.Calls("/payments/student-id"), 1)
	assert.Len(t, backend.Calls("/orders/ord-1/cancel"), 1)
	assert.Contains(t, out, "error: "+payment.MessageFor(payment.CodeUserNotFound))
	assert.Contains(t, out, "giving up; cancelling order...")
	assert.Contains(t, out, "-> back to products")
}

func TestPayCmd_RetriesCreationError(t *testing.T) {
	backend := testutil.NewBackend(t)
	var calls atomic.Int32
	backend.OnStudentPayment = func(orderID, studentID string) testutil.Reply {
		if calls.Add(1) == 1 {
			return testutil.ErrorReply(http.StatusNotFound, payment.CodeBoothNotFound)
		}
		return testutil.Reply{Body: map[string]any{
			"id":        "req-student",
			"expiresAt": time.Now().Add(time.Minute).UTC().Format(time.RFC3339Nano),
		}}
	}
	payEnv(t, backend)

	pushWhenOpen(t, backend, "req-student", map[string]string{"status": "COMPLETED"})

	out, err := execute(t, "pay", "--item", "p-1:1000", "--method", "student", "--student", "2314", "--retries", "1")
	require.NoError(t, err)

	studentCalls := backend.Calls("/payments/student-id")
	require.Len(t, studentCalls, 2)
	assert.Equal(t, "2314", studentCalls[1].Body["studentId"])
	assert.Empty(t, backend.Calls("/orders/ord-1/cancel"))
	assert.Contains(t, out, "retrying payment (0 left)")
	assert.Contains(t, out, "paid: order ord-1")
}

func TestPayCmd_OrderNotPending(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.OnQRPayment = func(orderID string) testutil.Reply {
		return testutil.ErrorReply(http.StatusConflict, payment.CodeOrderNotPending)
	}
	payEnv(t, backend)

	out, err := execute(t, "pay", "--item", "p-1:1000", "--method", "qr", "--retries", "2")
	assert.ErrorIs(t, err, errNotPaid)
	assert.ErrorContains(t, err, string(session.StateCreateFailed))

	assert.Len(t, backend.Calls("/payments/qr"), 1, "order-level refusals are not retried")
	assert.Empty(t, backend.Calls("/orders/ord-1/cancel"))
	assert.Contains(t, out, "-> back to products")
	assert.NotContains(t, out, "retrying payment")
}

func TestPayCmd_FailedPushCancelsOrder(t *testing.T) {
	backend := testutil.NewBackend(t)
	payEnv(t, backend)

	pushWhenOpen(t, backend, "req-2", map[string]string{"status": "FAILED"})

	out, err := execute(t, "pay", "--item", "p-1:1000", "--method", "qr")
	assert.ErrorIs(t, err, errNotPaid)
	assert.ErrorContains(t, err, string(session.StateFailed))

	assert.Len(t, backend.Calls("/orders/ord-1/cancel"), 1)
	assert.Contains(t, out, "state: "+string(session.StateFailed))
	assert.Contains(t, out, "-> back to products")
}

func TestPayCmd_RejectsBeforeNetwork(t *testing.T) {
	backend := testutil.NewBackend(t)
	payEnv(t, backend)

	_, err := execute(t, "pay", "--item", "p-1:1000", "--method", "student", "--student", "0099")
	assert.ErrorIs(t, err, payment.ErrInvalidGrade)

	_, err = execute(t, "pay", "--item", "p-1:1000:3", "--stock", "p-1:2")
	assert.True(t, errors.Is(err, cart.ErrInsufficientStock))

	_, err = execute(t, "pay", "--item", "p-1:1000", "--method", "cash")
	assert.ErrorIs(t, err, errUnknownMethod)

	assert.Empty(t, backend.Calls("/orders"))
}

func TestPayCmd_MissingConfig(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	_, err := execute(t, "pay", "--item", "p-1:1000")
	assert.Error(t, err)
}

func TestJournalCmd(t *testing.T) {
	cols := []string{"id", "order_id", "request_id", "method", "status", "amount", "recorded_at"}
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	run := func(t *testing.T, conn *sql.DB, args ...string) (string, string, error) {
		t.Helper()
		var out bytes.Buffer
		var opened string
		cmd := newJournalCmd(func(dsn string) (*sql.DB, error) {
			opened = dsn
			return conn, nil
		})
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), opened, err
	}

	t.Run("Lists outcomes", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectQuery("SELECT .* FROM payment_journal WHERE order_id = \\$1").
			WithArgs("ord-1").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(uuid.NewString(), "ord-1", "req-2", "code-scan", "FAILED", int64(3500), at).
				AddRow(uuid.NewString(), "ord-1", "", "identifier", "CANCELLED", int64(3500), at.Add(time.Minute)))
		mock.ExpectClose()

		out, dsn, err := run(t, conn, "ord-1", "--dsn", "postgres://journal")
		require.NoError(t, err)
		assert.Equal(t, "postgres://journal", dsn)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "2026-03-02T10:00:00Z")
		assert.Contains(t, lines[0], "FAILED")
		assert.Contains(t, lines[0], "req-2")
		assert.Contains(t, lines[0], "3,500")
		assert.Contains(t, lines[1], "CANCELLED")
		assert.Contains(t, lines[1], " - ")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing recorded", func(t *testing.T) {
		t.Setenv("JOURNAL_DSN", "postgres://from-env")
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectQuery("SELECT .* FROM payment_journal").
			WithArgs("ord-9").
			WillReturnRows(sqlmock.NewRows(cols))
		mock.ExpectClose()

		out, dsn, err := run(t, conn, "ord-9")
		require.NoError(t, err)
		assert.Equal(t, "postgres://from-env", dsn)
		assert.Equal(t, "no payment outcomes recorded for order ord-9\n", out)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No journal configured", func(t *testing.T) {
		t.Setenv("JOURNAL_DSN", "")
		_, dsn, err := run(t, nil, "ord-1")
		assert.ErrorIs(t, err, errNoJournal)
		assert.Empty(t, dsn)
	})

	t.Run("Needs an order id", func(t *testing.T) {
		_, _, err := run(t, nil)
		assert.Error(t, err)
	})
}

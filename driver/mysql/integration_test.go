//go:build integration

package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// setupMySQL starts a disposable mysql:8 container and returns a
// config pointing this package's hand-rolled client at it. mysql:8
// defaults to caching_sha2_password, so the handshake exercises the
// full-auth RSA path on a fresh container (the auth cache is cold).
func setupMySQL(t *testing.T) conn.MySQLConfig {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return conn.MySQLConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "root",
		Password: "testpass",
		Database: "testdb",
	}
}

func TestIntegrationHandshakeAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg := setupMySQL(t)
	c := cx.Background()

	mc, err := Open(c, cfg).Unwrap()
	require.NoError(t, err, "wire-protocol handshake failed")
	defer mc.Close()

	_, err = mc.Ping(c).Unwrap()
	require.NoError(t, err)

	_, err = mc.Execute(c, "CREATE TABLE widgets (id BIGINT PRIMARY KEY AUTO_INCREMENT, name VARCHAR(64))", nil).Unwrap()
	require.NoError(t, err)

	id, err := mc.Insert(c, "INSERT INTO widgets (name) VALUES (?)", []sqlval.Value{sqlval.Text("anvil")}).Unwrap()
	require.NoError(t, err)
	require.Equal(t, int64(1), id, "last-insert-id from the OK packet")

	rows, err := mc.Query(c, "SELECT id, name FROM widgets", nil).Unwrap()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, err := rows[0].GetNamed("name")
	require.NoError(t, err)
	s, _ := name.AsString()
	require.Equal(t, "anvil", s)
}

func TestIntegrationPreparedStatements(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg := setupMySQL(t)
	c := cx.Background()

	mc, err := Open(c, cfg).Unwrap()
	require.NoError(t, err)
	defer mc.Close()

	_, err = mc.Execute(c, "CREATE TABLE nums (n BIGINT)", nil).Unwrap()
	require.NoError(t, err)

	stmt, err := mc.Prepare(c, "INSERT INTO nums (n) VALUES (?)").Unwrap()
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		_, err := stmt.Exec(c, []sqlval.Value{sqlval.BigInt(i)}).Unwrap()
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())

	q, err := mc.Prepare(c, "SELECT n FROM nums WHERE n >= ? ORDER BY n").Unwrap()
	require.NoError(t, err)
	defer q.Close()

	rows, err := q.Query(c, []sqlval.Value{sqlval.BigInt(3)}).Unwrap()
	require.NoError(t, err)
	require.Len(t, rows, 3, "binary-protocol result decoding")
}

func TestIntegrationTransactionRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg := setupMySQL(t)
	c := cx.Background()

	mc, err := Open(c, cfg).Unwrap()
	require.NoError(t, err)
	defer mc.Close()

	_, err = mc.Execute(c, "CREATE TABLE t (id BIGINT)", nil).Unwrap()
	require.NoError(t, err)

	tx, err := mc.Begin(c, conn.RepeatableRead).Unwrap()
	require.NoError(t, err)
	_, err = tx.Execute(c, "INSERT INTO t VALUES (1)", nil).Unwrap()
	require.NoError(t, err)
	_, err = tx.Rollback(c).Unwrap()
	require.NoError(t, err)

	rows, err := mc.Query(c, "SELECT id FROM t", nil).Unwrap()
	require.NoError(t, err)
	require.Empty(t, rows, "rolled-back insert must not be visible")
}

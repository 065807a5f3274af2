package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/driver/mysql"
	"github.com/sqlmodel/sqlmodel/driver/postgres"
	"github.com/sqlmodel/sqlmodel/driver/sqlite"
	"github.com/sqlmodel/sqlmodel/migrate"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/ddl"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

type Command struct {
	Name        string
	Description string
	Action      func(args []string) error
}

var commands = []Command{
	{
		Name:        "migrate",
		Description: "Run pending migrations from the migrations directory",
		Action:      runMigrate,
	},
	{
		Name:        "migrate:rollback",
		Description: "Roll back the most recently applied migrations",
		Action:      runRollback,
	},
	{
		Name:        "migrate:status",
		Description: "Show applied and pending migrations",
		Action:      runStatus,
	},
	{
		Name:        "make:migration",
		Description: "Create a new timestamped migration file pair",
		Action:      runMakeMigration,
	},
	{
		Name:        "schema:diff",
		Description: "Diff the live schema against an expected schema file and print DDL",
		Action:      runSchemaDiff,
	},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	for _, cmd := range commands {
		if cmd.Name == name {
			if err := cmd.Action(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "sqlmodel %s: %v\n", name, err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "sqlmodel: unknown command %q\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: sqlmodel <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", cmd.Name, cmd.Description)
	}
}

// connFlags holds the connection flags shared by every command that
// talks to a database.
type connFlags struct {
	driver   string
	host     string
	port     int
	user     string
	password string
	database string
	path     string
}

func (f *connFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.driver, "driver", "sqlite", "database driver: sqlite, postgres, or mysql")
	fs.StringVar(&f.host, "host", "localhost", "server host (postgres/mysql)")
	fs.IntVar(&f.port, "port", 0, "server port (defaults to the driver's standard port)")
	fs.StringVar(&f.user, "user", "", "user name (postgres/mysql)")
	fs.StringVar(&f.password, "password", "", "password (postgres/mysql)")
	fs.StringVar(&f.database, "database", "", "database name (postgres/mysql)")
	fs.StringVar(&f.path, "path", "", "database file path (sqlite)")
}

func (f *connFlags) dialect() (query.Dialect, error) {
	switch f.driver {
	case "postgres":
		return query.Postgres, nil
	case "mysql":
		return query.MySQL, nil
	case "sqlite":
		return query.SQLite, nil
	default:
		return 0, fmt.Errorf("unknown driver %q", f.driver)
	}
}

func (f *connFlags) open(c cx.Cx) (conn.Connection, error) {
	switch f.driver {
	case "postgres":
		port := f.port
		if port == 0 {
			port = 5432
		}
		out := postgres.Open(c, conn.PostgresConfig{
			Host: f.host, Port: port,
			User: f.user, Password: f.password, Database: f.database,
		})
		pc, err := out.Unwrap()
		return pc, err
	case "mysql":
		port := f.port
		if port == 0 {
			port = 3306
		}
		out := mysql.Open(c, conn.MySQLConfig{
			Host: f.host, Port: port,
			User: f.user, Password: f.password, Database: f.database,
		})
		mc, err := out.Unwrap()
		return mc, err
	case "sqlite":
		if f.path == "" {
			return nil, fmt.Errorf("sqlite requires -path")
		}
		out := sqlite.Open(c, conn.SQLiteConfig{Path: f.path, ForeignKeys: true})
		sc, err := out.Unwrap()
		return sc, err
	default:
		return nil, fmt.Errorf("unknown driver %q", f.driver)
	}
}

// loadMigrations reads <id>_<description>.up.sql / .down.sql pairs from
// dir, sorted ascending by id.
func loadMigrations(dir string) ([]migrate.Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var migrations []migrate.Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(name, ".up.sql")
		id, description, found := strings.Cut(base, "_")
		if !found {
			id, description = base, ""
		}
		upSQL, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		downSQL := ""
		if raw, err := os.ReadFile(filepath.Join(dir, base+".down.sql")); err == nil {
			downSQL = string(raw)
		}
		migrations = append(migrations, migrate.NewSQLMigration(id, strings.ReplaceAll(description, "_", " "), string(upSQL), downSQL))
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

func trackingDDL(d query.Dialect) string {
	switch d {
	case query.Postgres:
		return `CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, description TEXT, applied_at TIMESTAMPTZ, checksum TEXT)`
	case query.MySQL:
		return "CREATE TABLE IF NOT EXISTS schema_migrations (id VARCHAR(32) PRIMARY KEY, description TEXT, applied_at TIMESTAMP, checksum VARCHAR(64))"
	default:
		return `CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, description TEXT, applied_at TIMESTAMP, checksum TEXT)`
	}
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var cf connFlags
	cf.register(fs)
	dir := fs.String("dir", "migrations", "migrations directory")
	fs.Parse(args)

	d, err := cf.dialect()
	if err != nil {
		return err
	}
	c := cx.Background()
	db, err := cf.open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := loadMigrations(*dir)
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(d)
	if _, err := runner.EnsureTrackingTable(c, db, trackingDDL(d)).Unwrap(); err != nil {
		return err
	}
	report, err := runner.Apply(c, db, migrations).Unwrap()
	if err != nil {
		return err
	}
	if len(report.Applied) == 0 {
		fmt.Println("Nothing to migrate.")
		return nil
	}
	for _, id := range report.Applied {
		fmt.Printf("Migrated: %s\n", id)
	}
	return nil
}

func runRollback(args []string) error {
	fs := flag.NewFlagSet("migrate:rollback", flag.ExitOnError)
	var cf connFlags
	cf.register(fs)
	dir := fs.String("dir", "migrations", "migrations directory")
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	fs.Parse(args)

	d, err := cf.dialect()
	if err != nil {
		return err
	}
	c := cx.Background()
	db, err := cf.open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := loadMigrations(*dir)
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(d)
	report, err := runner.Revert(c, db, migrations, *steps).Unwrap()
	if err != nil {
		return err
	}
	if len(report.Applied) == 0 {
		fmt.Println("Nothing to roll back.")
		return nil
	}
	for _, id := range report.Applied {
		fmt.Printf("Rolled back: %s\n", id)
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("migrate:status", flag.ExitOnError)
	var cf connFlags
	cf.register(fs)
	dir := fs.String("dir", "migrations", "migrations directory")
	fs.Parse(args)

	d, err := cf.dialect()
	if err != nil {
		return err
	}
	c := cx.Background()
	db, err := cf.open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := loadMigrations(*dir)
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(d)
	applied, err := runner.Applied(c, db).Unwrap()
	if err != nil {
		return err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, id := range applied {
		appliedSet[id] = true
	}
	for _, m := range migrations {
		state := "pending"
		if appliedSet[m.ID] {
			state = "applied"
		}
		fmt.Printf("%-8s %s %s\n", state, m.ID, m.Description)
	}
	return nil
}

func runMakeMigration(args []string) error {
	fs := flag.NewFlagSet("make:migration", flag.ExitOnError)
	dir := fs.String("dir", "migrations", "migrations directory")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: sqlmodel make:migration [-dir DIR] <name>")
	}
	name := strings.ReplaceAll(fs.Arg(0), " ", "_")

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	existing := map[string]bool{}
	entries, err := os.ReadDir(*dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if id, _, ok := strings.Cut(entry.Name(), "_"); ok {
			existing[id] = true
		}
	}
	id := migrate.NextVersion(time.Now(), existing)
	base := filepath.Join(*dir, id+"_"+name)
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		if err := os.WriteFile(base+suffix, []byte("-- "+name+"\n"), 0o644); err != nil {
			return err
		}
		fmt.Printf("Created: %s\n", base+suffix)
	}
	return nil
}

func runSchemaDiff(args []string) error {
	fs := flag.NewFlagSet("schema:diff", flag.ExitOnError)
	var cf connFlags
	cf.register(fs)
	expectedPath := fs.String("expected", "schema.yaml", "expected schema file (YAML)")
	fs.Parse(args)

	d, err := cf.dialect()
	if err != nil {
		return err
	}
	c := cx.Background()
	db, err := cf.open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var actual schema.DatabaseSchema
	switch d {
	case query.Postgres:
		actual, err = schema.IntrospectPostgres(c, db)
	case query.MySQL:
		actual, err = schema.IntrospectMySQL(c, db)
	default:
		actual, err = schema.IntrospectSQLite(c, db)
	}
	if err != nil {
		return err
	}

	expected, err := loadExpectedSchema(*expectedPath)
	if err != nil {
		return err
	}

	ops := diff.Diff(actual, expected, diff.RenameHints{})
	if len(ops) == 0 {
		fmt.Println("Schema is up to date.")
		return nil
	}
	statements, warnings := ddl.RenderAll(ddl.NewGenerator(d), ops)
	for _, stmt := range statements {
		fmt.Println(stmt + ";")
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "WARN %s on %s: %s\n", w.Operation.Kind, w.Operation.Table, w.Message)
	}
	return nil
}

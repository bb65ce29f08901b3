package remoteexec

import (
	"fmt"

	"github.com/hatchery-io/hatchery/internal/core"
)

// DatabaseType selects the client tooling used on the remote host.
type DatabaseType string

const (
	DBPostgres DatabaseType = "postgres"
	DBMySQL    DatabaseType = "mysql"
)

// DatabaseConfig describes a self-hosted database running on the
// workload. Credentials are only ever interpolated through
// single-quote escaping.
type DatabaseConfig struct {
	Type     DatabaseType
	Name     string
	User     string
	Password string
}

// SQLCommand returns a shell command that pipes a statement into the
// database client non-interactively.
func SQLCommand(db DatabaseConfig, statement string) (string, error) {
	switch db.Type {
	case DBPostgres:
		return fmt.Sprintf("PGPASSWORD=%s psql -U %s -d %s -c %s",
			SingleQuote(db.Password), SingleQuote(db.User), SingleQuote(db.Name), SingleQuote(statement)), nil
	case DBMySQL:
		return fmt.Sprintf("mysql -u%s -p%s %s -e %s",
			SingleQuote(db.User), SingleQuote(db.Password), SingleQuote(db.Name), SingleQuote(statement)), nil
	default:
		return "", core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("unsupported database type %q", db.Type))
	}
}

// ShellCommand returns the interactive client invocation, used by the
// ctl tool to drop into a database shell over SSH.
func ShellCommand(db DatabaseConfig) (string, error) {
	switch db.Type {
	case DBPostgres:
		return fmt.Sprintf("PGPASSWORD=%s psql -U %s -d %s",
			SingleQuote(db.Password), SingleQuote(db.User), SingleQuote(db.Name)), nil
	case DBMySQL:
		return fmt.Sprintf("mysql -u%s -p%s %s",
			SingleQuote(db.User), SingleQuote(db.Password), SingleQuote(db.Name)), nil
	default:
		return "", core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("unsupported database type %q", db.Type))
	}
}

// DumpCommand writes a full logical dump to stdout so the caller can
// capture it through the ordered log stream or a direct session.
func DumpCommand(db DatabaseConfig) (string, error) {
	switch db.Type {
	case DBPostgres:
		return fmt.Sprintf("PGPASSWORD=%s pg_dump -U %s --clean --if-exists %s",
			SingleQuote(db.Password), SingleQuote(db.User), SingleQuote(db.Name)), nil
	case DBMySQL:
		return fmt.Sprintf("mysqldump -u%s -p%s --add-drop-table %s",
			SingleQuote(db.User), SingleQuote(db.Password), SingleQuote(db.Name)), nil
	default:
		return "", core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("unsupported database type %q", db.Type))
	}
}

// RestoreCommand feeds a dump file already present on the host back
// into the database.
func RestoreCommand(db DatabaseConfig, dumpPath string) (string, error) {
	switch db.Type {
	case DBPostgres:
		return fmt.Sprintf("PGPASSWORD=%s psql -U %s -d %s -f %s",
			SingleQuote(db.Password), SingleQuote(db.User), SingleQuote(db.Name), SingleQuote(dumpPath)), nil
	case DBMySQL:
		return fmt.Sprintf("mysql -u%s -p%s %s < %s",
			SingleQuote(db.User), SingleQuote(db.Password), SingleQuote(db.Name), SingleQuote(dumpPath)), nil
	default:
		return "", core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("unsupported database type %q", db.Type))
	}
}

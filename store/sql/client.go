package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/slack-lackey/maid-server/core"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// ClientConfig adapts core.PersistenceConfig to the go-persistence-bun
// configuration contract.
type ClientConfig struct {
	Persistence core.PersistenceConfig
	ServiceName string
}

func (c ClientConfig) GetDebug() bool {
	return c.Persistence.Debug
}

func (c ClientConfig) GetDriver() string {
	return strings.ToLower(strings.TrimSpace(c.Persistence.Driver))
}

func (c ClientConfig) GetServer() string {
	return c.Persistence.DSN
}

func (c ClientConfig) GetPingTimeout() time.Duration {
	if c.Persistence.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.Persistence.PingTimeout
}

func (c ClientConfig) GetOtelIdentifier() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "maid-server"
}

// OpenClient opens the database for a sqlite3 or postgres driver. The memory
// driver has no client.
func OpenClient(cfg ClientConfig) (*persistence.Client, error) {
	driver := cfg.GetDriver()
	var dialect schema.Dialect
	switch driver {
	case core.PersistenceDriverSQLite:
		dialect = sqlitedialect.New()
	case core.PersistenceDriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, core.BadInput(fmt.Sprintf("sqlstore: driver %q has no database client", driver), map[string]any{
			"driver": driver,
		})
	}
	if strings.TrimSpace(cfg.GetServer()) == "" {
		return nil, core.BadInput("sqlstore: persistence dsn is required", map[string]any{"driver": driver})
	}

	sqlDB, err := sql.Open(driver, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == core.PersistenceDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

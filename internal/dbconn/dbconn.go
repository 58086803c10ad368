package dbconn

/*
 * DBConn keeps a fixed number of single-session connections to one endpoint.
 * Hive session settings are per connection, so callers address a connection
 * by number, either directly (whichConn) or by leasing one with Checkout.
 */

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type DBDriver interface {
	Connect(driverName string, dataSourceName string) (*sqlx.DB, error)
}

type SQLDriver struct{}

func (driver *SQLDriver) Connect(driverName string, dataSourceName string) (*sqlx.DB, error) {
	return sqlx.Connect(driverName, dataSourceName)
}

type DBConn struct {
	ConnPool    []*sqlx.DB
	NumConns    int
	Driver      DBDriver
	DriverName  string
	DSN         string
	Environment model.Environment
	Label       string
	InitSQL     []string
	Version     PlatformVersion

	// mu guards available, which is replaced on every Connect and Close.
	mu        sync.Mutex
	available chan int
}

func NewDBConn(env model.Environment, label, driverName, dsn string, initSQL []string) *DBConn {
	return &DBConn{
		ConnPool:    nil,
		NumConns:    0,
		Driver:      &SQLDriver{},
		DriverName:  driverName,
		DSN:         dsn,
		Environment: env,
		Label:       label,
		InitSQL:     initSQL,
	}
}

func (dbconn *DBConn) String() string {
	return fmt.Sprintf("%v %v", dbconn.Environment, dbconn.Label)
}

func (dbconn *DBConn) MustConnect(numConns int) {
	err := dbconn.Connect(numConns)
	gplog.FatalOnError(err)
}

func (dbconn *DBConn) Connect(numConns int) error {
	if numConns < 1 {
		return errors.Errorf("Must specify a connection pool size that is a positive integer")
	}
	if dbconn.ConnPool != nil {
		return errors.Errorf("The database connection must be closed before reusing the connection")
	}
	dbconn.ConnPool = make([]*sqlx.DB, numConns)
	for i := 0; i < numConns; i++ {
		conn, err := dbconn.Driver.Connect(dbconn.DriverName, dbconn.DSN)
		if err != nil {
			dbconn.Close()
			return &ConnectivityError{Environment: dbconn.Environment, Op: "connect to " + dbconn.Label, Err: err}
		}
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		dbconn.ConnPool[i] = conn
		for _, stmt := range dbconn.InitSQL {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err = conn.Exec(stmt); err != nil {
				dbconn.Close()
				return &ConnectivityError{Environment: dbconn.Environment, Op: "initialize " + dbconn.Label, Err: err}
			}
		}
	}
	dbconn.NumConns = numConns
	available := make(chan int, numConns)
	for i := 0; i < numConns; i++ {
		available <- i
	}
	dbconn.mu.Lock()
	dbconn.available = available
	dbconn.mu.Unlock()
	return nil
}

func (dbconn *DBConn) Close() {
	if dbconn.ConnPool != nil {
		for _, conn := range dbconn.ConnPool {
			if conn != nil {
				_ = conn.Close()
			}
		}
	}
	dbconn.ConnPool = nil
	dbconn.NumConns = 0
	dbconn.mu.Lock()
	dbconn.available = nil
	dbconn.mu.Unlock()
}

func (dbconn *DBConn) ValidateConnNum(whichConn ...int) int {
	if len(whichConn) == 0 {
		return 0
	}
	if len(whichConn) != 1 {
		gplog.Fatal(errors.Errorf("At most one connection number may be specified for a given connection"), "")
	}
	if whichConn[0] < 0 || whichConn[0] >= dbconn.NumConns {
		gplog.Fatal(errors.Errorf("Invalid connection number: %d", whichConn[0]), "")
	}
	return whichConn[0]
}

func (dbconn *DBConn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Environment: dbconn.Environment, Op: op, Err: err}
}

func (dbconn *DBConn) Exec(query string, whichConn ...int) (sql.Result, error) {
	return dbconn.ExecContext(context.Background(), query, whichConn...)
}

func (dbconn *DBConn) ExecContext(ctx context.Context, query string, whichConn ...int) (sql.Result, error) {
	connNum := dbconn.ValidateConnNum(whichConn...)
	result, err := dbconn.ConnPool[connNum].ExecContext(ctx, query)
	return result, dbconn.wrap("execute", err)
}

func (dbconn *DBConn) Select(destination interface{}, query string, whichConn ...int) error {
	return dbconn.SelectContext(context.Background(), destination, query, whichConn...)
}

func (dbconn *DBConn) SelectContext(ctx context.Context, destination interface{}, query string, whichConn ...int) error {
	connNum := dbconn.ValidateConnNum(whichConn...)
	return dbconn.wrap("query", dbconn.ConnPool[connNum].SelectContext(ctx, destination, query))
}

func (dbconn *DBConn) Get(destination interface{}, query string, whichConn ...int) error {
	return dbconn.GetContext(context.Background(), destination, query, whichConn...)
}

func (dbconn *DBConn) GetContext(ctx context.Context, destination interface{}, query string, whichConn ...int) error {
	connNum := dbconn.ValidateConnNum(whichConn...)
	return dbconn.wrap("query", dbconn.ConnPool[connNum].GetContext(ctx, destination, query))
}

// QueryMapsContext returns each row as column name -> text value, for statements with a variable column set.
func (dbconn *DBConn) QueryMapsContext(ctx context.Context, query string, whichConn ...int) ([]map[string]string, error) {
	connNum := dbconn.ValidateConnNum(whichConn...)
	rows, err := dbconn.ConnPool[connNum].QueryxContext(ctx, query)
	if err != nil {
		return nil, dbconn.wrap("query", err)
	}
	defer rows.Close()
	results := make([]map[string]string, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err = rows.MapScan(row); err != nil {
			return nil, dbconn.wrap("scan", err)
		}
		converted := make(map[string]string, len(row))
		for k, v := range row {
			switch value := v.(type) {
			case nil:
				converted[k] = ""
			case []byte:
				converted[k] = string(value)
			default:
				converted[k] = fmt.Sprint(value)
			}
		}
		results = append(results, converted)
	}
	return results, dbconn.wrap("query", rows.Err())
}

// Checkout blocks until a connection is free or ctx is done.
func (dbconn *DBConn) Checkout(ctx context.Context) (*Conn, error) {
	dbconn.mu.Lock()
	available := dbconn.available
	dbconn.mu.Unlock()
	if available == nil {
		return nil, &ConnectivityError{Environment: dbconn.Environment, Op: "acquire " + dbconn.Label, Err: errors.New("connection pool is not open")}
	}
	select {
	case which := <-available:
		return &Conn{pool: dbconn, Which: which, lease: available}, nil
	case <-ctx.Done():
		return nil, &ConnectivityError{Environment: dbconn.Environment, Op: "acquire " + dbconn.Label, Err: ctx.Err()}
	}
}

// Conn is a leased connection. Close returns it to its pool.
type Conn struct {
	pool   *DBConn
	Which  int
	lease  chan int
	closed bool
}

func (c *Conn) Environment() model.Environment {
	return c.pool.Environment
}

func (c *Conn) Version() PlatformVersion {
	return c.pool.Version
}

func (c *Conn) Exec(ctx context.Context, query string) error {
	_, err := c.pool.ExecContext(ctx, query, c.Which)
	return err
}

func (c *Conn) Select(ctx context.Context, destination interface{}, query string) error {
	return c.pool.SelectContext(ctx, destination, query, c.Which)
}

func (c *Conn) Get(ctx context.Context, destination interface{}, query string) error {
	return c.pool.GetContext(ctx, destination, query, c.Which)
}

func (c *Conn) QueryMaps(ctx context.Context, query string) ([]map[string]string, error) {
	return c.pool.QueryMapsContext(ctx, query, c.Which)
}

func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	// A lease taken before the pool was closed or reconnected is not returned.
	if c.pool.available != nil && c.pool.available == c.lease {
		c.pool.available <- c.Which
	}
}

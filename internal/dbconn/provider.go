package dbconn

import (
	"context"
	"strings"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/go-sql-driver/mysql"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	METASTORE_MYSQL    = "MYSQL"
	METASTORE_POSTGRES = "POSTGRES"
)

// ConnectionProvider hands out pooled connections per environment. Callers Close what they acquire.
type ConnectionProvider interface {
	Acquire(ctx context.Context, env model.Environment) (*Conn, error)
	AcquireMetastoreDirect(ctx context.Context, env model.Environment) (*Conn, error)
	Version(env model.Environment) PlatformVersion
}

// MetastoreDriver maps a metastore backend type to its database/sql driver and DSN.
func MetastoreDriver(dbType, uri string) (string, string, error) {
	switch strings.ToUpper(dbType) {
	case METASTORE_MYSQL:
		dsn := strings.TrimPrefix(uri, "mysql://")
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return "", "", errors.Wrapf(err, "invalid MySQL metastore DSN")
		}
		return "mysql", dsn, nil
	case METASTORE_POSTGRES:
		return "pgx", uri, nil
	}
	return "", "", errors.Errorf("unsupported metastore type \"%v\", expected %v or %v", dbType, METASTORE_MYSQL, METASTORE_POSTGRES)
}

type Pools struct {
	mu              sync.RWMutex
	hiveServer2     map[model.Environment]*DBConn
	metastoreDirect map[model.Environment]*DBConn
}

func NewPools() *Pools {
	return &Pools{
		hiveServer2:     make(map[model.Environment]*DBConn),
		metastoreDirect: make(map[model.Environment]*DBConn),
	}
}

func (p *Pools) SetHiveServer2(env model.Environment, conn *DBConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hiveServer2[env] = conn
}

func (p *Pools) SetMetastoreDirect(env model.Environment, conn *DBConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metastoreDirect[env] = conn
}

func (p *Pools) HiveServer2(env model.Environment) (*DBConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.hiveServer2[env]
	return conn, ok
}

func (p *Pools) MetastoreDirect(env model.Environment) (*DBConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.metastoreDirect[env]
	return conn, ok
}

func (p *Pools) Acquire(ctx context.Context, env model.Environment) (*Conn, error) {
	conn, ok := p.HiveServer2(env)
	if !ok {
		return nil, &ConnectivityError{Environment: env, Op: "acquire hiveserver2", Err: errors.New("no connection pool configured")}
	}
	return conn.Checkout(ctx)
}

func (p *Pools) AcquireMetastoreDirect(ctx context.Context, env model.Environment) (*Conn, error) {
	conn, ok := p.MetastoreDirect(env)
	if !ok {
		return nil, &ConnectivityError{Environment: env, Op: "acquire metastore direct", Err: errors.New("no connection pool configured")}
	}
	return conn.Checkout(ctx)
}

func (p *Pools) Version(env model.Environment) PlatformVersion {
	if conn, ok := p.HiveServer2(env); ok {
		return conn.Version
	}
	return PlatformVersion{}
}

func (p *Pools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for env, conn := range p.hiveServer2 {
		gplog.Debug("Closing %v hiveserver2 connections", env)
		conn.Close()
	}
	for env, conn := range p.metastoreDirect {
		gplog.Debug("Closing %v metastore direct connections", env)
		conn.Close()
	}
}

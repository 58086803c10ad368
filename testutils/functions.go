package testutils

import (
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/greenplum-db/gp-common-go-libs/testhelper"
	"github.com/jmoiron/sqlx"
	"github.com/onsi/gomega/gbytes"
)

// MockDriver hands out the same sqlmock-backed handle for every connection.
type MockDriver struct {
	DB *sqlx.DB
}

func (driver *MockDriver) Connect(driverName string, dataSourceName string) (*sqlx.DB, error) {
	return driver.DB, nil
}

type MockEnvironment struct {
	Pools          *dbconn.Pools
	Mocks          map[model.Environment]sqlmock.Sqlmock
	MetastoreMocks map[model.Environment]sqlmock.Sqlmock
}

func (m *MockEnvironment) Mock(env model.Environment) sqlmock.Sqlmock {
	return m.Mocks[env]
}

func (m *MockEnvironment) MetastoreMock(env model.Environment) sqlmock.Sqlmock {
	return m.MetastoreMocks[env]
}

// ExpectationsWereMet checks every mock and returns the first unmet expectation.
func (m *MockEnvironment) ExpectationsWereMet() error {
	for _, mocks := range []map[model.Environment]sqlmock.Sqlmock{m.Mocks, m.MetastoreMocks} {
		for _, mock := range mocks {
			if err := mock.ExpectationsWereMet(); err != nil {
				return err
			}
		}
	}
	return nil
}

func CreateAndConnectMockDB(env model.Environment, label string, numConns int) (*dbconn.DBConn, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		gplog.Fatal(err, "Could not create mock database connection")
	}
	mock.MatchExpectationsInOrder(false)
	conn := dbconn.NewDBConn(env, label, "sqlmock", "", nil)
	conn.Driver = &MockDriver{DB: sqlx.NewDb(db, "sqlmock")}
	conn.MustConnect(numConns)
	conn.Version = dbconn.NewVersion("3.1.3000")
	return conn, mock
}

/*
 * SetupTestEnvironment builds mock hiveserver2 and metastore direct pools for
 * each environment and routes logging into buffers.
 */
func SetupTestEnvironment(numConns int, envs ...model.Environment) (*MockEnvironment, *gbytes.Buffer, *gbytes.Buffer, *gbytes.Buffer) {
	stdout, stderr, logfile := testhelper.SetupTestLogger()
	mockEnv := &MockEnvironment{
		Pools:          dbconn.NewPools(),
		Mocks:          make(map[model.Environment]sqlmock.Sqlmock),
		MetastoreMocks: make(map[model.Environment]sqlmock.Sqlmock),
	}
	for _, env := range envs {
		hs2, mock := CreateAndConnectMockDB(env, "hiveserver2", numConns)
		mockEnv.Pools.SetHiveServer2(env, hs2)
		mockEnv.Mocks[env] = mock

		metastore, metastoreMock := CreateAndConnectMockDB(env, "metastore direct", numConns)
		mockEnv.Pools.SetMetastoreDirect(env, metastore)
		mockEnv.MetastoreMocks[env] = metastoreMock
	}
	return mockEnv, stdout, stderr, logfile
}

func SetDBVersion(mockEnv *MockEnvironment, env model.Environment, versionStr string) {
	if conn, ok := mockEnv.Pools.HiveServer2(env); ok {
		conn.Version = dbconn.NewVersion(versionStr)
	}
}

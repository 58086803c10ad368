package mirror

import (
	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
)

/*
 * This file contains wrapper functions that group together setup steps, so
 * that mirror.go can serve as a high-level look at the overall run.
 */

func SetLoggerVerbosity() {
	if utils.MustGetFlagBool(options.QUIET) {
		gplog.SetVerbosity(gplog.LOGERROR)
	} else if utils.MustGetFlagBool(options.DEBUG) {
		gplog.SetVerbosity(gplog.LOGDEBUG)
	} else if utils.MustGetFlagBool(options.VERBOSE) {
		gplog.SetVerbosity(gplog.LOGVERBOSE)
	}
}

func GetVersion() string {
	return utils.Version
}

func initializeConnectionPool(env model.Environment, label, driverName, dsn string, initSQL []string, numConns int) *dbconn.DBConn {
	conn := dbconn.NewDBConn(env, label, driverName, dsn, initSQL)
	conn.MustConnect(numConns)
	return conn
}

/*
 * establishConnections opens a hiveserver2 pool sized by concurrency for each
 * environment the run touches, plus a metastore direct pool sized by
 * metadataJobs where one is configured.
 */
func establishConnections(c *options.Config) *dbconn.Pools {
	p := dbconn.NewPools()
	for _, env := range c.Environments() {
		cluster := c.Cluster(env)
		driverName, dsn := c.HiveServer2DSN(env)
		gplog.Info("Establishing %v %v hiveserver2 connection(s)...", c.Concurrency, env)
		hs2 := initializeConnectionPool(env, "hiveserver2", driverName, dsn, nil, c.Concurrency)
		if cluster.PlatformVersion != "" {
			version, err := dbconn.ParseVersion(cluster.PlatformVersion)
			gplog.FatalOnError(err)
			hs2.Version = version
		} else {
			_, err := dbconn.InitializeVersion(hs2)
			gplog.FatalOnError(err)
		}
		p.SetHiveServer2(env, hs2)
		gplog.Info("Finished establishing %v hiveserver2 connections, Hive %v", env, hs2.Version.VersionString)

		if cluster.MetastoreDirect == nil || cluster.MetastoreDirect.URI == "" {
			continue
		}
		driverName, dsn, err := c.MetastoreDSN(env)
		gplog.FatalOnError(err)
		gplog.Info("Establishing %v %v metastore direct connection(s)...", c.MetadataJobs, env)
		metastore := initializeConnectionPool(env, "metastore direct", driverName, dsn, cluster.MetastoreDirect.InitSQL, c.MetadataJobs)
		p.SetMetastoreDirect(env, metastore)
		gplog.Info("Finished establishing %v metastore direct connections", env)
	}
	return p
}

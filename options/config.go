package options

/*
 * Config is the YAML run configuration. Flags set on the command line are
 * applied on top of it by ApplyFlagOverrides.
 */

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/meta/common"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"
)

const (
	MAX_CONCURRENCY = 1024

	DEFAULT_CONCURRENCY                 = 4
	DEFAULT_METADATA_JOBS               = 2
	DEFAULT_TRANSFER_PREFIX             = "hms_mirror_transfer_"
	DEFAULT_SHADOW_PREFIX               = "hms_mirror_shadow_"
	DEFAULT_STORAGE_MIGRATION_POSTFIX   = "_storage_migration"
	DEFAULT_EXPORT_BASE_DIR_PREFIX      = "/apps/hive/warehouse/export_"
	DEFAULT_REMOTE_WORKING_DIRECTORY    = "hms_mirror_working"
	DEFAULT_EXPORT_IMPORT_PARTITION_MAX = 100
	DEFAULT_SQL_PARTITION_LIMIT         = 500
	DEFAULT_ACID_PARTITION_LIMIT        = 500
)

type Filter struct {
	TblRegEx          string `yaml:"tblRegEx"`
	TblExcludeRegEx   string `yaml:"tblExcludeRegEx"`
	TblPartitionLimit int    `yaml:"tblPartitionLimit"`
}

type MigrateACID struct {
	On             bool `yaml:"on"`
	Only           bool `yaml:"only"`
	Downgrade      bool `yaml:"downgrade"`
	InPlace        bool `yaml:"inplace"`
	PartitionLimit int  `yaml:"partitionLimit"`
}

type Hybrid struct {
	ExportImportPartitionLimit int `yaml:"exportImportPartitionLimit"`
	SqlPartitionLimit          int `yaml:"sqlPartitionLimit"`
}

type StorageMigration struct {
	DataMovementStrategy            model.DataMovementStrategy `yaml:"dataMovementStrategy"`
	DataFlow                        model.DataFlow             `yaml:"dataFlow"`
	Strict                          bool                       `yaml:"strict"`
	ConsolidationLevel              int                        `yaml:"consolidationLevel"`
	SkipDatabaseLocationAdjustments bool                       `yaml:"skipDatabaseLocationAdjustments"`
}

type Transfer struct {
	TransferPrefix          string               `yaml:"transferPrefix"`
	ShadowPrefix            string               `yaml:"shadowPrefix"`
	StorageMigrationPostfix string               `yaml:"storageMigrationPostfix"`
	ExportBaseDirPrefix     string               `yaml:"exportBaseDirPrefix"`
	RemoteWorkingDirectory  string               `yaml:"remoteWorkingDirectory"`
	IntermediateStorage     string               `yaml:"intermediateStorage"`
	TargetNamespace         string               `yaml:"targetNamespace"`
	CommonStorage           string               `yaml:"commonStorage"`
	Warehouse               translator.Warehouse `yaml:"warehouse"`
	StorageMigration        StorageMigration     `yaml:"storageMigration"`
}

type TranslatorConfig struct {
	GlobalLocationMap         map[string]map[model.TableType]string `yaml:"globalLocationMap"`
	AutoGlobalLocationMap     bool                                  `yaml:"autoGlobalLocationMap"`
	AutoGlmConsolidationLevel int                                   `yaml:"autoGlmConsolidationLevel"`
	WarehousePlans            map[string]translator.Warehouse       `yaml:"warehousePlans"`
	GlmFile                   string                                `yaml:"glmFile"`
}

type PartitionDiscovery struct {
	Auto     bool `yaml:"auto"`
	InitMSCK bool `yaml:"initMSCK"`
}

type HiveServer2 struct {
	Driver   string `yaml:"driver"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MetastoreDirect struct {
	Type     string   `yaml:"type"`
	URI      string   `yaml:"uri"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	InitSQL  []string `yaml:"initSql"`
}

type Cluster struct {
	HcfsNamespace        string             `yaml:"hcfsNamespace"`
	LegacyHive           bool               `yaml:"legacyHive"`
	PlatformVersion      string             `yaml:"platformVersion"`
	CreateIfNotExists    bool               `yaml:"createIfNotExists"`
	EnableAutoTableStats bool               `yaml:"enableAutoTableStats"`
	PartitionDiscovery   PartitionDiscovery `yaml:"partitionDiscovery"`
	HiveServer2          *HiveServer2       `yaml:"hiveServer2"`
	MetastoreDirect      *MetastoreDirect   `yaml:"metastoreDirect"`
}

type Optimization struct {
	SkipStatsCollection         bool `yaml:"skipStatsCollection"`
	SortDynamicPartitionInserts bool `yaml:"sortDynamicPartitionInserts"`
	CompressTextOutput          bool `yaml:"compressTextOutput"`
	AnalyzeTarget               bool `yaml:"analyzeTarget"`
}

type Config struct {
	DataStrategy           model.DataStrategy             `yaml:"dataStrategy"`
	Databases              []string                       `yaml:"databases"`
	DbPrefix               string                         `yaml:"dbPrefix"`
	DbRename               string                         `yaml:"dbRename"`
	Execute                bool                           `yaml:"execute"`
	ApplyOnWarning         bool                           `yaml:"applyOnWarning"`
	ResetToDefaultLocation bool                           `yaml:"resetToDefaultLocation"`
	ReadOnly               bool                           `yaml:"readOnly"`
	Sync                   bool                           `yaml:"sync"`
	OutputDirectory        string                         `yaml:"outputDirectory"`
	Concurrency            int                            `yaml:"concurrency"`
	MetadataJobs           int                            `yaml:"metadataJobs"`
	Filter                 Filter                         `yaml:"filter"`
	MigrateACID            MigrateACID                    `yaml:"migrateACID"`
	Hybrid                 Hybrid                         `yaml:"hybrid"`
	Transfer               Transfer                       `yaml:"transfer"`
	Translator             TranslatorConfig               `yaml:"translator"`
	Clusters               map[model.Environment]*Cluster `yaml:"clusters"`
	Optimization           Optimization                   `yaml:"optimization"`
}

func NewConfig() *Config {
	return &Config{
		DataStrategy: model.SCHEMA_ONLY,
		Databases:    []string{},
		Concurrency:  DEFAULT_CONCURRENCY,
		MetadataJobs: DEFAULT_METADATA_JOBS,
		MigrateACID:  MigrateACID{PartitionLimit: DEFAULT_ACID_PARTITION_LIMIT},
		Hybrid: Hybrid{
			ExportImportPartitionLimit: DEFAULT_EXPORT_IMPORT_PARTITION_MAX,
			SqlPartitionLimit:          DEFAULT_SQL_PARTITION_LIMIT,
		},
		Transfer: Transfer{
			TransferPrefix:          DEFAULT_TRANSFER_PREFIX,
			ShadowPrefix:            DEFAULT_SHADOW_PREFIX,
			StorageMigrationPostfix: DEFAULT_STORAGE_MIGRATION_POSTFIX,
			ExportBaseDirPrefix:     DEFAULT_EXPORT_BASE_DIR_PREFIX,
			RemoteWorkingDirectory:  DEFAULT_REMOTE_WORKING_DIRECTORY,
			StorageMigration: StorageMigration{
				DataMovementStrategy: model.MovementSQL,
				DataFlow:             model.PULL,
				ConsolidationLevel:   1,
			},
		},
		Translator: TranslatorConfig{
			GlobalLocationMap:         make(map[string]map[model.TableType]string),
			AutoGlmConsolidationLevel: 1,
			WarehousePlans:            make(map[string]translator.Warehouse),
		},
		Clusters: make(map[model.Environment]*Cluster),
	}
}

// LoadConfig reads a YAML file over the defaults from NewConfig.
func LoadConfig(filename string) (*Config, error) {
	config := NewConfig()
	if filename == "" {
		return config, nil
	}
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %v", filename)
	}
	if err = yaml.UnmarshalStrict(contents, config); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %v", filename)
	}
	config.DataStrategy = model.DataStrategy(strings.ToUpper(string(config.DataStrategy)))
	config.Transfer.StorageMigration.DataMovementStrategy = model.DataMovementStrategy(strings.ToUpper(string(config.Transfer.StorageMigration.DataMovementStrategy)))
	config.Transfer.StorageMigration.DataFlow = model.DataFlow(strings.ToUpper(string(config.Transfer.StorageMigration.DataFlow)))
	if config.Translator.GlobalLocationMap == nil {
		config.Translator.GlobalLocationMap = make(map[string]map[model.TableType]string)
	}
	if config.Translator.WarehousePlans == nil {
		config.Translator.WarehousePlans = make(map[string]translator.Warehouse)
	}
	if config.Clusters == nil {
		config.Clusters = make(map[model.Environment]*Cluster)
	}
	return config, nil
}

func (c *Config) Cluster(env model.Environment) *Cluster {
	if cluster, ok := c.Clusters[env]; ok && cluster != nil {
		return cluster
	}
	return &Cluster{}
}

func (c *Config) HasCluster(env model.Environment) bool {
	cluster, ok := c.Clusters[env]
	return ok && cluster != nil && cluster.HiveServer2 != nil && cluster.HiveServer2.URI != ""
}

func (c *Config) SourceNamespace() string {
	return translator.NormalizeNamespace(c.Cluster(model.SOURCE).HcfsNamespace)
}

/*
 * TargetNamespace applies the precedence: common storage, then the transfer
 * target namespace, then the TARGET cluster namespace. Strategies that stay
 * on SOURCE fall back to the SOURCE namespace.
 */
func (c *Config) TargetNamespace() string {
	for _, candidate := range []string{c.Transfer.CommonStorage, c.Transfer.TargetNamespace, c.Cluster(model.TARGET).HcfsNamespace} {
		if ns := translator.NormalizeNamespace(candidate); ns != "" {
			return ns
		}
	}
	if c.DataStrategy.InPlace() {
		return c.SourceNamespace()
	}
	return ""
}

// TargetDatabase resolves the TARGET name of database, honoring dbRename and dbPrefix.
func (c *Config) TargetDatabase(database string) string {
	if c.DbRename != "" && len(c.Databases) == 1 {
		return c.DbRename
	}
	return c.DbPrefix + database
}

func (c *Config) IsDistcp() bool {
	return c.Transfer.StorageMigration.DataMovementStrategy == model.MovementDistcp
}

func (c *Config) TranslatorSettings() translator.Settings {
	return translator.Settings{
		SourceNamespace:        c.SourceNamespace(),
		TargetNamespace:        c.TargetNamespace(),
		CommonStorage:          c.Transfer.CommonStorage,
		Strategy:               c.DataStrategy,
		ResetToDefaultLocation: c.ResetToDefaultLocation,
		Strict:                 c.Transfer.StorageMigration.Strict,
	}
}

func (c *Config) AutoGLMSettings(conversionsPossible bool) translator.AutoGLMSettings {
	return translator.AutoGLMSettings{
		SourceNamespace:     c.SourceNamespace(),
		ConsolidationLevel:  c.Translator.AutoGlmConsolidationLevel,
		Strict:              c.Transfer.StorageMigration.Strict,
		ConversionsPossible: conversionsPossible,
		TargetDatabase:      c.TargetDatabase,
	}
}

func (c *Config) WarehousePlanRegistry() (*translator.WarehousePlanRegistry, error) {
	var fallback *translator.Warehouse
	if !c.Transfer.Warehouse.IsEmpty() {
		wh := c.Transfer.Warehouse
		fallback = &wh
	}
	registry := translator.NewWarehousePlanRegistry(fallback)
	for database, wh := range c.Translator.WarehousePlans {
		if err := registry.Add(database, wh); err != nil {
			return nil, errors.Wrapf(err, "warehouse plan for database %v", database)
		}
	}
	return registry, nil
}

/*
 * GlobalLocationMap builds the configured map and merges the persisted map
 * from glmFile underneath it, so configured entries win on equal prefixes.
 */
func (c *Config) GlobalLocationMap() (*translator.GlobalLocationMap, error) {
	glm, err := translator.NewGlobalLocationMapFrom(c.Translator.GlobalLocationMap)
	if err != nil {
		return nil, err
	}
	if c.Translator.GlmFile == "" {
		return glm, nil
	}
	if _, err := os.Stat(c.Translator.GlmFile); os.IsNotExist(err) {
		gplog.Verbose("Global location map file %v does not exist yet", c.Translator.GlmFile)
		return glm, nil
	}
	persisted, err := translator.LoadGlobalLocationMap(c.Translator.GlmFile)
	if err != nil {
		return nil, err
	}
	glm.Merge(persisted)
	gplog.Info("Loaded %d global location map entries from %v", persisted.Len(), c.Translator.GlmFile)
	return glm, nil
}

// AddGlobalLocationMapEntries maps each source prefix to the same target for both table types.
func (c *Config) AddGlobalLocationMapEntries(entries map[string]string) {
	if c.Translator.GlobalLocationMap == nil {
		c.Translator.GlobalLocationMap = make(map[string]map[model.TableType]string)
	}
	for source, target := range entries {
		c.Translator.GlobalLocationMap[source] = map[model.TableType]string{
			model.EXTERNAL_TABLE: target,
			model.MANAGED_TABLE:  target,
		}
	}
}

func (c *Config) CatalogCommon() common.CatalogCommon {
	types := make(map[model.Environment]string)
	catalogs := make(map[model.Environment]string)
	for env, cluster := range c.Clusters {
		if cluster != nil && cluster.MetastoreDirect != nil && cluster.MetastoreDirect.URI != "" {
			types[env] = strings.ToUpper(cluster.MetastoreDirect.Type)
			if !cluster.LegacyHive {
				catalogs[env] = common.DEFAULT_CATALOG
			}
		}
	}
	return common.CatalogCommon{MetastoreTypes: types, Catalogs: catalogs}
}

func (c *Config) Environments() []model.Environment {
	envs := []model.Environment{model.SOURCE}
	if c.HasCluster(model.TARGET) && !c.DataStrategy.InPlace() {
		envs = append(envs, model.TARGET)
	}
	return envs
}

/*
 * Validate checks the combinations a run cannot recover from. Problems that
 * only reduce what a run does are logged as warnings.
 */
func (c *Config) Validate() error {
	if _, err := model.ParseDataStrategy(string(c.DataStrategy)); err != nil {
		return err
	}
	if len(c.Databases) == 0 {
		return errors.Errorf("At least one database must be specified with \"databases\" or --%v", DATABASES)
	}
	if utils.ArrayIsDuplicated(c.Databases) {
		return errors.Errorf("Option \"databases\" has duplicated items")
	}
	if c.DbRename != "" && len(c.Databases) > 1 {
		return errors.Errorf("Option \"dbRename\" only supports a single database, %d given", len(c.Databases))
	}
	if c.DbRename != "" && c.DbPrefix != "" {
		return errors.Errorf("Options \"dbRename\" and \"dbPrefix\" may not be specified together")
	}
	if c.Concurrency < 1 || c.Concurrency > MAX_CONCURRENCY {
		return errors.Errorf("concurrency must be between 1 and %d, got %d", MAX_CONCURRENCY, c.Concurrency)
	}
	if c.MetadataJobs < 1 || c.MetadataJobs > MAX_CONCURRENCY {
		return errors.Errorf("metadataJobs must be between 1 and %d, got %d", MAX_CONCURRENCY, c.MetadataJobs)
	}
	if !c.HasCluster(model.SOURCE) {
		return errors.Errorf("The SOURCE cluster requires a hiveServer2 uri")
	}
	if !c.DataStrategy.InPlace() && !c.HasCluster(model.TARGET) {
		return errors.Errorf("Data strategy %v requires a TARGET cluster with a hiveServer2 uri", c.DataStrategy)
	}
	for env, cluster := range c.Clusters {
		if cluster == nil || cluster.MetastoreDirect == nil || cluster.MetastoreDirect.URI == "" {
			continue
		}
		if _, _, err := dbconn.MetastoreDriver(cluster.MetastoreDirect.Type, cluster.MetastoreDirect.URI); err != nil {
			return errors.Wrapf(err, "%v metastoreDirect", env)
		}
	}
	if err := c.validateWarehouses(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateACID(); err != nil {
		return err
	}
	for _, pattern := range []string{c.Filter.TblRegEx, c.Filter.TblExcludeRegEx} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Wrapf(err, "invalid table filter \"%v\"", pattern)
		}
	}
	if c.Translator.AutoGlobalLocationMap && !c.CatalogCommon().HasMetastoreDirect(model.SOURCE) {
		return errors.Errorf("autoGlobalLocationMap requires metastoreDirect access on the SOURCE cluster")
	}
	if c.ApplyOnWarning && !c.Execute {
		gplog.Warn("applyOnWarning has no effect without execute")
	}
	return nil
}

func (c *Config) validateWarehouses() error {
	if !c.Transfer.Warehouse.IsEmpty() {
		if err := c.Transfer.Warehouse.Validate(); err != nil {
			return errors.Wrap(err, "transfer warehouse")
		}
	}
	for database, wh := range c.Translator.WarehousePlans {
		if err := wh.Validate(); err != nil {
			return errors.Wrapf(err, "warehouse plan for database %v", database)
		}
	}
	if !c.ResetToDefaultLocation || !c.Transfer.Warehouse.IsEmpty() {
		return nil
	}
	for _, database := range c.Databases {
		if _, ok := c.Translator.WarehousePlans[database]; !ok {
			return errors.Errorf("resetToDefaultLocation requires a warehouse, none is configured for database %v", database)
		}
	}
	return nil
}

func (c *Config) validateTransfer() error {
	sm := c.Transfer.StorageMigration
	switch sm.DataMovementStrategy {
	case model.MovementSQL, model.MovementDistcp, model.MovementExportImport:
	default:
		return errors.Errorf("unknown data movement strategy \"%v\"", sm.DataMovementStrategy)
	}
	switch sm.DataFlow {
	case model.PULL, model.PUSH:
	default:
		return errors.Errorf("unknown data flow \"%v\"", sm.DataFlow)
	}
	if sm.ConsolidationLevel < 0 || c.Translator.AutoGlmConsolidationLevel < 0 {
		return errors.Errorf("consolidation levels may not be negative")
	}
	if c.Transfer.IntermediateStorage != "" && c.Transfer.CommonStorage != "" {
		return errors.Errorf("Options \"intermediateStorage\" and \"commonStorage\" may not be specified together")
	}
	if c.DataStrategy == model.COMMON && c.Transfer.CommonStorage == "" {
		gplog.Warn("Data strategy COMMON without commonStorage keeps every location unchanged")
	}
	if c.DataStrategy.CopiesLocation() && !c.DataStrategy.InPlace() && c.TargetNamespace() == "" {
		return errors.Errorf("Data strategy %v requires a target namespace: set commonStorage, targetNamespace or the TARGET hcfsNamespace", c.DataStrategy)
	}
	return nil
}

func (c *Config) validateACID() error {
	acid := c.MigrateACID
	if acid.Only && !acid.On {
		return errors.Errorf("migrateACID.only requires migrateACID.on")
	}
	if acid.InPlace {
		switch c.DataStrategy {
		case model.HYBRID, model.SQL, model.ACID_DOWNGRADE_INPLACE:
		default:
			return errors.Errorf("migrateACID.inplace is only supported with HYBRID, SQL or ACID_DOWNGRADE_INPLACE, not %v", c.DataStrategy)
		}
	}
	if c.DataStrategy == model.ACID_DOWNGRADE_INPLACE && !acid.On {
		return errors.Errorf("Data strategy ACID_DOWNGRADE_INPLACE requires migrateACID.on")
	}
	return nil
}

// HiveServer2DSN returns the driver name and data source for env.
func (c *Config) HiveServer2DSN(env model.Environment) (string, string) {
	hs2 := c.Cluster(env).HiveServer2
	if hs2 == nil {
		return "", ""
	}
	driver := hs2.Driver
	if driver == "" {
		driver = "hive"
	}
	return driver, withURLCredentials(hs2.URI, hs2.Username, hs2.Password)
}

// MetastoreDSN returns the driver name and data source for env, with credentials applied.
func (c *Config) MetastoreDSN(env model.Environment) (string, string, error) {
	md := c.Cluster(env).MetastoreDirect
	if md == nil || md.URI == "" {
		return "", "", errors.Errorf("no metastoreDirect configured for %v", env)
	}
	driver, dsn, err := dbconn.MetastoreDriver(md.Type, md.URI)
	if err != nil {
		return "", "", err
	}
	if md.Username == "" {
		return driver, dsn, nil
	}
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", "", err
		}
		cfg.User = md.Username
		cfg.Passwd = md.Password
		return driver, cfg.FormatDSN(), nil
	}
	return driver, withURLCredentials(dsn, md.Username, md.Password), nil
}

func withURLCredentials(uri, username, password string) string {
	if username == "" {
		return uri
	}
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" {
		return uri
	}
	if password == "" {
		parsed.User = url.User(username)
	} else {
		parsed.User = url.UserPassword(username, password)
	}
	return parsed.String()
}

// PasswordReader reads one password for the given prompt.
type PasswordReader func(prompt string) (string, error)

func TerminalPasswordReader(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.Errorf("%v: no password configured and stdin is not a terminal", prompt)
	}
	fmt.Print(prompt)
	password, err := term.ReadPassword(fd)
	fmt.Print("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(password), nil
}

// PromptPasswords asks for every password left empty next to a configured username.
func (c *Config) PromptPasswords(read PasswordReader) error {
	for _, env := range []model.Environment{model.SOURCE, model.TARGET} {
		cluster, ok := c.Clusters[env]
		if !ok || cluster == nil {
			continue
		}
		if hs2 := cluster.HiveServer2; hs2 != nil && hs2.Username != "" && hs2.Password == "" {
			password, err := read(fmt.Sprintf("Password for %v hiveServer2 user '%s': ", env, hs2.Username))
			if err != nil {
				return err
			}
			hs2.Password = password
		}
		if md := cluster.MetastoreDirect; md != nil && md.Username != "" && md.Password == "" {
			password, err := read(fmt.Sprintf("Password for %v metastore user '%s': ", env, md.Username))
			if err != nil {
				return err
			}
			md.Password = password
		}
	}
	return nil
}

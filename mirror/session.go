package mirror

import (
	"context"
	"sort"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/meta"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

/*
 * Session carries everything one run needs. It is passed explicitly to the
 * orchestrator and every strategy; nothing reads it from package state.
 */
type Session struct {
	Config     *options.Config
	Conns      dbconn.ConnectionProvider
	Catalog    meta.CatalogScanner
	Translator *translator.NamespaceTranslator
	RunID      string
	Timestamp  string

	mu        sync.Mutex
	databases map[string]*model.DBMirror
}

func NewSession(config *options.Config, conns dbconn.ConnectionProvider, catalog meta.CatalogScanner, timestamp string) (*Session, error) {
	glm, err := config.GlobalLocationMap()
	if err != nil {
		return nil, errors.Wrap(err, "global location map")
	}
	warehouses, err := config.WarehousePlanRegistry()
	if err != nil {
		return nil, err
	}
	return &Session{
		Config:     config,
		Conns:      conns,
		Catalog:    catalog,
		Translator: translator.NewNamespaceTranslator(config.TranslatorSettings(), glm, warehouses, translator.NewTranslationLedger()),
		RunID:      uuid.NewV4().String(),
		Timestamp:  timestamp,
		databases:  make(map[string]*model.DBMirror),
	}, nil
}

func (s *Session) Ledger() *translator.TranslationLedger {
	return s.Translator.Ledger()
}

func (s *Session) DryRun() bool {
	return !s.Config.Execute
}

func (s *Session) AddDatabase(db *model.DBMirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases[db.Name] = db
}

func (s *Session) Database(name string) (*model.DBMirror, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[name]
	return db, ok
}

func (s *Session) Databases() []*model.DBMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]*model.DBMirror, 0, len(names))
	for _, name := range names {
		results = append(results, s.databases[name])
	}
	return results
}

// ConversionsPossible reports whether managed SOURCE tables become external on TARGET.
func (s *Session) ConversionsPossible() bool {
	sourceLegacy := s.Config.Cluster(model.SOURCE).LegacyHive || s.Conns.Version(model.SOURCE).IsLegacy()
	if !sourceLegacy || !s.Config.HasCluster(model.TARGET) {
		return false
	}
	return !(s.Config.Cluster(model.TARGET).LegacyHive || s.Conns.Version(model.TARGET).IsLegacy())
}

/*
 * DeriveGlobalLocationMap scans the SOURCE metastore and adds the derived
 * entries underneath the configured ones.
 */
func (s *Session) DeriveGlobalLocationMap(ctx context.Context) error {
	index := translator.NewSourceLocationIndex()
	for _, database := range s.Config.Databases {
		if err := s.Catalog.ScanLocations(ctx, model.SOURCE, database, index); err != nil {
			return errors.Wrapf(err, "scan locations of database %v", database)
		}
	}
	derived, errs := translator.BuildGlobalLocationMap(index, s.Translator.Warehouses(), s.Config.AutoGLMSettings(s.ConversionsPossible()))
	for _, err := range errs {
		gplog.Warn("Global location map derivation: %v", err)
	}
	s.Translator.GlobalLocationMap().Merge(derived)
	gplog.Info("Derived %d global location map entries from %d SOURCE locations", derived.Len(), index.Len())
	return nil
}

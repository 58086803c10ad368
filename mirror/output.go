package mirror

/*
 * Run artifacts: the SQL scripts per database and environment, the distcp
 * work plans, the global location map and the run report.
 */

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/greenplum-db/gp-common-go-libs/iohelper"
	"github.com/greenplum-db/gp-common-go-libs/operating"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	GLMFileName    = "global-location-map.yaml"
	ReportFileName = "run-report.yaml"
)

// DefaultOutputDirectory is hms-mirror under the home directory of the current user.
func DefaultOutputDirectory() (string, error) {
	currentUser, err := operating.System.CurrentUser()
	if err != nil {
		return "", errors.Wrap(err, "could not look up the current user")
	}
	return filepath.Join(currentUser.HomeDir, "hms-mirror"), nil
}

func RunDirectory(s *Session) string {
	return filepath.Join(s.Config.OutputDirectory, s.Timestamp)
}

func writeFile(filename string, write func(w io.Writer) error) error {
	file, err := iohelper.OpenFileForWriting(filename)
	if err != nil {
		return errors.Wrapf(err, "could not open %v", filename)
	}
	if err = write(file); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "could not write %v", filename)
	}
	return file.Close()
}

func writePairs(w io.Writer, pairs []model.Pair) error {
	for _, pair := range pairs {
		if _, err := fmt.Fprintf(w, "-- %v\n%v;\n\n", pair.Description, pair.Action); err != nil {
			return err
		}
	}
	return nil
}

// WriteDatabaseScripts writes <db>_<ENV>_execute.sql and <db>_<ENV>_cleanup.sql for every environment with SQL.
func WriteDatabaseScripts(s *Session, db *model.DBMirror, dir string) error {
	tables := db.SortedTables()
	for _, env := range []model.Environment{model.SOURCE, model.TARGET} {
		execute := append([]model.Pair{}, db.SQL[env]...)
		cleanup := make([]model.Pair, 0)
		for _, tbl := range tables {
			et, ok := tbl.Lookup(env)
			if !ok || (!tbl.PhaseState().Built() && tbl.PhaseState() != model.PROCESSED) {
				continue
			}
			execute = append(execute, et.SQL...)
			cleanup = append(cleanup, et.CleanupSQL...)
		}
		header := fmt.Sprintf("-- hms-mirror %v, run %v, %v on %v\n\n", s.Config.DataStrategy, s.RunID, db.Name, env)
		for suffix, pairs := range map[string][]model.Pair{"execute": execute, "cleanup": cleanup} {
			if len(pairs) == 0 {
				continue
			}
			filename := filepath.Join(dir, fmt.Sprintf("%v_%v_%v.sql", db.Name, env, suffix))
			err := writeFile(filename, func(w io.Writer) error {
				if _, err := io.WriteString(w, header); err != nil {
					return err
				}
				return writePairs(w, pairs)
			})
			if err != nil {
				return err
			}
			gplog.Verbose("Wrote %v", filename)
		}
	}
	return nil
}

/*
 * WriteDistcpPlans builds the distcp plan of every environment the ledger
 * holds for db. It must only be called after the database's tables are built.
 */
func WriteDistcpPlans(s *Session, db *model.DBMirror, dir string) (map[model.Environment]translator.DistcpPlan, error) {
	plans := make(map[model.Environment]translator.DistcpPlan)
	level := s.Config.Transfer.StorageMigration.ConsolidationLevel
	for _, env := range s.Ledger().Environments(db.Name) {
		plan := s.Ledger().BuildDistcpList(db.Name, env, level)
		plans[env] = plan
		prefix := filepath.Join(dir, fmt.Sprintf("%v_%v_distcp", db.Name, env))

		contents, err := yaml.Marshal(plan.ToMap())
		if err != nil {
			return nil, errors.Wrap(err, "could not marshal distcp plan")
		}
		if err = writeFile(prefix+"_plan.yaml", func(w io.Writer) error {
			_, err := w.Write(contents)
			return err
		}); err != nil {
			return nil, err
		}

		script := strings.Builder{}
		script.WriteString("#!/usr/bin/env bash\n\nset -e\n\n")
		script.WriteString("DISTCP_OPTS=\"${DISTCP_OPTS:-}\"\n\n")
		workDir := translator.JoinPath(s.Config.Transfer.RemoteWorkingDirectory, s.RunID)
		script.WriteString(fmt.Sprintf("hdfs dfs -mkdir -p %v\n\n", workDir))
		// Only a level 0 plan copies a directory onto itself. -update makes distcp
		// copy its contents instead of nesting it under the existing target.
		copyMode := ""
		if level == 0 {
			copyMode = " -update"
		}
		for i, target := range plan.Targets() {
			sourceFile := fmt.Sprintf("%v_source_%d.txt", filepath.Base(prefix), i+1)
			if err = writeFile(filepath.Join(dir, sourceFile), func(w io.Writer) error {
				_, err := io.WriteString(w, strings.Join(plan.Sources(target), "\n")+"\n")
				return err
			}); err != nil {
				return nil, err
			}
			script.WriteString(fmt.Sprintf("hdfs dfs -copyFromLocal -f %v %v/\n", sourceFile, workDir))
			script.WriteString(fmt.Sprintf("hadoop distcp $DISTCP_OPTS%v -f %v/%v %v\n\n", copyMode, workDir, sourceFile, target))
		}
		if err = writeFile(prefix+"_script.sh", func(w io.Writer) error {
			_, err := io.WriteString(w, script.String())
			return err
		}); err != nil {
			return nil, err
		}
		if err = os.Chmod(prefix+"_script.sh", 0755); err != nil {
			return nil, errors.Wrapf(err, "could not make %v executable", prefix+"_script.sh")
		}
		gplog.Info("Distcp plan for %v on %v has %d target directories", db.Name, env, len(plan))
	}
	return plans, nil
}

// WriteGlobalLocationMap persists the map into the run directory and, when configured, to glmFile for the next run.
func WriteGlobalLocationMap(s *Session, dir string) error {
	glm := s.Translator.GlobalLocationMap()
	if err := glm.Save(filepath.Join(dir, GLMFileName)); err != nil {
		return err
	}
	if s.Config.Translator.GlmFile != "" {
		return glm.Save(s.Config.Translator.GlmFile)
	}
	return nil
}

type TableReport struct {
	Name       string             `yaml:"name"`
	Strategy   model.DataStrategy `yaml:"strategy"`
	Phase      model.PhaseState   `yaml:"phase"`
	ReMapped   bool               `yaml:"reMapped"`
	Duration   string             `yaml:"duration"`
	Statistics map[string]string  `yaml:"statistics,omitempty"`
	Issues     []string           `yaml:"issues,omitempty"`
	Errors     []string           `yaml:"errors,omitempty"`
}

type DatabaseReport struct {
	Name       string                                    `yaml:"name"`
	TargetName string                                    `yaml:"targetName"`
	Summary    map[model.PhaseState]int                  `yaml:"summary"`
	Issues     map[model.Environment][]string            `yaml:"issues,omitempty"`
	Distcp     map[model.Environment]map[string][]string `yaml:"distcp,omitempty"`
	Tables     []TableReport                             `yaml:"tables"`
}

type RunReport struct {
	RunID        string             `yaml:"runId"`
	Timestamp    string             `yaml:"timestamp"`
	DataStrategy model.DataStrategy `yaml:"dataStrategy"`
	Execute      bool               `yaml:"execute"`
	Databases    []DatabaseReport   `yaml:"databases"`
}

func NewDatabaseReport(db *model.DBMirror, plans map[model.Environment]translator.DistcpPlan) DatabaseReport {
	report := DatabaseReport{
		Name:       db.Name,
		TargetName: db.TargetName,
		Summary:    db.PhaseSummary(),
		Issues:     db.Issues,
		Distcp:     make(map[model.Environment]map[string][]string),
		Tables:     make([]TableReport, 0),
	}
	for env, plan := range plans {
		report.Distcp[env] = plan.ToMap()
	}
	for _, tbl := range db.SortedTables() {
		duration := time.Duration(0)
		if !tbl.End.IsZero() {
			duration = tbl.End.Sub(tbl.Start)
		}
		report.Tables = append(report.Tables, TableReport{
			Name:       tbl.Name,
			Strategy:   tbl.Strategy,
			Phase:      tbl.PhaseState(),
			ReMapped:   tbl.ReMapped,
			Duration:   duration.Round(time.Millisecond).String(),
			Statistics: tbl.Env(model.SOURCE).Statistics,
			Issues:     tbl.Issues(),
			Errors:     tbl.Errors(),
		})
	}
	return report
}

func WriteRunReport(report RunReport, dir string) error {
	contents, err := yaml.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "could not marshal run report")
	}
	return utils.WriteToFileAndMakeReadOnly(filepath.Join(dir, ReportFileName), contents)
}

func printDatabaseReport(report DatabaseReport) {
	gplog.Info("Database %v -> %v", report.Name, report.TargetName)
	for _, phase := range []model.PhaseState{model.PROCESSED, model.CALCULATED_SQL, model.CALCULATED_SQL_WARNING, model.ERROR} {
		if count := report.Summary[phase]; count > 0 {
			gplog.Info("  %-24v %d", phase, count)
		}
	}
	for _, tbl := range report.Tables {
		if tbl.Phase == model.ERROR {
			gplog.Error("  %v: %v", tbl.Name, strings.Join(tbl.Errors, "; "))
		}
	}
}

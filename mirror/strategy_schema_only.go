package mirror

import (
	"context"
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

type schemaOnlyStrategy struct {
	sqlApplier
}

func (schemaOnlyStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	if model.IsView(tbl.Env(model.SOURCE).Definition) {
		return buildView(tbl)
	}
	return buildSchema(s, tbl, targetOptions{})
}

func buildSchema(s *Session, tbl *model.TableMirror, opts targetOptions) error {
	plan, err := buildTargetDefinition(s, tbl, opts)
	if err != nil {
		return err
	}
	create, err := reconcileExisting(s, tbl, plan)
	if err != nil || !create {
		return err
	}
	addCreateSQL(tbl, model.TARGET, tbl.TargetDatabase, plan.Definition)
	return addPartitionSQL(s, tbl)
}

// Views are recreated as-is; they carry no location.
func buildView(tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	target := tbl.Env(model.TARGET)
	if target.Exists {
		tbl.AddIssue(model.TARGET, "View exists on TARGET, no action taken")
		return nil
	}
	target.Definition = append([]string{}, source.Definition...)
	addCreateSQL(tbl, model.TARGET, tbl.TargetDatabase, target.Definition)
	return nil
}

/*
 * LINKED and COMMON tables on TARGET point at the SOURCE bytes. They are
 * always non-purge external tables so dropping them never touches the data.
 */
type linkedStrategy struct {
	sqlApplier
	common bool
}

func (l linkedStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	if source.IsACID() {
		return errors.Errorf("transactional tables cannot be shared between clusters, use SQL or EXPORT_IMPORT")
	}
	if model.IsView(source.Definition) {
		return buildView(tbl)
	}
	if l.common {
		tbl.AddIssue(model.TARGET, "Table shares common storage with SOURCE, TARGET does not own the data")
	} else {
		tbl.AddIssue(model.TARGET, "Table is linked to the SOURCE data, TARGET does not own the data")
	}
	return buildSchema(s, tbl, targetOptions{linked: true})
}

/*
 * DUMP only writes the SOURCE schema, with translated locations, to the
 * execute script. Nothing is ever applied.
 */
type dumpStrategy struct{}

func (dumpStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	def := append([]string{}, source.Definition...)
	if !model.IsView(def) {
		def = model.ChangeTableName(def, tbl.TargetDatabase, tbl.Name)
		if location := source.Location(); location != "" {
			translated, err := s.Translator.TranslateTableLocation(tbl, location, 0, "")
			if err != nil {
				return err
			}
			def = model.UpdateLocation(def, translated.Target)
		}
	}
	addCreateSQL(tbl, model.SOURCE, tbl.TargetDatabase, def)
	return nil
}

func (dumpStrategy) Execute(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	gplog.Verbose("Table %v was dumped, nothing to apply", tbl.FQN())
	return nil
}

/*
 * CONVERT_LINKED replaces a linked TARGET table with one that owns a copy of
 * the data. The linked table loses its purge flag first so the drop keeps
 * the SOURCE bytes.
 */
type convertLinkedStrategy struct {
	sqlApplier
}

func (convertLinkedStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	existing := tbl.Env(model.TARGET)
	if !existing.Exists {
		return errors.Errorf("table does not exist on TARGET, there is no linked table to convert")
	}
	if !model.IsExternal(existing.Definition) || model.GetTblProperty(existing.Definition, model.TBL_PROP_EXTERNAL_PURGE) == "true" {
		return errors.Errorf("TARGET table is not a linked table, it already owns its data")
	}
	fqn := qualified(tbl.TargetDatabase, tbl.Name)
	plan, err := buildTargetDefinition(s, tbl, targetOptions{})
	if err != nil {
		return err
	}
	existing.AddSQL("Detach the linked data", fmt.Sprintf("ALTER TABLE %v SET TBLPROPERTIES ('%v'='false')", fqn, model.TBL_PROP_EXTERNAL_PURGE))
	existing.AddSQL("Drop the linked table", "DROP TABLE IF EXISTS "+fqn)
	addCreateSQL(tbl, model.TARGET, tbl.TargetDatabase, plan.Definition)
	return addPartitionSQL(s, tbl)
}

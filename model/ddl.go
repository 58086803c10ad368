package model

/*
 * Helpers that read and rewrite Hive "SHOW CREATE TABLE" output. Definitions
 * are kept line by line, exactly as HiveServer2 returns them.
 */

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const (
	TBL_PROP_TRANSACTIONAL   = "transactional"
	TBL_PROP_EXTERNAL_PURGE  = "external.table.purge"
	TBL_PROP_NUM_FILES       = "numFiles"
	TBL_PROP_TOTAL_SIZE      = "totalSize"
	TBL_PROP_NUM_ROWS        = "numRows"
	TBL_PROP_MIRROR_STAGE    = "hmsMirror_Stage"
	TBL_PROP_MIRROR_METADATA = "hmsMirror_Metadata_Stage1"
	TBL_PROP_LEGACY_MANAGED  = "hmsMirror_LegacyManaged"
)

var (
	createTableRegex = regexp.MustCompile("(?i)^CREATE\\s+(EXTERNAL\\s+|TEMPORARY\\s+)?TABLE\\s+(IF\\s+NOT\\s+EXISTS\\s+)?`?([^`(\\s.]+)`?(\\.`?([^`(\\s]+)`?)?")
	tblPropRegex     = regexp.MustCompile(`^\s*'([^']+)'\s*=\s*'([^']*)'\s*[,)]?\s*$`)
	storedAsRegex    = regexp.MustCompile(`(?i)^\s*(STORED AS|INPUTFORMAT)\s+'?([\w.]+)'?`)
	createPlainRegex = regexp.MustCompile(`(?i)^CREATE\s+TABLE`)
)

func firstLine(def []string) string {
	if len(def) == 0 {
		return ""
	}
	return strings.TrimSpace(def[0])
}

func IsView(def []string) bool {
	return strings.HasPrefix(strings.ToUpper(firstLine(def)), "CREATE VIEW")
}

func IsExternal(def []string) bool {
	return strings.HasPrefix(strings.ToUpper(firstLine(def)), "CREATE EXTERNAL TABLE")
}

func IsManaged(def []string) bool {
	return !IsView(def) && !IsExternal(def)
}

func IsACID(def []string) bool {
	if IsExternal(def) {
		return false
	}
	return strings.EqualFold(GetTblProperty(def, TBL_PROP_TRANSACTIONAL), "true")
}

func IsPartitioned(def []string) bool {
	for _, line := range def {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "PARTITIONED BY") {
			return true
		}
	}
	return false
}

func locationIndex(def []string) int {
	for i, line := range def {
		if strings.ToUpper(strings.TrimSpace(line)) == "LOCATION" && i+1 < len(def) {
			return i + 1
		}
	}
	return -1
}

func GetLocation(def []string) string {
	idx := locationIndex(def)
	if idx < 0 {
		return ""
	}
	return UnquoteLiteral(strings.TrimSpace(def[idx]))
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// QuoteLiteral renders value as a single quoted HiveQL string literal.
func QuoteLiteral(value string) string {
	return "'" + literalEscaper.Replace(value) + "'"
}

// UnquoteLiteral reverses QuoteLiteral. Text without surrounding quotes is returned as is.
func UnquoteLiteral(literal string) string {
	if len(literal) < 2 || literal[0] != '\'' || literal[len(literal)-1] != '\'' {
		return literal
	}
	inner := literal[1 : len(literal)-1]
	if !strings.Contains(inner, `\`) {
		return inner
	}
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// UpdateLocation rewrites the LOCATION clause, adding one before TBLPROPERTIES when absent.
func UpdateLocation(def []string, location string) []string {
	results := append([]string{}, def...)
	quoted := "  " + QuoteLiteral(location)
	if idx := locationIndex(results); idx >= 0 {
		results[idx] = quoted
		return results
	}
	insertAt := len(results)
	for i, line := range results {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "TBLPROPERTIES") {
			insertAt = i
			break
		}
	}
	tail := append([]string{"LOCATION", quoted}, results[insertAt:]...)
	return append(results[:insertAt], tail...)
}

func RemoveLocation(def []string) []string {
	idx := locationIndex(def)
	if idx < 0 {
		return append([]string{}, def...)
	}
	results := append([]string{}, def[:idx-1]...)
	return append(results, def[idx+1:]...)
}

func GetTblProperty(def []string, key string) string {
	for _, line := range tblPropLines(def) {
		if sl := tblPropRegex.FindStringSubmatch(def[line]); sl != nil && sl[1] == key {
			return sl[2]
		}
	}
	return ""
}

func tblPropLines(def []string) []int {
	results := make([]int, 0)
	inProps := false
	for i, line := range def {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(trimmed), "TBLPROPERTIES") {
			inProps = true
			continue
		}
		if inProps {
			results = append(results, i)
			if strings.HasSuffix(trimmed, ")") {
				break
			}
		}
	}
	return results
}

func GetTblProperties(def []string) map[string]string {
	results := make(map[string]string)
	for _, line := range tblPropLines(def) {
		if sl := tblPropRegex.FindStringSubmatch(def[line]); sl != nil {
			results[sl[1]] = sl[2]
		}
	}
	return results
}

// UpsertTblProperty sets key=value, rebuilding the TBLPROPERTIES block.
func UpsertTblProperty(def []string, key, value string) []string {
	props := GetTblProperties(def)
	props[key] = value
	return rewriteTblProperties(def, props)
}

func RemoveTblProperty(def []string, key string) []string {
	props := GetTblProperties(def)
	if _, ok := props[key]; !ok {
		return append([]string{}, def...)
	}
	delete(props, key)
	return rewriteTblProperties(def, props)
}

func rewriteTblProperties(def []string, props map[string]string) []string {
	lines := tblPropLines(def)
	results := make([]string, 0, len(def)+2)
	if len(lines) == 0 {
		results = append(results, def...)
	} else {
		results = append(results, def[:lines[0]-1]...)
		results = append(results, def[lines[len(lines)-1]+1:]...)
	}
	if len(props) == 0 {
		return results
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	results = append(results, "TBLPROPERTIES (")
	for i, k := range keys {
		terminator := ","
		if i == len(keys)-1 {
			terminator = ")"
		}
		results = append(results, fmt.Sprintf("  '%s'='%s'%s", k, props[k], terminator))
	}
	return results
}

// MakeExternal turns a managed definition into an external one, dropping ACID properties.
func MakeExternal(def []string) []string {
	if len(def) == 0 || IsExternal(def) {
		return append([]string{}, def...)
	}
	results := append([]string{}, def...)
	results[0] = createPlainRegex.ReplaceAllString(strings.TrimSpace(results[0]), "CREATE EXTERNAL TABLE")
	results = RemoveTblProperty(results, TBL_PROP_TRANSACTIONAL)
	results = RemoveTblProperty(results, "transactional_properties")
	return results
}

func TableName(def []string) string {
	sl := createTableRegex.FindStringSubmatch(firstLine(def))
	if sl == nil {
		return ""
	}
	if sl[5] != "" {
		return sl[5]
	}
	return sl[3]
}

// ChangeTableName rewrites the table identifier on the CREATE line, qualifying it with database.
func ChangeTableName(def []string, database, table string) []string {
	if len(def) == 0 {
		return nil
	}
	results := append([]string{}, def...)
	loc := createTableRegex.FindStringSubmatchIndex(results[0])
	if loc == nil {
		return results
	}
	prefix := results[0][:loc[0]]
	kind := "CREATE TABLE "
	if IsExternal(results) {
		kind = "CREATE EXTERNAL TABLE "
	}
	name := fmt.Sprintf("`%s`.`%s`", database, table)
	if database == "" {
		name = fmt.Sprintf("`%s`", table)
	}
	results[0] = prefix + kind + "IF NOT EXISTS " + name + results[0][loc[1]:]
	return results
}

func FileFormat(def []string) string {
	for i, line := range def {
		if sl := storedAsRegex.FindStringSubmatch(line); sl != nil {
			format := sl[2]
			if strings.EqualFold(format, "INPUTFORMAT") && i+1 < len(def) {
				format = strings.Trim(strings.TrimSpace(def[i+1]), "'")
			}
			if idx := strings.LastIndex(format, "."); idx >= 0 {
				format = format[idx+1:]
			}
			return format
		}
	}
	return ""
}

// ColumnLines returns the column section, used to compare two definitions.
func ColumnLines(def []string) []string {
	results := make([]string, 0)
	for i, line := range def {
		if i == 0 {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "`") {
			results = append(results, strings.TrimSuffix(strings.TrimSuffix(trimmed, ")"), ","))
			continue
		}
		break
	}
	return results
}

func SchemaMatches(left, right []string) bool {
	l, r := ColumnLines(left), ColumnLines(right)
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		if !strings.EqualFold(l[i], r[i]) {
			return false
		}
	}
	return true
}

func ToCreateStatement(def []string) string {
	return strings.Join(def, "\n")
}

func PartitionDepth(partitionSpec string) int {
	if partitionSpec == "" {
		return 0
	}
	return len(strings.Split(strings.Trim(partitionSpec, "/"), "/"))
}

// PartitionClause converts "a=1/b=x" to "`a`='1', `b`='x'".
func PartitionClause(partitionSpec string) string {
	parts := strings.Split(strings.Trim(partitionSpec, "/"), "/")
	clauses := make([]string, 0, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		value, err := url.PathUnescape(kv[1])
		if err != nil {
			value = kv[1]
		}
		clauses = append(clauses, fmt.Sprintf("`%s`=%s", kv[0], QuoteLiteral(value)))
	}
	return strings.Join(clauses, ", ")
}


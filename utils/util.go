package utils

/*
 * This file contains miscellaneous functions that are generally useful and
 * don't fit into any other file.
 */

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/greenplum-db/gp-common-go-libs/iohelper"
	"github.com/greenplum-db/gp-common-go-libs/operating"
	"github.com/pkg/errors"
)

var fmu sync.Mutex

/*
 * General helper functions
 */

func OpenFileForWrite(filename string) (*os.File, error) {
	return os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
}

func WriteToFileAndMakeReadOnly(filename string, contents []byte) error {
	file, err := OpenFileForWrite(filename)
	if err != nil {
		return err
	}

	_, err = file.Write(contents)
	if err != nil {
		return err
	}

	err = file.Sync()
	if err != nil {
		return err
	}

	err = file.Chmod(0444)
	if err != nil {
		return err
	}

	return file.Close()
}

// QuoteIdentifier wraps a Hive identifier in backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func MakeFQN(database string, object string) string {
	return fmt.Sprintf("%s.%s", QuoteIdentifier(database), QuoteIdentifier(object))
}

func ValidateFullPath(path string) error {
	if len(path) > 0 && !(strings.HasPrefix(path, "/") || strings.HasPrefix(path, "~")) {
		return errors.Errorf("%s is not an absolute path.", path)
	}
	return nil
}

func InitializeSignalHandler(cleanupFunc func(bool), procDesc string, termFlag *bool) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range signalChan {
			fmt.Println() // Add newline after "^C" is printed
			gplog.Warn("Received a termination signal, aborting %s", procDesc)
			*termFlag = true
			cleanupFunc(true)
			os.Exit(2)
		}
	}()
}

func ArrayIsDuplicated(elems []string) bool {
	elemsMap := make(map[string]bool)

	for _, v := range elems {
		if _, exist := elemsMap[v]; exist {
			return true
		}
		elemsMap[v] = true
	}

	return false
}

func CurrentTimestamp() string {
	return operating.System.Now().Format("20060102_150405")
}

func HandleSingleDashes(args []string) []string {
	r := regexp.MustCompile(`^-(\w{2,})`)
	var newArgs []string
	for _, arg := range args {
		newArg := r.ReplaceAllString(arg, "--$1")
		newArgs = append(newArgs, newArg)
	}
	return newArgs
}

// ReadListFile returns the non-empty, non-comment lines of filename.
func ReadListFile(filename string) ([]string, error) {
	lines, err := iohelper.ReadLinesFromFile(filename)
	if err != nil {
		return nil, err
	}
	results := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		results = append(results, line)
	}
	return results, nil
}

func ReadMapFile(filename string, separator string) (map[string]string, error) {
	if len(filename) == 0 {
		return nil, nil
	}

	lines, err := ReadListFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "file open fail, file %v", filename)
	}

	maps := make(map[string]string)
	for lineNumber, line := range lines {
		pair := strings.SplitN(line, separator, 2)
		if len(pair) != 2 {
			return nil, errors.Errorf("invalid map file content, file %v, entry %v, content [%v]", filename, lineNumber+1, line)
		}
		maps[strings.TrimSpace(pair[0])] = strings.TrimSpace(pair[1])
	}

	return maps, nil
}

func OpenDataFile(filename string) *os.File {
	f, err := os.Create(filename)
	gplog.FatalOnError(err)

	return f
}

func WriteDataFile(f *os.File, line string) error {
	fmu.Lock()
	defer fmu.Unlock()
	_, err := f.WriteString(line)
	return err
}

func CloseDataFile(f *os.File) {
	f.Close()
}

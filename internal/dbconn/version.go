package dbconn

import (
	"regexp"
	"strings"

	"github.com/blang/semver"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

var threeDigitPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

type PlatformVersion struct {
	VersionString string
	SemVer        semver.Version
}

/*
 * NewVersion is meant for tests and configured defaults. versionStr must hold
 * an X.Y.Z semantic version somewhere in it; anything else is a programmer
 * error and panics.
 */
func NewVersion(versionStr string) PlatformVersion {
	match := threeDigitPattern.FindString(versionStr)
	return PlatformVersion{
		VersionString: versionStr,
		SemVer:        semver.MustParse(match),
	}
}

/*
 * ParseVersion reads the output of Hive's version() function, for example
 * "3.1.3000.7.1.7.0-551 r4f8eb1d0c3ed5ac2e8b2d5cf5f9e1a3c0f1a2b3c". Only the
 * first three numeric components are significant.
 */
func ParseVersion(versionStr string) (PlatformVersion, error) {
	match := threeDigitPattern.FindString(versionStr)
	if match == "" {
		return PlatformVersion{}, errors.Errorf("could not find a version number in \"%v\"", versionStr)
	}
	semVer, err := semver.Make(match)
	if err != nil {
		return PlatformVersion{}, errors.Wrapf(err, "could not parse version \"%v\"", versionStr)
	}
	return PlatformVersion{VersionString: strings.TrimSpace(versionStr), SemVer: semVer}, nil
}

func InitializeVersion(dbconn *DBConn) (PlatformVersion, error) {
	var versionString string
	err := dbconn.Get(&versionString, "SELECT version() AS versionstring")
	if err != nil {
		return PlatformVersion{}, err
	}
	gplog.Verbose("InitializeVersion, %v version string: %v", dbconn, versionString)
	version, err := ParseVersion(versionString)
	if err != nil {
		return PlatformVersion{}, err
	}
	dbconn.Version = version
	return version, nil
}

func StringToSemVerRange(versionStr string) semver.Range {
	numDigits := len(strings.Split(versionStr, "."))
	if numDigits < 3 {
		versionStr += ".x"
	}
	validRange := semver.MustParseRange(versionStr)
	return validRange
}

func (version PlatformVersion) Before(targetVersion string) bool {
	validRange := StringToSemVerRange("<" + targetVersion)
	return validRange(version.SemVer)
}

func (version PlatformVersion) AtLeast(targetVersion string) bool {
	validRange := StringToSemVerRange(">=" + targetVersion)
	return validRange(version.SemVer)
}

func (version PlatformVersion) Is(targetVersion string) bool {
	validRange := StringToSemVerRange("==" + targetVersion)
	return validRange(version.SemVer)
}

func (version PlatformVersion) IsSet() bool {
	return version.VersionString != ""
}

// IsLegacy reports a Hive 1 or 2 platform, where managed tables are not transactional by default.
func (version PlatformVersion) IsLegacy() bool {
	return version.IsSet() && version.Before("3")
}

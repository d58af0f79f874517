package shared

import (
	"fmt"
	"regexp"
	"strconv"
)

// ParsedVersion is a client release such as v0.12, as sent in the X-Transgemma-Version header.
type ParsedVersion struct {
	MajorVersion int
	MinorVersion int
}

var versionRegex = regexp.MustCompile(`v(\d+)[.](\d+)`)

func (pv ParsedVersion) LessThan(other ParsedVersion) bool {
	if pv.MajorVersion != other.MajorVersion {
		return pv.MajorVersion < other.MajorVersion
	}
	return pv.MinorVersion < other.MinorVersion
}

func (pv ParsedVersion) String() string {
	return fmt.Sprintf("v%d.%d", pv.MajorVersion, pv.MinorVersion)
}

func ParseVersionString(versionString string) (ParsedVersion, error) {
	matches := versionRegex.FindAllStringSubmatch(versionString, -1)
	if len(matches) != 1 || len(matches[0]) != 3 {
		return ParsedVersion{}, fmt.Errorf("failed to parse version=%#v (matches=%#v)", versionString, matches)
	}
	major, err := strconv.Atoi(matches[0][1])
	if err != nil {
		return ParsedVersion{}, fmt.Errorf("failed to parse major version %#v", matches[0][1])
	}
	minor, err := strconv.Atoi(matches[0][2])
	if err != nil {
		return ParsedVersion{}, fmt.Errorf("failed to parse minor version %#v", matches[0][2])
	}
	return ParsedVersion{major, minor}, nil
}

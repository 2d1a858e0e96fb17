// Package buildinfo exposes the version stamped at link time through
// github.com/prometheus/common/version, for example:
//
//	-ldflags "-X github.com/prometheus/common/version.Version=v0.1.0"
package buildinfo

import (
	"github.com/prometheus/common/version"
)

const Graffiti = "  ___ _ __ (_)\n / __| '_ \\| |\n| (__| |_) | |\n \\___| .__/|_|\n     |_|\n\n"

var Name = "CPI"

type buildinfo struct{}

func (buildinfo) Tag() string {
	if version.Version == "" {
		return "v0.0.0"
	}
	return version.Version
}

func (buildinfo) Name() string {
	return Name
}

func (buildinfo) Time() string {
	return version.BuildDate
}

func (buildinfo) Revision() string {
	return version.Revision
}

func (b buildinfo) UserAgent() string {
	return b.Name() + "/" + b.Tag()
}

// Print returns the multi-line version report of program.
func (buildinfo) Print(program string) string {
	return version.Print(program)
}

var Info buildinfo

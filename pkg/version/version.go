// Copyright (c) Sony Research Inc. All rights reserved.

// Package version carries build identification, stamped at link time with
//
//	-ldflags "-X .../pkg/version.Version=v1.2.3 -X .../pkg/version.BuildTime=..."
package version

import "runtime"

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// GoVersion reports the toolchain the binary was built with.
func GoVersion() string {
	return runtime.Version()
}

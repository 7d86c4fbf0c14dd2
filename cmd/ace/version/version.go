//
//  Copyright © Manetu Inc. All rights reserved.
//

package version

import "runtime/debug"

// Version is set at build time via -ldflags.  Left at "dev", the module
// version recorded by `go install` is reported instead.
var Version = "dev"

// GetVersion returns the current version string
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

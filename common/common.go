// Package common contains service-wide constants and the logger setup shared
// by all binaries.
package common

// PackageName identifies the service in logs and metrics.
const PackageName = "tee-devops-runner"

// Version is set at build time via -ldflags.
var Version = "dev"

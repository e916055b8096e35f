package version

// Version is the rdocs version. It is overridden at build time with
// -ldflags "-X github.com/hashicorp-forge/rdocs/internal/version.Version=...".
var Version = "0.1.0-dev"

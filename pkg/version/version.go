package version

// Version is the iscope release. Overridden at build time via:
//
//	go build -ldflags "-X github.com/vanderheijden86/issuescope/pkg/version.Version=v0.2.0"
var Version = "v0.1.0-dev"

// Package buildinfo carries version data stamped by the linker, e.g.
//
//	go build -ldflags "-X github.com/m3rciful/insurebot/core/buildinfo.Version=v1.2.0 \
//		-X github.com/m3rciful/insurebot/core/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

var (
	Version = "dev"
	Commit  = "local"
	// Date is an RFC 3339 build time.
	Date = ""
)

// Info is the JSON shape served on /version.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date,omitempty"`
}

// Current returns the stamped values.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

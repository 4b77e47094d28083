package handlers

import "net/http"

// Build metadata, set once at startup from the binary's version info.
var (
	versionString = "dev"
	commitString  = ""
	dateString    = ""
)

// SetVersionInfo records the build metadata reported by /version.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		versionString = version
	}
	commitString = commit
	dateString = date
}

// VersionResponse is the /version response body.
type VersionResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// VersionHandler reports the build version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Service: "atsrelay",
		Version: versionString,
		Commit:  commitString,
		Date:    dateString,
	})
}

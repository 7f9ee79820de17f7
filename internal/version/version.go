// Package version carries the build identity, set with -ldflags -X at build
// time.
package version

var (
	GitRepo          string
	LatestReleaseTag string
	GitShortSha      string
)

const unknown = "unknown"

type Response struct {
	Repo             string `json:"repo"`
	LatestReleaseTag string `json:"latest_release_tag"`
	GitShortSha      string `json:"git_short_sha"`
}

// Get returns the build identity. Values not set at build time read as
// "unknown".
func Get() Response {
	return Response{
		Repo:             orUnknown(GitRepo),
		LatestReleaseTag: orUnknown(LatestReleaseTag),
		GitShortSha:      orUnknown(GitShortSha),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

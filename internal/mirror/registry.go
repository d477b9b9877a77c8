package mirror

// CanonicalID identifies the hosting service itself. Rewriting a URL for
// this mirror is the identity.
const CanonicalID = "github"

// CanonicalBaseURL is the hosting service's base URL. Every other mirror's
// BaseURL replaces this prefix.
const CanonicalBaseURL = "https://github.com"

// CanonicalRawBaseURL is the base URL for raw file content.
const CanonicalRawBaseURL = "https://raw.githubusercontent.com"

// registry is ordered so that listings and probe tables are stable.
var registry = []Mirror{
	{ID: CanonicalID, BaseURL: CanonicalBaseURL},
	{ID: "bgithub", BaseURL: "https://bgithub.xyz"},
	{ID: "ghproxy.net", BaseURL: "https://ghproxy.net/https://github.com"},
	{ID: "ghfast", BaseURL: "https://ghfast.top/https://github.com"},
	{ID: "ghp.ci", BaseURL: "https://ghp.ci/https://github.com"},
	{ID: "kgithub", BaseURL: "https://kkgithub.com"},
	{ID: "gitproxy.click", BaseURL: "https://gitproxy.click/https://github.com"},
	{ID: "moeyy01", BaseURL: "https://github.moeyy.xyz/https://github.com"},
	{ID: "gitclone", BaseURL: "https://gitclone.com/github.com"},
	{ID: "tbedu", BaseURL: "https://github.tbedu.top/https://github.com"},
	{ID: "llkk", BaseURL: "https://gh.llkk.cc/https://github.com"},
	{ID: "gh-deno", BaseURL: "https://gh-deno.mocn.top/https://github.com"},
}

var rawContentRegistry = []Mirror{
	{ID: CanonicalID, BaseURL: CanonicalRawBaseURL},
	{ID: "ghproxy.net", BaseURL: "https://ghproxy.net/https://raw.githubusercontent.com"},
}

// All returns a copy of the registered mirrors.
func All() []Mirror {
	out := make([]Mirror, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the mirror registered under id.
func Lookup(id string) (Mirror, bool) {
	return find(registry, id)
}

// LookupRaw returns the raw-content mirror registered under id.
func LookupRaw(id string) (Mirror, bool) {
	return find(rawContentRegistry, id)
}

func find(list []Mirror, id string) (Mirror, bool) {
	for _, m := range list {
		if m.ID == id {
			return m, true
		}
	}
	return Mirror{}, false
}

package generator

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// initialisms are the words Go spells in all caps.
var initialisms = map[string]string{
	"Api":  "API",
	"Html": "HTML",
	"Http": "HTTP",
	"Id":   "ID",
	"Ids":  "IDs",
	"Ip":   "IP",
	"Json": "JSON",
	"Sql":  "SQL",
	"Uri":  "URI",
	"Url":  "URL",
	"Uuid": "UUID",
	"Xml":  "XML",
}

// pascal returns the exported Go identifier for a GraphQL name.
func pascal(name string) string {
	name = strings.TrimLeft(name, "_")
	if name == "" {
		return "X"
	}
	s := fixInitialisms(inflect.Camelize(name))
	if !unicode.IsLetter(rune(s[0])) {
		s = "X" + s
	}
	return s
}

// fixInitialisms rewrites the words of a PascalCase identifier that Go
// spells in all caps.
func fixInitialisms(s string) string {
	var b strings.Builder
	start := 0
	flush := func(end int) {
		word := s[start:end]
		if up, ok := initialisms[word]; ok {
			word = up
		}
		b.WriteString(word)
		start = end
	}
	for i := 1; i < len(s); i++ {
		if unicode.IsUpper(rune(s[i])) && !unicode.IsUpper(rune(s[i-1])) {
			flush(i)
		}
	}
	flush(len(s))
	return b.String()
}

var titleCaser = cases.Title(language.English)

// enumValue returns the constant name of a GraphQL enum value, such as
// EpisodeNewHope for Episode.NEW_HOPE.
func enumValue(typeName, value string) string {
	var b strings.Builder
	b.WriteString(pascal(typeName))
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == '_' || r == '-' }) {
		b.WriteString(fixInitialisms(titleCaser.String(strings.ToLower(part))))
	}
	return b.String()
}

func snake(s string) string {
	s = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(s)
	return strings.ToLower(inflect.Underscore(s))
}

// fileNames returns the generated file name of each document. Directories
// shared by all documents are dropped and the remaining ones become part of
// the name, so users/get.graphql and posts/get.graphql give users_get.go
// and posts_get.go. Names the go tool would exclude from a build are
// suffixed with _gen.
func fileNames(root string, names []string) []string {
	paths := make([][]string, len(names))
	for i, name := range names {
		paths[i] = pathSegments(root, name)
	}
	common := 0
	if len(paths) > 0 {
		common = max(len(paths[0])-1, 0)
		for _, p := range paths[1:] {
			n := 0
			for n < common && n < len(p)-1 && p[n] == paths[0][n] {
				n++
			}
			common = n
		}
	}
	out := make([]string, len(names))
	for i, p := range paths {
		var parts []string
		for j, seg := range p[common:] {
			if j == len(p)-common-1 {
				seg = strings.TrimSuffix(seg, filepath.Ext(seg))
			}
			if seg = strings.Trim(snake(seg), "_"); seg != "" {
				parts = append(parts, seg)
			}
		}
		base := strings.Join(parts, "_")
		if base == "" {
			base = "document"
		}
		if buildConstrained(base) {
			base += "_gen"
		}
		out[i] = base + ".go"
	}
	return out
}

// pathSegments splits name, relative to root when it lies under it.
func pathSegments(root, name string) []string {
	p := name
	if filepath.IsAbs(p) && root != "" {
		if rel, err := filepath.Rel(root, p); err == nil && filepath.IsLocal(rel) {
			p = rel
		}
	}
	var segs []string
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Clean(p)), "/") {
		if seg != "" && seg != "." && seg != ".." {
			segs = append(segs, seg)
		}
	}
	return segs
}

// buildConstrained reports whether the go tool treats base.go as a test
// file or restricts it to a GOOS or GOARCH.
func buildConstrained(base string) bool {
	l := strings.Split(base, "_")
	if len(l) < 2 {
		return false
	}
	l[0] = ""
	n := len(l)
	if l[n-1] == "test" {
		return true
	}
	if n >= 2 && knownOS[l[n-2]] && knownArch[l[n-1]] {
		return true
	}
	return knownOS[l[n-1]] || knownArch[l[n-1]]
}

var knownOS = setOf(
	"aix", "android", "darwin", "dragonfly", "freebsd", "hurd", "illumos", "ios",
	"js", "linux", "nacl", "netbsd", "openbsd", "plan9", "solaris", "wasip1",
	"windows", "zos",
)

var knownArch = setOf(
	"386", "amd64", "amd64p32", "arm", "armbe", "arm64", "arm64be", "loong64",
	"mips", "mipsle", "mips64", "mips64le", "mips64p32", "mips64p32le", "ppc",
	"ppc64", "ppc64le", "riscv", "riscv64", "s390", "s390x", "sparc", "sparc64",
	"wasm",
)

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

package source

import (
	"fmt"
	"strings"
)

// remote identifies a GitHub repository that backs a builtin alias.
type remote struct {
	Owner      string
	Repo       string
	DefaultRef string // branch to track; empty means "latest release"
}

// builtins is the static alias table. Aliases are resolved to explicit
// descriptors at expansion time, not at parse time, so an unknown alias
// surfaces as a resolution failure for that descriptor only.
var builtins = map[string]remote{
	"neversink-lite": {Owner: "NeverSinkDev", Repo: "NeverSink-PoE2litefilter"},
	"cdrg":           {Owner: "cdrg", Repo: "cdr-poe2filter"},
}

// Descriptor describes one requested filter origin. It is constructed once
// from a command-line token and never mutated afterwards.
type Descriptor struct {
	// Builtin is the alias name for builtin sources, empty for explicit ones.
	Builtin string

	// Owner and Repo identify the repository for explicit sources.
	Owner string
	Repo  string

	// Branch selects branch-tip mode; empty means "latest release".
	Branch string

	// Position is the zero-based command-line argument index. Merge order
	// for shared destinations follows Position, never completion order.
	Position int
}

// Parse converts a single source token into a Descriptor. Position records
// the token's place in the argument list.
//
// Grammar: builtin | builtin/branch | github:owner/repo | github:owner/repo/branch
func Parse(token string, position int) (Descriptor, error) {
	if token == "" {
		return Descriptor{}, fmt.Errorf("empty source token")
	}

	if rest, ok := strings.CutPrefix(token, "github:"); ok {
		parts := strings.Split(rest, "/")
		for _, p := range parts {
			if p == "" {
				return Descriptor{}, fmt.Errorf("malformed source %q: empty path segment", token)
			}
		}
		switch len(parts) {
		case 2:
			return Descriptor{Owner: parts[0], Repo: parts[1], Position: position}, nil
		case 3:
			return Descriptor{Owner: parts[0], Repo: parts[1], Branch: parts[2], Position: position}, nil
		default:
			return Descriptor{}, fmt.Errorf("malformed source %q: want github:owner/repo or github:owner/repo/branch", token)
		}
	}

	if strings.Contains(token, ":") {
		return Descriptor{}, fmt.Errorf("unsupported source scheme in %q: only github: is recognized", token)
	}

	name, branch, hasBranch := strings.Cut(token, "/")
	if name == "" || (hasBranch && branch == "") || strings.Contains(branch, "/") {
		return Descriptor{}, fmt.Errorf("malformed source %q: want builtin or builtin/branch", token)
	}
	return Descriptor{Builtin: name, Branch: branch, Position: position}, nil
}

// ParseAll parses every token in order. The first malformed token aborts
// parsing; no network activity may have happened by then.
func ParseAll(tokens []string) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(tokens))
	for i, token := range tokens {
		d, err := Parse(token, i)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// Expand rewrites a builtin descriptor to its explicit form using the alias
// table. Explicit descriptors pass through unchanged. A branch given on the
// command line wins over the alias default ref.
func (d Descriptor) Expand() (Descriptor, error) {
	if d.Builtin == "" {
		return d, nil
	}

	r, ok := builtins[d.Builtin]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown builtin source %q", d.Builtin)
	}

	branch := d.Branch
	if branch == "" {
		branch = r.DefaultRef
	}
	return Descriptor{Owner: r.Owner, Repo: r.Repo, Branch: branch, Position: d.Position}, nil
}

// Key returns the stable identity used for marker storage and logging. Two
// invocations naming the same source produce the same key.
func (d Descriptor) Key() string {
	if d.Builtin != "" {
		if d.Branch != "" {
			return d.Builtin + "/" + d.Branch
		}
		return d.Builtin
	}
	if d.Branch != "" {
		return fmt.Sprintf("github:%s/%s/%s", d.Owner, d.Repo, d.Branch)
	}
	return fmt.Sprintf("github:%s/%s", d.Owner, d.Repo)
}

// String implements fmt.Stringer for log output.
func (d Descriptor) String() string {
	return d.Key()
}

// Package flagx lets several components pick their own flags out of one
// shared os.Args without tripping over each other's names.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// Set describes the flags a component owns. The value tells whether the
// flag consumes the following argument (true) or is a bare switch (false).
type Set map[string]bool

// ConfigEnv names the environment variable consulted when no config flag
// is given.
const ConfigEnv = "AUTHGATE_CONFIG"

// name strips leading dashes so "-c" and "--c" match the same entry.
func name(arg string) string {
	return strings.TrimLeft(arg, "-")
}

// FilterArgs keeps only the arguments that belong to owned, in their
// original order. Accepted shapes are "-f value", "-f=value", "--f=value"
// and, for switches, a bare "-f".
func FilterArgs(args []string, owned Set) []string {
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}

		key, _, inline := strings.Cut(arg, "=")
		takesValue, ok := owned[name(key)]
		if !ok {
			continue
		}
		filtered = append(filtered, arg)

		if inline || !takesValue {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigPath returns the JSON config file named by -c or -config in args.
// Without either flag it falls back to lookup(ConfigEnv).
func ConfigPath(args []string, lookup func(string) (string, bool)) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(discard{})
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, Set{"c": true, "config": true}))

	if path == "" && lookup != nil {
		if v, ok := lookup(ConfigEnv); ok {
			path = strings.TrimSpace(v)
		}
	}
	return path
}

// ConfigFile is ConfigPath over the process arguments and environment.
func ConfigFile() string {
	return ConfigPath(os.Args[1:], os.LookupEnv)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

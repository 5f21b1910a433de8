package tagconf

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseCLI splits command-line arguments into config file paths and
// parameter overrides.
//
// "--config path1,path2" names additional config files to merge, in
// order; it may appear once only, and a bracketed list "[a.yaml,b.yaml]"
// is accepted. A parameter called "config" is still reachable with the
// '=' form "--config=value". Every other "--key=value", "--key value"
// or bare "--flag" (true) sets a parameter; the key is a dotted path,
// optionally tagged. Values are parsed as YAML, so "2" is an int,
// "[1, 2]" a list and "null" nil. Arguments before the first "--" flag
// are ignored, which leaves positional arguments to the caller.
func ParseCLI(args []string) ([]string, map[string]any, error) {
	var configPaths []string
	params := make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if configPaths != nil {
				return nil, nil, fmt.Errorf("only one --config argument is allowed; " +
					"for a parameter named \"config\" use --config=value")
			}
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--config requires a comma-separated list of paths")
			}
			list := strings.TrimSuffix(strings.TrimPrefix(args[i+1], "["), "]")
			for _, path := range strings.Split(list, ",") {
				if path = strings.TrimSpace(path); path != "" {
					configPaths = append(configPaths, path)
				}
			}
			i++
			continue
		}
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		key, valueStr := arg[2:], ""
		switch {
		case strings.Contains(key, "="):
			key, valueStr, _ = strings.Cut(key, "=")
		case i+1 < len(args) && !strings.HasPrefix(args[i+1], "--"):
			valueStr = args[i+1]
			i++
		default:
			params[key] = true
			continue
		}
		var value any
		if err := yaml.Unmarshal([]byte(valueStr), &value); err != nil {
			return nil, nil, fmt.Errorf("invalid value %q for --%s: %w", valueStr, key, err)
		}
		params[key] = value
	}
	return configPaths, params, nil
}

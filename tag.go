package tagconf

import (
	"sort"
	"strings"
)

// HasTag reports whether key carries the tag with that exact name. The
// tag may be given with or without its leading '@'. When fullKey is
// false only the last dot-segment of the key is examined, which is the
// usual case for tags that apply to a single parameter. Matching is
// anchored on tag boundaries so that a tag never matches a longer tag
// name it is a prefix of: "@merge" does not match "@merge_after".
func HasTag(key, tag string, fullKey bool) bool {
	tag = strings.TrimPrefix(tag, "@")
	if !fullKey {
		segments := strings.Split(key, ".")
		key = segments[len(segments)-1]
	}
	return strings.HasSuffix(key, "@"+tag) ||
		strings.Contains(key, "@"+tag+"@") ||
		strings.Contains(key, "@"+tag+".")
}

// StripTag removes every exact occurrence of the tag from key,
// preserving any other tags: "abc@tag.def@tag_2.ghi@tag" stripped of
// "tag" yields "abc.def@tag_2.ghi".
func StripTag(key, tag string) string {
	tag = strings.TrimPrefix(tag, "@")
	// "@tag@other" collapses to "@other"
	key = strings.ReplaceAll(key, "@"+tag+"@", "@")
	// "@tag.rest" collapses to ".rest"
	key = strings.ReplaceAll(key, "@"+tag+".", ".")
	key = strings.TrimSuffix(key, "@"+tag)
	return key
}

// StripTags removes all '@...' suffixes from every dot-segment of key,
// returning the clean key path.
func StripTags(key string) string {
	segments := strings.Split(key, ".")
	for i, segment := range segments {
		if j := strings.IndexByte(segment, '@'); j >= 0 {
			segments[i] = segment[:j]
		}
	}
	return strings.Join(segments, ".")
}

// tagParam extracts the parameter of a parameterized tag such as
// "@type:int" on the last segment of key. It returns the parameter text
// (up to the next '@', if any) and whether the tag was found.
func tagParam(key, tag string) (string, bool) {
	segments := strings.Split(key, ".")
	end := segments[len(segments)-1]
	marker := "@" + strings.TrimPrefix(tag, "@") + ":"
	i := strings.Index(end, marker)
	if i < 0 {
		return "", false
	}
	trail := end[i+len(marker):]
	if j := strings.IndexByte(trail, '@'); j >= 0 {
		trail = trail[:j]
	}
	return trail, true
}

// cleanKeys returns a copy of flat with every key cleaned of tags,
// along with the sorted list of original keys that carried at least one
// tag. A cleaned key overwrites an untagged key of the same name, which
// mirrors the right-biased behavior of merging.
func cleanKeys(flat map[string]any) (map[string]any, []string) {
	clean := make(map[string]any, len(flat))
	var tagged []string
	for _, key := range sortedKeys(flat) {
		if strings.ContainsRune(key, '@') {
			tagged = append(tagged, key)
			clean[StripTags(key)] = flat[key]
		} else if _, exists := clean[key]; !exists {
			clean[key] = flat[key]
		}
	}
	return clean, tagged
}

// sortedKeys returns the keys of m in lexical order. Map iteration in
// deterministic order keeps merge results and error messages stable.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

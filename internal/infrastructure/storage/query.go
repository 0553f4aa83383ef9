package storage

import "strings"

func joinRefs(refs []string) string {
	return strings.Join(refs, ",")
}

func splitRefs(raw string) []string {
	refs := []string{}
	for _, ref := range strings.Split(raw, ",") {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

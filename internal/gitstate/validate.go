package gitstate

import "fmt"

// Validate enforces the §3 RepoState invariants. It is provided for
// tests; the detector should never be able to violate it in practice.
func Validate(s RepoState) error {
	if s.Ahead < 0 {
		return fmt.Errorf("gitstate: ahead must be >= 0, got %d", s.Ahead)
	}
	if s.Behind < 0 {
		return fmt.Errorf("gitstate: behind must be >= 0, got %d", s.Behind)
	}
	if s.Upstream != "" {
		if _, ok := s.RemoteBranches[s.Upstream]; !ok {
			return fmt.Errorf("gitstate: upstream %q not present in remote_branches", s.Upstream)
		}
	}
	if s.Head != "" && !isHex40(s.Head) {
		return fmt.Errorf("gitstate: head %q is not a 40-hex string", s.Head)
	}
	return nil
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

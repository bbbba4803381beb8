package fetch

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Mode selects how AllowDomains is interpreted.
type Mode string

const (
	// ModeAllowAll permits any host that is not blocked.
	ModeAllowAll Mode = "allow_all"
	// ModeAllowlist permits only hosts listed in AllowDomains.
	ModeAllowlist Mode = "allowlist"
)

var (
	ErrSchemeNotAllowed = errors.New("scheme not allowed")
	ErrDomainBlocked    = errors.New("domain blocked")
	ErrDomainNotAllowed = errors.New("domain not in allowlist")
	ErrPathBlocked      = errors.New("path blocked")
	ErrPrivateAddress   = errors.New("private address blocked")
)

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Filter decides which outbound URLs may be requested. Block rules win over
// allow rules. A nil Filter only enforces the http/https scheme.
type Filter struct {
	Mode         Mode
	AllowDomains []string
	BlockDomains []string
	BlockPaths   []string

	// BlockPrivate rejects loopback, private, link-local and unspecified
	// addresses. Literal hosts are checked here; resolved addresses are
	// checked again when the connection is dialled.
	BlockPrivate bool
}

// ParseMode validates a mode string; empty selects ModeAllowAll.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAllowAll:
		return ModeAllowAll, nil
	case ModeAllowlist:
		return ModeAllowlist, nil
	}
	return "", fmt.Errorf("unknown filter mode %q", raw)
}

// SplitList turns a comma or newline separated list into trimmed entries.
func SplitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

// Check returns nil when u may be fetched, otherwise the reason it may not.
func (f *Filter) Check(u *url.URL) error {
	if u == nil {
		return ErrSchemeNotAllowed
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrSchemeNotAllowed
	}
	if f == nil {
		return nil
	}

	host := normalizeHost(u.Hostname())
	if f.BlockPrivate && isPrivateHost(host) {
		return ErrPrivateAddress
	}
	for _, entry := range f.BlockDomains {
		if domainMatches(host, entry) {
			return ErrDomainBlocked
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, prefix := range f.BlockPaths {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return ErrPathBlocked
		}
	}

	if f.Mode == ModeAllowlist {
		for _, entry := range f.AllowDomains {
			if domainMatches(host, entry) {
				return nil
			}
		}
		return ErrDomainNotAllowed
	}
	return nil
}

// Allowed parses rawURL and reports whether Check accepts it.
func (f *Filter) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return f.Check(u) == nil
}

// domainMatches compares host with a rule. "example.com" matches only itself;
// "*.example.com" and ".example.com" match any subdomain of example.com.
func domainMatches(host, rule string) bool {
	rule = normalizeHost(rule)
	if rule == "" || host == "" {
		return false
	}
	switch {
	case strings.HasPrefix(rule, "*."):
		return strings.HasSuffix(host, rule[1:])
	case strings.HasPrefix(rule, "."):
		return strings.HasSuffix(host, rule)
	default:
		return host == rule
	}
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return isPrivateAddr(addr)
}

// isPrivateAddr reports whether addr is not a routable public address.
func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsUnspecified() ||
		sharedAddressSpace.Contains(addr)
}

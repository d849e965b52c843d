package handler

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// accessList decides which client addresses may reach the console. The deny
// set wins over the allow set, and an empty allow set admits everyone.
type accessList struct {
	allow *netipx.IPSet
	deny  *netipx.IPSet
}

// newAccessList parses the comma separated allow and deny lists. Entries are
// single addresses, CIDR prefixes or "from-to" ranges.
func newAccessList(allow, deny string) (*accessList, error) {
	a, err := parseIPSet(allow)
	if err != nil {
		return nil, fmt.Errorf("allow: %w", err)
	}
	d, err := parseIPSet(deny)
	if err != nil {
		return nil, fmt.Errorf("deny: %w", err)
	}
	return &accessList{allow: a, deny: d}, nil
}

func parseIPSet(list string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		switch {
		case strings.Contains(entry, "/"):
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			b.AddPrefix(prefix.Masked())
		case strings.Contains(entry, "-"):
			r, err := netipx.ParseIPRange(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", entry, err)
			}
			b.AddRange(r)
		default:
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", entry, err)
			}
			b.Add(addr.Unmap())
		}
	}
	return b.IPSet()
}

// permitted reports whether the request's remote address passes the lists.
// An unparsable remote address is only admitted when neither list is set.
func (l *accessList) permitted(r *http.Request) bool {
	empty := len(l.allow.Ranges()) == 0
	addr, ok := remoteAddr(r)
	if !ok {
		return empty && len(l.deny.Ranges()) == 0
	}
	if l.deny.Contains(addr) {
		return false
	}
	return empty || l.allow.Contains(addr)
}

// remoteAddr extracts the client address from r.RemoteAddr, which carries a
// port unless a proxy header middleware replaced it.
func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

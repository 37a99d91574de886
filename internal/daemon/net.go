package daemon

import "net"

// localHost extracts the host portion of a net.Addr, used both to derive
// the SDP candidate address from the SIP connection's accept side (when
// candidate is configured as "*") and to render outbound Via/Contact
// headers.
func localHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func localPort(addr net.Addr) int {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	var port int
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 0
		}
		port = port*10 + int(c-'0')
	}
	return port
}

// listenerPort reports the TCP port a listener ended up bound to, which
// differs from the configured address when it requests port 0.
func listenerPort(l net.Listener) int {
	if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

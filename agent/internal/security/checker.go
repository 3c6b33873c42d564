package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

// CertStatus describes the leaf certificate presented by the relay.
type CertStatus struct {
	Endpoint string
	// Status is one of: valid | expiring | expired | unreachable.
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
}

// ExpiringWithin is the window in which a valid certificate is reported as
// expiring.
const ExpiringWithin = 30 * 24 * time.Hour

// Check dials the TLS endpoint behind serverURL and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for ws:// and http:// URLs, where there is no certificate to
// inspect. Uses a 10-second dial timeout so an unreachable relay does not
// hold up agent startup.
func Check(ctx context.Context, serverURL string, insecureSkipVerify bool) *CertStatus {
	return check(ctx, serverURL, insecureSkipVerify, time.Now)
}

func check(ctx context.Context, serverURL string, insecureSkipVerify bool, now func() time.Time) *CertStatus {
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "wss") {
		return nil
	}

	cs := &CertStatus{Endpoint: serverURL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL, append the TLS default.
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(now())

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = "expired"
	case left <= ExpiringWithin:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}

	return cs
}

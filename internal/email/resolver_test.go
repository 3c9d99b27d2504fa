package email

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDNSServer(t *testing.T) string {
	t.Helper()

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		switch q.Name {
		case "mail.test.":
			if q.Qtype == dns.TypeMX {
				m.Answer = append(m.Answer, &dns.MX{
					Hdr:        dns.RR_Header{Name: q.Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 60},
					Preference: 10,
					Mx:         "mx1.mail.test.",
				})
			}
		case "web.test.":
			if q.Qtype == dns.TypeA {
				m.Answer = append(m.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP("192.0.2.10"),
				})
			}
		case "broken.test.":
			m.Rcode = dns.RcodeServerFailure
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
	addr := startDNSServer(t)
	r, err := NewDNSResolver([]string{addr}, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("mx hosts without trailing dot", func(t *testing.T) {
		hosts, err := r.LookupMX(ctx, "mail.test")
		require.NoError(t, err)
		assert.Equal(t, []string{"mx1.mail.test"}, hosts)
	})

	t.Run("existing name without mx", func(t *testing.T) {
		_, err := r.LookupMX(ctx, "web.test")
		assert.ErrorIs(t, err, ErrNoAnswer)

		addrs, err := r.LookupA(ctx, "web.test")
		require.NoError(t, err)
		assert.Equal(t, []string{"192.0.2.10"}, addrs)
	})

	t.Run("nxdomain", func(t *testing.T) {
		_, err := r.LookupMX(ctx, "missing.test")
		assert.ErrorIs(t, err, ErrNXDomain)
	})

	t.Run("servfail is transient", func(t *testing.T) {
		_, err := r.LookupMX(ctx, "broken.test")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNXDomain)
		assert.NotErrorIs(t, err, ErrNoAnswer)
	})
}

func TestDNSResolver_UnreachableServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	r, err := NewDNSResolver([]string{addr}, 200*time.Millisecond)
	require.NoError(t, err)

	_, err = r.LookupMX(context.Background(), "mail.test")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNXDomain)
}

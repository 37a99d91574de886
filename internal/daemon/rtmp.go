package daemon

import (
	"net/url"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"

	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/muxer"
)

// noopPublisher drops every frame. A session falls back to it when its
// RTMP upstream cannot be dialed yet, so SIP/media processing still runs
// rather than blocking session creation on a reachable RTMP server.
type noopPublisher struct{}

func (noopPublisher) PublishVideo(dts uint32, payload []byte) error { return nil }
func (noopPublisher) PublishAudio(dts uint32, payload []byte) error { return nil }
func (noopPublisher) ResetSequenceHeaders()                         {}

// newPublisher dials the configured RTMP output for deviceID. Dial
// failures are logged and degrade to noopPublisher rather than failing
// session creation outright: reconnecting to the RTMP sink is the muxer's
// retry concern, not bind_session's.
func (d *Daemon) newPublisher(deviceID string) muxer.Publisher {
	cfg := d.config()
	addr, app, stream, err := parseRTMPTemplate(cfg.RTMP.OutputTemplate, deviceID)
	if err != nil {
		log.L().WithError(err).WithField("device", deviceID).Warn("daemon: invalid rtmp output template")
		return noopPublisher{}
	}

	client, err := muxer.NewClient(addr, app, stream)
	if err != nil {
		log.L().WithError(err).WithField("device", deviceID).Warn("daemon: rtmp dial failed, publishing will be dropped")
		return noopPublisher{}
	}
	return client
}

// parseRTMPTemplate expands the "[stream]" placeholder with deviceID and
// splits the result into the TCP address muxer.NewClient dials, the RTMP
// application name, and the stream key.
func parseRTMPTemplate(tmpl, deviceID string) (addr, app, stream string, err error) {
	resolved := strings.Replace(tmpl, "[stream]", deviceID, 1)
	u, err := url.Parse(resolved)
	if err != nil {
		return "", "", "", errors.Wrapf(err, "daemon: parse rtmp output template %q", tmpl)
	}
	if u.Scheme != "rtmp" {
		return "", "", "", errors.Errorf("daemon: rtmp output template must use the rtmp:// scheme, got %q", tmpl)
	}

	path := strings.Trim(u.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", errors.Errorf("daemon: rtmp output template must be rtmp://host/app/stream, got %q", tmpl)
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":1935"
	}
	return host, parts[0], parts[1], nil
}

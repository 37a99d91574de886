package sipconn

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"
)

// readSIPMessage reads one complete SIP-as-HTTP message from r: the header
// block up to the blank line, then exactly Content-Length more bytes of
// body. GB28181 devices always send Content-Length; a message without one
// (or with a body shorter than declared) is treated as framing-fatal for
// this connection, since there is no other way to know where the next
// message starts.
func readSIPMessage(r *bufio.Reader) ([]byte, error) {
	var header strings.Builder
	contentLength := -1

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "sipconn: read header line")
		}
		header.WriteString(line)

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if cl, ok := parseContentLength(trimmed); ok {
			contentLength = cl
		}
	}

	if contentLength < 0 {
		return nil, errors.Errorf("sipconn: message has no Content-Length header")
	}

	body := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := readFull(r, body); err != nil {
			return nil, errors.Wrapf(err, "sipconn: read body")
		}
	}

	return append([]byte(header.String()), body...), nil
}

func parseContentLength(line string) (int, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return 0, false
	}
	name := strings.TrimSpace(line[:idx])
	if !strings.EqualFold(name, "Content-Length") && !strings.EqualFold(name, "l") {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	if err != nil {
		return 0, false
	}
	return v, true
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

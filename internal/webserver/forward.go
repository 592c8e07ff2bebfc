package webserver

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Upstream is an established client session to a remote HTTP endpoint,
// typically the mining pool. The client is reused across forwards.
type Upstream struct {
	BaseURL *url.URL
	Client  *http.Client
}

// NewUpstream parses rawURL and wraps it with a client using the given
// request timeout.
func NewUpstream(rawURL string, timeout time.Duration) (*Upstream, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	return &Upstream{
		BaseURL: base,
		Client:  &http.Client{Timeout: timeout},
	}, nil
}

// Forward replays the inbound request onto the upstream and streams the
// upstream's status, headers and body back verbatim. A transport failure is
// reported as 502 to the original caller; there is no retry here.
func Forward(w http.ResponseWriter, r *http.Request, upstream *Upstream) {
	target := *upstream.BaseURL
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	proxyReq, err := http.NewRequest(r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}

	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	proxyReq.Header.Set("X-Forwarded-For", r.RemoteAddr)
	proxyReq.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := upstream.Client.Do(proxyReq)
	if err != nil {
		log.Printf("Forward to %s failed: %v", upstream.BaseURL, err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Caller went away mid-stream; nothing sensible left to write.
		log.Printf("Forward response stream aborted: %v", err)
	}
}

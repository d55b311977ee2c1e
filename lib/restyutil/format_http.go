package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// MaxTranscriptBody caps the bytes of a body written to a transcript.
const MaxTranscriptBody = 1 << 20

func writeHeaders(b *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}

func writeBody(b *strings.Builder, body string) {
	if len(body) > MaxTranscriptBody {
		fmt.Fprintf(b, "%s\n... %d bytes truncated", body[:MaxTranscriptBody], len(body)-MaxTranscriptBody)
		return
	}
	b.WriteString(body)
}

func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<NO BODY AVAILABLE>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	read, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(read)
}

// FormatHttpMessage renders a request/response transcript. Responses served
// from the http cache are marked as such.
func FormatHttpMessage(res *resty.Response) string {
	var b strings.Builder

	b.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&b, "%s %s\n\n", res.Request.Method, res.Request.URL)
	if res.Request.RawRequest != nil {
		writeHeaders(&b, res.Request.RawRequest.Header)
	}
	b.WriteString("\n")
	writeBody(&b, requestBody(res.Request.RawRequest))

	responseURL := res.Request.URL
	if res.RawResponse != nil {
		if redirected, err := res.RawResponse.Location(); err == nil {
			responseURL = redirected.String()
		}
	}
	b.WriteString("\n\n---- RESPONSE ----\n\n")
	fmt.Fprintf(&b, "%s %s", strconv.Itoa(res.StatusCode()), responseURL)
	if res.Header().Get("X-From-Cache") != "" {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n\n")
	writeHeaders(&b, res.Header())
	b.WriteString("\n")
	writeBody(&b, res.String())

	return b.String()
}

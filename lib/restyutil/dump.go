package restyutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Output receives a formatted request/response pair under a unique id.
type Output interface {
	Write(id string, contents string)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const maxSlugLength = 80

func messageId(n uint64, rawUrl string) string {
	slug := rawUrl
	parsed, err := url.Parse(rawUrl)
	if err == nil {
		slug = parsed.Host + parsed.Path
	}
	slug = strings.Trim(unsafeChars.ReplaceAllString(slug, "_"), "_")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return fmt.Sprintf("%04d-%s.txt", n, slug)
}

// DumpMessages writes every response the client receives (including non
// 2xx ones) to output, numbered in the order they arrive.
func DumpMessages(client *resty.Client, output Output) {
	if output == nil {
		return
	}
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := messageId(atomic.AddUint64(&counter, 1), res.Request.URL)
		output.Write(id, formatHttpMessage(res))
		return nil
	})
}

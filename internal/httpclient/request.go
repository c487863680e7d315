package httpclient

import "net/http"

// Request is one logical call. Body is encoded at send time; see encodeBody
// for the accepted types.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

func NewRequest(method, url string, body any) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: http.Header{},
		Body:   body,
	}
}

package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

// leaf is a single non-multipart body part after transfer decoding.
type leaf struct {
	mediaType string
	params    map[string]string
	filename  string
	inline    bool
	data      []byte
}

func (l leaf) isAttachment() bool { return !l.inline || l.filename != "" }

func (l leaf) extension() string { return strings.ToLower(path.Ext(l.filename)) }

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeHeader decodes RFC 2047 encoded words. Undecodable input is returned as is.
func decodeHeader(v string) string {
	out, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return out
}

// toUTF8 converts data from the declared charset. Unknown charsets pass through.
func toUTF8(data []byte, charset string) string {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" || cs == "us-ascii" {
		return string(data)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return string(data)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

func transferReader(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// walk flattens a (possibly nested) MIME entity into decoded leaves.
func walk(h textproto.MIMEHeader, body io.Reader, depth int) ([]leaf, error) {
	if depth > 8 {
		return nil, nil
	}
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		var out []leaf
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return out, err
			}
			sub, err := walk(p.Header, p, depth+1)
			out = append(out, sub...)
			if err != nil {
				return out, err
			}
		}
		return out, nil
	}

	data, err := io.ReadAll(transferReader(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return nil, fmt.Errorf("decode %s part: %w", mediaType, err)
	}

	l := leaf{mediaType: mediaType, params: params, inline: true, data: data}
	if disp, dparams, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		l.inline = disp != "attachment"
		l.filename = decodeHeader(dparams["filename"])
	}
	if l.filename == "" && params["name"] != "" {
		l.filename = decodeHeader(params["name"])
	}
	return []leaf{l}, nil
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "table": true,
}

// stripHTML renders the visible text of an HTML document.
func stripHTML(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}
	var b bytes.Buffer
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	visit(doc)
	return collapse(b.String())
}

// collapse squeezes runs of spaces within lines and drops blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

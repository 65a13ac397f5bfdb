// Package mailparse pulls the transcription, caller number and correlation
// token out of the email the telephony provider sends after a voicemail.
package mailparse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"unicode/utf8"

	"contact-automation/internal/phone"
	"contact-automation/internal/speech"
)

// DefaultMinRunes is the shortest transcript still treated as usable.
const DefaultMinRunes = 10

type Source string

const (
	SourceNone       Source = "none"
	SourceAttachment Source = "attachment"
	SourceSpeech     Source = "speech"
	SourcePlain      Source = "plain"
	SourceHTML       Source = "html"
)

var ErrEmpty = errors.New("empty message")

// Message is what the pipeline needs from one transcription email.
type Message struct {
	MessageID        string
	Subject          string
	From             string
	Token            string
	CallerNumber     string
	Transcript       string
	TranscriptSource Source
	RecordingURL     string
	// Body is the decoded text used for token and number lookup.
	Body string
}

var (
	tokenPattern     = regexp.MustCompile(`(?i)entry[_\s-]?id\s*[:=#]?\s*"?([A-Za-z0-9][A-Za-z0-9_-]*)`)
	recordingPattern = regexp.MustCompile(`https?://[^\s"'<>]+\.(?:mp3|wav|ogg|oga|m4a)(?:\?[^\s"'<>]*)?`)
	callerLine       = regexp.MustCompile(`(?im)^(?:от|from|номер|звонок от|caller)[^:\n]*:\s*(.+)$`)
)

type Extractor struct {
	Transcriber speech.Transcriber
	MinRunes    int
	Log         *slog.Logger
}

func NewExtractor(tr speech.Transcriber, minRunes int, log *slog.Logger) *Extractor {
	if minRunes <= 0 {
		minRunes = DefaultMinRunes
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{Transcriber: tr, MinRunes: minRunes, Log: log}
}

// Extract parses raw. A transcript shorter than MinRunes is reported as empty
// with SourceNone; that is not an error.
func (e *Extractor) Extract(ctx context.Context, raw []byte) (Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Message{}, ErrEmpty
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	out := Message{
		MessageID: strings.Trim(msg.Header.Get("Message-Id"), "<> "),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      decodeHeader(msg.Header.Get("From")),
		Token:     strings.TrimSpace(msg.Header.Get("X-Entry-Id")),
	}

	leaves, err := walk(textproto.MIMEHeader(msg.Header), msg.Body, 0)
	if err != nil && len(leaves) == 0 {
		return out, fmt.Errorf("walk message: %w", err)
	}
	if err != nil {
		e.Log.Warn("mail walk incomplete", "message_id", out.MessageID, "err", err)
	}

	plain, htmlText := inlineTexts(leaves)
	out.Body = plain
	if out.Body == "" {
		out.Body = htmlText
	}

	out.Transcript, out.TranscriptSource = e.transcript(ctx, leaves, plain, htmlText)

	haystack := out.Subject + "\n" + out.Body
	if out.Token == "" {
		if m := tokenPattern.FindStringSubmatch(haystack); m != nil {
			out.Token = m[1]
		}
	}
	out.CallerNumber = callerNumber(msg.Header, haystack)
	out.RecordingURL = recordingPattern.FindString(out.Body)
	return out, nil
}

func (e *Extractor) usable(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= e.MinRunes
}

func (e *Extractor) transcript(ctx context.Context, leaves []leaf, plain, htmlText string) (string, Source) {
	for _, l := range leaves {
		if !l.isAttachment() {
			continue
		}
		if l.extension() == ".txt" || (l.mediaType == "text/plain" && l.filename != "") {
			if t := collapse(toUTF8(l.data, l.params["charset"])); e.usable(t) {
				return t, SourceAttachment
			}
		}
	}
	if e.Transcriber != nil {
		for _, l := range leaves {
			if !strings.HasPrefix(l.mediaType, "audio/") || len(l.data) == 0 {
				continue
			}
			t, err := e.Transcriber.Transcribe(ctx, l.filename, l.data)
			if err != nil {
				e.Log.Warn("audio attachment transcription failed", "filename", l.filename, "err", err)
				continue
			}
			if e.usable(t) {
				return t, SourceSpeech
			}
		}
	}
	if e.usable(plain) {
		return plain, SourcePlain
	}
	if e.usable(htmlText) {
		return htmlText, SourceHTML
	}
	return "", SourceNone
}

func inlineTexts(leaves []leaf) (plain, htmlText string) {
	var pb, hb []string
	for _, l := range leaves {
		if l.isAttachment() {
			continue
		}
		switch l.mediaType {
		case "text/plain":
			pb = append(pb, collapse(toUTF8(l.data, l.params["charset"])))
		case "text/html":
			hb = append(hb, stripHTML(toUTF8(l.data, l.params["charset"])))
		}
	}
	return strings.TrimSpace(strings.Join(pb, "\n")), strings.TrimSpace(strings.Join(hb, "\n"))
}

func callerNumber(h mail.Header, haystack string) string {
	if v := h.Get("X-Caller-Number"); v != "" {
		return phone.Normalize(v)
	}
	for _, m := range callerLine.FindAllStringSubmatch(haystack, -1) {
		if n := phone.Find(m[1]); n != "" {
			return n
		}
	}
	return phone.Find(haystack)
}

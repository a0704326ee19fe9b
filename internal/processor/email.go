package processor

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// EmailFile is one candidate quote file from an email: an attachment, or the
// email body itself for suppliers that put quotes straight in the body.
type EmailFile struct {
	Name    string
	Content []byte

	// MatchEmailBody is true for the body pseudo-file, whose name is the
	// email subject. Only formats with the same flag can match it.
	MatchEmailBody bool
}

// Email is a parsed matrix email: the headers the pipeline routes on, plus
// the files to process in order (body first, then attachments).
type Email struct {
	From    string
	To      string
	Subject string
	Files   []EmailFile
}

// ParseEmail reads a full MIME email. It fails with *EmailError when the
// message is unreadable or missing the From, Delivered-To, or Subject
// headers; emails are routed on Delivered-To, so there is nothing to do
// without it.
func ParseEmail(r io.Reader) (*Email, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, &EmailError{Msg: fmt.Sprintf("cannot read email: %v", err)}
	}

	from := msg.Header.Get("From")
	to := msg.Header.Get("Delivered-To")
	subject := decodeHeader(msg.Header.Get("Subject"))
	if from == "" || to == "" || subject == "" {
		return nil, &EmailError{Msg: "invalid email format"}
	}

	email := &Email{From: from, To: to, Subject: subject}

	var w partWalker
	if err := w.walk(msg.Header.Get, msg.Body); err != nil {
		return nil, err
	}

	if w.body != "" {
		email.Files = append(email.Files, EmailFile{
			Name:           subject,
			Content:        []byte(w.body),
			MatchEmailBody: true,
		})
	}
	email.Files = append(email.Files, w.attachments...)
	return email, nil
}

// partWalker recursively collects attachments and the message body from a
// MIME part tree.
type partWalker struct {
	attachments []EmailFile
	body        string
}

func (w *partWalker) walk(header func(string) string, body io.Reader) error {
	contentType := header("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return &EmailError{Msg: "multipart email without boundary"}
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return &EmailError{Msg: fmt.Sprintf("cannot read email part: %v", err)}
			}
			if err := w.walk(part.Header.Get, part); err != nil {
				return err
			}
		}
	}

	content, err := decodeBody(body, header("Content-Transfer-Encoding"))
	if err != nil {
		return &EmailError{Msg: fmt.Sprintf("cannot decode email part: %v", err)}
	}

	if disposition := header("Content-Disposition"); disposition != "" {
		_, dispParams, err := mime.ParseMediaType(disposition)
		if err != nil {
			return &EmailError{Msg: fmt.Sprintf("invalid content disposition %q: %v", disposition, err)}
		}
		fileName := dispParams["filename"]
		if fileName == "" {
			fileName = params["name"]
		}
		// parts with a disposition but no file name are not attachments
		if fileName == "" {
			return nil
		}
		w.attachments = append(w.attachments, EmailFile{
			Name:    decodeHeader(fileName),
			Content: content,
		})
		return nil
	}

	// the body is the first HTML part without a disposition
	if w.body == "" && mediaType == "text/html" {
		w.body = strings.TrimSpace(string(content))
	}
	return nil
}

// decodeBody undoes the content transfer encoding. The multipart reader
// decodes quoted-printable parts transparently and hides their encoding
// header, so the quoted-printable branch only fires for non-multipart bodies.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, newWhitespaceStripper(r)))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

// whitespaceStripper removes the line breaks base64 bodies are wrapped with.
type whitespaceStripper struct {
	r io.Reader
}

func newWhitespaceStripper(r io.Reader) io.Reader { return &whitespaceStripper{r: r} }

func (s *whitespaceStripper) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	kept := 0
	for _, b := range p[:n] {
		if b == '\r' || b == '\n' || b == ' ' || b == '\t' {
			continue
		}
		p[kept] = b
		kept++
	}
	return kept, err
}

// decodeHeader undoes RFC 2047 encoding, common in subjects and non-ASCII
// attachment names. Undecodable headers are passed through as-is.
func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

package transport

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/mailgate/mailgate/internal/utils"
)

// Message is a fully rendered email ready for delivery.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	BodyHTML  string
	BodyText  string
}

var collapseWhitespace = regexp.MustCompile(`[ \t]+`)

// ExtractPlainText derives a text/plain alternative from rendered HTML
// so recipients without HTML rendering still get a readable message.
func ExtractPlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("style, script, head").Remove()
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("p, div, tr, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	text = collapseWhitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// BuildMIME assembles the wire format of the message: headers plus a
// multipart/alternative body carrying the text and HTML parts.
func BuildMIME(msg *Message, now time.Time) (*bytes.Buffer, error) {
	if msg.To == "" {
		return nil, errors.New("message has no recipient")
	}
	if msg.BodyText == "" && msg.BodyHTML == "" {
		return nil, errors.New("message has no content")
	}

	buffer := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(buffer)

	fromDomain := utils.ExtractDomainFromEmail(msg.FromEmail)

	headers := map[string]string{
		"From":         formatAddress(msg.FromName, msg.FromEmail),
		"To":           msg.To,
		"Subject":      mime.QEncoding.Encode("UTF-8", msg.Subject),
		"Date":         now.Format(time.RFC1123Z),
		"Message-ID":   utils.GenerateRFCMessageID(fromDomain),
		"MIME-Version": "1.0",
		"Content-Type": "multipart/alternative; boundary=" + writer.Boundary(),
	}
	writeHeaders(headers, buffer)

	// The least preferred alternative goes first.
	if msg.BodyText != "" {
		if err := addPart(writer, "text/plain; charset=UTF-8", msg.BodyText); err != nil {
			return nil, err
		}
	}
	if msg.BodyHTML != "" {
		if err := addPart(writer, "text/html; charset=UTF-8", msg.BodyHTML); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart writer")
	}
	return buffer, nil
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", name), email)
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	order := []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"}
	for _, k := range order {
		if v, ok := headers[k]; ok {
			buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
		}
	}
	buffer.WriteString("\r\n")
}

func addPart(writer *multipart.Writer, contentType, content string) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create message part")
	}
	qp := quotedprintable.NewWriter(part)
	if _, err = qp.Write([]byte(content)); err != nil {
		return errors.Wrap(err, "failed to write message part")
	}
	return qp.Close()
}

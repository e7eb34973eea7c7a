package calendar

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	meetingIdPattern = regexp.MustCompile(`(?i)Meeting ID:\s*([0-9][0-9 ]*)`)
	passcodePattern  = regexp.MustCompile(`(?i)Pass(?:code|word):\s*([A-Za-z0-9]+)`)
	joinLinkPattern  = regexp.MustCompile(`(?i)^https?://([a-z0-9-]+\.)*(teams\.microsoft\.com|teams\.live\.com|zoom\.us|meet\.google\.com|webex\.com)/`)
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "hr": true,
}

// ExtractMeetingMetadata pulls the meeting id, passcode and join link out of an
// HTML invitation body.
func ExtractMeetingMetadata(body string) MeetingMetadata {
	text, links := parseHTML(body)

	var meta MeetingMetadata
	if m := meetingIdPattern.FindStringSubmatch(text); m != nil {
		meta.MeetingId = strings.TrimSpace(m[1])
	}
	if m := passcodePattern.FindStringSubmatch(text); m != nil {
		meta.Passcode = m[1]
	}
	for _, href := range links {
		if joinLinkPattern.MatchString(href) {
			meta.JoinLink = href
			break
		}
	}
	return meta
}

// FormatMeetingDescription renders extracted metadata as plain lines, omitting
// absent fields.
func FormatMeetingDescription(m MeetingMetadata) string {
	lines := []string{"Microsoft Teams Meeting"}
	if m.JoinLink != "" {
		lines = append(lines, "Join link: "+m.JoinLink)
	}
	if m.MeetingId != "" {
		lines = append(lines, "Meeting ID: "+m.MeetingId)
	}
	if m.Passcode != "" {
		lines = append(lines, "Passcode: "+m.Passcode)
	}
	return strings.Join(lines, "\n")
}

// StripHTML returns the readable text of an HTML fragment, one line per block.
func StripHTML(body string) string {
	text, _ := parseHTML(body)
	return text
}

func parseHTML(body string) (string, []string) {
	z := html.NewTokenizer(strings.NewReader(body))
	var (
		lines   []string
		current strings.Builder
		links   []string
		skip    int
	)
	flush := func() {
		line := strings.Join(strings.Fields(current.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		token := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			switch token.Data {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "a":
				for _, attr := range token.Attr {
					if attr.Key == "href" && attr.Val != "" {
						links = append(links, attr.Val)
					}
				}
			}
			if blockElements[token.Data] {
				flush()
			}
		case html.EndTagToken:
			if (token.Data == "script" || token.Data == "style") && skip > 0 {
				skip--
			}
			if blockElements[token.Data] {
				flush()
			}
		case html.TextToken:
			if skip == 0 {
				current.WriteString(token.Data)
			}
		}
	}
	flush()
	return strings.Join(lines, "\n"), links
}

package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/talkdub-lab/talkdub/internal/job"
)

type message struct {
	Subject string
	HTML    string
}

const mailStyle = `body { font-family: -apple-system, 'Segoe UI', sans-serif; line-height: 1.6; color: #1f2937; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
.content { background: #ffffff; padding: 30px; border: 1px solid #e5e7eb; }
.pin-box { background: #f9fafb; border: 2px solid #2563eb; padding: 20px; text-align: center; margin: 20px 0; border-radius: 8px; }
.pin-code { font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #2563eb; }
.notice { background: #fef3c7; border-left: 4px solid #f59e0b; padding: 15px; margin: 20px 0; }
.error-box { background: #fef2f2; border-left: 4px solid #dc2626; padding: 15px; margin: 20px 0; }
.button { display: inline-block; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 10px 0; }
.footer { text-align: center; color: #6b7280; font-size: 14px; margin-top: 20px; }`

func renderMail(headerColor, header, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head><meta charset=\"UTF-8\"><style>")
	b.WriteString(mailStyle)
	b.WriteString("</style></head>\n<body>\n<div class=\"container\">\n")
	fmt.Fprintf(&b, "<div class=\"header\" style=\"background:%s\"><h1>%s</h1></div>\n", headerColor, header)
	fmt.Fprintf(&b, "<div class=\"content\">\n%s\n</div>\n", body)
	b.WriteString("<div class=\"footer\"><p>This email was sent automatically by TalkDub.</p></div>\n")
	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

func createdMessage(j *job.Job, pinCode, statusURL string) message {
	var body strings.Builder
	body.WriteString("<h2>Your job has been queued</h2>\n")
	body.WriteString("<p>We accepted the following dubbing job:</p>\n<ul>\n")
	fmt.Fprintf(&body, "<li><strong>Job ID:</strong> %s</li>\n", html.EscapeString(j.JobID))
	fmt.Fprintf(&body, "<li><strong>Video:</strong> %s</li>\n", html.EscapeString(j.Source.URL))
	fmt.Fprintf(&body, "<li><strong>Languages:</strong> %s &rarr; %s</li>\n", j.Languages.Src, j.Languages.Tgt)
	body.WriteString("</ul>\n")
	fmt.Fprintf(&body, `<div class="pin-box"><p><strong>Your download PIN</strong></p><div class="pin-code">%s</div><p style="margin-top:10px;font-size:14px;color:#6b7280;">You will need this PIN to download the result.<br>Valid for 72 hours after completion.</p></div>`+"\n", html.EscapeString(pinCode))
	body.WriteString("<p>Processing a 30 minute video typically takes several hours. We will email you again when the job finishes.</p>\n")
	fmt.Fprintf(&body, `<a href="%s" class="button" style="background:#2563eb">Check status</a>`+"\n", html.EscapeString(statusURL))
	return message{
		Subject: "[TalkDub] Your job has been queued",
		HTML:    renderMail("#2563eb", "TalkDub", body.String()),
	}
}

func completedMessage(j *job.Job, statusURL string) message {
	var body strings.Builder
	body.WriteString("<h2>Your delivery is ready</h2>\n")
	fmt.Fprintf(&body, "<p>Job <strong>%s</strong> finished successfully.</p>\n", html.EscapeString(j.JobID))
	body.WriteString(`<div class="notice"><strong>You need the PIN from your first email to download.</strong></div>` + "\n")
	body.WriteString("<ul>\n")
	if j.ExpiresAt != nil {
		fmt.Fprintf(&body, "<li>The delivery is kept until <strong>%s</strong> and then deleted. It cannot be regenerated.</li>\n",
			j.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	body.WriteString("<li>The download can be used at most 5 times.</li>\n")
	body.WriteString("<li>The archive includes a YouTube Studio upload guide.</li>\n")
	body.WriteString("</ul>\n")
	fmt.Fprintf(&body, `<a href="%s" class="button" style="background:#16a34a">Download now</a>`+"\n", html.EscapeString(statusURL))
	return message{
		Subject: "[TalkDub] Your delivery is ready",
		HTML:    renderMail("#16a34a", "Processing complete", body.String()),
	}
}

func failedMessage(j *job.Job, userError string) message {
	var body strings.Builder
	body.WriteString("<h2>Processing failed</h2>\n")
	fmt.Fprintf(&body, "<p>Job <strong>%s</strong> could not be completed.</p>\n", html.EscapeString(j.JobID))
	fmt.Fprintf(&body, `<div class="error-box"><strong>Reason:</strong><br>%s</div>`+"\n", html.EscapeString(userError))
	body.WriteString(`<p><strong>Common causes:</strong></p>
<ul>
<li>The video was deleted or made private.</li>
<li>The video is age or region restricted.</li>
<li>The audio is unusually long or low quality.</li>
<li>Temporary server resource shortage.</li>
</ul>
<p>If you want to retry, wait a while and submit the job again.</p>` + "\n")
	return message{
		Subject: "[TalkDub] Your job failed",
		HTML:    renderMail("#dc2626", "Processing failed", body.String()),
	}
}

package report

import (
	"html/template"
	"strings"

	"attachpurge/backend/internal/domain"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en-US">
<head>
<meta charset="utf-8">
<title>{{.Subject}}</title>
<style type="text/css">
body { font-family: Helvetica, Arial, sans-serif; font-size: 10pt; width: 100%; color: #333; text-align: left; }
a { color: #326ca6; text-decoration: none; }
a:hover { color: #336ca6; text-decoration: underline; }
div.note { border: solid 1px #F0C000; padding: 5px; background-color: #FFFFCE; }
table { border-collapse: collapse; padding: 0; border: 0 none; }
th, td { padding: 5px 7px; border: solid 1px #ddd; text-align: left; vertical-align: top; color: #333; margin: 0; }
th { background-color: #f0f0f0 }
tr.deleted td { background-color: #FFE7E7; }
</style>
</head>
<body>
<p>This message is to inform you that the following prior attachment versions have been removed in order to conserve space. Current versions have not been deleted.</p>
<p>Versions deleted are listed in the 'Versions Deleted' column. Rows shown in red have been processed, all other rows are in report-only mode.</p>
{{if .Cancelled}}<div class="note"><p><strong>CANCELLED</strong>: Job has had an early cancellation request.</p></div>
{{end}}<p><strong>Started</strong>: {{.Started}}<br/><strong>Ended</strong>: {{.Ended}}</p>
{{if .Deleted}}<p>A total of {{.Deleted}} space has been reclaimed.</p>
{{end}}{{if .ReportOnly}}<p>A total of {{.ReportOnly}} can be reclaimed from those in report mode.</p>
{{end}}<table>
<thead>
<tr><th>Space</th><th>File Name</th><th>Space Freed</th><th>Version</th><th>Versions Deleted</th></tr>
</thead>
<tbody>
{{range .Rows}}<tr{{if .Deleted}} class="deleted"{{end}}><td><a href="{{.SpaceURL}}">{{.SpaceName}}</a></td><td><a href="{{.AttachmentsURL}}">{{.Title}}</a></td><td>{{.Size}}</td><td>{{.Version}}</td><td>{{.Versions}}</td></tr>
{{end}}</tbody>
</table>
{{range .Stats}}<p>{{.}}</p>
{{end}}{{if .Sender}}<p>This message has been sent by {{.Sender}}.</p>
{{end}}</body>
</html>
`))

type htmlRow struct {
	Deleted        bool
	SpaceURL       string
	SpaceName      string
	AttachmentsURL string
	Title          string
	Size           string
	Version        int
	Versions       string
}

type htmlData struct {
	Subject    string
	Cancelled  bool
	Started    string
	Ended      string
	Deleted    string
	ReportOnly string
	Rows       []htmlRow
	Stats      []string
	Sender     string
}

func (b *Builder) renderHTML(entries []domain.MailLogEntry, summary Summary) (string, error) {
	data := htmlData{
		Subject:   b.subject,
		Cancelled: summary.Cancelled,
		Started:   timestamp(summary.StartedAt),
		Ended:     timestamp(summary.EndedAt),
		Stats:     statLines(summary),
		Sender:    b.sender,
	}

	deleted, reportOnly := totals(entries)
	if deleted > 0 {
		data.Deleted = FormatBytes(deleted)
	}
	if reportOnly > 0 {
		data.ReportOnly = FormatBytes(reportOnly)
	}

	data.Rows = make([]htmlRow, 0, len(entries))
	for _, e := range entries {
		data.Rows = append(data.Rows, htmlRow{
			Deleted:        !e.ReportOnly,
			SpaceURL:       b.link(e.SpaceURLPath),
			SpaceName:      e.SpaceName,
			AttachmentsURL: b.link(e.AttachmentsURLPath),
			Title:          e.Title,
			Size:           FormatBytes(e.Bytes),
			Version:        e.Version,
			Versions:       CompressVersions(e.Versions),
		})
	}

	var sb strings.Builder
	if err := htmlTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

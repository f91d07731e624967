package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/mithrel/whtreader/pkg/api"
)

// EmptyHTML is shown when no entry is selected.
const EmptyHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
<h1>WhiteWind Reader</h1>
</body>
</html>
`

//go:embed templates/post.html.tmpl
var postTemplateSrc string

var postTemplate = template.Must(template.New("post").Parse(postTemplateSrc))

type postModel struct {
	Content template.HTML
}

// wrap places an already sanitized fragment in the post template.
func wrap(fragment string) (string, error) {
	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, postModel{Content: template.HTML(fragment)}); err != nil {
		return "", fmt.Errorf("%w: execute template: %w", api.ErrRender, err)
	}
	return buf.String(), nil
}
